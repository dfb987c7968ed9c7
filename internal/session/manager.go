package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/cart"
	"github.com/aromelle/cartsync/internal/domain"
	"github.com/aromelle/cartsync/internal/repository"
	"github.com/aromelle/cartsync/pkg/errors"
)

// Backend extends the cart backend with guest credential issuance
type Backend interface {
	cart.Backend
	CreateAnonymousSession(ctx context.Context) (string, error)
}

type activeEntry struct {
	sync      *cart.Synchronizer
	expiresAt time.Time
}

// Manager owns storefront sessions and the one live cart synchronizer each
// of them is allowed to have. The UI exchanges a backend credential for an
// opaque gateway token; the credential itself only ever lives sealed in the
// store and in memory for the session's lifetime.
type Manager struct {
	sessions repository.SessionRepository
	sealer   *Sealer
	backend  Backend
	ttl      time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]activeEntry
}

// NewManager creates a session manager
func NewManager(sessions repository.SessionRepository, sealer *Sealer, backend Backend, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: sessions,
		sealer:   sealer,
		backend:  backend,
		ttl:      ttl,
		logger:   logger,
		active:   make(map[string]activeEntry),
	}
}

// Create mints a gateway session for the given backend credential. An empty
// credential starts an anonymous session backed by a guest cart on the
// backend.
func (m *Manager) Create(ctx context.Context, credential string) (string, time.Time, error) {
	if credential == "" {
		guest, err := m.backend.CreateAnonymousSession(ctx)
		if err != nil {
			return "", time.Time{}, err
		}
		credential = guest
	}

	sealed, err := m.sealer.Seal(credential)
	if err != nil {
		return "", time.Time{}, err
	}

	token := uuid.NewString()
	now := time.Now()
	sess := &domain.Session{
		ID:               uuid.New(),
		TokenHash:        HashToken(token),
		SealedCredential: sealed,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.ttl),
	}

	if err := m.sessions.Create(ctx, sess); err != nil {
		return "", time.Time{}, err
	}

	m.logger.Info("Session created", zap.String("session_id", sess.ID.String()))
	return token, sess.ExpiresAt, nil
}

// Resolve maps a gateway token to its session's synchronizer, creating the
// synchronizer on first use. Unknown or expired tokens resolve to
// ErrNoSession.
func (m *Manager) Resolve(ctx context.Context, token string) (*cart.Synchronizer, error) {
	hash := HashToken(token)
	now := time.Now()

	m.mu.Lock()
	if entry, ok := m.active[hash]; ok {
		if now.Before(entry.expiresAt) {
			m.mu.Unlock()
			return entry.sync, nil
		}
		entry.sync.Close()
		delete(m.active, hash)
	}
	m.mu.Unlock()

	sess, err := m.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			return nil, &errors.ErrNoSession{}
		}
		return nil, err
	}
	if sess.Expired(now) {
		if err := m.sessions.Delete(ctx, hash); err != nil {
			m.logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, &errors.ErrNoSession{}
	}

	credential, err := m.sealer.Open(sess.SealedCredential)
	if err != nil {
		m.logger.Error("Failed to unseal session credential",
			zap.String("session_id", sess.ID.String()),
			zap.Error(err),
		)
		return nil, &errors.ErrNoSession{}
	}

	sync := cart.New(m.backend, credential, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have resolved the same session concurrently; keep
	// the one already registered so the session has a single synchronizer.
	if entry, ok := m.active[hash]; ok && now.Before(entry.expiresAt) {
		sync.Close()
		return entry.sync, nil
	}
	m.active[hash] = activeEntry{sync: sync, expiresAt: sess.ExpiresAt}
	return sync, nil
}

// Destroy ends a session: the stored record is deleted and the live
// synchronizer, if any, is closed so in-flight results are discarded.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	hash := HashToken(token)

	m.mu.Lock()
	if entry, ok := m.active[hash]; ok {
		entry.sync.Close()
		delete(m.active, hash)
	}
	m.mu.Unlock()

	if err := m.sessions.Delete(ctx, hash); err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			return nil
		}
		return err
	}
	return nil
}

// ReapExpired removes expired sessions from the store and closes their live
// synchronizers. Intended to run periodically.
func (m *Manager) ReapExpired(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	for hash, entry := range m.active {
		if now.After(entry.expiresAt) {
			entry.sync.Close()
			delete(m.active, hash)
		}
	}
	m.mu.Unlock()

	n, err := m.sessions.DeleteExpired(ctx, now)
	if err != nil {
		m.logger.Warn("Failed to reap expired sessions", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Info("Reaped expired sessions", zap.Int64("count", n))
	}
}
