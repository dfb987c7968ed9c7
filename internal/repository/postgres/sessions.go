package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/domain"
	"github.com/aromelle/cartsync/pkg/errors"
)

type sessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *sessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO storefront_sessions (id, token_hash, sealed_credential, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.TokenHash,
		session.SealedCredential,
		session.CreatedAt,
		session.ExpiresAt,
	)

	if err != nil {
		r.logger.Error("Failed to create session", zap.Error(err))
		return err
	}

	return nil
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `
		SELECT id, token_hash, sealed_credential, created_at, expires_at
		FROM storefront_sessions
		WHERE token_hash = $1
	`

	var session domain.Session

	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.TokenHash,
		&session.SealedCredential,
		&session.CreatedAt,
		&session.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "session", ID: tokenHash}
	}
	if err != nil {
		r.logger.Error("Failed to get session by token hash", zap.Error(err))
		return nil, err
	}

	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM storefront_sessions WHERE token_hash = $1`

	res, err := r.db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		r.logger.Error("Failed to delete session", zap.Error(err))
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &errors.ErrNotFound{Resource: "session", ID: tokenHash}
	}

	return nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM storefront_sessions WHERE expires_at < $1`

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		r.logger.Error("Failed to delete expired sessions", zap.Error(err))
		return 0, err
	}

	return res.RowsAffected()
}
