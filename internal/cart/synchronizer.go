package cart

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/domain"
	"github.com/aromelle/cartsync/pkg/errors"
)

// Backend is the remote cart service the synchronizer reconciles against.
// Implemented by backend.Client; tests substitute fakes.
type Backend interface {
	FetchCart(ctx context.Context, credential string) (*domain.Cart, error)
	AddItem(ctx context.Context, credential, productID string, quantity int, size string) (*domain.Cart, error)
	UpdateItem(ctx context.Context, credential, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, credential, itemID string) (*domain.Cart, error)
}

// Synchronizer owns the in-memory cart for one session and keeps it in sync
// with the remote cart service. Every mutation goes through the backend; the
// backend's response always replaces the local cart wholesale. No local
// mutation is ever treated as final.
//
// Operations are serialized: a mutation issued while another operation is in
// flight queues behind it and observes the committed result of its
// predecessor. This closes the lost-update window between two rapid
// mutations on the same line.
type Synchronizer struct {
	backend    Backend
	credential string
	logger     *zap.Logger

	// opMu serializes Load and all mutations in issuance order
	opMu chan struct{}

	mu           sync.RWMutex
	cart         domain.Cart
	state        domain.SyncState
	lastErr      error
	closed       bool
	listeners    map[int]Listener
	nextListener int
}

// New creates a synchronizer for the given session credential. An empty
// credential means no session: Load resolves to an empty cart and mutations
// are rejected locally without a network call.
func New(b Backend, credential string, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		backend:    b,
		credential: credential,
		logger:     logger,
		opMu:       make(chan struct{}, 1),
		state:      domain.SyncStateUninitialized,
		listeners:  make(map[int]Listener),
	}
}

// Load fetches the current cart and replaces the local one wholesale. On
// failure the local cart is reset to empty and the error is returned for the
// caller to surface; it never panics into the caller.
func (s *Synchronizer) Load(ctx context.Context) (domain.Cart, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.Cart{}, err
	}
	defer s.release()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, &errors.ErrSyncClosed{}
	}
	if s.credential == "" {
		// No session: resolve to an empty cart without touching the network
		s.cart = domain.Cart{}
		s.state = domain.SyncStateReady
		s.lastErr = nil
		s.mu.Unlock()
		s.notify(Event{Type: EventLoaded})
		return domain.Cart{}, nil
	}
	s.state = domain.SyncStateLoading
	s.mu.Unlock()

	fetched, err := s.backend.FetchCart(ctx, s.credential)

	s.mu.Lock()
	if s.closed {
		// The owning surface is gone; discard the result
		s.mu.Unlock()
		return domain.Cart{}, &errors.ErrSyncClosed{}
	}
	if err != nil {
		s.cart = domain.Cart{}
		s.state = domain.SyncStateError
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("Failed to load cart", zap.Error(err))
		s.notify(Event{Type: EventSyncFailed, Err: err})
		return domain.Cart{}, err
	}
	s.cart = fetched.Clone()
	s.state = domain.SyncStateReady
	s.lastErr = nil
	snap := s.cart.Clone()
	s.mu.Unlock()

	s.notify(Event{Type: EventLoaded, Cart: snap})
	return snap, nil
}

// AddItem adds a product line or increases its quantity, per the backend's
// line-merging policy. The local cart is only updated once the backend
// confirms; a failed add leaves it untouched.
func (s *Synchronizer) AddItem(ctx context.Context, productID string, quantity int, size string) (domain.Cart, error) {
	if quantity < 1 {
		return s.Snapshot(), &errors.ErrValidation{Message: "quantity must be at least 1"}
	}
	return s.mutate(ctx, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.AddItem(ctx, s.credential, productID, quantity, size)
	}, EventItemAdded, "Added to cart")
}

// UpdateQuantity sets a line's quantity. Quantities below 1 are clamped to 1
// before sending: decrementing past 1 is a no-op, removal only happens
// through RemoveItem.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, itemID string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.UpdateItem(ctx, s.credential, itemID, quantity)
	}, EventItemUpdated, "Cart updated")
}

// RemoveItem deletes a line entirely. The line stays in the local cart until
// the backend confirms its absence.
func (s *Synchronizer) RemoveItem(ctx context.Context, itemID string) (domain.Cart, error) {
	return s.mutate(ctx, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.RemoveItem(ctx, s.credential, itemID)
	}, EventItemRemoved, "Removed from cart")
}

func (s *Synchronizer) mutate(ctx context.Context, call func(context.Context) (*domain.Cart, error), eventType EventType, message string) (domain.Cart, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.Cart{}, err
	}
	defer s.release()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, &errors.ErrSyncClosed{}
	}
	if s.credential == "" {
		// Handled locally, never reaches the network
		snap := s.cart.Clone()
		s.mu.Unlock()
		return snap, &errors.ErrNoSession{}
	}
	if !s.state.CanTransitionTo(domain.SyncStateMutating) {
		from := s.state
		snap := s.cart.Clone()
		s.mu.Unlock()
		return snap, &errors.ErrInvalidStateTransition{
			From: string(from),
			To:   string(domain.SyncStateMutating),
		}
	}
	s.state = domain.SyncStateMutating
	s.mu.Unlock()

	confirmed, err := call(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, &errors.ErrSyncClosed{}
	}
	s.state = domain.SyncStateReady
	if err != nil {
		// Last known-good cart stays exactly as it was before the call
		s.lastErr = err
		snap := s.cart.Clone()
		s.mu.Unlock()
		s.logger.Warn("Cart mutation failed", zap.Error(err))
		s.notify(Event{Type: EventSyncFailed, Cart: snap, Err: err})
		return snap, err
	}
	s.cart = confirmed.Clone()
	s.lastErr = nil
	snap := s.cart.Clone()
	s.mu.Unlock()

	s.notify(Event{Type: eventType, Cart: snap, Message: message})
	return snap, nil
}

// Snapshot returns a copy of the cart as of the last successful sync
func (s *Synchronizer) Snapshot() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// TotalCount returns the item count derived from the current snapshot
func (s *Synchronizer) TotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.TotalCount()
}

// TotalPrice returns the cart total derived from the current snapshot
func (s *Synchronizer) TotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.TotalPrice()
}

// State returns the synchronizer's current lifecycle state
func (s *Synchronizer) State() domain.SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the error flagged by the most recent failed operation,
// or nil after a successful one.
func (s *Synchronizer) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// HasSession reports whether the synchronizer is backed by a session
// credential.
func (s *Synchronizer) HasSession() bool {
	return s.credential != ""
}

// Subscribe registers a listener for synchronizer events and returns a
// function that removes it. Multiple UI surfaces can observe one cart
// without holding independent state.
func (s *Synchronizer) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	if s.listeners == nil {
		s.listeners = make(map[int]Listener)
	}
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close marks the synchronizer stale. Results of in-flight operations that
// settle after Close are discarded and never applied.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = nil
}

func (s *Synchronizer) notify(ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// acquire takes the operation slot, queueing behind any in-flight operation
func (s *Synchronizer) acquire(ctx context.Context) error {
	select {
	case s.opMu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) release() {
	<-s.opMu
}
