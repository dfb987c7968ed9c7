package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aromelle/cartsync/internal/domain"
	"github.com/aromelle/cartsync/pkg/errors"
)

// fakeBackend is a scriptable in-memory cart backend. It applies the same
// merge policy as the real service (same product+size folds into one line)
// and can inject failures, delays and blocking.
type fakeBackend struct {
	mu   sync.Mutex
	cart domain.Cart

	fetchErr  error
	mutateErr error
	delay     time.Duration
	gate      chan struct{} // when set, calls block until the gate closes
	started   chan struct{} // when set, signalled once a call has begun

	fetchCalls  int32
	mutateCalls int32
	inFlight    int32
	maxInFlight int32

	lastUpdateQuantity int
	nextLine           int32
}

func (f *fakeBackend) enter() {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	current := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, current) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeBackend) exit() {
	atomic.AddInt32(&f.inFlight, -1)
}

func (f *fakeBackend) FetchCart(ctx context.Context, credential string) (*domain.Cart, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	f.enter()
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	snap := f.cart.Clone()
	return &snap, nil
}

func (f *fakeBackend) AddItem(ctx context.Context, credential, productID string, quantity int, size string) (*domain.Cart, error) {
	atomic.AddInt32(&f.mutateCalls, 1)
	f.enter()
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}

	for i := range f.cart.Items {
		if f.cart.Items[i].ProductID == productID && f.cart.Items[i].Product.Size == size {
			f.cart.Items[i].Quantity += quantity
			snap := f.cart.Clone()
			return &snap, nil
		}
	}
	n := atomic.AddInt32(&f.nextLine, 1)
	f.cart.Items = append(f.cart.Items, domain.CartItem{
		ID:        "line-" + string(rune('0'+n)),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: 100,
		Product:   domain.ProductSnapshot{Name: "Fixture Fragrance", Size: size},
	})
	snap := f.cart.Clone()
	return &snap, nil
}

func (f *fakeBackend) UpdateItem(ctx context.Context, credential, itemID string, quantity int) (*domain.Cart, error) {
	atomic.AddInt32(&f.mutateCalls, 1)
	f.enter()
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdateQuantity = quantity
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}

	for i := range f.cart.Items {
		if f.cart.Items[i].ID == itemID {
			f.cart.Items[i].Quantity = quantity
			snap := f.cart.Clone()
			return &snap, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "cart item", ID: itemID}
}

func (f *fakeBackend) RemoveItem(ctx context.Context, credential, itemID string) (*domain.Cart, error) {
	atomic.AddInt32(&f.mutateCalls, 1)
	f.enter()
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}

	for i := range f.cart.Items {
		if f.cart.Items[i].ID == itemID {
			f.cart.Items = append(f.cart.Items[:i], f.cart.Items[i+1:]...)
			break
		}
	}
	snap := f.cart.Clone()
	return &snap, nil
}

func (f *fakeBackend) setMutateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutateErr = err
}

func (f *fakeBackend) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func newTestSync(backend Backend, credential string) *Synchronizer {
	return New(backend, credential, zap.NewNop())
}

// TestLoadWithoutSession verifies an unauthenticated load resolves to an
// empty cart without touching the network.
func TestLoadWithoutSession(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "")

	cart, err := sync.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, cart.TotalCount())
	assert.Equal(t, 0.0, cart.TotalPrice())
	assert.Equal(t, domain.SyncStateReady, sync.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.fetchCalls))
}

// TestMutationWithoutSession verifies mutations without a session are
// rejected locally, never reaching the network.
func TestMutationWithoutSession(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)

	_, err = sync.AddItem(context.Background(), "prod-1", 1, "")
	require.Error(t, err)
	_, ok := err.(*errors.ErrNoSession)
	assert.True(t, ok, "expected ErrNoSession, got %T", err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.mutateCalls))
}

// TestLoadReplacesLocalCart verifies load takes the server's cart wholesale
// and that repeated loads with no intervening mutation agree.
func TestLoadReplacesLocalCart(t *testing.T) {
	fake := &fakeBackend{
		cart: domain.Cart{Items: []domain.CartItem{
			{ID: "line-1", ProductID: "prod-1", Quantity: 2, UnitPrice: 75},
		}},
	}
	sync := newTestSync(fake, "cred")

	first, err := sync.Load(context.Background())
	require.NoError(t, err)
	second, err := sync.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, sync.TotalCount())
	assert.InDelta(t, 150.0, sync.TotalPrice(), 0.001)
}

// TestLoadFailure verifies a failed load resolves to an empty cart with a
// flagged error, and that a retry recovers.
func TestLoadFailure(t *testing.T) {
	fake := &fakeBackend{
		cart: domain.Cart{Items: []domain.CartItem{
			{ID: "line-1", ProductID: "prod-1", Quantity: 1, UnitPrice: 50},
		}},
	}
	fake.setFetchErr(&errors.ErrBackend{Op: "GET /cart", Err: context.DeadlineExceeded})
	sync := newTestSync(fake, "cred")

	cart, err := sync.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, domain.SyncStateError, sync.State())
	assert.Error(t, sync.LastError())

	// Retrying load recovers
	fake.setFetchErr(nil)
	cart, err = sync.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, domain.SyncStateReady, sync.State())
	assert.NoError(t, sync.LastError())
}

// TestAddItemToEmptyCart covers the first-line add.
func TestAddItemToEmptyCart(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)

	cart, err := sync.AddItem(context.Background(), "prod-1", 1, "100ml")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, 1, sync.TotalCount())
}

// TestAddItemReflectsBackendMergePolicy verifies the synchronizer reports
// whatever line layout the backend confirmed: same product+size merges, a
// different size gets its own line.
func TestAddItemReflectsBackendMergePolicy(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)

	_, err = sync.AddItem(context.Background(), "prod-1", 1, "100ml")
	require.NoError(t, err)
	cart, err := sync.AddItem(context.Background(), "prod-1", 1, "100ml")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	cart, err = sync.AddItem(context.Background(), "prod-1", 1, "50ml")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 3, sync.TotalCount())
}

// TestUpdateQuantityClampsAtOne verifies the chosen below-1 policy: the
// quantity sent to the backend is clamped to 1, leaving the line in place.
func TestUpdateQuantityClampsAtOne(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)
	cart, err := sync.AddItem(context.Background(), "prod-1", 2, "")
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = sync.UpdateQuantity(context.Background(), itemID, 0)
	require.NoError(t, err)

	fake.mu.Lock()
	sent := fake.lastUpdateQuantity
	fake.mu.Unlock()
	assert.Equal(t, 1, sent)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

// TestRemoveLastItem verifies removing the only line empties the cart and
// the derived totals go to zero.
func TestRemoveLastItem(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)
	cart, err := sync.AddItem(context.Background(), "prod-1", 1, "")
	require.NoError(t, err)

	cart, err = sync.RemoveItem(context.Background(), cart.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, sync.TotalCount())
	assert.Equal(t, 0.0, sync.TotalPrice())
}

// TestFailedMutationPreservesCart verifies the no-partial-update rule: after
// a rejected mutation the cart is exactly what it was before the call.
func TestFailedMutationPreservesCart(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)
	added, err := sync.AddItem(context.Background(), "prod-1", 2, "100ml")
	require.NoError(t, err)

	before := sync.Snapshot()
	fake.setMutateErr(&errors.ErrBackend{Op: "PATCH", Err: context.DeadlineExceeded})

	returned, err := sync.UpdateQuantity(context.Background(), added.Items[0].ID, 5)
	require.Error(t, err)

	assert.Equal(t, before, sync.Snapshot())
	assert.Equal(t, before, returned)
	assert.Equal(t, domain.SyncStateReady, sync.State())
	assert.Error(t, sync.LastError())

	// The same action can be retried
	fake.setMutateErr(nil)
	cart, err := sync.UpdateQuantity(context.Background(), added.Items[0].ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.NoError(t, sync.LastError())
}

// TestConcurrentMutationsSerialized fires rapid concurrent adds and checks
// that no call overlaps another and no update is lost.
func TestConcurrentMutationsSerialized(t *testing.T) {
	fake := &fakeBackend{delay: 5 * time.Millisecond}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)

	const n = 10
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := sync.AddItem(ctx, "prod-1", 1, "100ml")
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.maxInFlight),
		"mutations must not overlap")
	snap := sync.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, n, snap.Items[0].Quantity, "no update may be lost")
}

// TestCloseDiscardsInFlightResult verifies a result settling after Close is
// discarded, never applied to state the UI might still reference.
func TestCloseDiscardsInFlightResult(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	fake := &fakeBackend{gate: gate, started: started}
	sync := newTestSync(fake, "cred")

	// Unblock the initial load
	go func() { gate <- struct{}{} }()
	_, err := sync.Load(context.Background())
	require.NoError(t, err)
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := sync.AddItem(context.Background(), "prod-1", 1, "")
		done <- err
	}()

	<-started // the add has reached the backend
	sync.Close()
	close(gate) // let the backend respond

	err = <-done
	require.Error(t, err)
	_, ok := err.(*errors.ErrSyncClosed)
	assert.True(t, ok, "expected ErrSyncClosed, got %T", err)
	assert.Empty(t, sync.Snapshot().Items)
}

// TestMutationBeforeLoadRejected verifies the state machine: mutations are
// only legal once the cart has synced.
func TestMutationBeforeLoadRejected(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.AddItem(context.Background(), "prod-1", 1, "")
	require.Error(t, err)
	_, ok := err.(*errors.ErrInvalidStateTransition)
	assert.True(t, ok, "expected ErrInvalidStateTransition, got %T", err)
}

// TestAddItemRejectsNonPositiveQuantity verifies the local input constraint.
func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	_, err := sync.Load(context.Background())
	require.NoError(t, err)

	_, err = sync.AddItem(context.Background(), "prod-1", 0, "")
	require.Error(t, err)
	_, ok := err.(*errors.ErrValidation)
	assert.True(t, ok, "expected ErrValidation, got %T", err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.mutateCalls))
}

// TestSubscribeNotify verifies subscribers observe commits and failures, and
// that unsubscribing stops delivery.
func TestSubscribeNotify(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")
	unsubscribe := sync.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	_, err := sync.Load(context.Background())
	require.NoError(t, err)
	_, err = sync.AddItem(context.Background(), "prod-1", 1, "")
	require.NoError(t, err)

	fake.setMutateErr(&errors.ErrBackend{Op: "POST", Err: context.DeadlineExceeded})
	_, err = sync.AddItem(context.Background(), "prod-2", 1, "")
	require.Error(t, err)

	mu.Lock()
	require.Len(t, events, 3)
	assert.Equal(t, EventLoaded, events[0].Type)
	assert.Equal(t, EventItemAdded, events[1].Type)
	assert.Equal(t, "Added to cart", events[1].Message)
	assert.Equal(t, 1, events[1].Cart.TotalCount())
	assert.Equal(t, EventSyncFailed, events[2].Type)
	assert.Error(t, events[2].Err)
	mu.Unlock()

	unsubscribe()
	fake.setMutateErr(nil)
	_, err = sync.AddItem(context.Background(), "prod-3", 1, "")
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, events, 3, "no events after unsubscribe")
	mu.Unlock()
}

// TestQuantityInvariant walks a mixed operation sequence and checks no
// reachable cart state ever stores a line below quantity 1.
func TestQuantityInvariant(t *testing.T) {
	fake := &fakeBackend{}
	sync := newTestSync(fake, "cred")

	check := func(c domain.Cart) {
		for _, item := range c.Items {
			assert.GreaterOrEqual(t, item.Quantity, 1)
		}
		assert.Equal(t, c.TotalCount(), sync.TotalCount())
	}

	cart, err := sync.Load(context.Background())
	require.NoError(t, err)
	check(cart)

	cart, err = sync.AddItem(context.Background(), "prod-1", 3, "50ml")
	require.NoError(t, err)
	check(cart)

	cart, err = sync.UpdateQuantity(context.Background(), cart.Items[0].ID, -2)
	require.NoError(t, err)
	check(cart)

	cart, err = sync.AddItem(context.Background(), "prod-2", 1, "")
	require.NoError(t, err)
	check(cart)

	cart, err = sync.RemoveItem(context.Background(), cart.Items[0].ID)
	require.NoError(t, err)
	check(cart)
}
