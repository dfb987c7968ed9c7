package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleCart() Cart {
	return Cart{
		Items: []CartItem{
			{
				ID:        "line-1",
				ProductID: "prod-1",
				Quantity:  2,
				UnitPrice: 120.50,
				Product:   ProductSnapshot{Name: "Oud Nocturne", Brand: "Aromelle", Size: "100ml"},
			},
			{
				ID:        "line-2",
				ProductID: "prod-2",
				Quantity:  1,
				UnitPrice: 89.00,
				Product:   ProductSnapshot{Name: "Citrus Veil", Brand: "Aromelle", Size: "50ml"},
			},
		},
	}
}

// TestCartTotals verifies the derived totals are sums over the items.
func TestCartTotals(t *testing.T) {
	cart := sampleCart()

	assert.Equal(t, 3, cart.TotalCount())
	assert.InDelta(t, 2*120.50+89.00, cart.TotalPrice(), 0.001)
}

// TestCartTotalsEmpty verifies an empty cart derives zero totals.
func TestCartTotalsEmpty(t *testing.T) {
	cart := Cart{}

	assert.Equal(t, 0, cart.TotalCount())
	assert.Equal(t, 0.0, cart.TotalPrice())
}

// TestCloneIsIndependent verifies mutating a clone does not alias the
// original's items.
func TestCloneIsIndependent(t *testing.T) {
	original := sampleCart()
	clone := original.Clone()

	clone.Items[0].Quantity = 99
	clone.Items = append(clone.Items, CartItem{ID: "line-3", Quantity: 1})

	assert.Equal(t, 2, original.Items[0].Quantity)
	assert.Len(t, original.Items, 2)
}

// TestCloneEmptyCart verifies cloning a nil-items cart yields an empty cart.
func TestCloneEmptyCart(t *testing.T) {
	clone := Cart{}.Clone()

	assert.Nil(t, clone.Items)
	assert.Equal(t, 0, clone.TotalCount())
}

// TestSyncStateTransitions checks the legal lifecycle transitions.
func TestSyncStateTransitions(t *testing.T) {
	cases := []struct {
		from    SyncState
		to      SyncState
		allowed bool
	}{
		{SyncStateUninitialized, SyncStateLoading, true},
		{SyncStateUninitialized, SyncStateReady, true},
		{SyncStateUninitialized, SyncStateMutating, false},
		{SyncStateLoading, SyncStateReady, true},
		{SyncStateLoading, SyncStateError, true},
		{SyncStateLoading, SyncStateMutating, false},
		{SyncStateReady, SyncStateMutating, true},
		{SyncStateReady, SyncStateLoading, true},
		{SyncStateReady, SyncStateError, false},
		{SyncStateMutating, SyncStateReady, true},
		{SyncStateMutating, SyncStateLoading, false},
		{SyncStateError, SyncStateLoading, true},
		{SyncStateError, SyncStateMutating, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

// TestSyncStateIsValid checks state validity.
func TestSyncStateIsValid(t *testing.T) {
	for _, s := range []SyncState{
		SyncStateUninitialized, SyncStateLoading, SyncStateReady, SyncStateMutating, SyncStateError,
	} {
		assert.True(t, s.IsValid(), "%s", s)
	}
	assert.False(t, SyncState("CHECKOUT").IsValid())
}
