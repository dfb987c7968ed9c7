package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProductSnapshot holds the denormalized display fields of a product as they
// were when the line was added. The catalog owns the product itself.
type ProductSnapshot struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	ImageURL string `json:"image_url,omitempty"`
	Size     string `json:"size,omitempty"`
}

// CartItem represents one product line in a cart. A line that would reach
// quantity 0 is removed, never stored.
type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice float64         `json:"unit_price"`
	Product   ProductSnapshot `json:"product"`
}

// Cart represents the current session's collection of items to purchase.
// Items keep insertion order, which is also display order.
type Cart struct {
	Items []CartItem `json:"items"`
}

// TotalCount returns the sum of quantities across all lines. It is always
// recomputed from the items, never stored.
func (c Cart) TotalCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// TotalPrice returns the sum of unit price times quantity across all lines
func (c Cart) TotalPrice() float64 {
	total := 0.0
	for _, item := range c.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// Clone returns a deep copy so callers can hold a snapshot without aliasing
// the synchronizer's internal state.
func (c Cart) Clone() Cart {
	if c.Items == nil {
		return Cart{}
	}
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// Session represents a storefront session held by the gateway. The backend
// credential is sealed before it is written to storage.
type Session struct {
	ID               uuid.UUID
	TokenHash        string
	SealedCredential string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session has passed its expiry
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
