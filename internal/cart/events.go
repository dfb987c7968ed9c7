package cart

import "github.com/aromelle/cartsync/internal/domain"

// EventType identifies what a synchronizer event reports
type EventType string

const (
	EventLoaded      EventType = "cart_loaded"
	EventItemAdded   EventType = "item_added"
	EventItemUpdated EventType = "item_updated"
	EventItemRemoved EventType = "item_removed"
	EventSyncFailed  EventType = "sync_failed"
)

// Event is delivered to subscribers after every settled operation. Cart is a
// snapshot taken at commit time; Err is set only for EventSyncFailed.
type Event struct {
	Type    EventType
	Cart    domain.Cart
	Message string
	Err     error
}

// Listener receives synchronizer events. Listeners are invoked synchronously
// on the goroutine that completed the operation and must not call back into
// the synchronizer's mutating methods.
type Listener func(Event)
