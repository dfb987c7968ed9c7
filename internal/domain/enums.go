package domain

// SyncState represents the lifecycle state of a cart synchronizer
type SyncState string

const (
	SyncStateUninitialized SyncState = "UNINITIALIZED"
	SyncStateLoading       SyncState = "LOADING"
	SyncStateReady         SyncState = "READY"
	SyncStateMutating      SyncState = "MUTATING"
	SyncStateError         SyncState = "ERROR"
)

// IsValid checks if the sync state is valid
func (s SyncState) IsValid() bool {
	switch s {
	case SyncStateUninitialized,
		SyncStateLoading,
		SyncStateReady,
		SyncStateMutating,
		SyncStateError:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a state transition is valid. ERROR is terminal
// for the load that produced it but recoverable by loading again.
func (s SyncState) CanTransitionTo(newState SyncState) bool {
	switch s {
	case SyncStateUninitialized:
		return newState == SyncStateLoading ||
			newState == SyncStateReady
	case SyncStateLoading:
		return newState == SyncStateReady ||
			newState == SyncStateError
	case SyncStateReady:
		return newState == SyncStateMutating ||
			newState == SyncStateLoading
	case SyncStateMutating:
		return newState == SyncStateReady
	case SyncStateError:
		return newState == SyncStateLoading ||
			newState == SyncStateReady
	default:
		return false
	}
}
