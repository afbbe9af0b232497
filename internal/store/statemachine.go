package store

// statemachine.go — message lifecycle state transition rules.
//
// State diagram:
//
//	            add / remote "added"
//	                    │
//	                    ▼
//	                 QUEUED ◄──────────────┐
//	               │        │              │
//	     (removed) │        │ dispatch     │ cancel-while-sent
//	   cancel ◄────┘        ▼              │
//	                      SENT ────────────┘
//	               │              │
//	     countdown │              │ superseded / countdown
//	               ▼              ▼
//	            EXPIRED        EXPIRED
//
// EXPIRED and CANCELLED are terminal for that message instance, with one
// exception: cancelling a SENT message returns it to QUEUED instead of
// deleting it (the operator pulled it off the wall, not out of the queue).

import "github.com/rcalder/wallcue/internal/types"

// ValidTransition reports whether the transition from → to is a legal state
// change for a message.
//
// Used defensively in tests; production code drives transitions through the
// Store methods (Dispatch, Cancel, ExpirationSweep, ClearAll) which already
// enforce the rules.
func ValidTransition(from, to types.Status) bool {
	switch from {
	case types.StatusQueued:
		// QUEUED can:
		//   → SENT      — dispatched to the wall
		//   → EXPIRED   — countdown ran out before it was ever shown
		//   → CANCELLED — operator withdrew it (and it is removed)
		return to == types.StatusSent || to == types.StatusExpired || to == types.StatusCancelled
	case types.StatusSent:
		// SENT can:
		//   → EXPIRED — countdown ran out, or the next cycled message took over
		//   → QUEUED  — cancel-while-sent: pulled off the wall, back in line
		return to == types.StatusExpired || to == types.StatusQueued
	case types.StatusExpired, types.StatusCancelled:
		return false
	}
	return false
}
