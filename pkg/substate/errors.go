package substate

import "errors"

// Sentinel errors shared by the substate store layers (§4.2/§4.3).
var (
	// ErrAlreadyExists is returned by put_up when a row for (id, version) exists.
	ErrAlreadyExists = errors.New("substate: already exists")
	// ErrNotUp is returned by put_down unless the row is currently UP.
	ErrNotUp = errors.New("substate: not up")
	// ErrNotFound is returned by get_latest when no UP row exists for an id.
	ErrNotFound = errors.New("substate: not found")
	// ErrLockConflict is returned by lock() when the requested intent
	// is incompatible with an existing lock.
	ErrLockConflict = errors.New("substate: lock conflict")
	// ErrUnlockNotHeld is returned by unlock() when no matching lock is held.
	ErrUnlockNotHeld = errors.New("substate: unlock of lock not held")
)
