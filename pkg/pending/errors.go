package pending

import "errors"

// Sentinel errors for the pending substate store overlay (§4.3).
var (
	// ErrLockConflict mirrors store.ErrLockConflict across the overlay chain.
	ErrLockConflict = errors.New("pending: lock conflict")
	// ErrNotFound is returned when get_latest finds no visible UP version.
	ErrNotFound = errors.New("pending: not found")
	// ErrUpWithoutDown is returned when Up doesn't follow a matching Down
	// or the absence of any prior version.
	ErrUpWithoutDown = errors.New("pending: up change without preceding down or absent version")
	// ErrDownWithoutUp is returned when Down targets a version that isn't
	// visible as UP anywhere in the overlay chain.
	ErrDownWithoutUp = errors.New("pending: down change without visible up version")
	// ErrLocalOnlyWriteRequested is returned when try_lock(is_local_only=true)
	// is asked for anything other than a Read lock.
	ErrLocalOnlyWriteRequested = errors.New("pending: local-only lock request must be Read")
)
