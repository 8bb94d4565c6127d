package store

import "github.com/dan-network/dan-core/pkg/substate"

// Re-exported so callers of pkg/store don't need to import pkg/substate
// just to compare errors.
var (
	ErrAlreadyExists = substate.ErrAlreadyExists
	ErrNotUp         = substate.ErrNotUp
	ErrNotFound      = substate.ErrNotFound
	ErrLockConflict  = substate.ErrLockConflict
	ErrUnlockNotHeld = substate.ErrUnlockNotHeld
)
