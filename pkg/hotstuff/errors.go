package hotstuff

import "errors"

// Sentinel errors for the HotStuff driver (§4.7).
var (
	// ErrNotLeader is returned when a proposal's signer is not the
	// deterministic leader for (epoch, height).
	ErrNotLeader = errors.New("hotstuff: signer is not leader for this height")
	// ErrInvalidJustify is returned when a block's justify QC does not
	// attest its parent.
	ErrInvalidJustify = errors.New("hotstuff: justify is not a valid QC on parent")
	// ErrAlreadyVoted is returned when a proposal's height is <= last_voted.
	ErrAlreadyVoted = errors.New("hotstuff: already voted at or beyond this height")
	// ErrStateRootMismatch is returned when re-execution produces a
	// different state root than the proposal claims.
	ErrStateRootMismatch = errors.New("hotstuff: re-executed state root mismatch")
	// ErrUnknownParent is returned when a block's parent is not present
	// in the local block store.
	ErrUnknownParent = errors.New("hotstuff: unknown parent block")
	// ErrNotSafe is returned when a block extends neither the locked
	// block nor a higher-justified chain.
	ErrNotSafe = errors.New("hotstuff: block is not safe to vote for")
	// ErrUnstagedBlock is returned when Commit is asked to finalize a
	// block StateMachine never built or re-executed.
	ErrUnstagedBlock = errors.New("hotstuff: commit of a block with no staged execution")
)
