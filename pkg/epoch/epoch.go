// Package epoch defines the epoch manager contract (§6): committee
// membership and shard-group lookup by epoch. It is consumed, not
// implemented, here — the base-layer scanner that feeds validator
// registrations and epoch boundaries is an external collaborator
// (§1 Out of scope).
package epoch

import (
	"context"

	"github.com/dan-network/dan-core/pkg/shard"
)

// Committee is the set of validators responsible for one shard group
// in a given epoch.
type Committee struct {
	ShardGroup shard.Range
	Members    [][32]byte // validator public keys
}

// CommitteeInfo summarizes the local validator's committee membership.
type CommitteeInfo struct {
	ShardGroup shard.Range
	NumMembers int
}

// Changed is delivered on the stream returned by Subscribe whenever
// the epoch advances.
type Changed struct {
	Epoch uint64
}

// Manager is the epoch manager contract consumed by the HotStuff
// driver and the transaction pool.
type Manager interface {
	// CurrentEpoch returns the locally-observed current epoch.
	CurrentEpoch(ctx context.Context) (uint64, error)
	// GetCommittee returns the committee responsible for shard in epoch.
	GetCommittee(ctx context.Context, epoch uint64, shardIdx int) (Committee, error)
	// GetLocalCommitteeInfo returns this validator's own committee
	// membership summary for epoch.
	GetLocalCommitteeInfo(ctx context.Context, epoch uint64) (CommitteeInfo, error)
	// IsThisValidatorRegisteredForEpoch reports whether the local
	// validator identity is registered to participate in epoch.
	IsThisValidatorRegisteredForEpoch(ctx context.Context, epoch uint64) (bool, error)
	// Subscribe streams Changed events as epochs advance. The returned
	// channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan Changed, error)
}
