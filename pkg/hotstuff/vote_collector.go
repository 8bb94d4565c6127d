// VoteCollector accumulates votes for a single block toward quorum.
package hotstuff

import (
	"sync"

	"github.com/dan-network/dan-core/internal/blssig"
	"github.com/dan-network/dan-core/pkg/block"
)

// VoteCollector accumulates signed votes for one block_id until
// quorum, at which point it aggregates the signatures into a QC.
type VoteCollector struct {
	mu       sync.Mutex
	blockId  block.Id
	height   uint64
	epoch    uint64
	shard    int
	quorum   int
	decision block.Decision
	seen     map[[32]byte]bool
	sigs     []*blssig.Signature
	leaves   [][32]byte
}

// NewVoteCollector starts collecting votes for blockId toward quorum.
func NewVoteCollector(blockId block.Id, height, epoch uint64, shard, quorum int, decision block.Decision) *VoteCollector {
	return &VoteCollector{
		blockId:  blockId,
		height:   height,
		epoch:    epoch,
		shard:    shard,
		quorum:   quorum,
		decision: decision,
		seen:     make(map[[32]byte]bool),
	}
}

// AddVote records one validator's vote. It returns the formed QC (and
// true) the moment quorum is reached; subsequent calls after quorum
// are no-ops returning (nil, false).
func (c *VoteCollector) AddVote(v Vote, sig *blssig.Signature) (*block.QuorumCertificate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.BlockId != c.blockId || v.Decision != c.decision {
		return nil, false, nil
	}
	if c.seen[v.Signer] {
		return nil, false, nil // duplicate vote, ignore
	}
	if len(c.seen) >= c.quorum {
		return nil, false, nil // quorum already reached and consumed
	}

	c.seen[v.Signer] = true
	c.sigs = append(c.sigs, sig)
	c.leaves = append(c.leaves, v.BlockId)

	if len(c.seen) < c.quorum {
		return nil, false, nil
	}

	agg, err := blssig.AggregateSignatures(c.sigs)
	if err != nil {
		return nil, false, err
	}

	qc := &block.QuorumCertificate{
		BlockId:     c.blockId,
		BlockHeight: c.height,
		Epoch:       c.epoch,
		Shard:       c.shard,
		Decision:    c.decision,
		Signatures:  [][]byte{agg.Bytes()},
		LeafHashes:  c.leaves,
	}
	qcId, err := block.ComputeQcId(*qc)
	if err != nil {
		return nil, false, err
	}
	qc.QcId = qcId
	return qc, true, nil
}

// Len reports how many distinct votes have been collected so far.
func (c *VoteCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
