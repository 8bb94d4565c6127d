package hotstuff

import (
	"sync"

	"github.com/dan-network/dan-core/pkg/evidence"
	"github.com/dan-network/dan-core/pkg/pool"
	"github.com/dan-network/dan-core/pkg/transaction"
)

// ForeignProposal is a peer committee's attestation for a cross-shard
// transaction's locally-relevant inputs: its own QC id plus the
// evidence it has accumulated for the addresses it is responsible for
// (§4.8). It arrives out-of-band from this committee's own consensus
// messages, over whatever transport carries CommandForeignProposal's
// announcement.
type ForeignProposal struct {
	TransactionId transaction.Id
	QcId          [32]byte
	Decision      pool.Decision
	Evidence      *evidence.Evidence
}

// ForeignCoordinator receives ForeignProposal messages and merges
// their evidence into the local pool, the receiving half of §4.8's
// atomic cross-committee commit protocol: once every committee
// involved in a transaction has justified its addresses, the record
// advances to AllPrepared (or SomePrepared on any committee's Abort).
type ForeignCoordinator struct {
	mu   sync.Mutex
	pool *pool.Pool
	seen map[transaction.Id]map[[32]byte]bool
}

// NewForeignCoordinator returns a ForeignCoordinator that merges
// foreign evidence into p.
func NewForeignCoordinator(p *pool.Pool) *ForeignCoordinator {
	return &ForeignCoordinator{pool: p, seen: make(map[transaction.Id]map[[32]byte]bool)}
}

// OnForeignProposal merges fp's evidence into the local record for
// fp.TransactionId. Redelivery of a QC already merged for this
// transaction is a no-op: evidence.Merge is itself idempotent per
// qc_id, but deduping here also avoids re-acquiring the pool lock and
// re-running the ready-again check for a replay.
func (fc *ForeignCoordinator) OnForeignProposal(fp ForeignProposal) error {
	fc.mu.Lock()
	seen, ok := fc.seen[fp.TransactionId]
	if !ok {
		seen = make(map[[32]byte]bool)
		fc.seen[fp.TransactionId] = seen
	}
	if seen[fp.QcId] {
		fc.mu.Unlock()
		return nil
	}
	seen[fp.QcId] = true
	fc.mu.Unlock()

	return fc.pool.OnForeignEvidence(fp.TransactionId, fp.Evidence, fp.Decision)
}
