// Package pool implements the two-phase transaction pool of §4.6: the
// per-transaction stage machine (New → Prepared → LocalPrepared →
// AllPrepared | SomePrepared), its evidence-driven readiness flag, and
// finalization into a committed diff or a fee-only no-op.
package pool

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/dan-network/dan-core/internal/poolrt"
	"github.com/dan-network/dan-core/pkg/evidence"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

// Stage is a transaction's position in the pool's two-phase protocol.
type Stage int

const (
	StageNew Stage = iota
	StagePrepared
	StageLocalPrepared
	StageAllPrepared
	StageSomePrepared
)

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "New"
	case StagePrepared:
		return "Prepared"
	case StageLocalPrepared:
		return "LocalPrepared"
	case StageAllPrepared:
		return "AllPrepared"
	case StageSomePrepared:
		return "SomePrepared"
	default:
		return "Unknown"
	}
}

// Decision is a transaction's (possibly still pending) outcome.
type Decision int

const (
	DecisionAccept Decision = iota
	DecisionAbort
)

// Atom is the pool's handle to a transaction: its id, body, decision,
// accumulated evidence, and fees. Tx carries the full signed
// transaction so a leader can execute it against the pending store
// when assembling a proposal, not just attest to its id.
type Atom struct {
	Id             transaction.Id
	Tx             transaction.Transaction
	Decision       Decision
	Evidence       *evidence.Evidence
	TransactionFee uint64
	LeaderFee      *uint64
}

// Record is one transaction's full pool bookkeeping.
type Record struct {
	Atom            Atom
	Stage           Stage
	PendingDecision *Decision
	IsReady         bool
	Final           bool
}

// transitions enumerates every (from, to) pair the §4.6 table permits.
var transitions = map[Stage]map[Stage]bool{
	StageNew:           {StagePrepared: true},
	StagePrepared:      {StageLocalPrepared: true},
	StageLocalPrepared: {StageLocalPrepared: true, StageAllPrepared: true, StageSomePrepared: true},
	StageAllPrepared:   {StageSomePrepared: true},
}

// Pool holds every known transaction's pool record, keyed by
// transaction id. Mutation is serialized by the consensus task, never
// by the executor or gossip task (§5).
type Pool struct {
	mu      sync.Mutex
	records map[transaction.Id]*Record
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{records: make(map[transaction.Id]*Record)}
}

// Insert adds a brand-new transaction to the pool at stage New. It is
// marked ready immediately: a freshly submitted transaction always has
// outstanding work (its own Prepare execution) for the next leader to
// pick up via ReadyForProposal/AssembleProposal.
func (p *Pool) Insert(id transaction.Id, tx transaction.Transaction, ev *evidence.Evidence) *Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := &Record{
		Atom:    Atom{Id: id, Tx: tx, Evidence: ev},
		Stage:   StageNew,
		IsReady: true,
	}
	p.records[id] = rec
	return rec
}

// NewEvidenceForTransaction seeds an Evidence map from tx's declared
// inputs, deriving each one's SubstateAddress and defaulting its lock
// to Write (§4.6: a declared input with no further information is
// assumed exclusive until the executor resolves its actual intent).
func NewEvidenceForTransaction(tx transaction.Transaction) (*evidence.Evidence, error) {
	addrs := make([]uint256.Int, 0, len(tx.Body.DeclaredInputs))
	locks := make([]substate.LockType, 0, len(tx.Body.DeclaredInputs))
	for _, req := range tx.Body.DeclaredInputs {
		version := uint32(0)
		if req.Version != nil {
			version = *req.Version
		}
		addr, err := substate.ToSubstateAddress(req.Id, version)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, *addr)
		locks = append(locks, substate.LockWrite)
	}
	return evidence.New(addrs, locks), nil
}

// Get returns the record for id, or nil if unknown.
func (p *Pool) Get(id transaction.Id) *Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[id]
}

// Transition moves id's record to newStage, validating against the
// §4.6 table and raising ErrInvalidTransactionTransition otherwise.
// Idempotent LocalPrepared→LocalPrepared repeats are permitted.
func (p *Pool) Transition(id transaction.Id, newStage Stage, ready bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[id]
	if !ok {
		return ErrInvalidTransactionTransition
	}

	if rec.Stage == newStage && rec.Stage == StageLocalPrepared {
		rec.IsReady = rec.IsReady || ready
		return nil
	}

	allowed, ok := transitions[rec.Stage]
	if !ok || !allowed[newStage] {
		return ErrInvalidTransactionTransition
	}

	rec.Stage = newStage
	rec.IsReady = ready
	return nil
}

// OnForeignEvidence merges newly observed evidence for id and records
// decision as its pending decision. An Abort moves the record to
// SomePrepared and evidence that completes its justification set moves
// it to AllPrepared, both with IsReady false; otherwise the record
// becomes ready again when the pending decision is new or changed.
func (p *Pool) OnForeignEvidence(id transaction.Id, foreign *evidence.Evidence, decision Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[id]
	if !ok {
		return ErrInvalidTransactionTransition
	}
	if rec.Stage != StageLocalPrepared && rec.Stage != StageAllPrepared {
		return ErrInvalidTransactionTransition
	}

	wasJustified := rec.Atom.Evidence.AllInputAddressesJustified()
	rec.Atom.Evidence.Merge(foreign)
	nowJustified := rec.Atom.Evidence.AllInputAddressesJustified()

	decisionChanged := rec.PendingDecision == nil || *rec.PendingDecision != decision
	rec.PendingDecision = &decision

	if decision == DecisionAbort {
		rec.Stage = StageSomePrepared
		rec.IsReady = false
		return nil
	}
	if nowJustified {
		rec.Stage = StageAllPrepared
		rec.IsReady = false
		return nil
	}
	if decisionChanged || (!wasJustified && nowJustified) {
		rec.IsReady = true
	}
	return nil
}

// Finalize marks a record as final: AllPrepared+Accept commits the
// transaction's diff (signalled by the caller, which owns the store),
// while SomePrepared/Abort records no state change but still marks the
// record final for receipt lookup and fee charging.
func (p *Pool) Finalize(id transaction.Id) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[id]
	if !ok {
		return nil, ErrInvalidTransactionTransition
	}
	if rec.Stage != StageAllPrepared && rec.Stage != StageSomePrepared {
		return nil, ErrInvalidTransactionTransition
	}
	rec.Final = true
	rec.IsReady = false
	return rec, nil
}

// ReadyForProposal returns every record with IsReady=true, the set a
// leader may include in its next proposal.
func (p *Pool) ReadyForProposal() []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Record
	for _, rec := range p.records {
		if rec.IsReady {
			out = append(out, rec)
		}
	}
	return out
}

// RecordsByStage returns every record currently at stage s, used by
// the RPC surface and by reconciliation after a view change.
func (p *Pool) RecordsByStage(s Stage) []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Record
	for _, rec := range p.records {
		if rec.Stage == s {
			out = append(out, rec)
		}
	}
	return out
}

// AssembleProposal snapshots the current ready set under a fresh task
// id, so logs and the RPC surface can correlate one leader's assembly
// pass for a given height even as the pool keeps mutating underneath
// it. It does not remove records from the ready set: removal happens
// when the leader's proposal is justified and the records transition.
func (p *Pool) AssembleProposal(maxTransactions int) (poolrt.TaskId, []*Record) {
	taskId := poolrt.NewTaskId()
	ready := p.ReadyForProposal()
	if maxTransactions > 0 && len(ready) > maxTransactions {
		ready = ready[:maxTransactions]
	}
	return taskId, ready
}
