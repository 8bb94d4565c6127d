package hotstuff

import (
	"fmt"
	"sync"
	"time"

	"github.com/dan-network/dan-core/pkg/block"
	"github.com/dan-network/dan-core/pkg/executor"
	"github.com/dan-network/dan-core/pkg/pending"
	"github.com/dan-network/dan-core/pkg/pool"
	"github.com/dan-network/dan-core/pkg/statetree"
	"github.com/dan-network/dan-core/pkg/store"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

// proposableFrom maps a pool record's current stage to the command a
// leader may cite for it in a new proposal, and stageForCommandKind is
// its inverse: the stage that command commits the record into.
var proposableFrom = map[pool.Stage]block.CommandKind{
	pool.StageNew:           block.CommandPrepare,
	pool.StagePrepared:      block.CommandLocalPrepared,
	pool.StageLocalPrepared: block.CommandLocalPrepared, // idempotent re-attest, §4.6
}

func stageForCommandKind(k block.CommandKind) (pool.Stage, bool) {
	switch k {
	case block.CommandPrepare:
		return pool.StagePrepared, true
	case block.CommandLocalPrepared:
		return pool.StageLocalPrepared, true
	case block.CommandAllPrepared:
		return pool.StageAllPrepared, true
	case block.CommandSomePrepared:
		return pool.StageSomePrepared, true
	default:
		return 0, false
	}
}

// blockExecution is what StateMachine remembers about one block it has
// built (as leader) or re-executed (as a voter), so a later Commit can
// flush the right substate changes and state-tree diff without redoing
// the work.
type blockExecution struct {
	overlay  *pending.Overlay
	ownDiff  []pending.SubstateChange
	treeDiff statetree.StateHashTreeDiff
	root     [32]byte
}

// StateMachine ties the transaction pool, the pending substate store,
// the deterministic executor, and the per-shard state tree into the
// BlockExecutor a Replica drives: it is the "tightly coupled" state
// transition component §4.1 describes — a block commit advances pool
// stages, writes substates, and produces a new state root atomically.
// As a leader it additionally assembles new proposals via
// BuildProposal, executing each ready pool record's Prepare step
// against the pending store before citing the resulting root.
type StateMachine struct {
	mu sync.Mutex

	pool       *pool.Pool
	blocks     BlockStore
	persistent *store.Store
	tree       *statetree.Tree
	engine     executor.Engine
	virtual    executor.VirtualSubstates

	rootOverlay  *pending.Overlay
	staged       map[block.Id]*blockExecution
	committedTip block.Id
}

// NewStateMachine constructs a StateMachine rooted at genesis, reading
// and writing substates in persistent via a pending overlay, and
// maintaining tree as the shard's committed state tree.
func NewStateMachine(genesis block.Id, blocks BlockStore, persistent *store.Store, tree *statetree.Tree, p *pool.Pool, engine executor.Engine, virtual executor.VirtualSubstates) *StateMachine {
	root := pending.New(persistent)
	sm := &StateMachine{
		pool:         p,
		blocks:       blocks,
		persistent:   persistent,
		tree:         tree,
		engine:       engine,
		virtual:      virtual,
		rootOverlay:  root,
		staged:       make(map[block.Id]*blockExecution),
		committedTip: genesis,
	}
	sm.staged[genesis] = &blockExecution{overlay: root, root: tree.Root()}
	return sm
}

// BuildProposal assembles a new block extending parent, citing justify
// as its QC, at (height, epoch), proposed by proposer. It pulls up to
// maxTransactions ready pool records (§4.6), executes each one's
// declared inputs and instructions against a pending overlay chained
// off parent's, stages the resulting substate diff into the shard
// state tree, and returns the unsigned, content-addressed block
// (§4.7 steps 1-2). Records whose execution fails are left out of the
// block and remain in the pool for the leader to retry later.
func (sm *StateMachine) BuildProposal(parent *block.Block, justify block.QuorumCertificate, height, epoch uint64, proposer [32]byte, maxTransactions int) (*block.Block, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	parentExec, ok := sm.staged[parent.Id]
	if !ok {
		return nil, ErrUnknownParent
	}
	child := parentExec.overlay.Child()

	_, ready := sm.pool.AssembleProposal(maxTransactions)

	commands := make([]block.Command, 0, len(ready))
	for _, rec := range ready {
		kind, ok := proposableFrom[rec.Stage]
		if !ok {
			continue
		}
		if err := sm.executeIntoOverlay(child, rec.Atom.Tx); err != nil {
			continue // execution failed; leave the record in the pool
		}
		commands = append(commands, block.Command{Kind: kind, TransactionId: rec.Atom.Id})
	}

	ownDiff := child.Diff()
	leaves, err := sm.cumulativeLeafChanges(parent.Id, ownDiff)
	if err != nil {
		return nil, fmt.Errorf("hotstuff: build proposal: %w", err)
	}
	root, treeDiff := sm.tree.StageDiff(leaves)

	b := block.Block{
		ParentId:   parent.Id,
		Justify:    justify,
		Height:     height,
		Epoch:      epoch,
		ProposedBy: proposer,
		Commands:   commands,
		MerkleRoot: root,
		Timestamp:  time.Now().Unix(),
	}
	id, err := block.ComputeId(b)
	if err != nil {
		return nil, fmt.Errorf("hotstuff: compute proposed block id: %w", err)
	}
	b.Id = id

	sm.staged[id] = &blockExecution{overlay: child, ownDiff: ownDiff, treeDiff: treeDiff, root: root}
	return &b, nil
}

// ReExecute implements BlockExecutor: it re-derives b's state root by
// replaying its commands' transactions against a pending overlay
// chained off the parent's, exactly as the leader did when proposing
// it. If this replica already staged b itself (the common case when it
// is also the leader in this deployment's single-process wiring), the
// cached root is returned directly; otherwise every command's
// transaction is looked up in the pool and re-executed deterministically.
func (sm *StateMachine) ReExecute(b *block.Block) ([32]byte, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if exec, ok := sm.staged[b.Id]; ok {
		return exec.root, nil
	}

	parentExec, ok := sm.staged[b.ParentId]
	if !ok {
		return [32]byte{}, ErrUnknownParent
	}
	child := parentExec.overlay.Child()

	for _, cmd := range b.Commands {
		rec := sm.pool.Get(cmd.TransactionId)
		if rec == nil {
			return [32]byte{}, fmt.Errorf("hotstuff: re-execute: unknown transaction %x", cmd.TransactionId)
		}
		if err := sm.executeIntoOverlay(child, rec.Atom.Tx); err != nil {
			return [32]byte{}, fmt.Errorf("hotstuff: re-execute %x: %w", cmd.TransactionId, err)
		}
	}

	ownDiff := child.Diff()
	leaves, err := sm.cumulativeLeafChanges(b.ParentId, ownDiff)
	if err != nil {
		return [32]byte{}, err
	}
	root, treeDiff := sm.tree.StageDiff(leaves)

	sm.staged[b.Id] = &blockExecution{overlay: child, ownDiff: ownDiff, treeDiff: treeDiff, root: root}
	return root, nil
}

// Commit implements BlockExecutor: it flushes b's own substate changes
// into the persistent store, promotes its staged state-tree diff, and
// advances every committed command's pool record to the stage that
// command represents (§4.6).
func (sm *StateMachine) Commit(b *block.Block) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	exec, ok := sm.staged[b.Id]
	if !ok {
		return ErrUnstagedBlock
	}

	for _, change := range exec.ownDiff {
		if err := sm.flushChange(b, change); err != nil {
			return fmt.Errorf("hotstuff: flush substate change: %w", err)
		}
	}

	sm.tree.Commit(exec.treeDiff)

	for _, cmd := range b.Commands {
		stage, ok := stageForCommandKind(cmd.Kind)
		if !ok {
			continue
		}
		ready := stage == pool.StagePrepared || stage == pool.StageLocalPrepared
		if err := sm.pool.Transition(cmd.TransactionId, stage, ready); err != nil && err != pool.ErrInvalidTransactionTransition {
			return fmt.Errorf("hotstuff: transition %x to %s: %w", cmd.TransactionId, stage, err)
		}
	}

	sm.committedTip = b.Id
	return nil
}

func (sm *StateMachine) executeIntoOverlay(o *pending.Overlay, tx transaction.Transaction) error {
	resolved := make(map[substate.VersionedSubstateId]substate.Value, len(tx.Body.DeclaredInputs))
	for _, req := range tx.Body.DeclaredInputs {
		vid, value, err := o.GetLatest(req.Id)
		if err != nil {
			return fmt.Errorf("resolve input: %w", err)
		}
		if req.Version != nil && vid.Version != *req.Version {
			return fmt.Errorf("input pinned to version %d but latest is %d", *req.Version, vid.Version)
		}
		resolved[*vid] = value
	}

	result := executor.Execute(tx, resolved, sm.virtual, sm.engine)
	if !result.Finalize.Result.Accepted {
		return fmt.Errorf("execution rejected: %s", result.Finalize.Result.Reason)
	}
	for _, change := range result.Finalize.Result.Diff {
		if err := o.Put(change); err != nil {
			return fmt.Errorf("apply diff: %w", err)
		}
	}
	return nil
}

// cumulativeLeafChanges walks parentId's ancestry back to the tree's
// last committed tip, collecting every still-uncommitted block's own
// substate changes in parent-to-child order, then appends ownDiff.
// tree.StageDiff always recomputes from its last Commit, so passing
// this full cumulative set (rather than just ownDiff) produces the
// correct root no matter how many blocks are still pending.
func (sm *StateMachine) cumulativeLeafChanges(parentId block.Id, ownDiff []pending.SubstateChange) ([]statetree.LeafChange, error) {
	var ancestors []block.Id
	cur := parentId
	for cur != sm.committedTip {
		ancestors = append(ancestors, cur)
		b, ok := sm.blocks.Get(cur)
		if !ok || b.Height == 0 {
			break
		}
		cur = b.ParentId
	}

	var all []pending.SubstateChange
	for i := len(ancestors) - 1; i >= 0; i-- {
		if exec, ok := sm.staged[ancestors[i]]; ok {
			all = append(all, exec.ownDiff...)
		}
	}
	all = append(all, ownDiff...)

	leaves := make([]statetree.LeafChange, 0, len(all))
	for _, ch := range all {
		leaf, err := leafChangeFor(ch)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

func leafChangeFor(ch pending.SubstateChange) (statetree.LeafChange, error) {
	addr, err := substate.ToSubstateAddress(ch.VersionId.Id, ch.VersionId.Version)
	if err != nil {
		return statetree.LeafChange{}, fmt.Errorf("derive substate address: %w", err)
	}
	if ch.Kind == pending.ChangeDown {
		return statetree.LeafChange{Address: *addr}, nil
	}
	h := substate.StateHash(ch.Value)
	return statetree.LeafChange{Address: *addr, StateHash: &h}, nil
}

func (sm *StateMachine) flushChange(b *block.Block, change pending.SubstateChange) error {
	switch change.Kind {
	case pending.ChangeUp:
		rec := &substate.Record{
			Id:                   change.VersionId.Id,
			Version:              change.VersionId.Version,
			Value:                change.Value,
			StateHash:            substate.StateHash(change.Value),
			CreatedByTransaction: change.TxId,
			CreatedJustify:       b.Justify.QcId,
			CreatedBlock:         b.Id,
			CreatedHeight:        b.Height,
			CreatedEpoch:         b.Epoch,
		}
		return sm.persistent.PutUp(rec)
	case pending.ChangeDown:
		return sm.persistent.PutDown(change.VersionId.Id, change.VersionId.Version, change.TxId, b.Id, b.Justify.QcId, b.Epoch)
	default:
		return fmt.Errorf("unknown change kind %v", change.Kind)
	}
}
