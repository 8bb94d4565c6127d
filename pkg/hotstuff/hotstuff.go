// Package hotstuff implements the pipelined BFT driver of §4.7:
// Propose/Vote/NewView handling, the three-chain commit rule, and
// dummy-block generation for leader-failure view rotation.
//
// Re-execution against the pending store and state-tree diffing are
// injected via BlockExecutor: the driver owns consensus safety, a
// collaborator owns state transition.
package hotstuff

import (
	"context"
	"fmt"
	"sync"

	"github.com/dan-network/dan-core/internal/blssig"
	"github.com/dan-network/dan-core/pkg/block"
)

// BlockStore is the minimal block-graph storage the driver needs:
// lookup by id and insertion of newly-seen blocks.
type BlockStore interface {
	Get(id block.Id) (*block.Block, bool)
	Put(b *block.Block)
}

// MemBlockStore is an in-memory BlockStore for tests and single-process
// demos.
type MemBlockStore struct {
	mu     sync.RWMutex
	blocks map[block.Id]*block.Block
}

// NewMemBlockStore returns an empty MemBlockStore.
func NewMemBlockStore() *MemBlockStore {
	return &MemBlockStore{blocks: make(map[block.Id]*block.Block)}
}

func (s *MemBlockStore) Get(id block.Id) (*block.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	return b, ok
}

func (s *MemBlockStore) Put(b *block.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.blocks[cp.Id] = &cp
}

// BlockExecutor re-executes a proposed block's commands against the
// pending store and reports the resulting state root, so the driver
// can compare it against the proposal's claimed MerkleRoot (§4.7 step 5).
// On commit, Commit flushes the block's substate diff and state-tree
// diff permanently and advances pool stages.
type BlockExecutor interface {
	ReExecute(b *block.Block) (merkleRoot [32]byte, err error)
	Commit(b *block.Block) error
}

// LeaderFunc deterministically selects the leader for (epoch, height)
// from a committee's ordered member list.
type LeaderFunc func(epoch, height uint64, committee [][32]byte) [32]byte

// RoundRobinLeader is the default deterministic leader function: the
// committee member at index height mod len(committee).
func RoundRobinLeader(_ uint64, height uint64, committee [][32]byte) [32]byte {
	if len(committee) == 0 {
		return [32]byte{}
	}
	return committee[height%uint64(len(committee))]
}

// State is one replica's HotStuff bookkeeping, one instance per
// (shard-group committee, epoch).
type State struct {
	HighQc       block.QuorumCertificate
	LockedBlock  block.Id
	LastVoted    uint64
	LastExecuted uint64
	LeafBlock    block.Id
}

// Vote is a signed Accept/Reject attestation for one block.
type Vote struct {
	BlockId   block.Id
	Decision  block.Decision
	Signer    [32]byte
	Signature []byte
}

// Replica drives one committee's HotStuff state machine.
type Replica struct {
	mu sync.Mutex

	state      State
	store      BlockStore
	executor   BlockExecutor
	leaderFunc LeaderFunc
	committee  [][32]byte
	f          int // max Byzantine faults tolerated: floor((n-1)/3)

	collectors map[block.Id]*VoteCollector
	newViews   map[uint64]map[[32]byte]block.QuorumCertificate
}

// NewReplica constructs a Replica for committee (size n), rooted at
// genesis.
func NewReplica(genesis block.Block, store BlockStore, executor BlockExecutor, committee [][32]byte) *Replica {
	store.Put(&genesis)
	f := (len(committee) - 1) / 3
	return &Replica{
		state: State{
			// The initial high_qc names the genesis block itself.
			HighQc:      block.QuorumCertificate{BlockId: genesis.Id, BlockHeight: genesis.Height, Epoch: genesis.Epoch},
			LockedBlock: genesis.Id,
			LeafBlock:   genesis.Id,
		},
		store:      store,
		executor:   executor,
		leaderFunc: RoundRobinLeader,
		committee:  committee,
		f:          f,
		collectors: make(map[block.Id]*VoteCollector),
		newViews:   make(map[uint64]map[[32]byte]block.QuorumCertificate),
	}
}

// Quorum returns the minimum vote count for a quorum certificate:
// 2f+1 of n.
func (r *Replica) Quorum() int { return 2*r.f + 1 }

// OnReceiveProposal implements §4.7's seven-step proposal path. On
// success it returns the Vote the local replica should send to the
// leader of b.Height+1, and the ids of any newly-committed blocks.
func (r *Replica) OnReceiveProposal(ctx context.Context, b *block.Block, signer [32]byte) (*Vote, []block.Id, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	leader := r.leaderFunc(b.Epoch, b.Height, r.committee)
	if leader != b.ProposedBy {
		return nil, nil, ErrNotLeader
	}

	parent, ok := r.store.Get(b.ParentId)
	if !ok {
		return nil, nil, ErrUnknownParent
	}
	if b.Justify.BlockId != parent.Id {
		return nil, nil, ErrInvalidJustify
	}

	if b.Height <= r.state.LastVoted {
		return nil, nil, ErrAlreadyVoted
	}

	if b.Justify.BlockHeight > r.state.HighQc.BlockHeight {
		r.state.HighQc = b.Justify
		if extendsLocked(r.store, b.Justify.BlockId, r.state.LockedBlock) {
			r.state.LockedBlock = b.Justify.BlockId
		}
	}

	root, err := r.executor.ReExecute(b)
	if err != nil {
		return nil, nil, fmt.Errorf("hotstuff: re-execute: %w", err)
	}
	if root != b.MerkleRoot {
		return nil, nil, ErrStateRootMismatch
	}

	lockedBlock, _ := r.store.Get(r.state.LockedBlock)
	safe := extendsLocked(r.store, b.ParentId, r.state.LockedBlock) ||
		(lockedBlock != nil && b.Justify.BlockHeight > lockedBlock.Height)
	if !safe {
		return nil, nil, ErrNotSafe
	}

	r.store.Put(b)
	r.state.LastVoted = b.Height
	r.state.LeafBlock = b.Id

	committed, err := r.tryThreeChainCommit(b)
	if err != nil {
		return nil, nil, err
	}

	vote := &Vote{BlockId: b.Id, Decision: block.DecisionAccept, Signer: signer}
	return vote, committed, nil
}

// extendsLocked reports whether candidate is lockedId itself or a
// descendant of it by walking parent links.
func extendsLocked(store BlockStore, candidate, lockedId block.Id) bool {
	if candidate == lockedId {
		return true
	}
	cur := candidate
	for i := 0; i < 4096; i++ { // bounded walk, chain depth is finite in practice
		b, ok := store.Get(cur)
		if !ok {
			return false
		}
		if b.ParentId == lockedId {
			return true
		}
		if b.Height == 0 {
			return false
		}
		cur = b.ParentId
	}
	return false
}

// tryThreeChainCommit implements §4.7 step 7: if a chain b1<-b2<-b3 of
// three consecutive blocks each justified by a valid QC exists ending
// at b3, commit b1 and all of its uncommitted ancestors in
// parent-order.
func (r *Replica) tryThreeChainCommit(b3 *block.Block) ([]block.Id, error) {
	b2, ok := r.store.Get(b3.ParentId)
	if !ok || b3.Justify.BlockId != b2.Id {
		return nil, nil
	}
	b1, ok := r.store.Get(b2.ParentId)
	if !ok || b2.Justify.BlockId != b1.Id {
		return nil, nil
	}
	if b2.Height != b1.Height+1 || b3.Height != b2.Height+1 {
		return nil, nil
	}
	return r.commitChain(b1)
}

func (r *Replica) commitChain(target *block.Block) ([]block.Id, error) {
	var chain []*block.Block
	cur := target
	for cur != nil && cur.Height > r.state.LastExecuted {
		chain = append(chain, cur)
		parent, ok := r.store.Get(cur.ParentId)
		if !ok || cur.Height == 0 {
			break
		}
		cur = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	committed := make([]block.Id, 0, len(chain))
	for _, b := range chain {
		if err := r.executor.Commit(b); err != nil {
			return committed, fmt.Errorf("hotstuff: commit block %x: %w", b.Id, err)
		}
		r.state.LastExecuted = b.Height
		committed = append(committed, b.Id)
	}
	return committed, nil
}

// OnReceiveVote accumulates a vote toward the quorum certificate for
// b. The leader calls this for every vote received on its proposal; it
// returns the formed QC (and true) the moment quorum is reached so the
// leader can embed it as the justify of the next proposal.
func (r *Replica) OnReceiveVote(b *block.Block, v Vote, sig *blssig.Signature) (*block.QuorumCertificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collectors[b.Id]
	if !ok {
		c = NewVoteCollector(b.Id, b.Height, b.Epoch, b.Justify.Shard, r.Quorum(), block.DecisionAccept)
		r.collectors[b.Id] = c
	}
	qc, reached, err := c.AddVote(v, sig)
	if reached {
		delete(r.collectors, b.Id)
	}
	return qc, reached, err
}

// State returns a copy of the replica's current bookkeeping, for RPC
// surfaces and tests.
func (r *Replica) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
