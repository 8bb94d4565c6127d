package hotstuff

import "github.com/dan-network/dan-core/pkg/block"

// NewViewMsg is sent to the next leader on timeout, carrying the
// sender's current high_qc so the new leader can catch up.
type NewViewMsg struct {
	HighQc    block.QuorumCertificate
	NewHeight uint64
	Epoch     uint64
	Sender    [32]byte
}

// OnTimeout advances past the current height without a committed
// block: the replica reports its current high_qc as the NewView
// message to send to the leader of newHeight.
func (r *Replica) OnTimeout(newHeight uint64, epoch uint64, sender [32]byte) NewViewMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return NewViewMsg{HighQc: r.state.HighQc, NewHeight: newHeight, Epoch: epoch, Sender: sender}
}

// OnReceiveNewView accumulates a NewView at the prospective leader for
// newHeight. On reaching quorum (2f+1 distinct senders) it returns
// ready=true along with the dummy blocks that fill the gap from the
// highest-seen high_qc's height+1 up to newHeight-1 (§4.7): each dummy
// block carries no commands, carries that same justify, and has an id
// deterministic from its parent and the leader.
func (r *Replica) OnReceiveNewView(msg NewViewMsg, leader [32]byte) (ready bool, dummies []block.Block, bestQc block.QuorumCertificate, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	senders, ok := r.newViews[msg.NewHeight]
	if !ok {
		senders = make(map[[32]byte]block.QuorumCertificate)
		r.newViews[msg.NewHeight] = senders
	}
	senders[msg.Sender] = msg.HighQc

	best := r.state.HighQc
	for _, qc := range senders {
		if qc.BlockHeight > best.BlockHeight {
			best = qc
		}
	}

	if len(senders) < r.Quorum() {
		return false, nil, best, nil
	}

	parent, ok := r.store.Get(best.BlockId)
	if !ok {
		return false, nil, best, ErrUnknownParent
	}
	if msg.NewHeight <= best.BlockHeight {
		return false, nil, best, nil
	}

	dummies = make([]block.Block, 0, msg.NewHeight-best.BlockHeight-1)
	prevId := parent.Id
	for h := best.BlockHeight + 1; h < msg.NewHeight; h++ {
		id, derr := block.DummyBlockId(prevId, h, msg.Epoch, leader)
		if derr != nil {
			return false, nil, best, derr
		}
		dummy := block.Block{
			Id:         id,
			ParentId:   prevId,
			Justify:    best,
			Height:     h,
			Epoch:      msg.Epoch,
			ProposedBy: leader,
			MerkleRoot: parent.MerkleRoot, // unchanged: dummy blocks carry no commands
			IsDummy:    true,
		}
		r.store.Put(&dummy)
		dummies = append(dummies, dummy)
		prevId = id
	}
	return true, dummies, best, nil
}
