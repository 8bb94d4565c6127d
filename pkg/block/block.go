// Package block implements §3/§4.7's block and quorum-certificate
// model: an immutable block citing its parent QC, height, epoch, and
// state-tree commitment, plus the command list that drives pool stage
// transitions on commit.
package block

import (
	"crypto/sha256"
	"fmt"

	"github.com/dan-network/dan-core/internal/wire"
	"github.com/dan-network/dan-core/pkg/transaction"
)

const (
	domainBlockId = "dan/block-id/v1"
	domainQcId    = "dan/qc-id/v1"
)

// Id is the deterministic hash of a block's body.
type Id [32]byte

// Decision is a QC's attested outcome for a block.
type Decision int

const (
	DecisionAccept Decision = iota
	DecisionReject
)

// RejectKind refines a Reject decision's cause.
type RejectKind int

const (
	RejectNone RejectKind = iota
	RejectExecutionFailure
	RejectTimeout
)

// CommandKind distinguishes the ordered commands a block may carry.
type CommandKind int

const (
	CommandPrepare CommandKind = iota
	CommandLocalPrepared
	CommandAllPrepared
	CommandSomePrepared
	CommandForeignProposal
	CommandLocalOnly
)

// Command is one entry in a block's ordered command list.
type Command struct {
	Kind          CommandKind
	TransactionId transaction.Id
	// ForeignQcId is populated only for CommandForeignProposal, carrying
	// a peer committee's QC id for a cross-shard transaction (§4.8).
	ForeignQcId [32]byte
}

// QuorumCertificate is a signed attestation from >= 2f+1 committee
// members for a specific block and decision.
type QuorumCertificate struct {
	QcId        [32]byte
	BlockId     Id
	BlockHeight uint64
	Epoch       uint64
	Shard       int
	Decision    Decision
	RejectKind  RejectKind
	Signatures  [][]byte
	LeafHashes  [][32]byte
}

// qcPreimage fixes QC field order for canonical hashing.
type qcPreimage struct {
	Domain      string   `cbor:"1,keyasint"`
	BlockId     []byte   `cbor:"2,keyasint"`
	BlockHeight uint64   `cbor:"3,keyasint"`
	Epoch       uint64   `cbor:"4,keyasint"`
	Shard       int64    `cbor:"5,keyasint"`
	Decision    int      `cbor:"6,keyasint"`
	RejectKind  int      `cbor:"7,keyasint"`
	LeafHashes  [][]byte `cbor:"8,keyasint"`
}

// ComputeQcId derives qc_id as the canonical hash of the QC's contents
// (signatures excluded: the id names the attested fact, not who signed).
func ComputeQcId(qc QuorumCertificate) (Id, error) {
	pre := qcPreimage{
		Domain:      domainQcId,
		BlockId:     qc.BlockId[:],
		BlockHeight: qc.BlockHeight,
		Epoch:       qc.Epoch,
		Shard:       int64(qc.Shard),
		Decision:    int(qc.Decision),
		RejectKind:  int(qc.RejectKind),
	}
	for _, lh := range qc.LeafHashes {
		pre.LeafHashes = append(pre.LeafHashes, lh[:])
	}
	encoded, err := wire.Marshal(pre)
	if err != nil {
		return Id{}, fmt.Errorf("block: encode qc id preimage: %w", err)
	}
	return Id(sha256.Sum256(encoded)), nil
}

// Block is the HotStuff driver's fundamental unit: immutable once
// created and identified by a deterministic hash of its body.
type Block struct {
	Id             Id
	ParentId       Id
	Justify        QuorumCertificate
	Height         uint64
	Epoch          uint64
	ProposedBy     [32]byte // public key or validator id of the proposer
	Commands       []Command
	TotalLeaderFee uint64
	MerkleRoot     [32]byte
	Timestamp      int64
	Signature      []byte
	// IsDummy marks a leader-failure rotation block: it carries no
	// commands and exists only to advance the height chain (§4.7).
	IsDummy bool
}

// blockPreimage fixes Block field order for canonical hashing,
// excluding Signature (the signature covers the id, not vice versa).
type blockPreimage struct {
	Domain         string        `cbor:"1,keyasint"`
	ParentId       []byte        `cbor:"2,keyasint"`
	JustifyQcId    []byte        `cbor:"3,keyasint"`
	Height         uint64        `cbor:"4,keyasint"`
	Epoch          uint64        `cbor:"5,keyasint"`
	ProposedBy     []byte        `cbor:"6,keyasint"`
	Commands       []cmdPreimage `cbor:"7,keyasint"`
	TotalLeaderFee uint64        `cbor:"8,keyasint"`
	MerkleRoot     []byte        `cbor:"9,keyasint"`
	Timestamp      int64         `cbor:"10,keyasint"`
	IsDummy        bool          `cbor:"11,keyasint"`
}

type cmdPreimage struct {
	Kind          int    `cbor:"1,keyasint"`
	TransactionId []byte `cbor:"2,keyasint"`
	ForeignQcId   []byte `cbor:"3,keyasint"`
}

// ComputeId derives b's BlockId as the canonical hash of its body.
// Call this after Justify/MerkleRoot/Commands are finalized but before
// the proposer signs; Id becomes part of what the signature covers.
func ComputeId(b Block) (Id, error) {
	justifyQcId := b.Justify.QcId
	pre := blockPreimage{
		Domain:         domainBlockId,
		ParentId:       b.ParentId[:],
		JustifyQcId:    justifyQcId[:],
		Height:         b.Height,
		Epoch:          b.Epoch,
		ProposedBy:     b.ProposedBy[:],
		TotalLeaderFee: b.TotalLeaderFee,
		MerkleRoot:     b.MerkleRoot[:],
		Timestamp:      b.Timestamp,
		IsDummy:        b.IsDummy,
	}
	for _, cmd := range b.Commands {
		pre.Commands = append(pre.Commands, cmdPreimage{
			Kind:          int(cmd.Kind),
			TransactionId: cmd.TransactionId[:],
			ForeignQcId:   cmd.ForeignQcId[:],
		})
	}
	encoded, err := wire.Marshal(pre)
	if err != nil {
		return Id{}, fmt.Errorf("block: encode block id preimage: %w", err)
	}
	return Id(sha256.Sum256(encoded)), nil
}

// DummyBlockId derives the deterministic id of a leader-failure
// rotation block filling the gap between parentId and the new height,
// per §4.7: a function of the prior block id and the proposing leader.
func DummyBlockId(parentId Id, height uint64, epoch uint64, leader [32]byte) (Id, error) {
	b := Block{
		ParentId:   parentId,
		Height:     height,
		Epoch:      epoch,
		ProposedBy: leader,
		IsDummy:    true,
	}
	return ComputeId(b)
}

// TransactionLeaves returns b's committed transaction ids in command
// order, suitable as leaves for a receipts.Tree inclusion proof.
func TransactionLeaves(b Block) [][32]byte {
	leaves := make([][32]byte, 0, len(b.Commands))
	for _, cmd := range b.Commands {
		leaves = append(leaves, [32]byte(cmd.TransactionId))
	}
	return leaves
}

// NewGenesisBlock returns the fixed block every committee's chain
// begins from: height 0, no parent, no justify signatures, the empty
// state tree's placeholder root.
func NewGenesisBlock(epoch uint64, emptyRoot [32]byte) (Block, error) {
	b := Block{
		Height:     0,
		Epoch:      epoch,
		MerkleRoot: emptyRoot,
	}
	id, err := ComputeId(b)
	if err != nil {
		return Block{}, err
	}
	b.Id = id
	return b, nil
}
