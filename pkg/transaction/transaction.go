// Package transaction defines the transaction body, its canonical id,
// and the declared-input/signature envelope described in §3.
package transaction

import (
	"crypto/sha256"
	"fmt"

	"github.com/dan-network/dan-core/internal/wire"
	"github.com/dan-network/dan-core/pkg/substate"
)

const domainTransactionId = "dan/transaction-id/v1"

// Id is the hash of a transaction's unsigned body.
type Id [32]byte

// Instruction is an opaque, already-serialized call into the WASM
// template sandbox (out of scope here; consumed as an opaque binary
// per §1 Non-goals).
type Instruction []byte

// FeeInstruction is an opaque fee-payment instruction, executed before
// the main instruction set so a rejected transaction still pays fees.
type FeeInstruction []byte

// Body is the unsigned content of a transaction: the part that is
// hashed to produce its Id and that every signature covers.
type Body struct {
	FeeInstructions []FeeInstruction
	Instructions    []Instruction
	DeclaredInputs  []substate.SubstateRequirement
	MinEpoch        *uint64
	MaxEpoch        *uint64
}

// Transaction is a signed transaction: its unsigned Body plus the
// signatures authorizing it, and the DeclaredInputs resolved to
// concrete versions once binding completes.
type Transaction struct {
	Body         Body
	Signatures   [][]byte
	FilledInputs []substate.VersionedSubstateId
}

// idPreimage mirrors Body's fields with explicit canonical ordering,
// independent of Go struct field order, so TransactionId is stable.
type idPreimage struct {
	Domain          string   `cbor:"1,keyasint"`
	FeeInstructions [][]byte `cbor:"2,keyasint"`
	Instructions    [][]byte `cbor:"3,keyasint"`
	DeclaredInputs  []reqPreimage `cbor:"4,keyasint"`
	MinEpoch        uint64   `cbor:"5,keyasint"`
	MaxEpoch        uint64   `cbor:"6,keyasint"`
}

type reqPreimage struct {
	EntityId    []byte `cbor:"1,keyasint"`
	ComponentId []byte `cbor:"2,keyasint"`
	Kind        byte   `cbor:"3,keyasint"`
	HasVersion  bool   `cbor:"4,keyasint"`
	Version     uint32 `cbor:"5,keyasint"`
}

// ComputeId derives the TransactionId for body: the domain-separated
// hash of its canonical encoding.
func ComputeId(body Body) (Id, error) {
	pre := idPreimage{Domain: domainTransactionId}
	for _, fi := range body.FeeInstructions {
		pre.FeeInstructions = append(pre.FeeInstructions, []byte(fi))
	}
	for _, ins := range body.Instructions {
		pre.Instructions = append(pre.Instructions, []byte(ins))
	}
	for _, req := range body.DeclaredInputs {
		rp := reqPreimage{
			EntityId:    req.Id.EntityId[:],
			ComponentId: req.Id.ComponentId[:],
			Kind:        byte(req.Id.Kind),
		}
		if req.Version != nil {
			rp.HasVersion = true
			rp.Version = *req.Version
		}
		pre.DeclaredInputs = append(pre.DeclaredInputs, rp)
	}
	if body.MinEpoch != nil {
		pre.MinEpoch = *body.MinEpoch
	}
	if body.MaxEpoch != nil {
		pre.MaxEpoch = *body.MaxEpoch
	}

	encoded, err := wire.Marshal(pre)
	if err != nil {
		return Id{}, fmt.Errorf("transaction: encode id preimage: %w", err)
	}
	return Id(sha256.Sum256(encoded)), nil
}

// WithinEpochRange reports whether epoch falls within [MinEpoch, MaxEpoch]
// (an unset bound is treated as unbounded on that side).
func (b Body) WithinEpochRange(epoch uint64) bool {
	if b.MinEpoch != nil && epoch < *b.MinEpoch {
		return false
	}
	if b.MaxEpoch != nil && epoch > *b.MaxEpoch {
		return false
	}
	return true
}
