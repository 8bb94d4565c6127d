// Package substate implements the data model of §3/§4.1: SubstateId,
// the canonical 32-byte ObjectKey encoding, the domain-separated
// SubstateAddress derivation, and the versioned substate Record.
package substate

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/dan-network/dan-core/internal/wire"
)

// domainSubstateAddress separates SubstateAddress preimages from any
// other hash domain in this module (block ids, qc ids, state_hash).
const domainSubstateAddress = "dan/substate-address/v1"

// EntityKind distinguishes the application-level entity a SubstateId
// names: component, resource, vault, non-fungible, transaction receipt,
// or fee claim.
type EntityKind byte

const (
	KindComponent EntityKind = iota
	KindResource
	KindVault
	KindNonFungible
	KindTransactionReceipt
	KindFeeClaim
)

// ObjectKey is the canonical 32-byte encoding of a SubstateId: a
// 20-byte entity id followed by a 12-byte component key.
type ObjectKey [32]byte

// SubstateId is an application-level identity, stable for the lifetime
// of the entity it names.
type SubstateId struct {
	Kind        EntityKind
	EntityId    [20]byte
	ComponentId [12]byte
}

// Key returns the canonical ObjectKey for id.
func (id SubstateId) Key() ObjectKey {
	var k ObjectKey
	copy(k[:20], id.EntityId[:])
	copy(k[20:], id.ComponentId[:])
	return k
}

// VersionedSubstateId pins a SubstateId to a specific version.
type VersionedSubstateId struct {
	Id      SubstateId
	Version uint32
}

// SubstateRequirement is a SubstateId with an optional version, used
// for declared transaction inputs that may bind late.
type SubstateRequirement struct {
	Id      SubstateId
	Version *uint32 // nil permits late binding to the current latest
}

// Address is the 256-bit content address derived from
// (SubstateId, version); it doubles as the sharding key and the
// state-tree key.
type Address = uint256.Int

// addressPreimage is canonically encoded and hashed to derive an
// Address; field order is fixed by cbor keyasint tags so re-derivation
// is always byte-stable.
type addressPreimage struct {
	Domain      string `cbor:"1,keyasint"`
	Kind        byte   `cbor:"2,keyasint"`
	EntityId    []byte `cbor:"3,keyasint"`
	ComponentId []byte `cbor:"4,keyasint"`
	Version     uint32 `cbor:"5,keyasint"`
}

// ToSubstateAddress derives the 256-bit address for (id, version). Two
// distinct (id, version) pairs always hash to different addresses
// (collision probability negligible under SHA-256).
func ToSubstateAddress(id SubstateId, version uint32) (*Address, error) {
	pre := addressPreimage{
		Domain:      domainSubstateAddress,
		Kind:        byte(id.Kind),
		EntityId:    id.EntityId[:],
		ComponentId: id.ComponentId[:],
		Version:     version,
	}
	encoded, err := wire.Marshal(pre)
	if err != nil {
		return nil, fmt.Errorf("substate: encode address preimage: %w", err)
	}
	sum := sha256.Sum256(encoded)
	// SHA-256 is 32 bytes wide; a 256-bit address fills exactly that,
	// so interpret the digest directly as a big-endian uint256.
	var addr uint256.Int
	addr.SetBytes(sum[:])
	return &addr, nil
}

// LockType classifies the exclusivity a transaction requests on a
// substate version.
type LockType int

const (
	// LockRead stacks: unbounded concurrent readers are compatible.
	LockRead LockType = iota
	// LockWrite is exclusive across transactions.
	LockWrite
	// LockOutput asserts the version does not yet exist and reserves
	// its creation.
	LockOutput
)

func (l LockType) String() string {
	switch l {
	case LockRead:
		return "Read"
	case LockWrite:
		return "Write"
	case LockOutput:
		return "Output"
	default:
		return "Unknown"
	}
}

// LockIntent declares the lock a transaction needs on a substate
// version before it can execute against it.
type LockIntent struct {
	Id             SubstateId
	VersionToLock  uint32
	LockType       LockType
	RequireVersion bool
}

// Value is the opaque binary payload stored for one substate version.
type Value []byte

// StateHash is H(canonical_encoding(value)): two equal values always
// hash to the same StateHash.
func StateHash(v Value) [32]byte {
	return sha256.Sum256(v)
}

// Status is a substate record's up/down lifecycle position.
type Status int

const (
	StatusUp Status = iota
	StatusDown
)

// Record is one row in the versioned substate store: a single
// (id, version) pair and everything known about its lifecycle.
type Record struct {
	Id        SubstateId
	Version   uint32
	Value     Value
	StateHash [32]byte
	Status    Status

	CreatedByTransaction [32]byte
	CreatedJustify       [32]byte // qc_id
	CreatedBlock         [32]byte
	CreatedHeight        uint64
	CreatedEpoch         uint64

	DestroyedByTransaction *[32]byte
	DestroyedJustify       *[32]byte
	DestroyedBlock         *[32]byte
	DestroyedEpoch         *uint64

	ReadLocks  uint32
	IsLockedW  bool
	LockedBy   *[32]byte // tx id
}

// TxIdBytes returns the canonical byte-slice view of a 32-byte transaction
// id, a helper to keep pool/store code from repeating the slice-cast.
func TxIdBytes(id [32]byte) []byte {
	return id[:]
}

// EncodeUint32 is the canonical big-endian encoding used for version
// suffixes in persistent-store keys (§6 key layout).
func EncodeUint32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}
