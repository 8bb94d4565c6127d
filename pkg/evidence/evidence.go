// Package evidence implements §3/§4.6's evidence model: an ordered map
// SubstateAddress → {qc_ids, lock} accumulated as committees form QCs
// over a transaction's inputs, used to decide when every involved
// committee has justified a cross-shard transaction.
package evidence

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/dan-network/dan-core/pkg/substate"
)

// QcId identifies one quorum certificate.
type QcId [32]byte

// Entry is one address's accumulated evidence: every QC id observed so
// far for it, in the order they were added, plus the lock type the
// transaction declared on it.
type Entry struct {
	QcIds []QcId
	Lock  substate.LockType
}

// Evidence is the ordered map described in §3, keyed by SubstateAddress.
type Evidence struct {
	order   []uint256.Int
	entries map[uint256.Int]*Entry
}

// New returns an empty Evidence map seeded with the transaction's
// declared lock intents (so every input address has an entry from the
// start, even before any QC references it).
func New(addresses []uint256.Int, locks []substate.LockType) *Evidence {
	e := &Evidence{entries: make(map[uint256.Int]*Entry, len(addresses))}
	for i, addr := range addresses {
		e.order = append(e.order, addr)
		lt := substate.LockRead
		if i < len(locks) {
			lt = locks[i]
		}
		e.entries[addr] = &Entry{Lock: lt}
	}
	return e
}

// AddQc records that qcId justifies addr, appending it to that
// address's qc_ids if not already present (idempotent: replaying the
// same QC is a no-op).
func (e *Evidence) AddQc(addr uint256.Int, qcId QcId) {
	entry, ok := e.entries[addr]
	if !ok {
		entry = &Entry{Lock: substate.LockRead}
		e.entries[addr] = entry
		e.order = append(e.order, addr)
	}
	for _, existing := range entry.QcIds {
		if existing == qcId {
			return
		}
	}
	entry.QcIds = append(entry.QcIds, qcId)
}

// Entry returns the evidence entry for addr, or nil if nothing is
// recorded yet.
func (e *Evidence) Entry(addr uint256.Int) *Entry {
	return e.entries[addr]
}

// NumMatchingEvidence returns the count of addresses whose entry has
// at least minQcs qc ids, used by the transaction pool to decide how
// many (of possibly several) involved committees have justified a
// transaction so far.
func (e *Evidence) NumMatchingEvidence(minQcs int) int {
	n := 0
	for _, entry := range e.entries {
		if len(entry.QcIds) >= minQcs {
			n++
		}
	}
	return n
}

// AllInputAddressesJustified reports whether every non-Output lock
// entry has at least one qc_id: for single-shard transactions this
// reduces to "the local committee's QC has formed".
func (e *Evidence) AllInputAddressesJustified() bool {
	for _, entry := range e.entries {
		if entry.Lock == substate.LockOutput {
			continue
		}
		if len(entry.QcIds) == 0 {
			return false
		}
	}
	return true
}

// Addresses returns the evidence map's keys in insertion order.
func (e *Evidence) Addresses() []uint256.Int {
	out := make([]uint256.Int, len(e.order))
	copy(out, e.order)
	return out
}

// sortedOrder is a helper for deterministic iteration when an
// insertion-order copy isn't available (e.g. after merging two
// Evidence maps from different foreign proposals).
func (e *Evidence) sortedOrder() []uint256.Int {
	out := make([]uint256.Int, 0, len(e.entries))
	for a := range e.entries {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(&out[j]) < 0 })
	return out
}

// Merge folds other's qc_ids into e, used when a ForeignProposal
// delivers a peer committee's evidence for the same transaction.
// Replays (identical qc_ids already present) are idempotent.
func (e *Evidence) Merge(other *Evidence) {
	for _, addr := range other.sortedOrder() {
		otherEntry := other.entries[addr]
		for _, qc := range otherEntry.QcIds {
			e.AddQc(addr, qc)
		}
	}
}
