// Package pending implements the pending substate store overlay of
// §4.3: a transactional layer used while a block is being assembled or
// validated but not yet committed. It stacks three sources in priority
// order — new writes, pending diffs inherited from uncommitted ancestor
// blocks, and the persistent store — so a chain of speculative blocks
// can see each other's writes before any of them commit.
package pending

import (
	"bytes"
	"sort"

	"github.com/dan-network/dan-core/pkg/store"
	"github.com/dan-network/dan-core/pkg/substate"
)

// ChangeKind distinguishes an Up (create) from a Down (consume) change
// in an overlay's diff.
type ChangeKind int

const (
	ChangeUp ChangeKind = iota
	ChangeDown
)

// SubstateChange is one pending mutation recorded against an overlay.
type SubstateChange struct {
	Kind      ChangeKind
	VersionId substate.VersionedSubstateId
	TxId      [32]byte
	Value     substate.Value // populated for ChangeUp
}

type lockEntry struct {
	lockType substate.LockType
	txId     [32]byte
}

type versionKey struct {
	key     substate.ObjectKey
	version uint32
}

// Overlay is one block-scoped pending substate store. Overlay chains
// mirror the uncommitted block chain: each block's overlay has the
// parent block's overlay as its Parent.
type Overlay struct {
	persistent *store.Store
	parent     *Overlay

	writes     map[versionKey]SubstateChange
	writeOrder []versionKey
	locks      map[versionKey][]lockEntry
}

// New creates a root overlay (no uncommitted parent) over persistent.
func New(persistent *store.Store) *Overlay {
	return &Overlay{
		persistent: persistent,
		writes:     make(map[versionKey]SubstateChange),
		locks:      make(map[versionKey][]lockEntry),
	}
}

// Child creates a new overlay for the next block in an uncommitted
// chain, layering its writes on top of o.
func (o *Overlay) Child() *Overlay {
	return &Overlay{
		persistent: o.persistent,
		parent:     o,
		writes:     make(map[versionKey]SubstateChange),
		locks:      make(map[versionKey][]lockEntry),
	}
}

// GetLatest traverses the overlay chain (new writes, then ancestor
// overlays, then the persistent store) and returns the most recent
// visible UP version for id.
func (o *Overlay) GetLatest(id substate.SubstateId) (*substate.VersionedSubstateId, substate.Value, error) {
	key := id.Key()

	for layer := o; layer != nil; layer = layer.parent {
		var best *versionKey
		for vk, ch := range layer.writes {
			if vk.key != key {
				continue
			}
			candidate := vk
			if best == nil || candidate.version > best.version {
				best = &candidate
			}
		}
		if best != nil {
			ch := layer.writes[*best]
			if ch.Kind == ChangeDown {
				// The latest local mutation for this id is a Down;
				// nothing newer is visible through this chain link.
				return nil, nil, ErrNotFound
			}
			return &ch.VersionId, ch.Value, nil
		}
	}

	rec, err := o.persistent.GetLatest(id)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	vid := substate.VersionedSubstateId{Id: id, Version: rec.Version}
	return &vid, rec.Value, nil
}

// Put records a SubstateChange in this overlay. An Up must follow a
// matching Down in the same overlay chain, or the absence of any prior
// version; a Down requires the previous version to be visible as UP.
func (o *Overlay) Put(change SubstateChange) error {
	key := change.VersionId.Id.Key()
	vk := versionKey{key: key, version: change.VersionId.Version}

	switch change.Kind {
	case ChangeUp:
		latest, _, err := o.GetLatest(change.VersionId.Id)
		if err == nil && latest != nil {
			// A prior version is visible UP; only a Down on it (already
			// recorded in this same overlay) permits this Up.
			downKey := versionKey{key: key, version: latest.Version}
			if prior, ok := o.writes[downKey]; !ok || prior.Kind != ChangeDown {
				return ErrUpWithoutDown
			}
		}
	case ChangeDown:
		latest, _, err := o.GetLatest(change.VersionId.Id)
		if err != nil || latest == nil || latest.Version != change.VersionId.Version {
			return ErrDownWithoutUp
		}
	}

	if _, exists := o.writes[vk]; !exists {
		o.writeOrder = append(o.writeOrder, vk)
	}
	o.writes[vk] = change
	return nil
}

// TryLock attempts to acquire intent for txId across the overlay
// chain. is_local_only=true restricts the caller to Read locks (used
// by read-only validation paths). Self-conflicts (same txId already
// holding a lock) are ignored, matching §4.3.
func (o *Overlay) TryLock(txId [32]byte, intent substate.LockIntent, isLocalOnly bool) error {
	if isLocalOnly && intent.LockType != substate.LockRead {
		return ErrLocalOnlyWriteRequested
	}

	if intent.LockType == substate.LockOutput {
		if latest, _, err := o.GetLatest(intent.Id); err == nil && latest != nil {
			return ErrLockConflict
		}
	}

	key := intent.Id.Key()
	vk := versionKey{key: key, version: intent.VersionToLock}

	for layer := o; layer != nil; layer = layer.parent {
		for _, existing := range layer.locks[vk] {
			if bytes.Equal(existing.txId[:], txId[:]) {
				continue // self-conflict ignored
			}
			if !compatible(existing.lockType, intent.LockType) {
				return ErrLockConflict
			}
		}
	}

	o.locks[vk] = append(o.locks[vk], lockEntry{lockType: intent.LockType, txId: txId})
	return nil
}

func compatible(held, requested substate.LockType) bool {
	if held == substate.LockRead && requested == substate.LockRead {
		return true
	}
	return false
}

// Diff finalizes this overlay (not its ancestors) into an ordered set
// of substate changes, feeding the state tree computation of §4.4.
func (o *Overlay) Diff() []SubstateChange {
	out := make([]SubstateChange, 0, len(o.writeOrder))
	keys := make([]versionKey, len(o.writeOrder))
	copy(keys, o.writeOrder)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].key != keys[j].key {
			return bytes.Compare(keys[i].key[:], keys[j].key[:]) < 0
		}
		return keys[i].version < keys[j].version
	})
	for _, k := range keys {
		out = append(out, o.writes[k])
	}
	return out
}
