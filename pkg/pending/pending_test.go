package pending

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/internal/kv"
	"github.com/dan-network/dan-core/pkg/store"
	"github.com/dan-network/dan-core/pkg/substate"
)

func testId(b byte) substate.SubstateId {
	var id substate.SubstateId
	id.EntityId[0] = b
	return id
}

func TestOverlayPutUpThenGetLatest(t *testing.T) {
	o := New(store.New(kv.NewMemDB()))
	id := testId(1)

	err := o.Put(SubstateChange{
		Kind:      ChangeUp,
		VersionId: substate.VersionedSubstateId{Id: id, Version: 0},
		Value:     []byte("v0"),
	})
	require.NoError(t, err)

	vid, val, err := o.GetLatest(id)
	require.NoError(t, err)
	require.Equal(t, uint32(0), vid.Version)
	require.Equal(t, substate.Value("v0"), val)
}

func TestOverlayUpWithoutDownFails(t *testing.T) {
	o := New(store.New(kv.NewMemDB()))
	id := testId(2)
	require.NoError(t, o.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: id, Version: 0}}))

	err := o.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: id, Version: 1}})
	require.ErrorIs(t, err, ErrUpWithoutDown)

	require.NoError(t, o.Put(SubstateChange{Kind: ChangeDown, VersionId: substate.VersionedSubstateId{Id: id, Version: 0}}))
	require.NoError(t, o.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: id, Version: 1}}))
}

func TestChildOverlaySeesParentWrites(t *testing.T) {
	root := New(store.New(kv.NewMemDB()))
	id := testId(3)
	require.NoError(t, root.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: id, Version: 0}, Value: []byte("root")}))

	child := root.Child()
	_, val, err := child.GetLatest(id)
	require.NoError(t, err)
	require.Equal(t, substate.Value("root"), val)
}

func TestTryLockReadReadCompatible(t *testing.T) {
	o := New(store.New(kv.NewMemDB()))
	id := testId(4)
	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockRead}
	require.NoError(t, o.TryLock([32]byte{0x01}, intent, false))
	require.NoError(t, o.TryLock([32]byte{0x02}, intent, false))
}

func TestTryLockWriteConflictsAcrossOverlayChain(t *testing.T) {
	root := New(store.New(kv.NewMemDB()))
	id := testId(5)
	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockWrite}
	require.NoError(t, root.TryLock([32]byte{0x01}, intent, false))

	child := root.Child()
	err := child.TryLock([32]byte{0x02}, intent, false)
	require.ErrorIs(t, err, ErrLockConflict)
}

func TestTryLockLocalOnlyRejectsWrite(t *testing.T) {
	o := New(store.New(kv.NewMemDB()))
	id := testId(6)
	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockWrite}
	err := o.TryLock([32]byte{0x01}, intent, true)
	require.ErrorIs(t, err, ErrLocalOnlyWriteRequested)
}

func TestTryLockOutputRejectsWhenUpRowVisible(t *testing.T) {
	root := New(store.New(kv.NewMemDB()))
	id := testId(7)
	require.NoError(t, root.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: id, Version: 0}, Value: []byte("v0")}))

	intent := substate.LockIntent{Id: id, VersionToLock: 1, LockType: substate.LockOutput}
	err := root.TryLock([32]byte{0x01}, intent, false)
	require.ErrorIs(t, err, ErrLockConflict)

	// Visible through a child overlay too, not just the layer that wrote it.
	child := root.Child()
	err = child.TryLock([32]byte{0x02}, intent, false)
	require.ErrorIs(t, err, ErrLockConflict)
}

func TestTryLockOutputSucceedsWhenNoUpRow(t *testing.T) {
	o := New(store.New(kv.NewMemDB()))
	id := testId(8)
	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockOutput}
	require.NoError(t, o.TryLock([32]byte{0x01}, intent, false))
}

func TestDiffOrdersByKeyThenVersion(t *testing.T) {
	o := New(store.New(kv.NewMemDB()))
	idA := testId(0xAA)
	idB := testId(0x01)
	require.NoError(t, o.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: idA, Version: 0}}))
	require.NoError(t, o.Put(SubstateChange{Kind: ChangeUp, VersionId: substate.VersionedSubstateId{Id: idB, Version: 0}}))

	diff := o.Diff()
	require.Len(t, diff, 2)
	require.Equal(t, idB.Key(), diff[0].VersionId.Id.Key())
	require.Equal(t, idA.Key(), diff[1].VersionId.Id.Key())
}
