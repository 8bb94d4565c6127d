package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/internal/kv"
	"github.com/dan-network/dan-core/pkg/substate"
)

func testId(b byte) substate.SubstateId {
	var id substate.SubstateId
	id.EntityId[0] = b
	return id
}

func TestPutUpThenGetLatest(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(1)
	rec := &substate.Record{Id: id, Version: 0, Value: []byte("v0")}
	require.NoError(t, s.PutUp(rec))

	got, err := s.GetLatest(id)
	require.NoError(t, err)
	require.Equal(t, uint32(0), got.Version)
	require.Equal(t, substate.StatusUp, got.Status)
}

func TestPutUpDuplicateFails(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(2)
	rec := &substate.Record{Id: id, Version: 0}
	require.NoError(t, s.PutUp(rec))
	require.ErrorIs(t, s.PutUp(&substate.Record{Id: id, Version: 0}), ErrAlreadyExists)
}

func TestPutDownRequiresUp(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(3)
	require.ErrorIs(t, s.PutDown(id, 0, [32]byte{}, [32]byte{}, [32]byte{}, 1), ErrNotUp)

	require.NoError(t, s.PutUp(&substate.Record{Id: id, Version: 0}))
	require.NoError(t, s.PutDown(id, 0, [32]byte{0x01}, [32]byte{}, [32]byte{}, 1))

	_, err := s.GetLatest(id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLockReadsStack(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(4)
	require.NoError(t, s.PutUp(&substate.Record{Id: id, Version: 0}))

	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockRead}
	require.NoError(t, s.Lock(intent, [32]byte{0x01}))
	require.NoError(t, s.Lock(intent, [32]byte{0x02}))

	rec, err := s.Get(id, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(2), rec.ReadLocks)
}

func TestLockWriteExclusiveAcrossTransactions(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(5)
	require.NoError(t, s.PutUp(&substate.Record{Id: id, Version: 0}))

	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockWrite}
	require.NoError(t, s.Lock(intent, [32]byte{0x01}))
	require.ErrorIs(t, s.Lock(intent, [32]byte{0x02}), ErrLockConflict)

	// Same transaction re-locking is permitted (self-conflict ignored).
	require.NoError(t, s.Lock(intent, [32]byte{0x01}))
}

func TestLockOutputRequiresAbsence(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(6)
	intent := substate.LockIntent{Id: id, VersionToLock: 0, LockType: substate.LockOutput}
	require.NoError(t, s.Lock(intent, [32]byte{0x01}))

	require.NoError(t, s.PutUp(&substate.Record{Id: id, Version: 0}))
	require.ErrorIs(t, s.Lock(intent, [32]byte{0x02}), ErrLockConflict)
}

func TestUnlockNotHeldIsError(t *testing.T) {
	s := New(kv.NewMemDB())
	id := testId(7)
	require.NoError(t, s.PutUp(&substate.Record{Id: id, Version: 0}))
	require.ErrorIs(t, s.Unlock(id, 0, [32]byte{0x01}), ErrUnlockNotHeld)
}
