package evidence

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/pkg/substate"
)

func TestAddQcIsIdempotent(t *testing.T) {
	addr := *uint256.NewInt(1)
	e := New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})

	e.AddQc(addr, QcId{0x01})
	e.AddQc(addr, QcId{0x01})
	require.Len(t, e.Entry(addr).QcIds, 1)
}

func TestAllInputAddressesJustified(t *testing.T) {
	a1 := *uint256.NewInt(1)
	a2 := *uint256.NewInt(2)
	e := New([]uint256.Int{a1, a2}, []substate.LockType{substate.LockRead, substate.LockOutput})

	require.False(t, e.AllInputAddressesJustified())
	e.AddQc(a1, QcId{0x01})
	// a2 is Output-locked, so it doesn't need a qc to be "justified".
	require.True(t, e.AllInputAddressesJustified())
}

func TestNumMatchingEvidence(t *testing.T) {
	a1 := *uint256.NewInt(1)
	a2 := *uint256.NewInt(2)
	e := New([]uint256.Int{a1, a2}, []substate.LockType{substate.LockRead, substate.LockRead})
	e.AddQc(a1, QcId{0x01})
	e.AddQc(a1, QcId{0x02})
	e.AddQc(a2, QcId{0x01})

	require.Equal(t, 2, e.NumMatchingEvidence(1))
	require.Equal(t, 1, e.NumMatchingEvidence(2))
}

func TestMergeIsIdempotentOnReplay(t *testing.T) {
	addr := *uint256.NewInt(1)
	e1 := New([]uint256.Int{addr}, []substate.LockType{substate.LockRead})
	e1.AddQc(addr, QcId{0x01})

	e2 := New([]uint256.Int{addr}, []substate.LockType{substate.LockRead})
	e2.Merge(e1)
	require.Len(t, e2.Entry(addr).QcIds, 1)

	e2.Merge(e1) // replay
	require.Len(t, e2.Entry(addr).QcIds, 1)
}
