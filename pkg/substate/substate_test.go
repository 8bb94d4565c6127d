package substate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleId(b byte) SubstateId {
	var id SubstateId
	id.Kind = KindComponent
	id.EntityId[0] = b
	return id
}

func TestToSubstateAddressDifferByVersion(t *testing.T) {
	id := sampleId(0x01)
	a0, err := ToSubstateAddress(id, 0)
	require.NoError(t, err)
	a1, err := ToSubstateAddress(id, 1)
	require.NoError(t, err)
	require.NotEqual(t, a0.Bytes32(), a1.Bytes32())
}

func TestToSubstateAddressDifferByEntity(t *testing.T) {
	a, err := ToSubstateAddress(sampleId(0x01), 0)
	require.NoError(t, err)
	b, err := ToSubstateAddress(sampleId(0x02), 0)
	require.NoError(t, err)
	require.NotEqual(t, a.Bytes32(), b.Bytes32())
}

func TestToSubstateAddressDeterministic(t *testing.T) {
	id := sampleId(0x07)
	a, err := ToSubstateAddress(id, 3)
	require.NoError(t, err)
	b, err := ToSubstateAddress(id, 3)
	require.NoError(t, err)
	require.Equal(t, a.Bytes32(), b.Bytes32())
}

func TestStateHashEqualValuesEqualHash(t *testing.T) {
	v1 := Value("hello")
	v2 := Value("hello")
	require.Equal(t, StateHash(v1), StateHash(v2))

	v3 := Value("world")
	require.NotEqual(t, StateHash(v1), StateHash(v3))
}

func TestLockTypeString(t *testing.T) {
	require.Equal(t, "Read", LockRead.String())
	require.Equal(t, "Write", LockWrite.String())
	require.Equal(t, "Output", LockOutput.String())
}
