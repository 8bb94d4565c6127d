package statetree

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestEmptyTreeYieldsPlaceholder(t *testing.T) {
	tr := New()
	require.Equal(t, placeholders[addressBits], tr.Root())
}

func TestStageDiffDeterministicAcrossOrder(t *testing.T) {
	h1 := [32]byte{0x01}
	h2 := [32]byte{0x02}
	a1 := *uint256.NewInt(10)
	a2 := *uint256.NewInt(20)

	t1 := New()
	root1, _ := t1.StageDiff([]LeafChange{{Address: a1, StateHash: &h1}, {Address: a2, StateHash: &h2}})

	t2 := New()
	root2, _ := t2.StageDiff([]LeafChange{{Address: a2, StateHash: &h2}, {Address: a1, StateHash: &h1}})

	require.Equal(t, root1, root2)
}

func TestUnchangedShardPreservesRoot(t *testing.T) {
	tr := New()
	h := [32]byte{0x09}
	a := *uint256.NewInt(42)
	root1, diff1 := tr.StageDiff([]LeafChange{{Address: a, StateHash: &h}})
	tr.Commit(diff1)

	root2, diff2 := tr.StageDiff(nil)
	require.Equal(t, root1, root2)
	require.Empty(t, diff2.NewNodes)
}

func TestCommitAdvancesVersionAndPersistsLeaf(t *testing.T) {
	tr := New()
	require.Equal(t, uint64(0), tr.Version())

	h := [32]byte{0x05}
	a := *uint256.NewInt(7)
	root, diff := tr.StageDiff([]LeafChange{{Address: a, StateHash: &h}})
	require.NotEmpty(t, diff.NewNodes)
	tr.Commit(diff)

	require.Equal(t, uint64(1), tr.Version())
	require.Equal(t, root, tr.Root())
}

func TestRemovingLeafChangesRoot(t *testing.T) {
	tr := New()
	h := [32]byte{0x05}
	a := *uint256.NewInt(7)
	_, diff := tr.StageDiff([]LeafChange{{Address: a, StateHash: &h}})
	tr.Commit(diff)
	withLeaf := tr.Root()

	_, diff2 := tr.StageDiff([]LeafChange{{Address: a, StateHash: nil}})
	tr.Commit(diff2)
	require.NotEqual(t, withLeaf, tr.Root())
	require.Equal(t, placeholders[addressBits], tr.Root())
}

func TestRootOfHandlesMissingShards(t *testing.T) {
	r1 := [32]byte{0x01}
	root := RootOf([]*[32]byte{&r1, nil, nil, nil})
	require.NotEqual(t, [32]byte{}, root)
}
