package receipts

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func leafOf(b byte) [32]byte { return sha256.Sum256([]byte{b}) }

func TestBuildTreeRejectsEmpty(t *testing.T) {
	_, err := BuildTree(nil)
	require.ErrorIs(t, err, ErrEmptyTree)
}

func TestGenerateAndVerifyProofRoundTrip(t *testing.T) {
	leaves := [][32]byte{leafOf(1), leafOf(2), leafOf(3), leafOf(4), leafOf(5)}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	for i, l := range leaves {
		proof, err := tree.GenerateProof(i)
		require.NoError(t, err)
		require.True(t, VerifyProof(l, proof, tree.Root()))
	}
}

func TestVerifyProofFailsOnWrongLeaf(t *testing.T) {
	leaves := [][32]byte{leafOf(1), leafOf(2), leafOf(3)}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.False(t, VerifyProof(leafOf(99), proof, tree.Root()))
}

func TestGenerateProofByHashFindsLeaf(t *testing.T) {
	leaves := [][32]byte{leafOf(1), leafOf(2)}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	proof, err := tree.GenerateProofByHash(leafOf(2))
	require.NoError(t, err)
	require.Equal(t, 1, proof.LeafIndex)
}

func TestGenerateProofByHashNotFound(t *testing.T) {
	tree, err := BuildTree([][32]byte{leafOf(1)})
	require.NoError(t, err)
	_, err = tree.GenerateProofByHash(leafOf(99))
	require.ErrorIs(t, err, ErrLeafNotFound)
}

func TestSingleLeafTreeRootIsLeaf(t *testing.T) {
	l := leafOf(7)
	tree, err := BuildTree([][32]byte{l})
	require.NoError(t, err)
	require.Equal(t, l, tree.Root())
}
