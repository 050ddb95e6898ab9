package block

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTxs(n int) [][]byte {
	txs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, []byte(fmt.Sprintf("tx-%d", i)))
	}
	return txs
}

func TestMerkleProofs(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		tree, err := NewTxTree(makeTxs(n))
		require.NoError(t, err)

		root := tree.Root()
		for i := 0; i < n; i++ {
			p, err := tree.Proof(i)
			require.NoError(t, err)

			assert.True(t, VerifyMerkleProof(root, tree.Txs[i], p), "n=%d i=%d", n, i)
			assert.False(t, VerifyMerkleProof(root, []byte("other"), p), "n=%d i=%d", n, i)
		}
	}
}

func TestMerkleRootEmpty(t *testing.T) {
	assert.Equal(t, ZeroHash, MerkleRoot(nil))

	tree, err := NewTxTree(nil)
	require.NoError(t, err)

	_, err = tree.Proof(0)
	assert.ErrorIs(t, err, ErrProofIndex)
}

func TestMerkleRootOrderMatters(t *testing.T) {
	a := MerkleRoot([][]byte{[]byte("a"), []byte("b")})
	b := MerkleRoot([][]byte{[]byte("b"), []byte("a")})

	assert.NotEqual(t, a, b)
}

func TestTxTreeLimits(t *testing.T) {
	_, err := NewTxTree(makeTxs(MaxBlockTxCount + 1))
	assert.ErrorIs(t, err, ErrTooManyTx)

	tree, err := NewTxTree([][]byte{{1, 2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Size())
	assert.Equal(t, 2, tree.Len())
}

func TestBloom(t *testing.T) {
	tree, err := NewTxTree(makeTxs(10))
	require.NoError(t, err)

	b, err := tree.Bloom()
	require.NoError(t, err)

	yes, err := BloomContains(b, tree.Txs[0])
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := BloomContains(b, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, no)
}
