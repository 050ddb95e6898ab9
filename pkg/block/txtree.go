package block

import (
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/pkg/errors"
)

const (
	MaxBlockTxCount = 1000

	falsePositive = 0.01
)

var ErrTooManyTx = errors.New("too many transactions")

// TxTree is the merkle tree over a block's opaque transaction payloads.
type TxTree struct {
	Txs [][]byte `msgpack:"t"`
}

func NewTxTree(txs [][]byte) (*TxTree, error) {
	if len(txs) > MaxBlockTxCount {
		return nil, errors.Wrapf(ErrTooManyTx, "%d > %d", len(txs), MaxBlockTxCount)
	}

	return &TxTree{Txs: txs}, nil
}

func (t *TxTree) Len() int {
	return len(t.Txs)
}

// Size is the total payload size in bytes.
func (t *TxTree) Size() int {
	var n int
	for _, tx := range t.Txs {
		n += len(tx)
	}
	return n
}

func (t *TxTree) Root() Hash {
	return MerkleRoot(t.Txs)
}

func (t *TxTree) Proof(i int) (*MerkleProof, error) {
	return merkleProof(t.Txs, i)
}

func (t *TxTree) Bloom() ([]byte, error) {
	b := bloom.NewWithEstimates(MaxBlockTxCount, falsePositive)

	for _, tx := range t.Txs {
		b.Add(tx)
	}

	return b.GobEncode()
}

func BloomContains(b []byte, tx []byte) (bool, error) {
	bloom := bloom.NewWithEstimates(MaxBlockTxCount, falsePositive)

	if err := bloom.GobDecode(b); err != nil {
		return false, err
	}

	return bloom.Test(tx), nil
}
