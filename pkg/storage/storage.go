package storage

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus"
	"github.com/vmihailenco/msgpack/v5"
)

// Archive keeps harvested voting results for audit. It is written once per
// result by the consensus manager and read by tooling.
type Archive interface {
	consensus.ResultSink

	GetResult(context.Context, block.Hash) (*consensus.VotingResult, error)

	// Results lists every result ordered by height, round then block hash.
	Results(context.Context) ([]*consensus.VotingResult, error)

	// LastAccepted is the accepted result with the greatest height, or nil.
	LastAccepted(context.Context) (*consensus.VotingResult, error)

	// PutTxTree keeps the transactions of a proposed block so inclusion
	// can be proven once its result is archived.
	PutTxTree(context.Context, block.Hash, *block.TxTree) error
	GetTxTree(context.Context, block.Hash) (*block.TxTree, error)

	Close() error
}

// ProveTx returns an inclusion proof for tx in the archived block h. The
// result's bloom filter rules out most absent transactions before the tx
// tree is read.
func ProveTx(ctx context.Context, a Archive, h block.Hash, tx []byte) (*block.MerkleProof, error) {
	r, err := a.GetResult(ctx, h)
	if err != nil {
		return nil, errors.Wrap(err, "looking up result")
	}

	maybe, err := r.MayContainTx(tx)
	if err != nil {
		return nil, errors.Wrap(err, "reading tx bloom")
	}
	if !maybe {
		return nil, ErrTxNotInBlock
	}

	tree, err := a.GetTxTree(ctx, h)
	if err != nil {
		return nil, errors.Wrap(err, "looking up tx tree")
	}

	for i, t := range tree.Txs {
		if !bytes.Equal(t, tx) {
			continue
		}

		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}

		if !block.VerifyMerkleProof(r.TxRoot, tx, proof) {
			return nil, errors.Errorf("archived txs do not match tx root of %s", h)
		}

		return proof, nil
	}

	//bloom false positive
	return nil, ErrTxNotInBlock
}

func marshalTxTree(t *block.TxTree) ([]byte, error) {
	d, err := msgpack.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling tx tree")
	}

	return d, nil
}

func unmarshalTxTree(d []byte) (*block.TxTree, error) {
	t := &block.TxTree{}
	if err := msgpack.Unmarshal(d, t); err != nil {
		return nil, errors.Wrap(err, "unmarshalling tx tree")
	}

	return t, nil
}

func marshalResult(r *consensus.VotingResult) ([]byte, error) {
	d, err := msgpack.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling result")
	}

	return d, nil
}

func unmarshalResult(d []byte) (*consensus.VotingResult, error) {
	r := &consensus.VotingResult{}
	if err := msgpack.Unmarshal(d, r); err != nil {
		return nil, errors.Wrap(err, "unmarshalling result")
	}

	return r, nil
}

// orderKey sorts results by height(BE) || round(BE) || hash.
func orderKey(r *consensus.VotingResult) []byte {
	k := make([]byte, 0, 16+block.HashSize)
	k = binary.BigEndian.AppendUint64(k, r.RoundInfo.Height)
	k = binary.BigEndian.AppendUint64(k, r.RoundInfo.Round)
	k = append(k, r.BlockHash[:]...)
	return k
}
