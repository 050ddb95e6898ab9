package storage

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus"
)

var (
	_ Archive = (*PebbleArchive)(nil)
)

const (
	cacheSize = 1 << 20 * 16
)

type keyType byte

const (
	resultTPrefix keyType = iota + 1
	blockTPrefix
	txTreeTPrefix
)

// PebbleArchive stores results under their ordering key with a secondary
// index from block hash to that key.
type PebbleArchive struct {
	db *pebble.DB
}

func NewPebbleArchive(path string) (*PebbleArchive, error) {
	return openPebble(path, nil)
}

// NewMemPebbleArchive is backed by an in memory filesystem.
func NewMemPebbleArchive() (*PebbleArchive, error) {
	return openPebble("", vfs.NewMem())
}

func openPebble(path string, fs vfs.FS) (*PebbleArchive, error) {
	c := pebble.NewCache(cacheSize)
	defer c.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: c, FS: fs})
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble")
	}

	return &PebbleArchive{db: db}, nil
}

func typedKey(t keyType, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}

	k := make([]byte, 0, n)
	k = append(k, byte(t))
	for _, p := range parts {
		k = append(k, p...)
	}

	return k
}

func (s *PebbleArchive) PutResult(_ context.Context, r *consensus.VotingResult) error {
	d, err := marshalResult(r)
	if err != nil {
		return err
	}

	rk := typedKey(resultTPrefix, orderKey(r))

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(rk, d, nil); err != nil {
		return errors.Wrap(err, "storing result")
	}

	if err := batch.Set(typedKey(blockTPrefix, r.BlockHash.Cid().Bytes()), rk, nil); err != nil {
		return errors.Wrap(err, "storing block index")
	}

	return batch.Commit(pebble.Sync)
}

func (s *PebbleArchive) get(key []byte) ([]byte, error) {
	v, done, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer done.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *PebbleArchive) GetResult(_ context.Context, h block.Hash) (*consensus.VotingResult, error) {
	rk, err := s.get(typedKey(blockTPrefix, h.Cid().Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "looking up block index")
	}

	d, err := s.get(rk)
	if err != nil {
		return nil, errors.Wrap(err, "looking up result")
	}

	return unmarshalResult(d)
}

func (s *PebbleArchive) Results(_ context.Context) ([]*consensus.VotingResult, error) {
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{byte(resultTPrefix)},
		UpperBound: []byte{byte(resultTPrefix) + 1},
	})
	defer iter.Close()

	var out []*consensus.VotingResult
	for iter.First(); iter.Valid(); iter.Next() {
		r, err := unmarshalResult(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, iter.Error()
}

func (s *PebbleArchive) LastAccepted(_ context.Context) (*consensus.VotingResult, error) {
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{byte(resultTPrefix)},
		UpperBound: []byte{byte(resultTPrefix) + 1},
	})
	defer iter.Close()

	for iter.Last(); iter.Valid(); iter.Prev() {
		r, err := unmarshalResult(iter.Value())
		if err != nil {
			return nil, err
		}
		if r.Decision == consensus.DecisionAccept {
			return r, nil
		}
	}

	return nil, iter.Error()
}

func (s *PebbleArchive) PutTxTree(_ context.Context, h block.Hash, t *block.TxTree) error {
	d, err := marshalTxTree(t)
	if err != nil {
		return err
	}

	if err := s.db.Set(typedKey(txTreeTPrefix, h.Cid().Bytes()), d, pebble.Sync); err != nil {
		return errors.Wrap(err, "storing tx tree")
	}

	return nil
}

func (s *PebbleArchive) GetTxTree(_ context.Context, h block.Hash) (*block.TxTree, error) {
	d, err := s.get(typedKey(txTreeTPrefix, h.Cid().Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "looking up tx tree")
	}

	return unmarshalTxTree(d)
}

func (s *PebbleArchive) Close() error {
	return s.db.Close()
}
