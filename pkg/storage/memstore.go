package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus"
)

var (
	_ Archive = (*MemArchive)(nil)
)

// MemArchive keeps encoded results in memory keyed by block CID.
type MemArchive struct {
	mu sync.RWMutex

	objects map[cid.Cid][]byte
	order   map[cid.Cid][]byte
	txs     map[cid.Cid][]byte

	closed bool
}

func NewMemArchive() *MemArchive {
	return &MemArchive{
		objects: make(map[cid.Cid][]byte),
		order:   make(map[cid.Cid][]byte),
		txs:     make(map[cid.Cid][]byte),
	}
}

func (m *MemArchive) PutResult(_ context.Context, r *consensus.VotingResult) error {
	d, err := marshalResult(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	id := r.BlockHash.Cid()
	m.objects[id] = d
	m.order[id] = orderKey(r)

	return nil
}

func (m *MemArchive) GetResult(_ context.Context, h block.Hash) (*consensus.VotingResult, error) {
	m.mu.RLock()
	d, ok := m.objects[h.Cid()]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	return unmarshalResult(d)
}

func (m *MemArchive) Results(_ context.Context) ([]*consensus.VotingResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]cid.Cid, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(m.order[ids[i]], m.order[ids[j]]) < 0
	})

	out := make([]*consensus.VotingResult, 0, len(ids))
	for _, id := range ids {
		r, err := unmarshalResult(m.objects[id])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, nil
}

func (m *MemArchive) LastAccepted(ctx context.Context) (*consensus.VotingResult, error) {
	all, err := m.Results(ctx)
	if err != nil {
		return nil, err
	}

	return lastAccepted(all), nil
}

func (m *MemArchive) PutTxTree(_ context.Context, h block.Hash, t *block.TxTree) error {
	d, err := marshalTxTree(t)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.txs[h.Cid()] = d

	return nil
}

func (m *MemArchive) GetTxTree(_ context.Context, h block.Hash) (*block.TxTree, error) {
	m.mu.RLock()
	d, ok := m.txs[h.Cid()]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	return unmarshalTxTree(d)
}

func (m *MemArchive) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func lastAccepted(ordered []*consensus.VotingResult) *consensus.VotingResult {
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].Decision == consensus.DecisionAccept {
			return ordered[i]
		}
	}
	return nil
}
