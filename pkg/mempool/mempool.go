package mempool

import (
	"container/heap"
	"sync"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPoolFull  = errors.New("mempool full")
	ErrDuplicate = errors.New("tx already pooled")
	ErrEmptyTx   = errors.New("empty tx")
)

// Tx is an opaque payload waiting to be included in a block. Older
// transactions are proposed first.
type Tx struct {
	Ts   int64  `msgpack:"t"`
	Data []byte `msgpack:"d"`
}

func (t *Tx) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling tx")
	}

	return b, nil
}

type pooledTx struct {
	tx  *Tx
	raw []byte
	id  block.Hash
}

type txHeap []*pooledTx

func (h txHeap) Len() int           { return len(h) }
func (h txHeap) Less(i, j int) bool { return h[i].tx.Ts < h[j].tx.Ts }
func (h txHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *txHeap) Push(x interface{}) {
	*h = append(*h, x.(*pooledTx))
}

func (h *txHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Pool orders pending transactions by timestamp for block building.
type Pool struct {
	mu      sync.Mutex
	plist   txHeap
	ids     map[block.Hash]struct{}
	maxSize int
}

func New(maxSize int) *Pool {
	p := &Pool{
		plist:   make(txHeap, 0),
		ids:     make(map[block.Hash]struct{}),
		maxSize: maxSize,
	}

	heap.Init(&p.plist)

	return p
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.plist)
}

func (p *Pool) AddTx(tx *Tx) error {
	if len(tx.Data) == 0 {
		return ErrEmptyTx
	}

	raw, err := tx.Marshal()
	if err != nil {
		return err
	}

	id := block.DomainHash(block.DomainMerkleLeaf, raw)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ids[id]; ok {
		return ErrDuplicate
	}

	if p.maxSize > 0 && len(p.plist) >= p.maxSize {
		return ErrPoolFull
	}

	heap.Push(&p.plist, &pooledTx{tx: tx, raw: raw, id: id})
	p.ids[id] = struct{}{}

	return nil
}

// Take pops the oldest transactions, encoded, until either limit would be
// exceeded.
func (p *Pool) Take(maxCount, maxBytes int) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		out  [][]byte
		size int
	)

	for len(p.plist) > 0 && len(out) < maxCount {
		next := p.plist[0]
		if size+len(next.raw) > maxBytes {
			break
		}

		heap.Pop(&p.plist)
		delete(p.ids, next.id)

		out = append(out, next.raw)
		size += len(next.raw)
	}

	return out
}

// Return puts encoded transactions from a block that was not accepted back
// into the pool.
func (p *Pool) Return(raws [][]byte) error {
	for _, raw := range raws {
		tx := &Tx{}
		if err := msgpack.Unmarshal(raw, tx); err != nil {
			return errors.Wrap(err, "unmarshalling tx")
		}

		if err := p.AddTx(tx); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}

	return nil
}
