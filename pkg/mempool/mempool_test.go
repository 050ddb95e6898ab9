package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestMemPoolAddPriority(t *testing.T) {
	m := New(0)

	for _, ts := range []int64{2, 1, 3} {
		if err := m.AddTx(&Tx{Ts: ts, Data: []byte{byte(ts)}}); err != nil {
			t.Fatal(err)
		}
	}

	assert.Equal(t, 3, m.Len())

	raws := m.Take(10, 1<<20)
	require.Len(t, raws, 3)

	for i, raw := range raws {
		tx := &Tx{}
		require.NoError(t, msgpack.Unmarshal(raw, tx))
		assert.Equal(t, int64(i+1), tx.Ts)
	}

	assert.Equal(t, 0, m.Len())
}

func TestMemPoolLimits(t *testing.T) {
	m := New(2)

	require.NoError(t, m.AddTx(&Tx{Ts: 1, Data: []byte("a")}))
	assert.ErrorIs(t, m.AddTx(&Tx{Ts: 1, Data: []byte("a")}), ErrDuplicate)
	require.NoError(t, m.AddTx(&Tx{Ts: 2, Data: []byte("b")}))
	assert.ErrorIs(t, m.AddTx(&Tx{Ts: 3, Data: []byte("c")}), ErrPoolFull)
	assert.ErrorIs(t, m.AddTx(&Tx{Ts: 3}), ErrEmptyTx)

	assert.Len(t, m.Take(1, 1<<20), 1)
	assert.Equal(t, 1, m.Len())

	assert.Empty(t, m.Take(10, 1))
	assert.Equal(t, 1, m.Len())
}

func TestMemPoolReturn(t *testing.T) {
	m := New(0)

	require.NoError(t, m.AddTx(&Tx{Ts: 5, Data: []byte("late")}))
	require.NoError(t, m.AddTx(&Tx{Ts: 1, Data: []byte("early")}))

	raws := m.Take(1, 1<<20)
	require.Len(t, raws, 1)

	require.NoError(t, m.Return(raws))
	assert.Equal(t, 2, m.Len())

	tx := &Tx{}
	require.NoError(t, msgpack.Unmarshal(m.Take(1, 1<<20)[0], tx))
	assert.Equal(t, []byte("early"), tx.Data)
}
