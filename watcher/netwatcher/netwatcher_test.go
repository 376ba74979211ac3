package netwatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/store/memory"
)

func latest(n uint64) Latest {
	return func() (uint64, error) { return n, nil }
}

// TestChain makes sure the revolving slice Bh and index Bhi behave correctly.
func TestChain(t *testing.T) {
	db, err := memory.New()
	require.NoError(t, err)

	nw, err := New(context.Background(), "net", 4, latest(0), nil, db)
	require.NoError(t, err)

	steps := []struct {
		prev    string // previous hash to check
		chained bool
		hash    string // hash to update chain
	}{
		{"hash0", true, "hash1"},
		{"hash1", true, "hash2"},
		{"hash2", true, "hash3"},
		{"hash3", true, "hash4"},
		{"hash4", true, "hash5"},
		{"hash5", true, "hash6"},
		{"hash6bis", false, "hash6bis"},
		{"hash6", true, "hash7"},
		{"hash7", true, "hash8"},
		{"hash8", true, "hash9"},
	}

	for _, s := range steps {
		require.Equal(t, s.chained, nw.Chained(s.prev), s.prev)

		if s.chained {
			nw.UpdateChain(s.hash)
		}
	}

	assert.Equal(t, uint64(9), nw.Block)
	assert.Equal(t, uint64(10), nw.Next())
	assert.Equal(t, 1, nw.Bhi)
	assert.Equal(t, []string{"hash8", "hash9", "hash6", "hash7"}, nw.Bh)
}

func TestAddresses(t *testing.T) {
	db, err := memory.New()
	require.NoError(t, err)

	nw, err := New(context.Background(), "net", 4, latest(0),
		map[string]string{"0xCBA75F167B03e34B8a572c50273C082401b073Ed": "w1"}, db)
	require.NoError(t, err)
	assert.Equal(t, 1, nw.Len())

	_, ok := nw.Del("object1")
	assert.False(t, ok)

	nw.Add("0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4", Listen)
	assert.Equal(t, 2, nw.Len())

	txs := []types.Trans{
		{Hash: "0x01", From: "0xaaaa", To: "0x357dd3856d856197c1a000bbab4abcb97dfc92c4"},
		{Hash: "0x02", From: "0xcba75f167b03e34b8a572c50273c082401b073ed", To: "0xbbbb"},
		{Hash: "0x03", From: "0xaaaa", To: "0xbbbb"},
	}

	r := nw.ScanTxs(txs)
	require.Len(t, r, 2)
	assert.Equal(t, "0x01", r[0].Hash)
	assert.Equal(t, "0x02", r[1].Hash)

	v, ok := nw.Del("0xcba75f167b03e34b8a572c50273c082401b073ed")
	assert.True(t, ok)
	assert.Equal(t, "w1", v)
	assert.Len(t, nw.ScanTxs(txs), 1)
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	db, err := memory.New()
	require.NoError(t, err)

	// no state: start at the latest block
	nw, err := New(ctx, "net", 2, latest(0x29bf9b), nil, db)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x29bf9b), nw.Block)
	assert.True(t, nw.Chained("anything"))

	nw.Add("0xabc", Listen)
	nw.UpdateChain("hash1")

	s := nw.ToStore()
	require.NoError(t, db.SaveWatcher(ctx, "net", s))

	// the copy does not change with the watcher
	nw.UpdateChain("hash2")
	assert.Equal(t, uint64(0x29bf9c), s.Block)

	// saved state: latest is not called and addresses come from the caller
	nw, err = New(ctx, "net", 2, func() (uint64, error) { return 0, errors.New("not called") },
		map[string]string{"0xdef": "w2"}, db)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x29bf9c), nw.Block)
	assert.True(t, nw.Chained("hash1"))
	assert.False(t, nw.Chained("hash0"))
	assert.Equal(t, map[string]string{"0xdef": "w2"}, nw.Map)

	// a different number of hashes restarts the chain check
	nw, err = New(ctx, "net", 3, latest(0), nil, db)
	require.NoError(t, err)
	assert.Len(t, nw.Bh, 3)
	assert.True(t, nw.Chained("hash0"))

	_, err = New(ctx, "other", 2, func() (uint64, error) { return 0, types.ErrNoBlock }, nil, db)
	assert.ErrorIs(t, err, types.ErrNoBlock)
}

func TestMaxBlocks(t *testing.T) {
	db, err := memory.New()
	require.NoError(t, err)

	for _, mb := range []int{0, -1} {
		nw, err := New(context.Background(), "eth", mb, latest(10), nil, db)
		assert.ErrorIs(t, err, ErrMaxBlocks)
		assert.Nil(t, nw)
	}

	nw, err := New(context.Background(), "eth", 1, latest(10), nil, db)
	require.NoError(t, err)
	assert.True(t, nw.Chained("0xabc"))
	nw.UpdateChain("0xabd")
	assert.True(t, nw.Chained("0xabd"))
}
