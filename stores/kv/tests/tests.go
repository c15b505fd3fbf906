// Package tests holds the behaviour every kv.Store backend must share.
package tests

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dump returns every key/value pair under prefix, in key order.
func Dump(t *testing.T, r kv.Reader, prefix []byte) map[string]string {
	t.Helper()

	out := make(map[string]string)

	it := r.NewIterator(context.Background(), prefix)
	defer it.Release()

	for it.Next() {
		out[string(it.Key())] = string(it.Value())
	}

	require.NoError(t, it.Error())

	return out
}

func GetPutDelete(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, []byte("missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{
		kv.Put([]byte("a"), []byte("1")),
		kv.Put([]byte("b"), []byte("2")),
	}))

	value, err := store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	ok, err := store.Has(ctx, []byte("b"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{
		kv.Put([]byte("a"), []byte("3")),
		kv.Del([]byte("b"), []byte("2")),
	}))

	value, err = store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), value)

	ok, err = store.Has(ctx, []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func PrefixScan(t *testing.T, store kv.Store) {
	ctx := context.Background()

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{
		kv.Put([]byte("outs-addr1-0002"), []byte("x2")),
		kv.Put([]byte("outs-addr1-0001"), []byte("x1")),
		kv.Put([]byte("outs-addr10-0001"), []byte("y")),
		kv.Put([]byte("outs-addr2-0001"), []byte("z")),
		kv.Put([]byte("sp-0001"), []byte("s")),
	}))

	it := store.NewIterator(ctx, []byte("outs-addr1-"))

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}

	require.NoError(t, it.Error())
	it.Release()

	assert.Equal(t, []string{"outs-addr1-0001", "outs-addr1-0002"}, keys)

	assert.Len(t, Dump(t, store, []byte("outs-")), 4)
	assert.Empty(t, Dump(t, store, []byte("nothing-")))
}

func Snapshot(t *testing.T, store kv.Store) {
	ctx := context.Background()

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{kv.Put([]byte("tip"), []byte("one"))}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	value, err := snap.Get(ctx, []byte("tip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	assert.Len(t, Dump(t, snap, []byte("ti")), 1)

	snap.Release()
}

// SnapshotIsolation checks that writes after the snapshot are not visible through it. Only
// backends that can take a snapshot and write concurrently run this.
func SnapshotIsolation(t *testing.T, store kv.Store) {
	ctx := context.Background()

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{kv.Put([]byte("tip"), []byte("one"))}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	defer snap.Release()

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{
		kv.Put([]byte("tip"), []byte("two")),
		kv.Put([]byte("tip2"), []byte("x")),
	}))

	value, err := snap.Get(ctx, []byte("tip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	ok, err := snap.Has(ctx, []byte("tip2"))
	require.NoError(t, err)
	assert.False(t, ok)

	value, err = store.Get(ctx, []byte("tip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)
}

func CanceledContext(t *testing.T, store kv.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.ApplyBatch(ctx, []kv.Operation{kv.Put([]byte("never"), []byte("x"))})
	require.Error(t, err)

	_, err = store.Get(context.Background(), []byte("never"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
