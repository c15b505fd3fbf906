package sql

import (
	"context"
	"net/url"
	"testing"

	"github.com/bsv-blockchain/chainlite/stores/kv/tests"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *Store {
	storeURL, err := url.Parse("sqlitememory:///kv")
	require.NoError(t, err)

	store, err := New(context.Background(), ulogger.TestLogger{}, storeURL, t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestGetPutDelete(t *testing.T) {
	tests.GetPutDelete(t, newMemoryStore(t))
}

func TestPrefixScan(t *testing.T) {
	tests.PrefixScan(t, newMemoryStore(t))
}

func TestSnapshot(t *testing.T) {
	tests.Snapshot(t, newMemoryStore(t))
}

func TestCanceledContext(t *testing.T) {
	tests.CanceledContext(t, newMemoryStore(t))
}

func TestFileStore(t *testing.T) {
	storeURL, err := url.Parse("sqlite:///kvtest")
	require.NoError(t, err)

	store, err := New(context.Background(), ulogger.TestLogger{}, storeURL, t.TempDir())
	require.NoError(t, err)

	defer func() {
		_ = store.Close()
	}()

	tests.GetPutDelete(t, store)
	tests.PrefixScan(t, store)
}
