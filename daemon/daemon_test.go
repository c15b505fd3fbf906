package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/services/blockchain"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/stores/kv/leveldb"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoggerFactory(string) ulogger.Logger {
	return ulogger.TestLogger{}
}

func TestDaemonMines(t *testing.T) {
	tSettings := test.CreateBaseTestSettings()
	tSettings.Mining.Enabled = true

	kvStore, err := leveldb.NewMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	funding, err := test.CoinbaseTx(test.Address2, 50e8, []byte("genesis"))
	require.NoError(t, err)

	genesis, err := blockchain.BuildGenesisBlock(tSettings, funding)
	require.NoError(t, err)

	d, err := New(context.Background(), tSettings,
		WithLoggerFactory(testLoggerFactory),
		WithKVStore(kvStore),
		WithGenesisBlock(genesis),
	)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, d.Close())
	}()

	readyCh := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- d.Start(context.Background(), readyCh)
	}()

	select {
	case <-readyCh:
	case err := <-errCh:
		t.Fatalf("daemon stopped early: %v", err)
	}

	require.Eventually(t, func() bool {
		height, _ := d.Chain.BestBlock().Height()
		return height >= 2
	}, 10*time.Second, 10*time.Millisecond)

	d.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	assert.False(t, d.Miner.IsRunning())
	assert.Equal(t, blockchain.FSMStateStopped, d.Chain.GetFSMCurrentState())

	reward, err := d.Index.Balance(context.Background(), test.Address1, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reward, 2*tSettings.Consensus.Subsidy)
}

func TestDaemonStopsWithContext(t *testing.T) {
	tSettings := test.CreateBaseTestSettings()

	d, err := New(context.Background(), tSettings, WithLoggerFactory(testLoggerFactory))
	require.NoError(t, err)

	defer func() {
		_ = d.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	readyCh := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- d.Start(ctx, readyCh)
	}()

	<-readyCh

	// the network genesis block is used without a custom one
	assert.True(t, tSettings.ChainCfgParams.GenesisHash.IsEqual(d.Chain.GenesisBlock().Hash()))
	assert.False(t, d.Miner.IsRunning())

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonVariants(t *testing.T) {
	t.Run("daemon", func(t *testing.T) {
		tSettings := test.CreateBaseTestSettings()
		tSettings.Node.Variant = settings.NodeVariantDaemon

		d, err := New(context.Background(), tSettings, WithLoggerFactory(testLoggerFactory))
		require.NoError(t, err)

		assert.Equal(t, settings.NodeVariantDaemon, d.Validator.Variant())
		assert.NotNil(t, d.remote)
		require.NoError(t, d.Close())
	})

	t.Run("rpc", func(t *testing.T) {
		tSettings := test.CreateBaseTestSettings()
		tSettings.Node.Variant = settings.NodeVariantRPC

		d, err := New(context.Background(), tSettings, WithLoggerFactory(testLoggerFactory))
		require.NoError(t, err)

		assert.Equal(t, settings.NodeVariantRPC, d.Validator.Variant())
		require.NoError(t, d.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		tSettings := test.CreateBaseTestSettings()
		tSettings.Node.Variant = "bitcoind"

		_, err := New(context.Background(), tSettings, WithLoggerFactory(testLoggerFactory))
		assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
	})

	t.Run("bad store", func(t *testing.T) {
		tSettings := test.CreateBaseTestSettings()
		tSettings.Store.URL.Scheme = "floppy"

		_, err := New(context.Background(), tSettings, WithLoggerFactory(testLoggerFactory))
		assert.True(t, errors.Is(err, errors.ErrStorageError), "got %v", err)
	})
}
