// Package daemon wires the stores and services of a node together and runs them.
package daemon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/services/blockassembly"
	"github.com/bsv-blockchain/chainlite/services/blockchain"
	"github.com/bsv-blockchain/chainlite/services/mempool"
	"github.com/bsv-blockchain/chainlite/services/validator"
	"github.com/bsv-blockchain/chainlite/settings"
	blockchainstore "github.com/bsv-blockchain/chainlite/stores/blockchain"
	"github.com/bsv-blockchain/chainlite/stores/blockchain/remote"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/stores/kv/factory"
	"github.com/bsv-blockchain/chainlite/stores/utxo"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type remoteSource interface {
	blockchainstore.BlockSource
	Stop()
}

type Daemon struct {
	Chain      *blockchain.Chain
	Difficulty *blockchain.Difficulty
	Index      *utxo.Index
	Mempool    *mempool.Mempool
	Validator  validator.Interface
	Miner      *blockassembly.Miner

	settings      *settings.Settings
	loggerFactory func(serviceName string) ulogger.Logger
	logger        ulogger.Logger
	genesisBlock  *model.Block
	kvStore       kv.Store
	remote        remoteSource

	serverMu sync.Mutex
	server   *http.Server

	stopCh    chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once
}

// New opens the configured store and builds every service. Nothing runs until Start.
func New(ctx context.Context, tSettings *settings.Settings, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		settings: tSettings,
		stopCh:   make(chan struct{}),
		loggerFactory: func(serviceName string) ulogger.Logger {
			return ulogger.New(serviceName,
				ulogger.WithLevel(tSettings.LogLevel),
				ulogger.WithLoggerType(tSettings.Logger),
				ulogger.WithPretty(tSettings.PrettyLogs),
			)
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.loggerFactory("daemon")

	if d.kvStore == nil {
		kvStore, err := factory.New(ctx, d.loggerFactory("kv"), tSettings.Store.URL, tSettings.DataFolder)
		if err != nil {
			return nil, errors.NewStorageError("failed to open store %s", tSettings.Store.URL, err)
		}

		d.kvStore = kvStore
	}

	if err := d.wire(); err != nil {
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) wire() error {
	tSettings := d.settings

	switch tSettings.Node.Variant {
	case settings.NodeVariantDaemon:
		d.remote = remote.NewRESTSource(d.loggerFactory("rest"), tSettings.Node.DaemonURL, tSettings.Node.BlockCacheTTL, tSettings.Node.HTTPTimeout)
	case settings.NodeVariantRPC:
		d.remote = remote.NewRPCSource(d.loggerFactory("rpc"), tSettings.Node.RPCURL, tSettings.Node.RPCUser, tSettings.Node.RPCPassword,
			tSettings.Node.BlockCacheTTL, tSettings.Node.HTTPTimeout)
	}

	var source blockchainstore.BlockSource
	if d.remote != nil {
		source = d.remote
	}

	blockStore := blockchainstore.NewStore(d.loggerFactory("blockstore"), d.kvStore, source)

	difficulty, err := blockchain.NewDifficulty(blockchain.NewHeaderLookup(blockStore), d.loggerFactory("difficulty"), tSettings.Consensus)
	if err != nil {
		return err
	}

	d.Difficulty = difficulty
	d.Index = utxo.New(d.loggerFactory("utxo"), d.kvStore, tSettings.ChainCfgParams)
	d.Mempool = mempool.New(d.loggerFactory("mempool"), tSettings, d.Index)
	d.Index.SetMempool(d.Mempool)

	if d.Validator, err = validator.NewValidator(d.loggerFactory("validator"), tSettings, difficulty, d.Index); err != nil {
		return err
	}

	var chainOpts []blockchain.Option
	if d.genesisBlock != nil {
		chainOpts = append(chainOpts, blockchain.WithGenesisBlock(d.genesisBlock))
	}

	d.Chain = blockchain.NewChain(d.loggerFactory("chain"), tSettings, blockStore, difficulty, d.Validator, d.Mempool, chainOpts...)
	d.Miner = blockassembly.NewMiner(d.loggerFactory("miner"), tSettings, d.Chain, d.Mempool)

	return nil
}

// Start loads the chain and runs the miner, when enabled, and the metrics endpoint, when a
// profiler address is set. It blocks until ctx is done, Stop is called or a service fails.
func (d *Daemon) Start(ctx context.Context, readyCh ...chan struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.Chain.Start(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	if d.settings.Mining.Enabled {
		g.Go(func() error {
			return d.Miner.Start(gCtx)
		})
	}

	if d.settings.ProfilerAddr != "" {
		if err := d.startMetricsServer(g); err != nil {
			return err
		}
	}

	g.Go(func() error {
		select {
		case <-gCtx.Done():
		case <-d.stopCh:
			d.logger.Infof("daemon shutdown requested")
		}

		d.Miner.Stop()
		d.shutdownMetricsServer()
		cancel()

		return nil
	})

	for _, ch := range readyCh {
		close(ch)
	}

	err := g.Wait()

	if stopErr := d.Chain.Stop(context.Background()); stopErr != nil {
		d.logger.Errorf("error stopping chain: %v", stopErr)
	}

	d.logger.Infof("daemon shutdown completed")

	return err
}

func (d *Daemon) startMetricsServer(g *errgroup.Group) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              d.settings.ProfilerAddr,
		Handler:           mux,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	d.serverMu.Lock()
	d.server = server
	d.serverMu.Unlock()

	g.Go(func() error {
		d.logger.Infof("metrics endpoint listening on http://%s/metrics", server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.NewServiceError("metrics server failed", err)
		}

		return nil
	})

	return nil
}

func (d *Daemon) shutdownMetricsServer() {
	d.serverMu.Lock()
	defer d.serverMu.Unlock()

	if d.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warnf("error shutting down metrics server: %v", err)
	}

	d.server = nil
}

// Stop ends a running Start.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// Close releases the store and the remote block cache. Call it after Start returned.
func (d *Daemon) Close() error {
	var err error

	d.closeOnce.Do(func() {
		if d.remote != nil {
			d.remote.Stop()
		}

		if d.kvStore != nil {
			err = d.kvStore.Close()
		}
	})

	return err
}
