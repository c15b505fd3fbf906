package daemon

import (
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/ulogger"
)

// Option is a functional option type for configuring the Daemon.
type Option func(*Daemon)

// WithLoggerFactory provides a custom logger factory for the Daemon and its services.
func WithLoggerFactory(factory func(serviceName string) ulogger.Logger) Option {
	return func(d *Daemon) {
		d.loggerFactory = factory
	}
}

// WithGenesisBlock starts an empty store from block instead of the network genesis block.
func WithGenesisBlock(block *model.Block) Option {
	return func(d *Daemon) {
		d.genesisBlock = block
	}
}

// WithKVStore uses store instead of opening the configured store URL.
func WithKVStore(store kv.Store) Option {
	return func(d *Daemon) {
		d.kvStore = store
	}
}
