// Package blockchain persists blocks, their chain metadata, the main chain height index and the
// tip pointer in a kv.Store.
package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockSource resolves raw blocks. It is backed by the local store or by a remote daemon.
type BlockSource interface {
	GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error)
	GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error)
}
