/*
Package validator judges candidate blocks before the chain accepts them.

Two variants exist. The local variant checks proof of work, the required difficulty and every
transaction against the confirmed index. The delegated variant is used when blocks come from a
reference daemon that already validated them, and only checks that the block connects.
Neither variant writes anything.
*/
package validator

import (
	"context"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/stores/utxo"
	"github.com/bsv-blockchain/chainlite/ulogger"
)

// Interface validates a block against its parent. prev is nil when the parent is unknown.
type Interface interface {
	ValidateBlock(ctx context.Context, block *model.Block, prev *model.Block) error
	Variant() settings.NodeVariant
}

// DifficultyEngine is the part of the difficulty engine the local validator consults.
type DifficultyEngine interface {
	CheckProofOfWork(block *model.Block) error
	NextWorkRequired(ctx context.Context, last *model.Block) (uint32, error)
}

// TxLookup resolves the outputs spent by block transactions.
type TxLookup interface {
	GetTransaction(ctx context.Context, txid string) (*utxo.TxRecord, error)
	IsSpent(ctx context.Context, txid string, index uint32, includeMempool bool) (bool, error)
}

// NewValidator picks the validator for the configured node variant.
func NewValidator(logger ulogger.Logger, tSettings *settings.Settings, difficulty DifficultyEngine, lookup TxLookup) (Interface, error) {
	switch tSettings.Node.Variant {
	case settings.NodeVariantLocal, "":
		return NewLocalValidator(logger, tSettings, difficulty, lookup), nil
	case settings.NodeVariantDaemon, settings.NodeVariantRPC:
		return NewDelegatedValidator(logger, tSettings.Node.Variant), nil
	default:
		return nil, errors.NewConfigurationError("unknown node variant %q", tSettings.Node.Variant)
	}
}

// checkConnects fails unless prev is present or block is a genesis block.
func checkConnects(block *model.Block, prev *model.Block) error {
	if prev != nil {
		if !block.Header.HashPrevBlock.IsEqual(prev.Hash()) {
			return errors.NewBlockInvalidError("block %s does not build on %s", block.Hash(), prev.Hash())
		}

		return nil
	}

	if block.Header.IsGenesis() {
		return nil
	}

	return errors.NewPrevBlockNotFoundError("previous block %s of %s not found", block.Header.HashPrevBlock, block.Hash())
}
