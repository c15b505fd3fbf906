package validator

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/services/blockassembly"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

type outpoint struct {
	txid  chainhash.Hash
	index uint32
}

// LocalValidator runs every consensus check itself.
type LocalValidator struct {
	logger     ulogger.Logger
	consensus  *settings.ConsensusSettings
	difficulty DifficultyEngine
	lookup     TxLookup
	coinbase   *blockassembly.CoinbaseBuilder
}

func NewLocalValidator(logger ulogger.Logger, tSettings *settings.Settings, difficulty DifficultyEngine, lookup TxLookup) *LocalValidator {
	initPrometheusMetrics()

	return &LocalValidator{
		logger:     logger,
		consensus:  tSettings.Consensus,
		difficulty: difficulty,
		lookup:     lookup,
		coinbase:   blockassembly.NewCoinbaseBuilder(logger, tSettings),
	}
}

func (v *LocalValidator) Variant() settings.NodeVariant {
	return settings.NodeVariantLocal
}

func (v *LocalValidator) ValidateBlock(ctx context.Context, block *model.Block, prev *model.Block) error {
	_, err := v.validate(ctx, block, prev)
	return err
}

// validate walks the block through the state machine and returns the state it ended in.
func (v *LocalValidator) validate(ctx context.Context, block *model.Block, prev *model.Block) (string, error) {
	start := time.Now()
	defer func() {
		prometheusValidatorDuration.Observe(time.Since(start).Seconds())
	}()

	machine := newBlockStateMachine(v.logger, block.Hash().String())

	steps := []struct {
		event string
		check func(context.Context, *model.Block, *model.Block) error
	}{
		{EventCheckPow, v.checkProofOfWork},
		{EventCheckDifficulty, v.checkDifficulty},
		{EventValidateTransactions, v.validateTransactions},
	}

	for _, step := range steps {
		if err := step.check(ctx, block, prev); err != nil {
			if fsmErr := machine.Event(ctx, EventReject); fsmErr != nil {
				v.logger.Errorf("[Validator][%s] failed to move to rejected: %v", block.Hash(), fsmErr)
			}

			prometheusValidatorRejected.Inc()
			v.logger.Warnf("[Validator][%s] rejected during %s: %v", block.Hash(), step.event, err)

			return machine.Current(), err
		}

		if err := machine.Event(ctx, step.event); err != nil {
			return machine.Current(), errors.NewProcessingError("[Validator][%s] %s transition failed", block.Hash(), step.event, err)
		}
	}

	if err := machine.Event(ctx, EventAccept); err != nil {
		return machine.Current(), errors.NewProcessingError("[Validator][%s] accept transition failed", block.Hash(), err)
	}

	prometheusValidatorAccepted.Inc()

	return machine.Current(), nil
}

func (v *LocalValidator) checkProofOfWork(_ context.Context, block *model.Block, prev *model.Block) error {
	if err := checkConnects(block, prev); err != nil {
		return err
	}

	return v.difficulty.CheckProofOfWork(block)
}

func (v *LocalValidator) checkDifficulty(ctx context.Context, block *model.Block, prev *model.Block) error {
	expected := v.consensus.GenesisBits

	if prev != nil {
		var err error

		expected, err = v.difficulty.NextWorkRequired(ctx, prev)
		if err != nil {
			return errors.NewProcessingError("failed to compute required bits for %s", block.Hash(), err)
		}
	}

	if uint32(block.Header.Bits) != expected {
		return errors.NewInvalidDifficultyError("block %s has bits %s, expected %08x", block.Hash(), block.Header.Bits, expected)
	}

	return nil
}

// validateTransactions checks structure, resolves every input and finally the coinbase amount.
// The block transactions are left untouched.
func (v *LocalValidator) validateTransactions(ctx context.Context, block *model.Block, _ *model.Block) error {
	txs := block.Transactions

	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return errors.NewMissingCoinbaseError("block %s does not start with a coinbase", block.Hash())
	}

	if err := block.CheckMerkleRoot(); err != nil {
		return err
	}

	inBlock := make(map[chainhash.Hash]*bt.Tx, len(txs))
	spent := make(map[outpoint]chainhash.Hash)
	inputs := make(blockassembly.InputTotals, len(txs))

	for i, tx := range txs {
		txHash := *tx.TxIDChainHash()

		if _, dup := inBlock[txHash]; dup {
			return errors.NewBlockInvalidError("block %s contains %s twice", block.Hash(), txHash)
		}

		if err := v.checkNotConfirmed(ctx, &txHash); err != nil {
			return err
		}

		if i > 0 {
			if tx.IsCoinbase() {
				return errors.NewBlockInvalidError("block %s has a second coinbase at position %d", block.Hash(), i)
			}

			totalIn, err := v.validateTransaction(ctx, tx, inBlock, spent)
			if err != nil {
				return err
			}

			inputs[txHash] = totalIn
		}

		inBlock[txHash] = tx
	}

	return v.coinbase.ValidateCoinbase(block, txs, inputs)
}

// checkNotConfirmed rejects a txid that is already confirmed on the main chain. Outputs and spends
// are indexed by txid, so a second copy would overwrite the first.
func (v *LocalValidator) checkNotConfirmed(ctx context.Context, txHash *chainhash.Hash) error {
	_, err := v.lookup.GetTransaction(ctx, txHash.String())

	switch {
	case err == nil:
		return errors.NewTxInvalidError("transaction %s is already confirmed", txHash)
	case errors.IsNotFoundError(err):
		return nil
	default:
		return err
	}
}

// validateTransaction returns the satoshis spent by the inputs of tx.
func (v *LocalValidator) validateTransaction(ctx context.Context, tx *bt.Tx, inBlock map[chainhash.Hash]*bt.Tx, spent map[outpoint]chainhash.Hash) (uint64, error) {
	txHash := tx.TxIDChainHash()

	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return 0, errors.NewTxInvalidError("transaction %s has no inputs or no outputs", txHash)
	}

	var totalIn uint64

	for i, input := range tx.Inputs {
		op := outpoint{index: input.PreviousTxOutIndex}
		if prevHash := input.PreviousTxIDChainHash(); prevHash != nil {
			op.txid = *prevHash
		}

		if spender, ok := spent[op]; ok {
			return 0, errors.NewTxInvalidDoubleSpendError("input %d of %s spends %s:%d, already spent by %s in the same block", i, txHash, op.txid, op.index, spender)
		}

		output, err := v.resolveOutput(ctx, op, inBlock)
		if err != nil {
			if !errors.IsNotFoundError(err) {
				return 0, err
			}

			return 0, errors.NewTxInvalidError("input %d of %s can not be resolved", i, txHash, err)
		}

		isSpent, err := v.lookup.IsSpent(ctx, op.txid.String(), op.index, false)
		if err != nil {
			return 0, err
		}

		if isSpent {
			return 0, errors.NewTxInvalidDoubleSpendError("input %d of %s spends confirmed spent output %s:%d", i, txHash, op.txid, op.index)
		}

		spent[op] = *txHash

		if totalIn, err = util.AddSatoshis(totalIn, output.Satoshis); err != nil {
			return 0, errors.NewTxInvalidError("inputs of %s are out of range", txHash, err)
		}
	}

	totalOut, err := util.TotalOutputSatoshis(tx)
	if err != nil {
		return 0, err
	}

	if totalOut > totalIn {
		return 0, errors.NewTxInvalidError("transaction %s spends %d satoshis but only has %d", txHash, totalOut, totalIn)
	}

	return totalIn, nil
}

func (v *LocalValidator) resolveOutput(ctx context.Context, op outpoint, inBlock map[chainhash.Hash]*bt.Tx) (*bt.Output, error) {
	parent, ok := inBlock[op.txid]
	if !ok {
		record, err := v.lookup.GetTransaction(ctx, op.txid.String())
		if err != nil {
			return nil, err
		}

		parent = record.Tx
	}

	if int(op.index) >= len(parent.Outputs) {
		return nil, errors.NewTxNotFoundError("transaction %s has no output %d", op.txid, op.index)
	}

	return parent.Outputs[op.index], nil
}
