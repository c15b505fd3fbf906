// Package blockassembly builds candidate blocks on top of the chain tip and mines them.
package blockassembly

import (
	"crypto/rand"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const defaultExtraDataSize = 40

// CoinbaseBuilder creates and checks the reward transaction of a block.
type CoinbaseBuilder struct {
	logger    ulogger.Logger
	consensus *settings.ConsensusSettings
	coinbase  *settings.CoinbaseSettings
}

func NewCoinbaseBuilder(logger ulogger.Logger, tSettings *settings.Settings) *CoinbaseBuilder {
	return &CoinbaseBuilder{
		logger:    logger,
		consensus: tSettings.Consensus,
		coinbase:  tSettings.Coinbase,
	}
}

// BuildCoinbase pays subsidy plus the fees of txs to the configured reward address. Without
// extraData a random payload is used, so two builds never serialize the same.
func (c *CoinbaseBuilder) BuildCoinbase(txs []*bt.Tx, extraData []byte) (*bt.Tx, error) {
	if c.coinbase == nil || c.coinbase.RewardAddress == "" {
		return nil, errors.NewWalletRequiredError("no coinbase reward address configured")
	}

	inputs, err := PooledInputTotals(txs)
	if err != nil {
		return nil, err
	}

	fees, err := Fees(txs, inputs)
	if err != nil {
		return nil, err
	}

	reward, err := util.AddSatoshis(c.consensus.Subsidy, fees)
	if err != nil {
		return nil, err
	}

	if extraData == nil {
		size := c.coinbase.ExtraDataSize
		if size <= 0 {
			size = defaultExtraDataSize
		}

		extraData = make([]byte, size)
		if _, err = rand.Read(extraData); err != nil {
			return nil, errors.NewProcessingError("failed to generate coinbase extra data", err)
		}
	}

	tx := bt.NewTx()

	input := &bt.Input{
		PreviousTxOutIndex: 0xffffffff,
		SequenceNumber:     0xffffffff,
		UnlockingScript:    bscript.NewFromBytes(extraData),
	}

	if err = input.PreviousTxIDAdd(&chainhash.Hash{}); err != nil {
		return nil, errors.NewProcessingError("failed to set coinbase input", err)
	}

	tx.Inputs = append(tx.Inputs, input)

	if err = tx.AddP2PKHOutputFromAddress(c.coinbase.RewardAddress, reward); err != nil {
		return nil, errors.NewConfigurationError("invalid coinbase reward address %s", c.coinbase.RewardAddress, err)
	}

	return tx, nil
}

// InputTotals maps a transaction id to the satoshis spent by its inputs.
type InputTotals map[chainhash.Hash]uint64

// PooledInputTotals reads the input amounts that mempool admission resolved onto txs.
func PooledInputTotals(txs []*bt.Tx) (InputTotals, error) {
	totals := make(InputTotals, len(txs))

	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}

		in, err := util.TotalInputSatoshis(tx)
		if err != nil {
			return nil, err
		}

		totals[*tx.TxIDChainHash()] = in
	}

	return totals, nil
}

// ValidateCoinbase requires txs to start with a coinbase that pays at most subsidy plus fees.
func (c *CoinbaseBuilder) ValidateCoinbase(block *model.Block, txs []*bt.Tx, inputs InputTotals) error {
	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return errors.NewMissingCoinbaseError("block %s does not start with a coinbase", block.Hash())
	}

	fees, err := Fees(txs, inputs)
	if err != nil {
		return err
	}

	limit, err := util.AddSatoshis(c.consensus.Subsidy, fees)
	if err != nil {
		return errors.NewCoinbaseTooLargeError("block %s fees are out of range", block.Hash(), err)
	}

	paid, err := util.TotalOutputSatoshis(txs[0])
	if err != nil {
		return errors.NewCoinbaseTooLargeError("block %s coinbase outputs are out of range", block.Hash(), err)
	}

	if paid > limit {
		return errors.NewCoinbaseTooLargeError("block %s coinbase pays %d, limit is %d", block.Hash(), paid, limit)
	}

	return nil
}

// Fees is the input total minus the output total of the non coinbase transactions in txs.
// Every one of them needs an entry in inputs.
func Fees(txs []*bt.Tx, inputs InputTotals) (uint64, error) {
	var fees uint64

	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}

		txHash := tx.TxIDChainHash()

		in, ok := inputs[*txHash]
		if !ok {
			return 0, errors.NewTxInvalidError("input amounts of %s are not resolved", txHash)
		}

		out, err := util.TotalOutputSatoshis(tx)
		if err != nil {
			return 0, err
		}

		if out > in {
			return 0, errors.NewTxInvalidError("transaction %s spends %d satoshis but only has %d", txHash, out, in)
		}

		if fees, err = util.AddSatoshis(fees, in-out); err != nil {
			return 0, err
		}
	}

	return fees, nil
}
