// Package test holds fixtures shared by package tests: regtest settings, transactions and blocks
// with trivially easy proof of work.
package test

import (
	"encoding/hex"
	"net/url"

	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
)

// EasyBits is the regtest proof of work limit; about every second nonce solves it.
const EasyBits uint32 = 0x207fffff

// Regtest P2PKH addresses.
var (
	Address1 = "mpXwg4jMtRhuSpVq4xS3HFHmCmWp9NyGKt"
	Address2 = "mrS8eVKXguwufwvsVe9GtgGb7fif9UQeAu"
	Address3 = "mwrkWCK3FEgWALCANwXAa6Yiz58mtNtaZy"
)

func CreateBaseTestSettings() *settings.Settings {
	tSettings := settings.NewSettings()

	params := chaincfg.RegressionNetParams
	tSettings.ChainCfgParams = &params

	tSettings.Consensus.MaxBits = params.PowLimitBits
	tSettings.Consensus.GenesisBits = params.GenesisBlock.Header.Bits
	tSettings.Consensus.TargetTimespan = settings.DefaultTargetTimespan
	tSettings.Consensus.TargetSpacing = params.TargetTimePerBlock

	tSettings.Store.URL, _ = url.Parse("leveldbmemory://")
	tSettings.Coinbase.RewardAddress = Address1
	tSettings.Mining.HashesPerCycle = 100

	return tSettings
}

// CoinbaseTx pays satoshis to address. extra becomes the unlocking script, so different extra
// data gives different transaction ids.
func CoinbaseTx(address string, satoshis uint64, extra []byte) (*bt.Tx, error) {
	tx := bt.NewTx()

	input := &bt.Input{
		PreviousTxOutIndex: 0xffffffff,
		SequenceNumber:     0xffffffff,
		UnlockingScript:    bscript.NewFromBytes(extra),
	}

	if err := input.PreviousTxIDAdd(&chainhash.Hash{}); err != nil {
		return nil, err
	}

	tx.Inputs = append(tx.Inputs, input)

	if err := tx.AddP2PKHOutputFromAddress(address, satoshis); err != nil {
		return nil, err
	}

	return tx, nil
}

// SpendTx spends output vout of parent and pays satoshis to address. Anything left over is fee.
func SpendTx(parent *bt.Tx, vout uint32, address string, satoshis uint64) (*bt.Tx, error) {
	tx := bt.NewTx()

	out := parent.Outputs[vout]
	if err := tx.From(parent.TxID(), vout, hex.EncodeToString(*out.LockingScript), out.Satoshis); err != nil {
		return nil, err
	}

	if err := tx.AddP2PKHOutputFromAddress(address, satoshis); err != nil {
		return nil, err
	}

	return tx, nil
}

// NewBlock builds an unsolved block with a correct merkle root.
func NewBlock(prev *chainhash.Hash, timestamp uint32, bits uint32, txs ...*bt.Tx) *model.Block {
	header := &model.BlockHeader{
		Version:        1,
		HashPrevBlock:  prev,
		HashMerkleRoot: model.CalculateMerkleRoot(txs),
		Timestamp:      timestamp,
		Bits:           model.NBit(bits),
	}

	return model.NewBlock(header, txs)
}

// Solve bumps the nonce until the header meets the target of its own bits.
func Solve(block *model.Block) {
	target := block.Header.Bits.CalculateTarget()

	for !block.Header.HasMetTarget(target) {
		block.Header.Nonce++
	}

	block.ResetHash()
}

// ChildBlock builds and solves an EasyBits block on top of prev, ten minutes after it.
func ChildBlock(prev *model.Block, coinbase *bt.Tx, txs ...*bt.Tx) *model.Block {
	all := append([]*bt.Tx{coinbase}, txs...)

	block := NewBlock(prev.Hash(), prev.Header.Timestamp+600, EasyBits, all...)
	Solve(block)

	return block
}
