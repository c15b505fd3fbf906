package blockchain

import (
	"bytes"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/services/blockassembly/mining"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const genesisHashesPerBurst = 1 << 16

// BuildGenesisBlock returns the genesis block of the configured network. With a coinbase, a new
// genesis block is built around it instead, carrying the configured genesis bits and the
// network genesis timestamp, and solved.
func BuildGenesisBlock(tSettings *settings.Settings, coinbase *bt.Tx) (*model.Block, error) {
	params := tSettings.ChainCfgParams

	if coinbase == nil {
		var buf bytes.Buffer
		if err := params.GenesisBlock.Serialize(&buf); err != nil {
			return nil, errors.NewProcessingError("failed to serialize %s genesis block", params.Name, err)
		}

		return model.NewBlockFromBytes(buf.Bytes())
	}

	if !coinbase.IsCoinbase() {
		return nil, errors.NewMissingCoinbaseError("genesis transaction %s is not a coinbase", coinbase.TxID())
	}

	txs := []*bt.Tx{coinbase}

	header := &model.BlockHeader{
		Version:        1,
		HashPrevBlock:  &chainhash.Hash{},
		HashMerkleRoot: model.CalculateMerkleRoot(txs),
		Timestamp:      uint32(params.GenesisBlock.Header.Timestamp.Unix()),
		Bits:           model.NBit(tSettings.Consensus.GenesisBits),
	}

	block := model.NewBlock(header, txs)

	for {
		solved, err := mining.SolveBurst(block, genesisHashesPerBurst)
		if err != nil {
			return nil, err
		}

		if solved {
			return block, nil
		}
	}
}
