package main

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/settings"
	blockchainstore "github.com/bsv-blockchain/chainlite/stores/blockchain"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/stores/kv/factory"
	"github.com/bsv-blockchain/chainlite/stores/utxo"
	"github.com/bsv-blockchain/chainlite/ulogger"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// queries read the store of a node that is not running. Pooled transactions live in the node
// process, so the mempool flag only changes results when the index has a pool attached.
type queries struct {
	index  *utxo.Index
	blocks *blockchainstore.Store
}

func newQueries(logger ulogger.Logger, tSettings *settings.Settings, kvStore kv.Store) *queries {
	return &queries{
		index:  utxo.New(logger.New("utxo"), kvStore, tSettings.ChainCfgParams),
		blocks: blockchainstore.NewStore(logger.New("blockstore"), kvStore, nil),
	}
}

func withQueries(ctx context.Context, tSettings *settings.Settings, logger ulogger.Logger, fn func(q *queries) error) error {
	kvStore, err := factory.New(ctx, logger.New("kv"), tSettings.Store.URL, tSettings.DataFolder)
	if err != nil {
		return err
	}

	defer func() {
		_ = kvStore.Close()
	}()

	return fn(newQueries(logger, tSettings, kvStore))
}

type balanceResult struct {
	Address  string `json:"address"`
	Satoshis uint64 `json:"satoshis"`
}

type outputResult struct {
	TxID     string `json:"txid"`
	Index    uint32 `json:"vout"`
	Satoshis uint64 `json:"satoshis"`
	Script   string `json:"script"`
	Height   uint32 `json:"height"`
	Mempool  bool   `json:"mempool,omitempty"`
}

type txResult struct {
	TxID      string `json:"txid"`
	BlockHash string `json:"blockhash"`
	Height    uint32 `json:"height"`
	Hex       string `json:"hex"`
}

type tipResult struct {
	Hash      string `json:"hash"`
	Height    uint32 `json:"height"`
	Bits      string `json:"bits"`
	ChainWork string `json:"chainwork"`
}

func (q *queries) balance(ctx context.Context, w io.Writer, address string, includeMempool bool) error {
	if address == "" {
		return errors.NewInvalidArgumentError("address is required")
	}

	satoshis, err := q.index.Balance(ctx, address, includeMempool)
	if err != nil {
		return err
	}

	return writeJSON(w, &balanceResult{Address: address, Satoshis: satoshis})
}

func (q *queries) unspent(ctx context.Context, w io.Writer, address string, includeMempool bool) error {
	if address == "" {
		return errors.NewInvalidArgumentError("address is required")
	}

	outputs, err := q.index.UnspentOutputs(ctx, address, includeMempool)
	if err != nil && !errors.Is(err, errors.ErrNoOutputs) {
		return err
	}

	results := make([]*outputResult, 0, len(outputs))

	for _, output := range outputs {
		results = append(results, &outputResult{
			TxID:     output.TxID.String(),
			Index:    output.Index,
			Satoshis: output.Satoshis,
			Script:   hex.EncodeToString(*output.Script),
			Height:   output.Height,
			Mempool:  output.Mempool,
		})
	}

	return writeJSON(w, results)
}

func (q *queries) tx(ctx context.Context, w io.Writer, txid string) error {
	if txid == "" {
		return errors.NewInvalidArgumentError("txid is required")
	}

	record, err := q.index.GetTransaction(ctx, txid)
	if err != nil {
		return err
	}

	return writeJSON(w, &txResult{
		TxID:      record.Tx.TxID(),
		BlockHash: record.BlockHash.String(),
		Height:    record.Height,
		Hex:       hex.EncodeToString(record.Tx.Bytes()),
	})
}

func (q *queries) tip(ctx context.Context, w io.Writer) error {
	hash, err := q.blocks.GetTip(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.NewBlockNotFoundError("the store holds no chain yet")
		}

		return err
	}

	meta, err := q.blocks.GetBlockMeta(ctx, hash)
	if err != nil {
		return err
	}

	return writeJSON(w, &tipResult{
		Hash:      meta.Hash.String(),
		Height:    meta.Height,
		Bits:      meta.Header.Bits.String(),
		ChainWork: meta.ChainWork.Text(16),
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewProcessingError("failed to encode result", err)
	}

	_, err = w.Write(append(b, '\n'))

	return err
}
