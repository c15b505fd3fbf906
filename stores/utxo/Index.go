// Package utxo keeps the address index derived from accepted blocks: which outputs pay an
// address, which of them are spent, and which block carries a transaction.
package utxo

import (
	"context"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
)

// MempoolView is the read side of the transaction pool.
type MempoolView interface {
	Transactions() []*bt.Tx
	SpentBy(txid *chainhash.Hash, index uint32) (*chainhash.Hash, bool)
}

// Index answers address and transaction queries. Every query reads one store snapshot, so it
// never sees a block half applied.
type Index struct {
	logger  ulogger.Logger
	store   kv.Store
	params  *chaincfg.Params
	mempool MempoolView
}

func New(logger ulogger.Logger, store kv.Store, params *chaincfg.Params) *Index {
	return &Index{
		logger: logger,
		store:  store,
		params: params,
	}
}

// SetMempool attaches the pool consulted by queries that include unconfirmed transactions.
func (i *Index) SetMempool(mempool MempoolView) {
	i.mempool = mempool
}

// GetOutputs lists every confirmed output paying address, in time order, followed by the
// matching outputs of pooled transactions when includeMempool is set.
func (i *Index) GetOutputs(ctx context.Context, address string, includeMempool bool) ([]*Output, error) {
	snap, err := i.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	return i.getOutputs(ctx, snap, address, includeMempool)
}

func (i *Index) getOutputs(ctx context.Context, r kv.Reader, address string, includeMempool bool) ([]*Output, error) {
	outputs := make([]*Output, 0)

	it := r.NewIterator(ctx, AddressPrefix(address))
	defer it.Release()

	for it.Next() {
		output, err := ParseOutput(it.Key(), it.Value())
		if err != nil {
			return nil, err
		}

		outputs = append(outputs, output)
	}

	if err := it.Error(); err != nil {
		return nil, errors.NewStorageError("failed to read outputs of %s", address, err)
	}

	if includeMempool {
		outputs = append(outputs, i.mempoolOutputs(address)...)
	}

	return outputs, nil
}

func (i *Index) mempoolOutputs(address string) []*Output {
	if i.mempool == nil {
		return nil
	}

	var outputs []*Output

	for _, tx := range i.mempool.Transactions() {
		for idx, output := range tx.Outputs {
			outputAddress, ok := AddressFromScript(output.LockingScript, i.params)
			if !ok || outputAddress != address {
				continue
			}

			outputs = append(outputs, &Output{
				Address:  address,
				TxID:     tx.TxIDChainHash(),
				Index:    uint32(idx),
				Satoshis: output.Satoshis,
				Script:   output.LockingScript,
				Mempool:  true,
			})
		}
	}

	return outputs
}

// UnspentOutputs is GetOutputs without the spent ones. It fails with ErrNoOutputs when the
// address has never received anything.
func (i *Index) UnspentOutputs(ctx context.Context, address string, includeMempool bool) ([]*Output, error) {
	snap, err := i.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	outputs, err := i.getOutputs(ctx, snap, address, includeMempool)
	if err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return nil, errors.NewNoOutputsError("address %s has no outputs", address)
	}

	unspent := make([]*Output, 0, len(outputs))

	for _, output := range outputs {
		spent, err := i.isSpent(ctx, snap, output.TxID.String(), output.Index, includeMempool)
		if err != nil {
			return nil, err
		}

		if !spent {
			unspent = append(unspent, output)
		}
	}

	return unspent, nil
}

// IsSpent reports whether txid:index is spent by a confirmed transaction, or by a pooled one
// when includeMempool is set.
func (i *Index) IsSpent(ctx context.Context, txid string, index uint32, includeMempool bool) (bool, error) {
	return i.isSpent(ctx, i.store, txid, index, includeMempool)
}

func (i *Index) isSpent(ctx context.Context, r kv.Reader, txid string, index uint32, includeMempool bool) (bool, error) {
	if includeMempool && i.isSpentInMempool(txid, index) {
		return true, nil
	}

	return r.Has(ctx, SpentKey(txid, index))
}

func (i *Index) isSpentInMempool(txid string, index uint32) bool {
	if i.mempool == nil {
		return false
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return false
	}

	_, ok := i.mempool.SpentBy(hash, index)

	return ok
}

// Balance sums the unspent outputs of address. An address without outputs has a zero balance.
func (i *Index) Balance(ctx context.Context, address string, includeMempool bool) (uint64, error) {
	outputs, err := i.UnspentOutputs(ctx, address, includeMempool)
	if err != nil {
		if errors.Is(err, errors.ErrNoOutputs) {
			return 0, nil
		}

		return 0, err
	}

	var total uint64
	for _, output := range outputs {
		total += output.Satoshis
	}

	return total, nil
}

// GetSpent returns the spending input of txid:index.
func (i *Index) GetSpent(ctx context.Context, txid string, index uint32) (*Spent, error) {
	value, err := i.store.Get(ctx, SpentKey(txid, index))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNotFoundError("%s:%d is not spent", txid, index)
		}

		return nil, err
	}

	return ParseSpent(value)
}

// GetTransaction returns a confirmed transaction with its block.
func (i *Index) GetTransaction(ctx context.Context, txid string) (*TxRecord, error) {
	value, err := i.store.Get(ctx, TxKey(txid))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewTxNotFoundError("transaction %s not found", txid)
		}

		return nil, err
	}

	return ParseTxRecord(value)
}
