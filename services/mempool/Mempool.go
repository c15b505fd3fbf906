// Package mempool holds the transactions waiting to be mined. The pool is owned by the chain
// service, which reconciles it after every connected block, and is shared by reference with the
// miner and the query layer.
package mempool

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/stores/utxo"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

// TxLookup resolves confirmed transactions and their spent state.
type TxLookup interface {
	GetTransaction(ctx context.Context, txid string) (*utxo.TxRecord, error)
	IsSpent(ctx context.Context, txid string, index uint32, includeMempool bool) (bool, error)
}

// Outpoint identifies a transaction output.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func inputOutpoint(input *bt.Input) Outpoint {
	op := Outpoint{Index: input.PreviousTxOutIndex}

	if hash := input.PreviousTxIDChainHash(); hash != nil {
		op.TxID = *hash
	}

	return op
}

// Mempool is an insertion ordered set of transactions keyed by id.
type Mempool struct {
	logger   ulogger.Logger
	settings *settings.MempoolSettings
	lookup   TxLookup

	mu     sync.RWMutex
	txs    *swiss.Map[chainhash.Hash, *bt.Tx]
	spends *swiss.Map[Outpoint, chainhash.Hash]
	order  []chainhash.Hash
}

func New(logger ulogger.Logger, tSettings *settings.Settings, lookup TxLookup) *Mempool {
	initPrometheusMetrics()

	return &Mempool{
		logger:   logger,
		settings: tSettings.Mempool,
		lookup:   lookup,
		txs:      swiss.NewMap[chainhash.Hash, *bt.Tx](1024),
		spends:   swiss.NewMap[Outpoint, chainhash.Hash](4096),
	}
}

// Add admits tx after resolving the amounts of its inputs from the pool or from confirmed
// transactions. It rejects coinbases, transactions already pooled or confirmed, inputs that are
// already spent in the pool or in confirmed state, and outputs worth more than the inputs. Double
// spend errors carry the contested outpoint as error data.
func (m *Mempool) Add(ctx context.Context, tx *bt.Tx) error {
	txHash := tx.TxIDChainHash()

	if tx.IsCoinbase() {
		return errors.NewTxInvalidError("coinbase %s can not be added to the mempool", txHash)
	}

	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return errors.NewTxInvalidError("transaction %s has no inputs or no outputs", txHash)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.txs.Get(*txHash); ok {
		return errors.NewTxAlreadyExistsError("transaction %s is already in the mempool", txHash)
	}

	if _, err := m.lookup.GetTransaction(ctx, txHash.String()); err == nil {
		return errors.NewTxAlreadyExistsError("transaction %s is already confirmed", txHash)
	} else if !errors.IsNotFoundError(err) {
		return err
	}

	if m.settings != nil && m.settings.MaxSize > 0 && len(m.order) >= m.settings.MaxSize {
		return errors.NewProcessingError("mempool is full with %d transactions", len(m.order))
	}

	seen := make(map[Outpoint]struct{}, len(tx.Inputs))

	var totalIn uint64

	for i, input := range tx.Inputs {
		op := inputOutpoint(input)

		if _, dup := seen[op]; dup {
			return errors.NewTxInvalidError("transaction %s spends %s:%d twice", txHash, op.TxID, op.Index)
		}

		seen[op] = struct{}{}

		if spender, ok := m.spends.Get(op); ok {
			return doubleSpendError(op, &spender, "input %d of %s spends %s:%d, already spent by pooled %s", i, txHash, op.TxID, op.Index, spender)
		}

		output, err := m.resolveOutput(ctx, op)
		if err != nil {
			return errors.NewTxInvalidError("input %d of %s can not be resolved", i, txHash, err)
		}

		spent, err := m.lookup.IsSpent(ctx, op.TxID.String(), op.Index, false)
		if err != nil {
			return err
		}

		if spent {
			return doubleSpendError(op, nil, "input %d of %s spends confirmed spent output %s:%d", i, txHash, op.TxID, op.Index)
		}

		input.PreviousTxSatoshis = output.Satoshis
		input.PreviousTxScript = output.LockingScript

		if totalIn, err = util.AddSatoshis(totalIn, output.Satoshis); err != nil {
			return errors.NewTxInvalidError("inputs of %s are out of range", txHash, err)
		}
	}

	totalOut, err := util.TotalOutputSatoshis(tx)
	if err != nil {
		return err
	}

	if totalOut > totalIn {
		return errors.NewTxInvalidError("transaction %s spends %d satoshis but only has %d", txHash, totalOut, totalIn)
	}

	m.put(txHash, tx)

	prometheusMempoolAdded.Inc()
	prometheusMempoolSize.Set(float64(len(m.order)))

	return nil
}

// doubleSpendError records the contested outpoint, and the pooled spender when there is one, as
// error data.
func doubleSpendError(op Outpoint, spender *chainhash.Hash, message string, params ...interface{}) error {
	err := errors.New(errors.ERR_TX_INVALID_DOUBLE_SPEND, message, params...)
	err.SetData("txid", op.TxID.String())
	err.SetData("vout", op.Index)

	if spender != nil {
		err.SetData("spentBy", spender.String())
	}

	return err
}

func (m *Mempool) resolveOutput(ctx context.Context, op Outpoint) (*bt.Output, error) {
	var parent *bt.Tx

	if pooled, ok := m.txs.Get(op.TxID); ok {
		parent = pooled
	} else {
		record, err := m.lookup.GetTransaction(ctx, op.TxID.String())
		if err != nil {
			return nil, err
		}

		parent = record.Tx
	}

	if int(op.Index) >= len(parent.Outputs) {
		return nil, errors.NewTxNotFoundError("transaction %s has no output %d", op.TxID, op.Index)
	}

	return parent.Outputs[op.Index], nil
}

func (m *Mempool) put(txHash *chainhash.Hash, tx *bt.Tx) {
	m.txs.Put(*txHash, tx)
	m.order = append(m.order, *txHash)

	for _, input := range tx.Inputs {
		m.spends.Put(inputOutpoint(input), *txHash)
	}
}

func (m *Mempool) Has(hash *chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.txs.Get(*hash)

	return ok
}

func (m *Mempool) Get(hash *chainhash.Hash) (*bt.Tx, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.txs.Get(*hash)
}

// Transactions returns the pooled transactions in insertion order.
func (m *Mempool) Transactions() []*bt.Tx {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := make([]*bt.Tx, 0, len(m.order))

	for _, hash := range m.order {
		if tx, ok := m.txs.Get(hash); ok {
			txs = append(txs, tx)
		}
	}

	return txs
}

func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.order)
}

// SpentBy returns the pooled transaction spending txid:index.
func (m *Mempool) SpentBy(txid *chainhash.Hash, index uint32) (*chainhash.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spender, ok := m.spends.Get(Outpoint{TxID: *txid, Index: index})
	if !ok {
		return nil, false
	}

	return &spender, true
}

// Remove drops one transaction, returning false if it was not pooled.
func (m *Mempool) Remove(hash *chainhash.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.txs.Get(*hash); !ok {
		return false
	}

	kept := make([]*bt.Tx, 0, len(m.order))

	for _, h := range m.order {
		if h == *hash {
			continue
		}

		tx, _ := m.txs.Get(h)
		kept = append(kept, tx)
	}

	m.replace(kept)

	return true
}

// Replace swaps the whole pool for txs, keeping their order. No admission checks are made.
func (m *Mempool) Replace(txs []*bt.Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replace(txs)
}

func (m *Mempool) replace(txs []*bt.Tx) {
	m.txs = swiss.NewMap[chainhash.Hash, *bt.Tx](uint32(len(txs)) + 1024)
	m.spends = swiss.NewMap[Outpoint, chainhash.Hash](uint32(len(txs))*2 + 4096)
	m.order = make([]chainhash.Hash, 0, len(txs))

	for _, tx := range txs {
		m.put(tx.TxIDChainHash(), tx)
	}

	prometheusMempoolSize.Set(float64(len(m.order)))
}

// Reconcile drops every pooled transaction that spends an output also spent by a transaction of
// block, and the pooled descendants of those, since their inputs no longer exist. Pooled copies
// of block transactions go too. It returns the number of dropped transactions. Nothing is
// restored when a block is disconnected.
func (m *Mempool) Reconcile(block *model.Block) int {
	confirmed := make(map[Outpoint]struct{})
	inBlock := make(map[chainhash.Hash]struct{}, len(block.Transactions))

	for _, tx := range block.Transactions {
		inBlock[*tx.TxIDChainHash()] = struct{}{}

		if tx.IsCoinbase() {
			continue
		}

		for _, input := range tx.Inputs {
			confirmed[inputOutpoint(input)] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	dropped := make(map[chainhash.Hash]struct{})
	kept := make([]*bt.Tx, 0, len(m.order))

	for _, hash := range m.order {
		tx, _ := m.txs.Get(hash)

		if _, ok := inBlock[hash]; ok {
			removed++
			continue
		}

		if conflicts(tx, confirmed, dropped) {
			dropped[hash] = struct{}{}
			removed++

			continue
		}

		kept = append(kept, tx)
	}

	if removed == 0 {
		return 0
	}

	m.replace(kept)

	prometheusMempoolEvicted.Add(float64(len(dropped)))
	m.logger.Infof("[Reconcile] block %s removed %d transactions from the mempool, %d of them conflicting", block.Hash(), removed, len(dropped))

	return removed
}

// conflicts relies on pool order: a parent is always visited before its children.
func conflicts(tx *bt.Tx, confirmed map[Outpoint]struct{}, dropped map[chainhash.Hash]struct{}) bool {
	for _, input := range tx.Inputs {
		op := inputOutpoint(input)

		if _, ok := confirmed[op]; ok {
			return true
		}

		if _, ok := dropped[op.TxID]; ok {
			return true
		}
	}

	return false
}
