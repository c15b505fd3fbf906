package utxo

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/stores/kv/leveldb"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util/test"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mempoolStub struct {
	txs    []*bt.Tx
	spends map[outpointKey]chainhash.Hash
}

type outpointKey struct {
	txid  chainhash.Hash
	index uint32
}

func newMempoolStub(txs ...*bt.Tx) *mempoolStub {
	m := &mempoolStub{txs: txs, spends: map[outpointKey]chainhash.Hash{}}

	for _, tx := range txs {
		for _, input := range tx.Inputs {
			m.spends[outpointKey{*input.PreviousTxIDChainHash(), input.PreviousTxOutIndex}] = *tx.TxIDChainHash()
		}
	}

	return m
}

func (m *mempoolStub) Transactions() []*bt.Tx {
	return m.txs
}

func (m *mempoolStub) SpentBy(txid *chainhash.Hash, index uint32) (*chainhash.Hash, bool) {
	spender, ok := m.spends[outpointKey{*txid, index}]
	if !ok {
		return nil, false
	}

	return &spender, true
}

type indexFixture struct {
	index *Index
	cb1   *bt.Tx
	cb2   *bt.Tx
	spend *bt.Tx
	block *model.Block
}

// newIndexFixture connects two blocks: the first pays 50 coins to Address1, the second moves
// 30 of them to Address2 and pays its own coinbase to Address2.
func newIndexFixture(t *testing.T) *indexFixture {
	ctx := context.Background()

	store, err := leveldb.NewMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	cb1, err := test.CoinbaseTx(test.Address1, 50e8, []byte{1})
	require.NoError(t, err)

	block1 := test.NewBlock(&chainhash.Hash{}, 1600000000, test.EasyBits, cb1)
	require.NoError(t, block1.SetHeight(1))

	cb2, err := test.CoinbaseTx(test.Address2, 50e8, []byte{2})
	require.NoError(t, err)

	spend, err := test.SpendTx(cb1, 0, test.Address2, 30e8)
	require.NoError(t, err)

	block2 := test.NewBlock(block1.Hash(), 1600000600, test.EasyBits, cb2, spend)
	require.NoError(t, block2.SetHeight(2))

	for _, block := range []*model.Block{block1, block2} {
		ops, err := BlockOperations(block, true, regtest)
		require.NoError(t, err)

		txOps, err := TransactionOperations(block, true)
		require.NoError(t, err)

		require.NoError(t, store.ApplyBatch(ctx, append(ops, txOps...)))
	}

	return &indexFixture{
		index: New(ulogger.TestLogger{}, store, regtest),
		cb1:   cb1,
		cb2:   cb2,
		spend: spend,
		block: block2,
	}
}

func TestUnspentOutputs(t *testing.T) {
	ctx := context.Background()
	f := newIndexFixture(t)

	outputs, err := f.index.GetOutputs(ctx, test.Address1, false)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, uint32(1), outputs[0].Height)

	unspent, err := f.index.UnspentOutputs(ctx, test.Address1, false)
	require.NoError(t, err)
	assert.Empty(t, unspent)

	unspent, err = f.index.UnspentOutputs(ctx, test.Address2, false)
	require.NoError(t, err)
	require.Len(t, unspent, 2)

	_, err = f.index.UnspentOutputs(ctx, test.Address3, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoOutputs))
}

func TestBalance(t *testing.T) {
	ctx := context.Background()
	f := newIndexFixture(t)

	balance, err := f.index.Balance(ctx, test.Address2, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(80e8), balance)

	balance, err = f.index.Balance(ctx, test.Address1, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)

	balance, err = f.index.Balance(ctx, test.Address3, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
}

func TestIsSpentAndGetSpent(t *testing.T) {
	ctx := context.Background()
	f := newIndexFixture(t)

	spent, err := f.index.IsSpent(ctx, f.cb1.TxID(), 0, false)
	require.NoError(t, err)
	assert.True(t, spent)

	spent, err = f.index.IsSpent(ctx, f.cb2.TxID(), 0, false)
	require.NoError(t, err)
	assert.False(t, spent)

	spentBy, err := f.index.GetSpent(ctx, f.cb1.TxID(), 0)
	require.NoError(t, err)
	assert.Equal(t, f.spend.TxID(), spentBy.SpendingTxID.String())
	assert.Equal(t, uint32(0), spentBy.InputIndex)
	assert.Equal(t, int64(1600000600000), spentBy.Timestamp)

	_, err = f.index.GetSpent(ctx, f.cb2.TxID(), 0)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestGetTransaction(t *testing.T) {
	ctx := context.Background()
	f := newIndexFixture(t)

	record, err := f.index.GetTransaction(ctx, f.spend.TxID())
	require.NoError(t, err)
	assert.Equal(t, f.spend.TxID(), record.Tx.TxID())
	assert.Equal(t, uint32(2), record.Height)
	assert.True(t, f.block.Hash().IsEqual(record.BlockHash))

	_, err = f.index.GetTransaction(ctx, f.cb2.TxID()+"00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))
}

func TestQueriesIncludingMempool(t *testing.T) {
	ctx := context.Background()
	f := newIndexFixture(t)

	pooled, err := test.SpendTx(f.spend, 0, test.Address3, 20e8)
	require.NoError(t, err)

	f.index.SetMempool(newMempoolStub(pooled))

	unspent, err := f.index.UnspentOutputs(ctx, test.Address3, true)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	assert.True(t, unspent[0].Mempool)
	assert.Equal(t, pooled.TxID(), unspent[0].TxID.String())

	spent, err := f.index.IsSpent(ctx, f.spend.TxID(), 0, true)
	require.NoError(t, err)
	assert.True(t, spent)

	balance, err := f.index.Balance(ctx, test.Address2, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(50e8), balance)

	balance, err = f.index.Balance(ctx, test.Address2, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(80e8), balance)

	_, err = f.index.UnspentOutputs(ctx, test.Address3, false)
	assert.True(t, errors.Is(err, errors.ErrNoOutputs))
}

func TestIsSpentUsesMempoolSpendIndex(t *testing.T) {
	ctx := context.Background()
	f := newIndexFixture(t)

	// the spend is only known to the pool's outpoint index, not to its transaction list
	pool := &mempoolStub{spends: map[outpointKey]chainhash.Hash{
		{*f.spend.TxIDChainHash(), 0}: {1},
	}}
	f.index.SetMempool(pool)

	spent, err := f.index.IsSpent(ctx, f.spend.TxID(), 0, true)
	require.NoError(t, err)
	assert.True(t, spent)

	spent, err = f.index.IsSpent(ctx, f.spend.TxID(), 0, false)
	require.NoError(t, err)
	assert.False(t, spent)

	spent, err = f.index.IsSpent(ctx, "not a txid", 0, true)
	require.NoError(t, err)
	assert.False(t, spent)
}
