package mempool

import (
	"context"
	"math"
	"testing"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/stores/utxo"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util/test"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupStub struct {
	txs   map[string]*bt.Tx
	spent map[Outpoint]bool
}

func (l *lookupStub) GetTransaction(_ context.Context, txid string) (*utxo.TxRecord, error) {
	tx, ok := l.txs[txid]
	if !ok {
		return nil, errors.NewTxNotFoundError("transaction %s not found", txid)
	}

	return &utxo.TxRecord{Tx: tx, BlockHash: &chainhash.Hash{}, Height: 1}, nil
}

func (l *lookupStub) IsSpent(_ context.Context, txid string, index uint32, _ bool) (bool, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return false, err
	}

	return l.spent[Outpoint{TxID: *hash, Index: index}], nil
}

type fixture struct {
	mempool *Mempool
	lookup  *lookupStub
	cb1     *bt.Tx
	cb2     *bt.Tx
}

func newFixture(t *testing.T) *fixture {
	cb1, err := test.CoinbaseTx(test.Address1, 50e8, []byte{1})
	require.NoError(t, err)

	cb2, err := test.CoinbaseTx(test.Address1, 50e8, []byte{2})
	require.NoError(t, err)

	lookup := &lookupStub{
		txs:   map[string]*bt.Tx{cb1.TxID(): cb1, cb2.TxID(): cb2},
		spent: map[Outpoint]bool{},
	}

	return &fixture{
		mempool: New(ulogger.TestLogger{}, test.CreateBaseTestSettings(), lookup),
		lookup:  lookup,
		cb1:     cb1,
		cb2:     cb2,
	}
}

func spend(t *testing.T, parent *bt.Tx, address string, satoshis uint64) *bt.Tx {
	tx, err := test.SpendTx(parent, 0, address, satoshis)
	require.NoError(t, err)

	return tx
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := spend(t, f.cb1, test.Address2, 40e8)
	b := spend(t, a, test.Address3, 30e8)

	require.NoError(t, f.mempool.Add(ctx, a))
	require.NoError(t, f.mempool.Add(ctx, b))

	assert.Equal(t, 2, f.mempool.Size())
	assert.True(t, f.mempool.Has(a.TxIDChainHash()))

	got, ok := f.mempool.Get(b.TxIDChainHash())
	require.True(t, ok)
	assert.Equal(t, uint64(40e8), got.Inputs[0].PreviousTxSatoshis)

	txs := f.mempool.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, a.TxID(), txs[0].TxID())
	assert.Equal(t, b.TxID(), txs[1].TxID())

	spender, ok := f.mempool.SpentBy(f.cb1.TxIDChainHash(), 0)
	require.True(t, ok)
	assert.True(t, a.TxIDChainHash().IsEqual(spender))

	_, ok = f.mempool.SpentBy(f.cb2.TxIDChainHash(), 0)
	assert.False(t, ok)
}

func TestAddRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("coinbase", func(t *testing.T) {
		f := newFixture(t)

		err := f.mempool.Add(ctx, f.cb1)
		assert.True(t, errors.Is(err, errors.ErrTxInvalid))
	})

	t.Run("duplicate", func(t *testing.T) {
		f := newFixture(t)
		a := spend(t, f.cb1, test.Address2, 40e8)

		require.NoError(t, f.mempool.Add(ctx, a))

		err := f.mempool.Add(ctx, a)
		assert.True(t, errors.Is(err, errors.ErrTxAlreadyExists))
	})

	t.Run("already confirmed", func(t *testing.T) {
		f := newFixture(t)
		a := spend(t, f.cb1, test.Address2, 40e8)
		f.lookup.txs[a.TxID()] = a

		err := f.mempool.Add(ctx, a)
		assert.True(t, errors.Is(err, errors.ErrTxAlreadyExists))
		assert.Equal(t, 0, f.mempool.Size())
	})

	t.Run("pool double spend", func(t *testing.T) {
		f := newFixture(t)
		first := spend(t, f.cb1, test.Address2, 40e8)

		require.NoError(t, f.mempool.Add(ctx, first))

		err := f.mempool.Add(ctx, spend(t, f.cb1, test.Address3, 40e8))
		assert.True(t, errors.Is(err, errors.ErrTxInvalidDoubleSpend))
		assert.Equal(t, 1, f.mempool.Size())

		var tErr *errors.Error
		require.True(t, errors.As(err, &tErr))
		assert.Equal(t, f.cb1.TxID(), tErr.GetData("txid"))
		assert.Equal(t, uint32(0), tErr.GetData("vout"))
		assert.Equal(t, first.TxID(), tErr.GetData("spentBy"))
	})

	t.Run("confirmed double spend", func(t *testing.T) {
		f := newFixture(t)
		f.lookup.spent[Outpoint{TxID: *f.cb1.TxIDChainHash(), Index: 0}] = true

		err := f.mempool.Add(ctx, spend(t, f.cb1, test.Address2, 40e8))
		assert.True(t, errors.Is(err, errors.ErrTxInvalidDoubleSpend))

		var tErr *errors.Error
		require.True(t, errors.As(err, &tErr))
		assert.JSONEq(t, `{"txid":"`+f.cb1.TxID()+`","vout":0}`, string(tErr.Data().EncodeErrorData()))
	})

	t.Run("unknown parent", func(t *testing.T) {
		f := newFixture(t)
		orphanParent, err := test.CoinbaseTx(test.Address1, 50e8, []byte{99})
		require.NoError(t, err)

		err = f.mempool.Add(ctx, spend(t, orphanParent, test.Address2, 40e8))
		assert.True(t, errors.Is(err, errors.ErrTxInvalid))
	})

	t.Run("overspend", func(t *testing.T) {
		f := newFixture(t)

		err := f.mempool.Add(ctx, spend(t, f.cb1, test.Address2, 51e8))
		assert.True(t, errors.Is(err, errors.ErrTxInvalid))
		assert.Equal(t, 0, f.mempool.Size())
	})

	t.Run("outputs wrap around", func(t *testing.T) {
		f := newFixture(t)

		// MaxUint64 + 40e8 + 1 wraps to 40e8, below the 50e8 input
		tx := spend(t, f.cb1, test.Address2, 40e8+1)
		tx.AddOutput(&bt.Output{Satoshis: math.MaxUint64, LockingScript: tx.Outputs[0].LockingScript})

		err := f.mempool.Add(ctx, tx)
		assert.True(t, errors.Is(err, errors.ErrTxInvalid))
		assert.Equal(t, 0, f.mempool.Size())
	})

	t.Run("full", func(t *testing.T) {
		f := newFixture(t)
		f.mempool.settings.MaxSize = 1

		require.NoError(t, f.mempool.Add(ctx, spend(t, f.cb1, test.Address2, 40e8)))

		err := f.mempool.Add(ctx, spend(t, f.cb2, test.Address2, 40e8))
		assert.True(t, errors.Is(err, errors.ErrProcessing))
	})
}

func blockOf(t *testing.T, txs ...*bt.Tx) *model.Block {
	coinbase, err := test.CoinbaseTx(test.Address3, 50e8, []byte("reconcile"))
	require.NoError(t, err)

	return test.NewBlock(&chainhash.Hash{}, 1600000000, test.EasyBits, append([]*bt.Tx{coinbase}, txs...)...)
}

func TestReconcileRemovesConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := spend(t, f.cb1, test.Address2, 40e8)
	child := spend(t, a, test.Address3, 30e8)
	c := spend(t, f.cb2, test.Address2, 45e8)

	require.NoError(t, f.mempool.Add(ctx, a))
	require.NoError(t, f.mempool.Add(ctx, child))
	require.NoError(t, f.mempool.Add(ctx, c))

	conflicting := spend(t, f.cb1, test.Address3, 49e8)
	block := blockOf(t, conflicting)

	assert.Equal(t, 2, f.mempool.Reconcile(block))

	remaining := f.mempool.Transactions()
	require.Len(t, remaining, 1)
	assert.Equal(t, c.TxID(), remaining[0].TxID())

	// no pooled transaction shares an outpoint with the block
	for _, blockTx := range block.Transactions {
		for _, input := range blockTx.Inputs {
			_, ok := f.mempool.SpentBy(input.PreviousTxIDChainHash(), input.PreviousTxOutIndex)
			assert.False(t, ok)
		}
	}

	assert.Equal(t, 0, f.mempool.Reconcile(block))
}

func TestReconcileKeepsChildrenOfConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := spend(t, f.cb1, test.Address2, 40e8)
	child := spend(t, a, test.Address3, 30e8)

	require.NoError(t, f.mempool.Add(ctx, a))
	require.NoError(t, f.mempool.Add(ctx, child))

	assert.Equal(t, 1, f.mempool.Reconcile(blockOf(t, a)))

	remaining := f.mempool.Transactions()
	require.Len(t, remaining, 1)
	assert.Equal(t, child.TxID(), remaining[0].TxID())
}

func TestRemoveAndReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := spend(t, f.cb1, test.Address2, 40e8)
	c := spend(t, f.cb2, test.Address2, 45e8)

	require.NoError(t, f.mempool.Add(ctx, a))
	require.NoError(t, f.mempool.Add(ctx, c))

	assert.True(t, f.mempool.Remove(a.TxIDChainHash()))
	assert.False(t, f.mempool.Remove(a.TxIDChainHash()))
	assert.Equal(t, 1, f.mempool.Size())

	_, ok := f.mempool.SpentBy(f.cb1.TxIDChainHash(), 0)
	assert.False(t, ok)

	f.mempool.Replace([]*bt.Tx{c, a})

	txs := f.mempool.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, c.TxID(), txs[0].TxID())
	assert.Equal(t, a.TxID(), txs[1].TxID())

	f.mempool.Replace(nil)
	assert.Equal(t, 0, f.mempool.Size())
}
