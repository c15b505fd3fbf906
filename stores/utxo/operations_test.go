package utxo

import (
	"context"
	"fmt"
	"testing"

	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/stores/kv/leveldb"
	"github.com/bsv-blockchain/chainlite/stores/kv/tests"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util/test"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fixtureHeight    = 345003
	fixtureTimestamp = 1424836934
	p2pkhScriptHex   = "76a91462e907b15cbf27d5425399ebf6f0fb50ebb88f1888ac"
)

var regtest = &chaincfg.RegressionNetParams

// eightTxBlock holds a coinbase with one output, six transactions with six inputs and five
// payable outputs each, and one with eight inputs and six payable outputs. Every non coinbase
// transaction also carries an OP_RETURN output. That is 81 index entries.
func eightTxBlock(t *testing.T) *model.Block {
	coinbase, err := test.CoinbaseTx(test.Address1, 50e8, []byte("fixture"))
	require.NoError(t, err)

	txs := []*bt.Tx{coinbase}
	prev := 0

	build := func(inputs, outputs int) *bt.Tx {
		tx := bt.NewTx()

		for i := 0; i < inputs; i++ {
			prev++
			require.NoError(t, tx.From(fmt.Sprintf("%064x", prev), uint32(i), p2pkhScriptHex, 10000))
		}

		addresses := []string{test.Address1, test.Address2, test.Address3}
		for i := 0; i < outputs; i++ {
			require.NoError(t, tx.AddP2PKHOutputFromAddress(addresses[i%3], uint64(1000+i)))
		}

		tx.AddOutput(&bt.Output{Satoshis: 0, LockingScript: bscript.NewFromBytes([]byte{0x00, 0x6a, 0x04, 't', 'e', 's', 't'})})

		return tx
	}

	for i := 0; i < 6; i++ {
		txs = append(txs, build(6, 5))
	}

	txs = append(txs, build(8, 6))

	block := test.NewBlock(&chainhash.Hash{}, fixtureTimestamp, test.EasyBits, txs...)
	require.NoError(t, block.SetHeight(fixtureHeight))

	return block
}

func TestBlockOperations(t *testing.T) {
	block := eightTxBlock(t)
	tx1 := block.Transactions[1]

	for _, add := range []bool{true, false} {
		t.Run(fmt.Sprintf("add=%v", add), func(t *testing.T) {
			ops, err := BlockOperations(block, add, regtest)
			require.NoError(t, err)
			require.Len(t, ops, 81)

			want := kv.OperationPut
			if !add {
				want = kv.OperationDel
			}

			for _, op := range ops {
				assert.Equal(t, want, op.Type)
			}

			assert.Equal(t, fmt.Sprintf("outs-%s-1424836934000-%s-0", test.Address1, block.Transactions[0].TxID()), string(ops[0].Key))
			assert.Equal(t, fmt.Sprintf("5000000000:%s:345003", p2pkhScriptHex), string(ops[0].Value))

			// tx1 output 2 pays Address3
			assert.Equal(t, fmt.Sprintf("outs-%s-1424836934000-%s-2", test.Address3, tx1.TxID()), string(ops[3].Key))
			assert.Equal(t, "1002", string(ops[3].Value[:4]))

			// first spent of tx1
			assert.Equal(t, fmt.Sprintf("sp-%064x-0", 1), string(ops[6].Key))
			assert.Equal(t, fmt.Sprintf("%s:0:1424836934000", tx1.TxID()), string(ops[6].Value))
		})
	}
}

func TestBlockOperationsSkipsUnpayableOutputs(t *testing.T) {
	tx := bt.NewTx()
	require.NoError(t, tx.From(fmt.Sprintf("%064x", 7), 0, p2pkhScriptHex, 1000))
	tx.AddOutput(&bt.Output{Satoshis: 1000, LockingScript: &bscript.Script{}})

	block := test.NewBlock(&chainhash.Hash{}, fixtureTimestamp, test.EasyBits, tx)
	require.NoError(t, block.SetHeight(1))

	ops, err := BlockOperations(block, true, regtest)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, fmt.Sprintf("sp-%064x-0", 7), string(ops[0].Key))
}

func TestBlockOperationsNeedsHeight(t *testing.T) {
	block := eightTxBlock(t)
	unheighted := model.NewBlock(block.Header, block.Transactions)

	_, err := BlockOperations(unheighted, true, regtest)
	require.Error(t, err)

	_, err = TransactionOperations(unheighted, true)
	require.Error(t, err)
}

func TestApplyThenUndoIsIdentity(t *testing.T) {
	ctx := context.Background()

	store, err := leveldb.NewMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	defer func() {
		_ = store.Close()
	}()

	require.NoError(t, store.ApplyBatch(ctx, []kv.Operation{
		kv.Put([]byte("outs-"+test.Address2+"-0000000000001-aa-0"), []byte("1:00:1")),
		kv.Put([]byte("sp-bb-0"), []byte("cc:0:1")),
		kv.Put([]byte("tip"), []byte("something")),
	}))

	before := tests.Dump(t, store, nil)

	block := eightTxBlock(t)

	apply, err := BlockOperations(block, true, regtest)
	require.NoError(t, err)

	txApply, err := TransactionOperations(block, true)
	require.NoError(t, err)

	require.NoError(t, store.ApplyBatch(ctx, append(apply, txApply...)))
	assert.Len(t, tests.Dump(t, store, nil), len(before)+81+len(block.Transactions))

	undo, err := BlockOperations(block, false, regtest)
	require.NoError(t, err)

	txUndo, err := TransactionOperations(block, false)
	require.NoError(t, err)

	require.NoError(t, store.ApplyBatch(ctx, append(undo, txUndo...)))
	assert.Equal(t, before, tests.Dump(t, store, nil))

	// replaying the undo changes nothing
	require.NoError(t, store.ApplyBatch(ctx, undo))
	assert.Equal(t, before, tests.Dump(t, store, nil))
}

func TestKeysParse(t *testing.T) {
	txid := fmt.Sprintf("%064x", 42)

	output, err := ParseOutput(OutputKey(test.Address1, 1424836934000, txid, 3), OutputValue(2500, []byte{0x51}, 7))
	require.NoError(t, err)
	assert.Equal(t, test.Address1, output.Address)
	assert.Equal(t, int64(1424836934000), output.Timestamp)
	assert.Equal(t, txid, output.TxID.String())
	assert.Equal(t, uint32(3), output.Index)
	assert.Equal(t, uint64(2500), output.Satoshis)
	assert.Equal(t, uint32(7), output.Height)

	spent, err := ParseSpent(SpentValue(txid, 1, 99))
	require.NoError(t, err)
	assert.Equal(t, txid, spent.SpendingTxID.String())
	assert.Equal(t, uint32(1), spent.InputIndex)

	_, err = ParseOutput([]byte("outs-broken"), []byte("1:2:3"))
	require.Error(t, err)

	_, err = ParseSpent([]byte("nope"))
	require.Error(t, err)
}
