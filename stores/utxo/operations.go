package utxo

import (
	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/go-chaincfg"
)

// BlockOperations returns the output and spent entries of a block as one batch. With add the
// entries are put, without it the same keys and values are deleted, so applying both leaves
// the index as it was. Outputs without an address and coinbase inputs produce nothing.
func BlockOperations(block *model.Block, add bool, params *chaincfg.Params) ([]kv.Operation, error) {
	height, ok := block.Height()
	if !ok {
		return nil, errors.NewInvalidArgumentError("block %s has no height", block.Hash())
	}

	timestamp := block.TimestampMillis()

	ops := make([]kv.Operation, 0, len(block.Transactions)*4)

	for _, tx := range block.Transactions {
		txid := tx.TxID()

		for i, output := range tx.Outputs {
			address, ok := AddressFromScript(output.LockingScript, params)
			if !ok {
				continue
			}

			ops = append(ops, operation(add,
				OutputKey(address, timestamp, txid, uint32(i)),
				OutputValue(output.Satoshis, *output.LockingScript, height),
			))
		}

		if tx.IsCoinbase() {
			continue
		}

		for i, input := range tx.Inputs {
			ops = append(ops, operation(add,
				SpentKey(input.PreviousTxIDStr(), input.PreviousTxOutIndex),
				SpentValue(txid, uint32(i), timestamp),
			))
		}
	}

	return ops, nil
}

// TransactionOperations returns the tx index entries of a block.
func TransactionOperations(block *model.Block, add bool) ([]kv.Operation, error) {
	height, ok := block.Height()
	if !ok {
		return nil, errors.NewInvalidArgumentError("block %s has no height", block.Hash())
	}

	blockHash := block.Hash().String()

	ops := make([]kv.Operation, 0, len(block.Transactions))

	for _, tx := range block.Transactions {
		ops = append(ops, operation(add, TxKey(tx.TxID()), TxValue(blockHash, height, tx.Bytes())))
	}

	return ops, nil
}

func operation(add bool, key, value []byte) kv.Operation {
	if add {
		return kv.Put(key, value)
	}

	return kv.Del(key, value)
}
