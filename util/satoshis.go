package util

import (
	"math/bits"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/go-bt/v2"
)

// MaxSatoshis is the whole money supply. No amount or sum of amounts may exceed it.
const MaxSatoshis uint64 = 21_000_000 * 1e8

// AddSatoshis returns a+b, or a TxInvalid error when the sum wraps or goes past MaxSatoshis.
func AddSatoshis(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 || sum > MaxSatoshis {
		return 0, errors.NewTxInvalidError("satoshi amount %d + %d is out of range", a, b)
	}

	return sum, nil
}

// TotalOutputSatoshis is the checked version of bt.Tx.TotalOutputSatoshis.
func TotalOutputSatoshis(tx *bt.Tx) (uint64, error) {
	var (
		total uint64
		err   error
	)

	for i, output := range tx.Outputs {
		if total, err = AddSatoshis(total, output.Satoshis); err != nil {
			return 0, errors.NewTxInvalidError("output %d of %s", i, tx.TxID(), err)
		}
	}

	return total, nil
}

// TotalInputSatoshis sums the PreviousTxSatoshis of every input of tx.
func TotalInputSatoshis(tx *bt.Tx) (uint64, error) {
	var (
		total uint64
		err   error
	)

	for i, input := range tx.Inputs {
		if total, err = AddSatoshis(total, input.PreviousTxSatoshis); err != nil {
			return 0, errors.NewTxInvalidError("input %d of %s", i, tx.TxID(), err)
		}
	}

	return total, nil
}
