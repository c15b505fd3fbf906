// Package work provides utilities for calculating blockchain proof-of-work values.
//
// The work of a block is the expected number of hashes needed to find a header at or below
// its target. Summed along a chain it gives the chain work used to pick the best chain.
package work

import (
	"math/big"

	"github.com/bsv-blockchain/chainlite/model"
)

var (
	bigOne    = big.NewInt(1)
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

// CalcBlockWork returns 2^256 / (target + 1) for the target encoded in bits, and zero for a
// zero target.
func CalcBlockWork(bits uint32) *big.Int {
	target := model.NBit(bits).CalculateTarget()
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, bigOne)

	return new(big.Int).Div(oneLsh256, denominator)
}

// CalculateWork adds the work of a block with nBits to the chain work of its parent.
func CalculateWork(prevWork *big.Int, nBits model.NBit) *big.Int {
	total := CalcBlockWork(uint32(nBits))

	if prevWork != nil {
		total.Add(total, prevWork)
	}

	return total
}
