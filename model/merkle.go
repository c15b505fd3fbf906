package model

import (
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// CalculateMerkleRoot builds the merkle root over the transaction ids, duplicating the last
// hash on odd levels.
func CalculateMerkleRoot(txs []*bt.Tx) *chainhash.Hash {
	if len(txs) == 0 {
		return &chainhash.Hash{}
	}

	level := make([]chainhash.Hash, 0, len(txs))
	for _, tx := range txs {
		level = append(level, *tx.TxIDChainHash())
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]chainhash.Hash, 0, len(level)/2)

		var pair [chainhash.HashSize * 2]byte

		for i := 0; i < len(level); i += 2 {
			copy(pair[:chainhash.HashSize], level[i][:])
			copy(pair[chainhash.HashSize:], level[i+1][:])
			next = append(next, chainhash.DoubleHashH(pair[:]))
		}

		level = next
	}

	root := level[0]

	return &root
}
