// Package mining searches the nonce space of a candidate block.
package mining

import (
	"math"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
)

// SolveBurst tries at most hashes nonces, starting from the current one. On success the header
// keeps the winning nonce. The nonce is left past the last tried value otherwise, so the next
// burst continues where this one stopped.
func SolveBurst(block *model.Block, hashes int) (bool, error) {
	target := block.Header.Bits.CalculateTarget()

	defer block.ResetHash()

	for i := 0; i < hashes; i++ {
		if block.Header.HasMetTarget(target) {
			return true, nil
		}

		if block.Header.Nonce == math.MaxUint32 {
			return false, errors.NewProcessingError("nonce space exhausted for candidate on %s", block.Header.HashPrevBlock)
		}

		block.Header.Nonce++
	}

	return false, nil
}
