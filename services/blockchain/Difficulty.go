package blockchain

import (
	"context"
	"math/big"
	"sync"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockAtHeightLookup resolves main chain blocks by height.
type BlockAtHeightLookup interface {
	GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error)
}

// Difficulty converts between compact bits and targets and computes the bits required for the
// next block.
type Difficulty struct {
	logger    ulogger.Logger
	store     BlockAtHeightLookup
	consensus *settings.ConsensusSettings
	maxTarget *big.Int

	mu                sync.Mutex
	bestBlockHash     *chainhash.Hash
	lastComputedNBits uint32
}

func NewDifficulty(store BlockAtHeightLookup, logger ulogger.Logger, consensus *settings.ConsensusSettings) (*Difficulty, error) {
	if consensus.MinBits > consensus.MaxBits {
		return nil, errors.NewConfigurationError("min bits %08x is above max bits %08x", consensus.MinBits, consensus.MaxBits)
	}

	if consensus.TargetTimespan <= 0 || consensus.TargetSpacing <= 0 {
		return nil, errors.NewConfigurationError("target timespan and spacing must be positive")
	}

	return &Difficulty{
		logger:    logger,
		store:     store,
		consensus: consensus,
		maxTarget: CompactToBig(consensus.MaxBits),
	}, nil
}

// TargetFromBits decodes bits into a target, rejecting values outside the configured range.
func (d *Difficulty) TargetFromBits(bits uint32) (*big.Int, error) {
	if bits < d.consensus.MinBits {
		return nil, errors.NewInvalidDifficultyError("bits %08x too small", bits)
	}

	if bits > d.consensus.MaxBits {
		return nil, errors.NewInvalidDifficultyError("bits %08x too big", bits)
	}

	return CompactToBig(bits), nil
}

// BitsFromTarget is the inverse of TargetFromBits.
func (d *Difficulty) BitsFromTarget(target *big.Int) uint32 {
	return BigToCompact(target)
}

// DifficultyFromBits is target(genesisBits) / target(bits).
func (d *Difficulty) DifficultyFromBits(bits uint32) (*big.Rat, error) {
	return DifficultyFromBits(bits, d.consensus.GenesisBits)
}

// DifficultyFromBits is the exact ratio target(genesisBits) / target(bits). It grows as the
// target shrinks.
func DifficultyFromBits(bits, genesisBits uint32) (*big.Rat, error) {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return nil, errors.NewInvalidDifficultyError("bits %08x encode a zero target", bits)
	}

	return new(big.Rat).SetFrac(CompactToBig(genesisBits), target), nil
}

// RetargetedBits scales the target of oldBits by actualTimespanMs / targetTimespan. The actual
// timespan is clamped to [targetTimespan/4, targetTimespan*4] and the result never exceeds the
// maximum target.
func (d *Difficulty) RetargetedBits(oldBits uint32, actualTimespanMs int64) (uint32, error) {
	targetTimespanMs := d.consensus.TargetTimespan.Milliseconds()

	minTimespan := targetTimespanMs / 4
	maxTimespan := targetTimespanMs * 4

	if actualTimespanMs < minTimespan {
		actualTimespanMs = minTimespan
	}

	if actualTimespanMs > maxTimespan {
		actualTimespanMs = maxTimespan
	}

	oldTarget, err := d.TargetFromBits(oldBits)
	if err != nil {
		return 0, err
	}

	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualTimespanMs))
	newTarget.Div(newTarget, big.NewInt(targetTimespanMs))

	// the encoded max target loses the low mantissa byte, return the configured bits as is
	if newTarget.Cmp(d.maxTarget) > 0 {
		return d.consensus.MaxBits, nil
	}

	return BigToCompact(newTarget), nil
}

// NextWorkRequired returns the bits the block following last must carry.
func (d *Difficulty) NextWorkRequired(ctx context.Context, last *model.Block) (uint32, error) {
	height, ok := last.Height()
	if !ok || height == 0 {
		return d.consensus.GenesisBits, nil
	}

	interval := d.consensus.RetargetInterval()

	if (height+1)%interval != 0 {
		return uint32(last.Header.Bits), nil
	}

	d.mu.Lock()
	if d.bestBlockHash != nil && d.bestBlockHash.IsEqual(last.Hash()) {
		nBits := d.lastComputedNBits
		d.mu.Unlock()

		return nBits, nil
	}
	d.mu.Unlock()

	firstHeight := int64(height) - int64(interval) + 1
	if firstHeight < 0 {
		firstHeight = 0
	}

	first, err := d.store.GetBlockAtHeight(ctx, uint32(firstHeight))
	if err != nil {
		return 0, errors.NewStorageError("[NextWorkRequired] failed to get block at height %d", firstHeight, err)
	}

	actualTimespanMs := last.TimestampMillis() - first.TimestampMillis()

	nBits, err := d.RetargetedBits(uint32(last.Header.Bits), actualTimespanMs)
	if err != nil {
		return 0, err
	}

	d.logger.Debugf("[NextWorkRequired] retarget at height %d: timespan %dms, bits %08x -> %08x", height+1, actualTimespanMs, last.Header.Bits, nBits)

	d.mu.Lock()
	d.bestBlockHash = last.Hash()
	d.lastComputedNBits = nBits
	d.mu.Unlock()

	return nBits, nil
}

// CheckProofOfWork verifies that the header hash is at or below the target encoded in its bits.
func (d *Difficulty) CheckProofOfWork(block *model.Block) error {
	target, err := d.TargetFromBits(uint32(block.Header.Bits))
	if err != nil {
		return errors.NewInvalidProofOfWorkError("block %s has unusable bits", block.Hash(), err)
	}

	if !block.Header.HasMetTarget(target) {
		return errors.NewInvalidProofOfWorkError("block %s hash is above target %064x", block.Hash(), target)
	}

	return nil
}

// BigToCompact packs n into compact form: the byte length as exponent and the three most
// significant bytes as mantissa.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() <= 0 {
		return 0
	}

	b := n.Bytes()
	size := uint32(len(b))

	var mantissa uint32

	switch {
	case size >= 3:
		mantissa = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	case size == 2:
		mantissa = uint32(b[0])<<16 | uint32(b[1])<<8
	default:
		mantissa = uint32(b[0]) << 16
	}

	return size<<24 | mantissa
}

// CompactToBig expands compact bits into a target.
func CompactToBig(compact uint32) *big.Int {
	return model.NBit(compact).CalculateTarget()
}
