package blockchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = int64(24 * time.Hour / time.Millisecond)

type heightLookup map[uint32]*model.Block

func (h heightLookup) GetBlockAtHeight(_ context.Context, height uint32) (*model.Block, error) {
	block, ok := h[height]
	if !ok {
		return nil, errors.NewBlockNotFoundError("no block at height %d", height)
	}

	return block, nil
}

func testConsensus() *settings.ConsensusSettings {
	return &settings.ConsensusSettings{
		TargetTimespan: 14 * 24 * time.Hour,
		TargetSpacing:  10 * time.Minute,
		MinBits:        settings.DefaultMinBits,
		MaxBits:        0x1d00ffff,
		GenesisBits:    0x1d00ffff,
		Subsidy:        50 * 1e8,
	}
}

func newTestDifficulty(t *testing.T, store BlockAtHeightLookup, consensus *settings.ConsensusSettings) *Difficulty {
	t.Helper()

	d, err := NewDifficulty(store, ulogger.TestLogger{}, consensus)
	require.NoError(t, err)

	return d
}

func headerAt(t *testing.T, height uint32, timestamp uint32, bits uint32) *model.Block {
	t.Helper()

	block := model.NewBlock(&model.BlockHeader{
		Version:        1,
		HashPrevBlock:  &chainhash.Hash{byte(height + 1)},
		HashMerkleRoot: &chainhash.Hash{},
		Timestamp:      timestamp,
		Bits:           model.NBit(bits),
	}, nil)
	require.NoError(t, block.SetHeight(height))

	return block
}

func TestTargetFromBits(t *testing.T) {
	d := newTestDifficulty(t, heightLookup{}, testConsensus())

	target, err := d.TargetFromBits(0x1b0404cb)
	require.NoError(t, err)

	expected, ok := new(big.Int).SetString("00000000000404cb000000000000000000000000000000000000000000000000", 16)
	require.True(t, ok)
	assert.Equal(t, 0, expected.Cmp(target))

	t.Run("bounds", func(t *testing.T) {
		_, err := d.TargetFromBits(settings.DefaultMinBits)
		require.NoError(t, err)

		_, err = d.TargetFromBits(0x1d00ffff)
		require.NoError(t, err)

		_, err = d.TargetFromBits(settings.DefaultMinBits - 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidDifficulty))
		assert.Contains(t, err.Error(), "too small")

		_, err = d.TargetFromBits(0x1d00ffff + 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidDifficulty))
		assert.Contains(t, err.Error(), "too big")
	})
}

func TestBitsRoundTrip(t *testing.T) {
	d := newTestDifficulty(t, heightLookup{}, testConsensus())

	// canonical encodings: the leading mantissa byte is non-zero
	for _, bits := range []uint32{
		0x1b0404cb, 0x1c7fffff, 0x1c800000, 0x1a05db8b, 0x1cdb6cdb,
		0x1c3fffc0, 0x04123456, 0x03123456,
	} {
		target, err := d.TargetFromBits(bits)
		require.NoError(t, err)
		assert.Equalf(t, bits, d.BitsFromTarget(target), "bits %08x", bits)
	}

	assert.Equal(t, uint32(0), d.BitsFromTarget(big.NewInt(0)))
	assert.Equal(t, uint32(0x01120000), d.BitsFromTarget(big.NewInt(0x12)))
	assert.Equal(t, uint32(0x02123400), d.BitsFromTarget(big.NewInt(0x1234)))
}

func TestRetargetedBits(t *testing.T) {
	d := newTestDifficulty(t, heightLookup{}, testConsensus())

	tests := []struct {
		name     string
		oldBits  uint32
		timespan int64
		expected uint32
	}{
		{"twelve days", 486604799, 12 * day, 484142299},
		{"floor clamp", 486604799, 2 * day, 473956288},
		{"below floor", 486604799, 1 * day, 473956288},
		{"exact floor", 486604799, 14 * day / 4, 473956288},
		{"capped at max target", 486604799, 16 * day, 486604799},
		{"ceiling clamp", 436567560, 60 * day, 437647392},
		{"above ceiling", 436567560, 70 * day, 437647392},
		{"exact ceiling", 436567560, 56 * day, 437647392},
		{"negative timespan", 486604799, -day, 473956288},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits, err := d.RetargetedBits(tt.oldBits, tt.timespan)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bits)
		})
	}

	t.Run("retarget is never easier than max", func(t *testing.T) {
		bits, err := d.RetargetedBits(0x1d00ffff, 56*day)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1d00ffff), bits)
	})

	t.Run("invalid old bits", func(t *testing.T) {
		_, err := d.RetargetedBits(0x1e00ffff, 14*day)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidDifficulty))
	})
}

func TestDifficultyFromBits(t *testing.T) {
	d := newTestDifficulty(t, heightLookup{}, testConsensus())

	genesis, err := d.DifficultyFromBits(0x1d00ffff)
	require.NoError(t, err)
	assert.True(t, genesis.IsInt())
	assert.Equal(t, "1", genesis.RatString())

	harder, err := d.DifficultyFromBits(0x1b0404cb)
	require.NoError(t, err)

	// 0xffff * 2^(8*26) / (0x0404cb * 2^(8*24)), kept as an exact fraction
	assert.Equal(t, 0, harder.Cmp(new(big.Rat).SetFrac64(0xffff<<16, 0x0404cb)))

	value, _ := harder.Float64()
	assert.InDelta(t, 16307.420938523983, value, 1e-6)

	hardest, err := d.DifficultyFromBits(0x1a05db8b)
	require.NoError(t, err)
	assert.Equal(t, 1, hardest.Cmp(harder))

	_, err = d.DifficultyFromBits(0x03000000)
	require.Error(t, err)
}

func TestNextWorkRequired(t *testing.T) {
	consensus := testConsensus()
	consensus.TargetTimespan = 30 * time.Minute
	consensus.TargetSpacing = 10 * time.Minute
	require.Equal(t, uint32(3), consensus.RetargetInterval())

	const start = uint32(1_600_000_000)

	blocks := heightLookup{
		0: headerAt(t, 0, start, 0x1d00ffff),
		1: headerAt(t, 1, start+600, 0x1d00ffff),
		2: headerAt(t, 2, start+1200, 0x1d00ffff),
		3: headerAt(t, 3, start+1800, 0x1caaaa00),
		4: headerAt(t, 4, start+2400, 0x1caaaa00),
	}

	d := newTestDifficulty(t, blocks, consensus)
	ctx := context.Background()

	t.Run("genesis", func(t *testing.T) {
		bits, err := d.NextWorkRequired(ctx, blocks[0])
		require.NoError(t, err)
		assert.Equal(t, consensus.GenesisBits, bits)
	})

	t.Run("unaccepted block", func(t *testing.T) {
		block := model.NewBlock(&model.BlockHeader{Bits: 0x1c00ffff}, nil)

		bits, err := d.NextWorkRequired(ctx, block)
		require.NoError(t, err)
		assert.Equal(t, consensus.GenesisBits, bits)
	})

	t.Run("no retarget", func(t *testing.T) {
		bits, err := d.NextWorkRequired(ctx, blocks[1])
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1d00ffff), bits)

		bits, err = d.NextWorkRequired(ctx, blocks[3])
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1caaaa00), bits)
	})

	t.Run("retarget", func(t *testing.T) {
		// 20 minutes between heights 0 and 2 against a 30 minute timespan
		bits, err := d.NextWorkRequired(ctx, blocks[2])
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1caaaa00), bits)

		// cached for the same tip
		bits, err = d.NextWorkRequired(ctx, blocks[2])
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1caaaa00), bits)
	})

	t.Run("missing first block", func(t *testing.T) {
		sparse := heightLookup{5: headerAt(t, 5, start+3000, 0x1caaaa00)}
		d := newTestDifficulty(t, sparse, consensus)

		_, err := d.NextWorkRequired(ctx, sparse[5])
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrStorageError))
	})
}

func TestCheckProofOfWork(t *testing.T) {
	consensus := testConsensus()
	consensus.MaxBits = 0x207fffff
	d := newTestDifficulty(t, heightLookup{}, consensus)

	block := headerAt(t, 1, 1_600_000_000, 0x207fffff)
	for !block.Header.HasMetTarget(CompactToBig(0x207fffff)) {
		block.Header.Nonce++
		block.ResetHash()
	}

	require.NoError(t, d.CheckProofOfWork(block))

	block.Header.Bits = 0x03000001
	block.ResetHash()

	err := d.CheckProofOfWork(block)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidProofOfWork))
}

func TestNewDifficultyValidatesConfig(t *testing.T) {
	consensus := testConsensus()
	consensus.MinBits = 0x1e000000

	_, err := NewDifficulty(heightLookup{}, ulogger.TestLogger{}, consensus)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}
