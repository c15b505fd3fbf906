package work

import (
	"math/big"
	"testing"

	"github.com/bsv-blockchain/chainlite/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcBlockWork(t *testing.T) {
	tests := []struct {
		name         string
		bits         uint32
		expectedWork string
	}{
		{
			name:         "genesis difficulty",
			bits:         0x1d00ffff,
			expectedWork: "100010001",
		},
		{
			name:         "mainnet typical difficulty",
			bits:         0x1a05db8b,
			expectedWork: "2bb43836381c9c",
		},
		{
			name:         "high difficulty",
			bits:         0x17053894,
			expectedWork: "31085d594cb7e26e94b5",
		},
		{
			name:         "regtest difficulty",
			bits:         0x207fffff,
			expectedWork: "2",
		},
		{
			name:         "zero target",
			bits:         0x00000000,
			expectedWork: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := CalcBlockWork(tt.bits)
			require.NotNil(t, work)
			assert.Equal(t, tt.expectedWork, work.Text(16))
		})
	}

	// 2^256 / (0xffff * 2^208 + 1)
	assert.Equal(t, "4295032833", CalcBlockWork(0x1d00ffff).String())
	assert.Equal(t, 1, CalcBlockWork(0x1b0404cb).Cmp(CalcBlockWork(0x1d00ffff)))
}

func TestCalcBlockWorkFormula(t *testing.T) {
	bits := uint32(0x1d00ffff)

	target := model.NBit(bits).CalculateTarget()
	denominator := new(big.Int).Add(target, big.NewInt(1))
	expected := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 256), denominator)

	assert.Equal(t, expected, CalcBlockWork(bits))
}

func TestCalculateWork(t *testing.T) {
	nBit, err := model.NewNBitFromString("1d00ffff")
	require.NoError(t, err)

	assert.Equal(t, "100010001", CalculateWork(nil, nBit).Text(16))
	assert.Equal(t, "100010001", CalculateWork(big.NewInt(0), nBit).Text(16))

	prev := big.NewInt(0x1000000000000)
	assert.Equal(t, "1000100010001", CalculateWork(prev, nBit).Text(16))

	// the previous value is not modified
	assert.Equal(t, "1000000000000", prev.Text(16))
}

func TestCalculateWorkAccumulation(t *testing.T) {
	nBit := model.NBit(0x1d00ffff)

	var chainWork *big.Int

	for i := 0; i < 10; i++ {
		chainWork = CalculateWork(chainWork, nBit)
	}

	expected := new(big.Int).Mul(CalcBlockWork(0x1d00ffff), big.NewInt(10))
	assert.Equal(t, 0, expected.Cmp(chainWork))
}
