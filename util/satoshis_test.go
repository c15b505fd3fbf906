package util

import (
	"math"
	"testing"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSatoshis(t *testing.T) {
	tests := map[string]struct {
		a, b uint64
		want uint64
		ok   bool
	}{
		"zero":             {a: 0, b: 0, want: 0, ok: true},
		"simple":           {a: 50e8, b: 1e8, want: 51e8, ok: true},
		"supply":           {a: MaxSatoshis - 1, b: 1, want: MaxSatoshis, ok: true},
		"above supply":     {a: MaxSatoshis, b: 1},
		"wraps":            {a: math.MaxUint64, b: 50e8 + 1},
		"single too large": {a: math.MaxUint64, b: 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := AddSatoshis(tt.a, tt.b)
			if !tt.ok {
				assert.True(t, errors.Is(err, errors.ErrTxInvalid))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTotalOutputSatoshis(t *testing.T) {
	tx := bt.NewTx()
	tx.AddOutput(&bt.Output{Satoshis: 40e8})
	tx.AddOutput(&bt.Output{Satoshis: 10e8})

	total, err := TotalOutputSatoshis(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50e8), total)

	// wrapping to exactly 50e8 must not pass as 50e8
	tx.Outputs[0].Satoshis = math.MaxUint64
	tx.Outputs[1].Satoshis = 50e8 + 1

	_, err = TotalOutputSatoshis(tx)
	assert.True(t, errors.Is(err, errors.ErrTxInvalid))
}

func TestTotalInputSatoshis(t *testing.T) {
	tx := bt.NewTx()
	tx.Inputs = []*bt.Input{{PreviousTxSatoshis: 30e8}, {PreviousTxSatoshis: 20e8}}

	total, err := TotalInputSatoshis(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50e8), total)

	tx.Inputs[1].PreviousTxSatoshis = math.MaxUint64

	_, err = TotalInputSatoshis(tx)
	assert.True(t, errors.Is(err, errors.ErrTxInvalid))
}
