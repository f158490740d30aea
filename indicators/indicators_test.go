package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeedIsSimpleAverage(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6}
	ema, err := EMA(series, 3)
	require.NoError(t, err)
	require.Len(t, ema, len(series))

	assert.True(t, math.IsNaN(ema[0]))
	assert.True(t, math.IsNaN(ema[1]))
	assert.InDelta(t, 2.0, ema[2], 1e-12) // (1+2+3)/3

	// ema[3] = 4*k + 2*(1-k), k = 2/4
	assert.InDelta(t, 3.0, ema[3], 1e-12)
	assert.InDelta(t, 4.0, ema[4], 1e-12)
}

func TestEMAErrors(t *testing.T) {
	_, err := EMA([]float64{1, 2}, 0)
	require.Error(t, err)

	_, err = EMA([]float64{1, 2}, 3)
	require.ErrorIs(t, err, ErrShortSeries)
}

func TestMACDFlatSeriesHasZeroHistogram(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}

	macd, sig, hist, err := MACD(closes, 12, 26, 9)
	require.NoError(t, err)
	require.Len(t, hist, 60)

	warmup := MACDWarmup(26, 9)
	assert.Equal(t, 33, warmup)

	for i := range hist {
		if i < warmup {
			continue
		}
		require.False(t, math.IsNaN(hist[i]), "index %d should be warmed", i)
		assert.InDelta(t, 0, macd[i], 1e-9, "macd at %d", i)
		assert.InDelta(t, 0, sig[i], 1e-9, "signal at %d", i)
		assert.InDelta(t, 0, hist[i], 1e-9, "hist at %d", i)
	}
}

func TestMACDWarmupBoundary(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = float64(100 + i)
	}

	macd, sig, hist, err := MACD(closes, 12, 26, 9)
	require.NoError(t, err)

	warmup := MACDWarmup(26, 9)
	for i := 0; i < warmup; i++ {
		assert.True(t, math.IsNaN(hist[i]), "index %d should be NaN", i)
	}
	for i := warmup; i < len(closes); i++ {
		assert.False(t, math.IsNaN(macd[i]))
		assert.False(t, math.IsNaN(sig[i]))
		assert.False(t, math.IsNaN(hist[i]))
	}

	// Steady uptrend: fast EMA leads the slow one, MACD is positive.
	assert.Greater(t, macd[len(macd)-1], 0.0)
}

func TestMACDParameterValidation(t *testing.T) {
	closes := make([]float64, 100)

	_, _, _, err := MACD(closes, 26, 12, 9)
	require.Error(t, err)

	_, _, _, err = MACD(closes[:10], 12, 26, 9)
	require.ErrorIs(t, err, ErrShortSeries)

	_, _, _, err = MACD(closes, 0, 26, 9)
	require.Error(t, err)
}
