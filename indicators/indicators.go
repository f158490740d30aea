// Package indicators provides the series-based technical indicators the
// decision engine consumes. All functions are pure and deterministic: the
// same input series always yields bit-identical output, which matters when
// matching crossover timestamps against historical references.
package indicators

import (
	"errors"
	"fmt"
	"math"
)

var ErrShortSeries = errors.New("indicators: series shorter than required lookback")

// EMA computes the full exponential moving average series for the input.
//
// The first period-1 entries are NaN. The value at period-1 is seeded with
// the simple average of the first period inputs; every later value follows
// ema[i] = value[i]*k + ema[i-1]*(1-k) with k = 2/(period+1).
func EMA(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("indicators: period must be positive, got %d", period)
	}
	if len(series) < period {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrShortSeries, period, len(series))
	}

	ema := make([]float64, len(series))
	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		ema[i] = math.NaN()
		sum += series[i]
	}
	ema[period-1] = sum / float64(period)

	for i := period; i < len(series); i++ {
		ema[i] = series[i]*k + ema[i-1]*(1-k)
	}
	return ema, nil
}

// MACDWarmup returns the number of leading samples that carry no valid
// histogram value for the given periods.
func MACDWarmup(slowPeriod, signalPeriod int) int {
	return slowPeriod + signalPeriod - 2
}

// MACD computes the MACD line, signal line and histogram for a closing-price
// series. All three outputs have the same length as the input; entries
// before the warmup boundary are NaN and must never be treated as signal.
//
// macd = EMA(fast) - EMA(slow); signal = EMA(macd, signalPeriod) seeded from
// the first valid macd value; hist = macd - signal.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) (macd, signalLine, hist []float64, err error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 {
		return nil, nil, nil, fmt.Errorf("indicators: periods must be positive (%d/%d/%d)",
			fastPeriod, slowPeriod, signalPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, nil, nil, fmt.Errorf("indicators: fast period %d must be below slow period %d",
			fastPeriod, slowPeriod)
	}
	if len(closes) < slowPeriod+signalPeriod {
		return nil, nil, nil, fmt.Errorf("%w: need %d, got %d",
			ErrShortSeries, slowPeriod+signalPeriod, len(closes))
	}

	fast, err := EMA(closes, fastPeriod)
	if err != nil {
		return nil, nil, nil, err
	}
	slow, err := EMA(closes, slowPeriod)
	if err != nil {
		return nil, nil, nil, err
	}

	macd = make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			macd[i] = math.NaN()
			continue
		}
		macd[i] = fast[i] - slow[i]
	}

	// The signal EMA runs over the valid tail of the MACD line, starting at
	// the slow EMA's first defined index.
	firstValid := slowPeriod - 1
	signalTail, err := EMA(macd[firstValid:], signalPeriod)
	if err != nil {
		return nil, nil, nil, err
	}

	signalLine = make([]float64, len(closes))
	hist = make([]float64, len(closes))
	for i := 0; i < firstValid; i++ {
		signalLine[i] = math.NaN()
		hist[i] = math.NaN()
	}
	for i, v := range signalTail {
		idx := firstValid + i
		signalLine[idx] = v
		if math.IsNaN(v) || math.IsNaN(macd[idx]) {
			hist[idx] = math.NaN()
		} else {
			hist[idx] = macd[idx] - v
		}
	}

	return macd, signalLine, hist, nil
}
