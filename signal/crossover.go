// Package signal detects and tracks MACD line crossovers.
package signal

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Kind classifies a crossover by direction and which side of the zero axis
// both lines sat on at the crossing. Crossings that straddle zero have no
// Kind: they are anomalies the detector logs and drops.
type Kind int

const (
	BullAboveZero Kind = iota + 1
	BullBelowZero
	BearAboveZero
	BearBelowZero
)

// Bullish reports the broad polarity, ignoring the zero-axis qualifier.
func (k Kind) Bullish() bool {
	return k == BullAboveZero || k == BullBelowZero
}

func (k Kind) String() string {
	switch k {
	case BullAboveZero:
		return "bull-above-zero"
	case BullBelowZero:
		return "bull-below-zero"
	case BearAboveZero:
		return "bear-above-zero"
	case BearBelowZero:
		return "bear-below-zero"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind restores a Kind from its string form, validating that the value
// is one of the closed set.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{BullAboveZero, BullBelowZero, BearAboveZero, BearBelowZero} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("signal: unknown crossover kind %q", s)
}

// Crossover is one fast/slow crossing located at a window index. Timestamp
// is the open time of the candle at that index. Immutable once created.
type Crossover struct {
	Index     int
	Kind      Kind
	Timestamp int64
}

// Detector scans MACD series for crossings of the fast (MACD) line over the
// slow (signal) line.
type Detector struct {
	log *zap.Logger
}

func NewDetector(log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{log: log}
}

// Scan walks the fast/slow series and returns every crossover in ascending
// index order. hist gates warmup: indexes whose histogram is NaN are never
// considered. timestamps must align 1:1 with the series.
//
// With onlyLast set, only the final index is examined and the result holds
// at most one entry; this is the warm-tick fast path.
func (d *Detector) Scan(fast, slow, hist []float64, timestamps []int64, onlyLast bool) []Crossover {
	n := len(fast)
	if n < 2 || len(slow) != n || len(hist) != n || len(timestamps) != n {
		return nil
	}

	start := 1
	if onlyLast {
		start = n - 1
	}

	var out []Crossover
	for i := start; i < n; i++ {
		if math.IsNaN(hist[i]) || math.IsNaN(hist[i-1]) {
			continue
		}

		var bullish bool
		switch {
		case fast[i] > slow[i] && fast[i-1] <= slow[i-1]:
			bullish = true
		case fast[i] < slow[i] && fast[i-1] >= slow[i-1]:
			bullish = false
		default:
			continue
		}

		kind, ok := classify(bullish, fast[i], slow[i])
		if !ok {
			// Both lines must share a sign for the zero-axis qualifier to
			// apply. A straddling crossing cannot be represented, so it is
			// reported and dropped rather than mis-tagged.
			d.log.Warn("mixed-sign crossover dropped",
				zap.Int("index", i),
				zap.Int64("timestamp", timestamps[i]),
				zap.Float64("fast", fast[i]),
				zap.Float64("slow", slow[i]),
				zap.Bool("bullish", bullish))
			continue
		}

		out = append(out, Crossover{Index: i, Kind: kind, Timestamp: timestamps[i]})
	}
	return out
}

func classify(bullish bool, fast, slow float64) (Kind, bool) {
	switch {
	case fast > 0 && slow > 0:
		if bullish {
			return BullAboveZero, true
		}
		return BearAboveZero, true
	case fast < 0 && slow < 0:
		if bullish {
			return BullBelowZero, true
		}
		return BearBelowZero, true
	default:
		return 0, false
	}
}
