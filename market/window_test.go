package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = time.Minute

// mkCandles builds a contiguous run of candles starting at start ms.
func mkCandles(start int64, closes ...float64) []Candle {
	out := make([]Candle, len(closes))
	step := testInterval.Milliseconds()
	for i, c := range closes {
		open := start + int64(i)*step
		out[i] = Candle{
			OpenTime:  open,
			CloseTime: open + step - 1,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return out
}

func TestWindowInitEmpty(t *testing.T) {
	w := NewWindow(testInterval, 10)
	_, err := w.Init(nil)
	require.ErrorIs(t, err, ErrEmptyCandles)
}

func TestWindowInitTrimsToCapacity(t *testing.T) {
	w := NewWindow(testInterval, 120)

	n, err := w.Init(mkCandles(0, manyCloses(200)...))
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	assert.Equal(t, 120, w.Len())

	// The oldest 80 are discarded; the first retained bar is index 80.
	first, err := w.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(80)*testInterval.Milliseconds(), first.OpenTime)
}

func TestWindowInitRejectsGap(t *testing.T) {
	w := NewWindow(testInterval, 10)

	candles := mkCandles(0, 1, 2, 3)
	candles[2].OpenTime += 5000 // tear a hole in the sequence
	_, err := w.Init(candles)
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestWindowUpsert(t *testing.T) {
	w := NewWindow(testInterval, 3)

	base := mkCandles(0, 1, 2)
	_, err := w.Init(base)
	require.NoError(t, err)

	// Refresh the still-forming newest bar in place.
	forming := base[1]
	forming.Close = 2.5
	res, err := w.Upsert(forming)
	require.NoError(t, err)
	assert.Equal(t, Updated, res)
	last, err := w.Last()
	require.NoError(t, err)
	assert.Equal(t, 2.5, last.Close)
	assert.Equal(t, 2, w.Len())

	// Append the next contiguous bar.
	next := mkCandles(0, 1, 2, 3)[2]
	res, err = w.Upsert(next)
	require.NoError(t, err)
	assert.Equal(t, Added, res)
	assert.Equal(t, 3, w.Len())

	// Appending past capacity evicts from the front.
	res, err = w.Upsert(mkCandles(0, 1, 2, 3, 4)[3])
	require.NoError(t, err)
	assert.Equal(t, Added, res)
	assert.Equal(t, 3, w.Len())
	first, err := w.At(0)
	require.NoError(t, err)
	assert.Equal(t, float64(2), first.Close)

	// A gap is out of order, never silently appended.
	gap := mkCandles(0, 1, 2, 3, 4, 5, 6)[6]
	res, err = w.Upsert(gap)
	assert.Equal(t, OutOfOrder, res)
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 3, w.Len())
}

func TestWindowNegativeIndex(t *testing.T) {
	w := NewWindow(testInterval, 0)
	_, err := w.Init(mkCandles(0, 10, 20, 30))
	require.NoError(t, err)

	c, err := w.At(-1)
	require.NoError(t, err)
	assert.Equal(t, float64(30), c.Close)

	c, err = w.At(-3)
	require.NoError(t, err)
	assert.Equal(t, float64(10), c.Close)

	_, err = w.At(-4)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = w.At(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestWindowCloses(t *testing.T) {
	w := NewWindow(testInterval, 0)
	_, err := w.Init(mkCandles(0, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, w.Closes())
	assert.Equal(t, []int64{0, 60000, 120000}, w.OpenTimes())
}

func manyCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}
