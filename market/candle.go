// Package market provides candle data types and the bounded candle window
// the decision engine runs against.
package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrBadKline is returned for kline rows that cannot be parsed into a Candle.
var ErrBadKline = errors.New("market: malformed kline")

// Candle is a single OHLCV bar. Times are unix milliseconds; CloseTime is the
// last millisecond covered by the bar, so CloseTime = OpenTime + interval - 1.
type Candle struct {
	OpenTime  int64
	CloseTime int64

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume              float64
	QuoteVolume         float64
	TradeCount          int
	TakerBuyBaseVolume  float64
	TakerBuyQuoteVolume float64
}

// klineFieldCount is the arity of the exchange kline array:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// tradeCount, takerBuyBase, takerBuyQuote, ignored].
const klineFieldCount = 12

// ParseKline converts one positional kline array, as decoded from the
// exchange JSON response, into a Candle. Any arity other than the canonical
// 12 fields is rejected rather than best-effort parsed.
func ParseKline(raw []any) (Candle, error) {
	if len(raw) != klineFieldCount {
		return Candle{}, fmt.Errorf("%w: expected %d fields, got %d", ErrBadKline, klineFieldCount, len(raw))
	}

	openTime, err := klineInt(raw[0])
	if err != nil {
		return Candle{}, fmt.Errorf("%w: open time: %v", ErrBadKline, err)
	}
	closeTime, err := klineInt(raw[6])
	if err != nil {
		return Candle{}, fmt.Errorf("%w: close time: %v", ErrBadKline, err)
	}
	tradeCount, err := klineInt(raw[8])
	if err != nil {
		return Candle{}, fmt.Errorf("%w: trade count: %v", ErrBadKline, err)
	}

	c := Candle{
		OpenTime:   openTime,
		CloseTime:  closeTime,
		TradeCount: int(tradeCount),
	}

	floats := []struct {
		dst  *float64
		idx  int
		name string
	}{
		{&c.Open, 1, "open"},
		{&c.High, 2, "high"},
		{&c.Low, 3, "low"},
		{&c.Close, 4, "close"},
		{&c.Volume, 5, "volume"},
		{&c.QuoteVolume, 7, "quote volume"},
		{&c.TakerBuyBaseVolume, 9, "taker buy base volume"},
		{&c.TakerBuyQuoteVolume, 10, "taker buy quote volume"},
	}
	for _, f := range floats {
		v, err := klineFloat(raw[f.idx])
		if err != nil {
			return Candle{}, fmt.Errorf("%w: %s: %v", ErrBadKline, f.name, err)
		}
		*f.dst = v
	}

	return c, nil
}

// klineInt parses an integer field that arrives as a JSON number (or a
// quoted number from some gateways).
func klineInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// klineFloat parses a price/volume field. The exchange sends these as
// decimal strings to preserve precision.
func klineFloat(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(x, 64)
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// OpenAt returns the candle open time as a time.Time in UTC.
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// ParseInterval converts a kline interval string like "1m", "15m", "1h" or
// "1d" into a time.Duration.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}

	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval unit in %q", s)
	}
}

// FormatInterval renders a duration back into the exchange interval form,
// preferring the largest whole unit.
func FormatInterval(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d >= time.Second && d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	}
	return d.String()
}
