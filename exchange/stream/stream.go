// Package stream consumes binance kline websocket streams and turns them
// into candles the engine can ingest, as a lower-latency alternative to
// REST polling.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/finbeat/macdbot/market"
)

// ProdURL is the public binance spot websocket endpoint.
const ProdURL = "wss://stream.binance.com:9443"

// klineEvent is the wire shape of one kline push.
type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Trades    int    `json:"n"`
		Final     bool   `json:"x"`
		Quote     string `json:"q"`
		TakerBase string `json:"V"`
		TakerQuot string `json:"Q"`
	} `json:"k"`
}

// Update is one candle push. Final marks a bar that just closed; non-final
// updates refresh the still-forming bar.
type Update struct {
	Candle market.Candle
	Final  bool
}

// Stream maintains a kline websocket subscription for one (symbol, interval)
// pair, redialing on failure until its context is cancelled.
type Stream struct {
	baseURL  string
	symbol   string
	interval string
	log      *zap.Logger

	updates chan Update
}

// New creates a stream for symbol at interval. baseURL "" means ProdURL.
func New(baseURL, symbol, interval string, log *zap.Logger) (*Stream, error) {
	if _, err := market.ParseInterval(interval); err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	if baseURL == "" {
		baseURL = ProdURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{
		baseURL:  baseURL,
		symbol:   symbol,
		interval: interval,
		log:      log,
		updates:  make(chan Update, 64),
	}, nil
}

// Updates returns the candle channel. Closed when Run returns.
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Run dials and reads until ctx is cancelled, redialing with backoff on any
// connection failure. Always returns ctx.Err().
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.updates)

	backoff := time.Second
	for {
		if err := s.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("stream disconnected, redialing",
				zap.String("symbol", s.symbol),
				zap.Duration("backoff", backoff),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Stream) endpoint() string {
	return fmt.Sprintf("%s/ws/%s@kline_%s",
		s.baseURL, strings.ToLower(s.symbol), s.interval)
}

// readOnce dials one connection and pumps events until it breaks.
func (s *Stream) readOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint(), nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", s.endpoint(), err)
	}
	defer conn.Close()

	s.log.Info("stream connected",
		zap.String("symbol", s.symbol),
		zap.String("interval", s.interval))

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}

		var ev klineEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != "kline" {
			continue
		}

		c, err := toCandle(ev)
		if err != nil {
			s.log.Warn("malformed kline event dropped", zap.Error(err))
			continue
		}

		select {
		case s.updates <- Update{Candle: c, Final: ev.Kline.Final}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.log.Warn("update channel full, dropping candle",
				zap.Int64("openTime", c.OpenTime))
		}
	}
}

func toCandle(ev klineEvent) (market.Candle, error) {
	k := ev.Kline
	c := market.Candle{
		OpenTime:   k.OpenTime,
		CloseTime:  k.CloseTime,
		TradeCount: k.Trades,
	}
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&c.Open, k.Open},
		{&c.High, k.High},
		{&c.Low, k.Low},
		{&c.Close, k.Close},
		{&c.Volume, k.Volume},
		{&c.QuoteVolume, k.Quote},
		{&c.TakerBuyBaseVolume, k.TakerBase},
		{&c.TakerBuyQuoteVolume, k.TakerQuot},
	} {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("stream: parse %q: %w", f.src, err)
		}
		*f.dst = v
	}
	return c, nil
}
