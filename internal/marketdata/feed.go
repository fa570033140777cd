package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultFeedURL is the Hyperliquid public websocket endpoint.
const DefaultFeedURL = "wss://api.hyperliquid.xyz/ws"

// FeedStatus reports transport health for the data-quality detector.
type FeedStatus struct {
	Connected   bool          `json:"connected"`
	Latency     time.Duration `json:"latency"`
	LastMessage time.Time     `json:"last_message"`
	Reconnects  int64         `json:"reconnects"`
}

// CandleHandler receives candle updates. Closed reports whether the candle
// period has elapsed (append) or the candle is still forming (in-place
// update).
type CandleHandler func(symbol, timeframe string, c Candle, closed bool)

// Feed maintains a websocket candle subscription per (symbol, timeframe)
// pair and dispatches updates to the registered handler. It reconnects with
// exponential backoff and resubscribes after a drop.
type Feed struct {
	mu       sync.RWMutex
	url      string
	logger   zerolog.Logger
	handler  CandleHandler
	conn     *websocket.Conn
	subs     map[string]feedSubscription // key: coin + ":" + interval
	status   FeedStatus
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

type feedSubscription struct {
	Coin     string
	Interval string
}

type wsRequest struct {
	Method       string         `json:"method"`
	Subscription map[string]any `json:"subscription,omitempty"`
}

// candleMessage mirrors the Hyperliquid candle payload. Numeric fields
// arrive as strings.
type candleMessage struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Coin      string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// NewFeed creates a candle feed against the given websocket URL.
func NewFeed(url string, handler CandleHandler, logger zerolog.Logger) *Feed {
	if url == "" {
		url = DefaultFeedURL
	}
	return &Feed{
		url:      url,
		logger:   logger.With().Str("component", "CandleFeed").Logger(),
		handler:  handler,
		subs:     make(map[string]feedSubscription),
		stopChan: make(chan struct{}),
	}
}

// Subscribe registers a (coin, interval) candle stream. Takes effect on the
// live connection immediately when connected, otherwise on next connect.
func (f *Feed) Subscribe(coin, interval string) {
	f.mu.Lock()
	f.subs[coin+":"+interval] = feedSubscription{Coin: coin, Interval: interval}
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		f.sendSubscribe(conn, coin, interval)
	}
}

// Start connects and runs the read loop until ctx is cancelled or Stop is
// called.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	f.wg.Add(1)
	go f.run(ctx)
}

// Stop shuts the feed down and waits for the read loop to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopChan)
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// Status returns the current transport health snapshot.
func (f *Feed) Status() FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Feed) run(ctx context.Context) {
	defer f.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			f.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Candle feed connect failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-f.stopChan:
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		f.readLoop()

		f.mu.Lock()
		f.status.Connected = false
		f.status.Reconnects++
		f.mu.Unlock()
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	start := time.Now()
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.status.Connected = true
	f.status.Latency = time.Since(start)
	subs := make([]feedSubscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		f.sendSubscribe(conn, sub.Coin, sub.Interval)
	}

	f.logger.Info().Str("url", f.url).Int("subscriptions", len(subs)).Msg("Candle feed connected")
	return nil
}

func (f *Feed) sendSubscribe(conn *websocket.Conn, coin, interval string) {
	req := wsRequest{
		Method: "subscribe",
		Subscription: map[string]any{
			"type":     "candle",
			"coin":     coin,
			"interval": interval,
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		f.logger.Error().Err(err).Str("coin", coin).Str("interval", interval).Msg("Subscribe failed")
	}
}

func (f *Feed) readLoop() {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopChan:
			default:
				f.logger.Warn().Err(err).Msg("Candle feed read error")
			}
			conn.Close()
			return
		}

		f.mu.Lock()
		f.status.LastMessage = time.Now()
		f.mu.Unlock()

		var envelope wsEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Channel != "candle" {
			continue
		}

		var msg candleMessage
		if err := json.Unmarshal(envelope.Data, &msg); err != nil {
			f.logger.Debug().Err(err).Msg("Unparseable candle payload")
			continue
		}

		f.dispatch(msg)
	}
}

func (f *Feed) dispatch(msg candleMessage) {
	candle := Candle{
		OpenTime: time.UnixMilli(msg.OpenTime),
		Open:     parseFloat(msg.Open),
		High:     parseFloat(msg.High),
		Low:      parseFloat(msg.Low),
		Close:    parseFloat(msg.Close),
		Volume:   parseFloat(msg.Volume),
	}
	closed := time.Now().UnixMilli() >= msg.CloseTime

	f.mu.RLock()
	handler := f.handler
	f.mu.RUnlock()
	if handler != nil {
		handler(msg.Coin, msg.Interval, candle, closed)
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
