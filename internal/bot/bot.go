// Package bot runs the per-symbol decision cycle: candles in, regime and
// data quality measured, the policy and confidence engine consulted, the
// risk engine sized, and finally the execution engine invoked. Stages are
// strictly sequential; one bot never shares mutable state with another.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/confidence"
	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/execution"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/indicators"
	"hyperliquid-trading-bot/internal/marketdata"
	"hyperliquid-trading-bot/internal/metrics"
	"hyperliquid-trading-bot/internal/regime"
	"hyperliquid-trading-bot/internal/risk"
	"hyperliquid-trading-bot/internal/tracker"
)

// decisionHistory bounds the in-memory record kept for the API.
const decisionHistory = 50

// SignalProvider suggests a raw directional signal from a candle window.
// The returned signal is a candidate only; the policy, confidence and risk
// stages decide whether anything executes.
type SignalProvider interface {
	Suggest(symbol, timeframe string, candles []marketdata.Candle) *decision.Signal
}

// NewsProvider supplies optional grounded sentiment for the news gate.
type NewsProvider interface {
	Sentiment(symbol string) *decision.NewsSentiment
}

// FeedStatusFunc reports stream connectivity for the data-quality stage.
type FeedStatusFunc func() marketdata.FeedStatus

// DecisionRecord is one completed cycle, kept for the API and websocket
// stream.
type DecisionRecord struct {
	Time       time.Time          `json:"time"`
	Symbol     string             `json:"symbol"`
	Signal     *decision.Signal   `json:"signal,omitempty"`
	Decision   *decision.Result   `json:"decision,omitempty"`
	Confidence *confidence.Result `json:"confidence,omitempty"`
	Executed   bool               `json:"executed"`
	Note       string             `json:"note,omitempty"`
}

// Config holds the per-bot cycle settings.
type Config struct {
	Symbol      string
	Timeframe   string
	Interval    time.Duration // time between cycles
	CallTimeout time.Duration // per adapter call
	Leverage    float64       // configured trading leverage
	Trailing    risk.TrailingConfig
}

// Bot owns one symbol's pipeline.
type Bot struct {
	cfg      Config
	series   *marketdata.Series
	feed     FeedStatusFunc
	provider SignalProvider
	news     NewsProvider
	policy   *decision.Policy
	riskMgr  *risk.Manager
	trailing *risk.TrailingStops
	engine   *execution.Engine
	adapter  hyperliquid.ExecutionAdapter
	bus      *events.EventBus
	mirror   *tracker.TradeTracker
	logger   zerolog.Logger

	mu      sync.RWMutex
	recent  []DecisionRecord
	stopped bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New assembles a bot. The tracker may be nil.
func New(cfg Config, series *marketdata.Series, feed FeedStatusFunc,
	provider SignalProvider, news NewsProvider, policy *decision.Policy,
	riskMgr *risk.Manager, engine *execution.Engine,
	adapter hyperliquid.ExecutionAdapter, bus *events.EventBus,
	mirror *tracker.TradeTracker, logger zerolog.Logger) *Bot {

	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Bot{
		cfg:      cfg,
		series:   series,
		feed:     feed,
		provider: provider,
		news:     news,
		policy:   policy,
		riskMgr:  riskMgr,
		trailing: risk.NewTrailingStops(cfg.Trailing, logger.With().Str("symbol", cfg.Symbol).Logger()),
		engine:   engine,
		adapter:  adapter,
		bus:      bus,
		mirror:   mirror,
		logger:   logger.With().Str("component", "Bot").Str("symbol", cfg.Symbol).Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the cycle loop.
func (b *Bot) Start() {
	b.logger.Info().
		Str("timeframe", b.cfg.Timeframe).
		Dur("interval", b.cfg.Interval).
		Msg("Bot started")

	b.publish(events.EventBotStarted, map[string]interface{}{"symbol": b.cfg.Symbol})

	b.wg.Add(1)
	go b.run()
}

// Stop halts the loop and waits for any in-flight cycle, including its
// adapter calls, to finish.
func (b *Bot) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()

	b.publish(events.EventBotStopped, map[string]interface{}{"symbol": b.cfg.Symbol})
	b.logger.Info().Msg("Bot stopped")
}

// RecentDecisions returns the newest records first.
func (b *Bot) RecentDecisions() []DecisionRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]DecisionRecord, len(b.recent))
	for i, r := range b.recent {
		out[len(b.recent)-1-i] = r
	}
	return out
}

// Symbol returns the bot's symbol.
func (b *Bot) Symbol() string { return b.cfg.Symbol }

// RiskState returns this bot's risk engine state.
func (b *Bot) RiskState() risk.State { return b.riskMgr.State() }

// RiskStats returns this bot's closed-trade statistics.
func (b *Bot) RiskStats() risk.TradeStats { return b.riskMgr.Stats() }

// OpenTrades returns this bot's active trades.
func (b *Bot) OpenTrades() []execution.Trade { return b.engine.OpenTrades() }

func (b *Bot) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if stop := b.cycle(); stop {
				return
			}
		case <-b.stopChan:
			return
		}
	}
}

// cycle runs one full pipeline pass. Returns true when the bot must halt.
func (b *Bot) cycle() bool {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
	defer cancel()

	// Account and position state first: every later stage reads it.
	account, err := b.adapter.GetAccountInfo(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to fetch account info, skipping cycle")
		return false
	}
	positions, err := b.adapter.GetPositions(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to fetch positions, skipping cycle")
		return false
	}
	b.riskMgr.UpdateState(account.Equity, account.AvailableBalance, len(positions))

	metrics.AccountEquity.Set(account.Equity)
	metrics.DrawdownPercent.Set(b.riskMgr.State().CurrentDrawdown)

	// Single authoritative kill condition.
	if stop, reason := b.riskMgr.ShouldStopBot(); stop {
		b.logger.Error().Str("reason", reason).Msg("Risk kill condition hit, closing positions")
		b.forceCloseAll(reason)
		return true
	}

	if err := b.engine.SyncWithPositions(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Position sync failed")
	}

	candles := b.series.Snapshot()
	if len(candles) == 0 {
		return false
	}

	st := b.feed()
	metrics.FeedConnected.WithLabelValues(b.cfg.Symbol).Set(boolToGauge(st.Connected))

	quality := regime.MeasureQuality(candles, b.cfg.Timeframe, st.Connected, st.Latency)
	rg := regime.Detect(candles)

	sig := b.suggest(candles)

	var news *decision.NewsSentiment
	if b.news != nil {
		news = b.news.Sentiment(b.cfg.Symbol)
	}

	decRes := b.policy.Evaluate(sig, candles, news)

	price, atr, volRatio := b.marketNumbers(candles, rg)

	b.updateTrailingStops(price)

	confRes := confidence.Evaluate(confidence.Input{
		Signal:   sig,
		Decision: decRes,
		Quality:  quality,
		Regime:   rg,
		Risk:     b.riskInputs(price, atr, volRatio),
		News:     news,
	})

	metrics.DecisionsTotal.WithLabelValues(b.cfg.Symbol, string(confRes.Action)).Inc()
	metrics.ConfidenceScore.WithLabelValues(b.cfg.Symbol).Observe(confRes.Breakdown.Total)
	for _, block := range confRes.Gating.HardBlocks {
		metrics.HardBlocksTotal.WithLabelValues(b.cfg.Symbol, block).Inc()
		b.publish(events.EventHardBlock, map[string]interface{}{
			"symbol": b.cfg.Symbol,
			"reason": block,
		})
	}

	record := DecisionRecord{
		Time:       time.Now(),
		Symbol:     b.cfg.Symbol,
		Signal:     sig,
		Decision:   decRes,
		Confidence: confRes,
	}

	record.Executed, record.Note = b.act(confRes, sig, decRes, price, atr, volRatio)

	b.remember(record)
	b.publish(events.EventDecisionMade, map[string]interface{}{
		"symbol":     b.cfg.Symbol,
		"action":     string(confRes.Action),
		"confidence": confRes.Breakdown.Total,
		"allowed":    confRes.Gating.Allowed,
		"reason":     confRes.Gating.BlockedReason,
	})
	return false
}

// act carries an allowed decision through risk sizing and execution.
func (b *Bot) act(confRes *confidence.Result, sig *decision.Signal,
	decRes *decision.Result, price, atr, volRatio float64) (bool, string) {

	if !confRes.Gating.Allowed {
		return false, confRes.Gating.BlockedReason
	}

	switch {
	case confRes.Action.IsClose():
		return b.closeBySignal(sig)
	case confRes.Action.IsEntry():
		if !decRes.CanExecute {
			return false, decRes.Reason
		}
		return b.openBySignal(sig, price, atr, volRatio)
	default:
		return false, ""
	}
}

func (b *Bot) openBySignal(sig *decision.Signal, price, atr, volRatio float64) (bool, string) {
	rd := b.riskMgr.CheckTradeAllowed(sig, price, atr, volRatio)
	if !rd.Allowed {
		b.logger.Info().Str("reason", rd.Reason).Msg("Trade denied by risk engine")
		return false, rd.Reason
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
	defer cancel()

	trade, err := b.engine.ExecuteSignal(ctx, sig, rd)
	if err != nil && trade == nil {
		metrics.OrdersTotal.WithLabelValues("entry", "failure").Inc()
		b.logger.Warn().Err(err).Msg("Entry failed")
		return false, err.Error()
	}
	if err != nil {
		// Entry filled but a protective order failed; never rolled back.
		b.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Trade open with degraded protection")
	}

	metrics.OrdersTotal.WithLabelValues("entry", "success").Inc()
	b.mirrorTrade(trade)
	return true, ""
}

// updateTrailingStops ratchets protective stops for this bot's open
// trades and closes a trade whose trailed stop was crossed. In paper mode
// this is the only path that executes a stop, since resting paper orders
// never fill.
func (b *Bot) updateTrailingStops(price float64) {
	if !b.trailing.Enabled() {
		return
	}
	trades := b.engine.OpenTrades()
	if len(trades) == 0 {
		b.trailing.Drop(b.cfg.Symbol)
		return
	}
	for _, t := range trades {
		if t.StopLoss != nil {
			b.trailing.Track(t.Symbol, t.Side, t.EntryPrice, *t.StopLoss)
		}
		adj := b.trailing.Update(t.Symbol, price)
		if adj == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
		if adj.Triggered {
			closed, err := b.engine.CloseTrade(ctx, t.ID)
			cancel()
			if err != nil {
				b.logger.Warn().Err(err).Str("trade_id", t.ID).Msg("Trailing stop close failed")
				continue
			}
			b.trailing.Drop(t.Symbol)
			b.recordClosed(closed)
			continue
		}
		err := b.engine.AdjustStop(ctx, t.ID, adj.NewStop)
		cancel()
		if err != nil {
			b.logger.Warn().Err(err).Str("trade_id", t.ID).Msg("Stop adjustment failed")
		}
	}
}

func (b *Bot) closeBySignal(sig *decision.Signal) (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
	defer cancel()

	trade, err := b.engine.CloseBySignal(ctx, sig)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("close", "failure").Inc()
		b.logger.Warn().Err(err).Msg("Close failed")
		return false, err.Error()
	}
	b.recordClosed(trade)
	return true, ""
}

// forceCloseAll closes every open trade after the kill condition fires.
func (b *Bot) forceCloseAll(reason string) {
	for _, t := range b.engine.OpenTrades() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
		closed, err := b.engine.CloseTrade(ctx, t.ID)
		cancel()
		if err != nil {
			b.logger.Error().Err(err).Str("trade_id", t.ID).Msg("Forced close failed")
			continue
		}
		b.recordClosed(closed)
	}
	b.publish(events.EventBotStopped, map[string]interface{}{
		"symbol": b.cfg.Symbol,
		"reason": reason,
	})
}

// recordClosed feeds a realized trade back into the risk state, metrics
// and the redis mirror.
func (b *Bot) recordClosed(trade *execution.Trade) {
	if trade == nil || trade.PnL == nil {
		return
	}
	b.riskMgr.RecordTrade(risk.ClosedTrade{
		PnL:        *trade.PnL,
		PnLPercent: valueOr(trade.PnLPercent),
		ClosedAt:   time.Now(),
	})

	outcome := "win"
	if *trade.PnL < 0 {
		outcome = "loss"
	}
	metrics.OrdersTotal.WithLabelValues("close", "success").Inc()
	metrics.TradesClosedTotal.WithLabelValues(b.cfg.Symbol, outcome).Inc()

	if b.mirror.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
		defer cancel()
		if err := b.mirror.RemoveTrade(ctx, trade.Symbol, trade.ID); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to unmirror trade")
		}
	}
}

func (b *Bot) mirrorTrade(trade *execution.Trade) {
	if trade == nil || !b.mirror.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout)
	defer cancel()
	if err := b.mirror.SaveTrade(ctx, trade); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to mirror trade")
	}
}

// suggest asks the provider for a raw signal and converts an opposing
// suggestion into a close of the currently open trade.
func (b *Bot) suggest(candles []marketdata.Candle) *decision.Signal {
	sig := b.provider.Suggest(b.cfg.Symbol, b.cfg.Timeframe, candles)
	if sig == nil {
		return nil
	}

	for _, t := range b.engine.OpenTrades() {
		if t.Symbol != b.cfg.Symbol {
			continue
		}
		long := t.Side == hyperliquid.SideBuy
		switch {
		case long && sig.Action == decision.ActionShort:
			sig.Action = decision.ActionCloseLong
			sig.Reasons = append(sig.Reasons, "opposing signal against open long")
		case !long && sig.Action == decision.ActionLong:
			sig.Action = decision.ActionCloseShort
			sig.Reasons = append(sig.Reasons, "opposing signal against open short")
		case (long && sig.Action == decision.ActionLong) || (!long && sig.Action == decision.ActionShort):
			// Already positioned in that direction.
			sig.Action = decision.ActionHold
		}
		break
	}
	return sig
}

// riskInputs converts risk state into the ratio form the confidence
// engine scores.
func (b *Bot) riskInputs(price, atr, volRatio float64) confidence.RiskInputs {
	st := b.riskMgr.State()
	cfg := b.riskMgr.Config()

	in := confidence.RiskInputs{}
	if cfg.MaxDrawdownPercent > 0 {
		in.DrawdownRatio = st.CurrentDrawdown / cfg.MaxDrawdownPercent
	}
	if cfg.MaxDailyLossPercent > 0 && st.Equity > 0 {
		loss := 0.0
		if st.DailyPnL < 0 {
			loss = -st.DailyPnL
		}
		in.DailyLossRatio = loss / (st.Equity * cfg.MaxDailyLossPercent / 100)
	}
	if cfg.MaxOpenPositions > 0 {
		in.OpenPositionsRatio = float64(st.OpenPositions) / float64(cfg.MaxOpenPositions)
	}
	if cfg.MaxLeverage > 0 {
		in.LeverageRatio = b.cfg.Leverage / cfg.MaxLeverage
	}
	if st.Equity > 0 && price > 0 && atr > 0 {
		qty := b.riskMgr.CalculatePositionSize(price, atr, volRatio)
		maxNotional := st.Equity * cfg.MaxLeverage
		if maxNotional > 0 {
			in.PositionSizeRatio = qty * price / maxNotional
		}
	}
	return in
}

// marketNumbers derives the per-cycle price, ATR and volatility ratio.
// The volatility ratio compares the short ATR to a longer baseline; above
// 1 the market is hotter than its recent norm.
func (b *Bot) marketNumbers(candles []marketdata.Candle, rg regime.Regime) (price, atr, volRatio float64) {
	price = candles[len(candles)-1].Close
	atr = rg.ATR

	base := indicators.ATR(candles, 50)
	if base > 0 {
		volRatio = atr / base
	} else {
		volRatio = 1
	}
	return price, atr, volRatio
}

func (b *Bot) remember(r DecisionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = append(b.recent, r)
	if len(b.recent) > decisionHistory {
		b.recent = b.recent[len(b.recent)-decisionHistory:]
	}
}

func (b *Bot) publish(typ events.EventType, data map[string]interface{}) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{Type: typ, Data: data, Timestamp: time.Now()})
}

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
