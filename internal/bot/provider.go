package bot

import (
	"fmt"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/indicators"
	"hyperliquid-trading-bot/internal/marketdata"
)

// TrendProvider is the built-in signal source: EMA 20/50 alignment with an
// RSI extreme filter. It only suggests; the policy confirms.
type TrendProvider struct {
	RSIOverbought float64
	RSIOversold   float64
}

// NewTrendProvider uses the standard 70/30 RSI extremes.
func NewTrendProvider() *TrendProvider {
	return &TrendProvider{RSIOverbought: 70, RSIOversold: 30}
}

// Suggest produces a directional candidate, or HOLD when the window is
// too short or no alignment exists.
func (p *TrendProvider) Suggest(symbol, timeframe string, candles []marketdata.Candle) *decision.Signal {
	sig := &decision.Signal{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Action:     decision.ActionHold,
		Indicators: make(map[string]float64),
	}
	if len(candles) == 0 {
		return sig
	}
	price := candles[len(candles)-1].Close
	sig.Price = price

	if len(candles) < 50 {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("need 50 candles, have %d", len(candles)))
		return sig
	}

	fast := indicators.EMA(candles, 20)
	slow := indicators.EMA(candles, 50)
	rsi := indicators.RSI(candles, 14)

	sig.Indicators["ema20"] = fast
	sig.Indicators["ema50"] = slow
	sig.Indicators["rsi"] = rsi

	switch {
	case fast > slow && price > fast && rsi < p.RSIOverbought:
		sig.Action = decision.ActionLong
		sig.Confidence = 50
		sig.Reasons = append(sig.Reasons, "price above rising EMA stack")
	case fast < slow && price < fast && rsi > p.RSIOversold:
		sig.Action = decision.ActionShort
		sig.Confidence = 50
		sig.Reasons = append(sig.Reasons, "price below falling EMA stack")
	default:
		sig.Reasons = append(sig.Reasons, "no EMA alignment")
	}
	return sig
}
