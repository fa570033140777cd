package decision

import (
	"fmt"

	"hyperliquid-trading-bot/internal/indicators"
	"hyperliquid-trading-bot/internal/marketdata"
)

// Confirmation names, stable for display and audit.
const (
	ConfirmationEMATrend = "ema_trend"
	ConfirmationIchimoku = "ichimoku"
	ConfirmationRSI      = "rsi_regime"
	ConfirmationATRBand  = "atr_band"
	ConfirmationNews     = "news_gate"
)

// checkEMATrend requires price above (long) or below (short) the 20/50/200
// EMAs consistently with the signal direction.
func checkEMATrend(sig *Signal, candles []marketdata.Candle, weight float64) Confirmation {
	c := Confirmation{Name: ConfirmationEMATrend, Weight: weight}

	if len(candles) < 200 {
		c.Reason = fmt.Sprintf("insufficient history for EMA200 (%d/200 candles)", len(candles))
		return c
	}

	ema20 := indicators.EMA(candles, 20)
	ema50 := indicators.EMA(candles, 50)
	ema200 := indicators.EMA(candles, 200)
	price := candles[len(candles)-1].Close

	if sig.Action.Bullish() {
		if price > ema20 && price > ema50 && price > ema200 {
			c.Passed = true
			c.Reason = fmt.Sprintf("price %.4f above EMA20/50/200 (%.4f/%.4f/%.4f)", price, ema20, ema50, ema200)
		} else {
			c.Reason = fmt.Sprintf("price %.4f not above all EMAs (%.4f/%.4f/%.4f)", price, ema20, ema50, ema200)
		}
		return c
	}

	if price < ema20 && price < ema50 && price < ema200 {
		c.Passed = true
		c.Reason = fmt.Sprintf("price %.4f below EMA20/50/200 (%.4f/%.4f/%.4f)", price, ema20, ema50, ema200)
	} else {
		c.Reason = fmt.Sprintf("price %.4f not below all EMAs (%.4f/%.4f/%.4f)", price, ema20, ema50, ema200)
	}
	return c
}

// checkIchimoku uses the Tenkan/Kijun ordering relative to price as a
// lightweight Ichimoku proxy.
func checkIchimoku(sig *Signal, candles []marketdata.Candle, weight float64) Confirmation {
	c := Confirmation{Name: ConfirmationIchimoku, Weight: weight}

	if len(candles) < 26 {
		c.Reason = fmt.Sprintf("insufficient history for Kijun (%d/26 candles)", len(candles))
		return c
	}

	lines := indicators.Ichimoku(candles)
	price := candles[len(candles)-1].Close

	if sig.Action.Bullish() {
		if price > lines.Tenkan && lines.Tenkan >= lines.Kijun {
			c.Passed = true
			c.Reason = fmt.Sprintf("price %.4f above Tenkan %.4f >= Kijun %.4f", price, lines.Tenkan, lines.Kijun)
		} else {
			c.Reason = fmt.Sprintf("bullish ordering not met (price %.4f, Tenkan %.4f, Kijun %.4f)", price, lines.Tenkan, lines.Kijun)
		}
		return c
	}

	if price < lines.Tenkan && lines.Tenkan <= lines.Kijun {
		c.Passed = true
		c.Reason = fmt.Sprintf("price %.4f below Tenkan %.4f <= Kijun %.4f", price, lines.Tenkan, lines.Kijun)
	} else {
		c.Reason = fmt.Sprintf("bearish ordering not met (price %.4f, Tenkan %.4f, Kijun %.4f)", price, lines.Tenkan, lines.Kijun)
	}
	return c
}

// checkRSI rejects longs in overbought territory and shorts in oversold
// territory.
func checkRSI(sig *Signal, candles []marketdata.Candle, overbought, oversold, weight float64) Confirmation {
	c := Confirmation{Name: ConfirmationRSI, Weight: weight}

	if len(candles) < 15 {
		c.Reason = fmt.Sprintf("insufficient history for RSI14 (%d/15 candles)", len(candles))
		return c
	}

	rsi := indicators.RSI(candles, 14)

	if sig.Action.Bullish() {
		if rsi < overbought {
			c.Passed = true
			c.Reason = fmt.Sprintf("RSI %.1f below overbought %.0f", rsi, overbought)
		} else {
			c.Reason = fmt.Sprintf("RSI %.1f overbought (>= %.0f)", rsi, overbought)
		}
		return c
	}

	if rsi > oversold {
		c.Passed = true
		c.Reason = fmt.Sprintf("RSI %.1f above oversold %.0f", rsi, oversold)
	} else {
		c.Reason = fmt.Sprintf("RSI %.1f oversold (<= %.0f)", rsi, oversold)
	}
	return c
}

// checkATRBand requires volatility inside a tradeable band: ATR between
// 0.5% and 5% of price.
func checkATRBand(candles []marketdata.Candle, weight float64) Confirmation {
	c := Confirmation{Name: ConfirmationATRBand, Weight: weight}

	if len(candles) < 15 {
		c.Reason = fmt.Sprintf("insufficient history for ATR14 (%d/15 candles)", len(candles))
		return c
	}

	atr := indicators.ATR(candles, 14)
	price := candles[len(candles)-1].Close
	if price <= 0 {
		c.Reason = "no valid price for ATR band"
		return c
	}

	ratio := atr / price
	if ratio >= 0.005 && ratio <= 0.05 {
		c.Passed = true
		c.Reason = fmt.Sprintf("ATR %.2f%% of price within 0.5%%-5%% band", ratio*100)
	} else {
		c.Reason = fmt.Sprintf("ATR %.2f%% of price outside 0.5%%-5%% band", ratio*100)
	}
	return c
}

// checkNews passes when external sentiment aligns with the signal
// direction. Missing sentiment fails the gate with an explanatory reason;
// the check still counts toward the denominator.
func checkNews(sig *Signal, news *NewsSentiment, weight float64) Confirmation {
	c := Confirmation{Name: ConfirmationNews, Weight: weight}

	if news == nil || len(news.Sources) == 0 {
		c.Reason = "no grounded sentiment available"
		return c
	}

	wantBullish := sig.Action.Bullish()
	aligned := (wantBullish && news.Sentiment == "bullish") || (!wantBullish && news.Sentiment == "bearish")
	if aligned {
		c.Passed = true
		c.Reason = fmt.Sprintf("sentiment %s aligned (confidence %.0f%%, %d sources)", news.Sentiment, news.Confidence*100, len(news.Sources))
	} else {
		c.Reason = fmt.Sprintf("sentiment %s not aligned with %s", news.Sentiment, sig.Action)
	}
	return c
}
