package decision

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/marketdata"
)

// Config controls which confirmations run and the agreement thresholds.
type Config struct {
	MinConfirmations int     `json:"min_confirmations"`
	MinConfidence    float64 `json:"min_confidence"` // percent, 0-100

	EnableEMATrend bool `json:"enable_ema_trend"`
	EnableIchimoku bool `json:"enable_ichimoku"`
	EnableRSI      bool `json:"enable_rsi"`
	EnableATRBand  bool `json:"enable_atr_band"`
	EnableNewsGate bool `json:"enable_news_gate"`

	EMATrendWeight float64 `json:"ema_trend_weight"`
	IchimokuWeight float64 `json:"ichimoku_weight"`
	RSIWeight      float64 `json:"rsi_weight"`
	ATRBandWeight  float64 `json:"atr_band_weight"`
	NewsGateWeight float64 `json:"news_gate_weight"`

	RSIOverbought float64 `json:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold"`
}

// DefaultConfig returns the standard confirmation set: four technical
// checks, three required, 60% minimum weighted confidence.
func DefaultConfig() Config {
	return Config{
		MinConfirmations: 3,
		MinConfidence:    60,
		EnableEMATrend:   true,
		EnableIchimoku:   true,
		EnableRSI:        true,
		EnableATRBand:    true,
		EnableNewsGate:   false,
		EMATrendWeight:   1.0,
		IchimokuWeight:   0.9,
		RSIWeight:        0.8,
		ATRBandWeight:    0.7,
		NewsGateWeight:   0.5,
		RSIOverbought:    70,
		RSIOversold:      30,
	}
}

// Policy runs the configured confirmations against a candidate signal.
// Stateless apart from configuration; one evaluation per trading cycle.
// Configuration updates arrive from the learning loop on another
// goroutine, so cfg access is guarded.
type Policy struct {
	mu     sync.RWMutex
	cfg    Config
	logger zerolog.Logger
}

// NewPolicy creates a decision policy.
func NewPolicy(cfg Config, logger zerolog.Logger) *Policy {
	if cfg.MinConfirmations <= 0 {
		cfg.MinConfirmations = 3
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 60
	}
	return &Policy{
		cfg:    cfg,
		logger: logger.With().Str("component", "DecisionPolicy").Logger(),
	}
}

// Config returns the active policy configuration.
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// SetConfig replaces the policy configuration (learning updates).
func (p *Policy) SetConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Evaluate runs all enabled confirmations against the signal and candle
// window. A nil or HOLD signal short-circuits to a non-executable HOLD
// result with zero confirmations.
func (p *Policy) Evaluate(sig *Signal, candles []marketdata.Candle, news *NewsSentiment) *Result {
	cfg := p.Config()
	if sig == nil || sig.Action == ActionHold {
		return &Result{
			Action:        ActionHold,
			Confirmations: []Confirmation{},
			RequiredCount: cfg.MinConfirmations,
			Reason:        "no actionable signal",
		}
	}

	confirmations := runConfirmations(cfg, sig, candles, news)

	passed := 0
	weightPassed := 0.0
	weightTotal := 0.0
	for _, c := range confirmations {
		weightTotal += c.Weight
		if c.Passed {
			passed++
			weightPassed += c.Weight
		}
	}

	confidence := 0.0
	if weightTotal > 0 {
		confidence = math.Round(100 * weightPassed / weightTotal)
	}

	res := &Result{
		Action:        ActionHold,
		Confirmations: confirmations,
		PassedCount:   passed,
		RequiredCount: cfg.MinConfirmations,
		Confidence:    confidence,
	}

	if passed >= cfg.MinConfirmations && confidence >= cfg.MinConfidence {
		res.Action = sig.Action
		res.CanExecute = true
		res.Reason = fmt.Sprintf("%d/%d confirmations passed at %.0f%% confidence", passed, len(confirmations), confidence)
	} else {
		res.Reason = fmt.Sprintf("insufficient agreement: %d/%d confirmations, %.0f%% confidence (need %d and %.0f%%)",
			passed, len(confirmations), confidence, cfg.MinConfirmations, cfg.MinConfidence)
	}

	p.logger.Debug().
		Str("symbol", sig.Symbol).
		Str("action", string(res.Action)).
		Int("passed", passed).
		Float64("confidence", confidence).
		Bool("can_execute", res.CanExecute).
		Msg("Signal evaluated")

	return res
}

func runConfirmations(cfg Config, sig *Signal, candles []marketdata.Candle, news *NewsSentiment) []Confirmation {
	out := make([]Confirmation, 0, 5)
	if cfg.EnableEMATrend {
		out = append(out, checkEMATrend(sig, candles, cfg.EMATrendWeight))
	}
	if cfg.EnableIchimoku {
		out = append(out, checkIchimoku(sig, candles, cfg.IchimokuWeight))
	}
	if cfg.EnableRSI {
		out = append(out, checkRSI(sig, candles, cfg.RSIOverbought, cfg.RSIOversold, cfg.RSIWeight))
	}
	if cfg.EnableATRBand {
		out = append(out, checkATRBand(candles, cfg.ATRBandWeight))
	}
	if cfg.EnableNewsGate {
		out = append(out, checkNews(sig, news, cfg.NewsGateWeight))
	}
	return out
}
