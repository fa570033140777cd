package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/api"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/execution"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/learning"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/marketdata"
	"hyperliquid-trading-bot/internal/risk"
	"hyperliquid-trading-bot/internal/tracker"
	"hyperliquid-trading-bot/internal/vault"
)

func main() {
	samplePath := flag.String("sample-config", "", "write a sample config file to the given path and exit")
	flag.Parse()
	if *samplePath != "" {
		if err := config.GenerateSampleConfig(*samplePath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample config written to %s\n", *samplePath)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().
		Str("mode", cfg.TradingConfig.Mode).
		Strs("symbols", cfg.TradingConfig.Symbols).
		Str("timeframe", cfg.TradingConfig.Timeframe).
		Msg("Starting trading bot")

	eventBus := events.NewEventBus()

	// Credentials: Vault when enabled, environment otherwise.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vault client")
	}
	creds := loadCredentials(cfg, vaultClient, logger)

	// One risk engine per symbol; bots never pool risk state. The live
	// adapter's drawdown gate reads the worst drawdown across all of them.
	riskCfg := risk.Config{
		MaxPositionSizePercent:  cfg.RiskConfig.MaxPositionSizePercent,
		MaxLeverage:             cfg.RiskConfig.MaxLeverage,
		MaxDrawdownPercent:      cfg.RiskConfig.MaxDrawdownPercent,
		MaxDailyLossPercent:     cfg.RiskConfig.MaxDailyLossPercent,
		MaxOpenPositions:        cfg.RiskConfig.MaxOpenPositions,
		StopLossATRMultiplier:   cfg.RiskConfig.StopLossATRMultiplier,
		TakeProfitATRMultiplier: cfg.RiskConfig.TakeProfitATRMultiplier,
		CooldownAfterLoss:       time.Duration(cfg.RiskConfig.CooldownAfterLossMinutes) * time.Minute,
	}
	riskMgrs := make(map[string]*risk.Manager, len(cfg.TradingConfig.Symbols))
	for _, symbol := range cfg.TradingConfig.Symbols {
		riskMgrs[symbol] = risk.NewManager(riskCfg, logger.With().Str("symbol", symbol).Logger())
	}

	// Market data: one series per symbol, one shared websocket feed.
	series := make(map[string]*marketdata.Series, len(cfg.TradingConfig.Symbols))
	for _, symbol := range cfg.TradingConfig.Symbols {
		series[symbol] = marketdata.NewSeries(symbol, cfg.TradingConfig.Timeframe)
	}
	feed := marketdata.NewFeed(cfg.HyperliquidConfig.WSURL, func(symbol, timeframe string, c marketdata.Candle, closed bool) {
		s, ok := series[symbol]
		if !ok {
			return
		}
		if closed {
			s.Append(c)
		} else {
			s.UpdateCurrent(c)
		}
	}, logger)
	for _, symbol := range cfg.TradingConfig.Symbols {
		feed.Subscribe(symbol, cfg.TradingConfig.Timeframe)
	}

	adapter := buildAdapter(cfg, creds, riskMgrs, series, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect execution adapter")
	}
	defer adapter.Disconnect()

	feed.Start(ctx)
	defer feed.Stop()

	// Learning manager seeded with the human-set configuration.
	learner := learning.NewManager(learning.BotParams{
		MinConfirmations:         cfg.DecisionConfig.MinConfirmations,
		MinConfidence:            cfg.DecisionConfig.MinConfidence,
		RSIOverbought:            cfg.DecisionConfig.RSIOverbought,
		RSIOversold:              cfg.DecisionConfig.RSIOversold,
		MaxPositionSizePercent:   cfg.RiskConfig.MaxPositionSizePercent,
		StopLossATRMultiplier:    cfg.RiskConfig.StopLossATRMultiplier,
		TakeProfitATRMultiplier:  cfg.RiskConfig.TakeProfitATRMultiplier,
		CooldownAfterLossMinutes: float64(cfg.RiskConfig.CooldownAfterLossMinutes),
		MaxLeverage:              cfg.RiskConfig.MaxLeverage,
		MaxDrawdownPercent:       cfg.RiskConfig.MaxDrawdownPercent,
	}, logger)

	// Optional Redis mirror of in-flight trades.
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, trade mirror disabled")
			redisClient = nil
		}
	}
	mirror := tracker.NewTradeTracker(redisClient, logger)
	if mirror.Enabled() {
		if stale, err := mirror.OpenTrades(ctx); err == nil && len(stale) > 0 {
			logger.Warn().Int("count", len(stale)).Msg("Mirrored trades from previous run, will reconcile against live positions")
		}
	}

	// Each bot gets its own decision policy and execution engine next to
	// its risk manager; only the adapter, event bus and tracker are shared.
	bots := make([]*bot.Bot, 0, len(cfg.TradingConfig.Symbols))
	policies := make([]*decision.Policy, 0, len(cfg.TradingConfig.Symbols))
	for _, symbol := range cfg.TradingConfig.Symbols {
		symLogger := logger.With().Str("symbol", symbol).Logger()
		engine := execution.NewEngine(adapter, eventBus, execution.Config{
			Leverage:    float64(cfg.TradingConfig.Leverage),
			CallTimeout: time.Duration(cfg.HyperliquidConfig.CallTimeout) * time.Second,
			FeeRate:     cfg.TradingConfig.FeeRate,
		}, symLogger)
		policy := decision.NewPolicy(decisionConfig(cfg), symLogger)
		policies = append(policies, policy)

		b := bot.New(bot.Config{
			Symbol:      symbol,
			Timeframe:   cfg.TradingConfig.Timeframe,
			Interval:    time.Duration(cfg.TradingConfig.DecisionIntervalSecs) * time.Second,
			CallTimeout: time.Duration(cfg.HyperliquidConfig.CallTimeout) * time.Second,
			Leverage:    float64(cfg.TradingConfig.Leverage),
			Trailing: risk.TrailingConfig{
				Enabled:           cfg.RiskConfig.TrailingStopEnabled,
				TrailingPercent:   cfg.RiskConfig.TrailingStopPercent,
				ActivationPercent: cfg.RiskConfig.TrailingActivationPercent,
			},
		}, series[symbol], feed.Status, bot.NewTrendProvider(), nil,
			policy, riskMgrs[symbol], engine, adapter, eventBus, mirror, logger)
		bots = append(bots, b)
		b.Start()
	}

	// Propagate learner-applied parameters into every bot's engines.
	propagate := func(e events.Event) {
		applyParams(learner.Current(), policies, riskMgrs)
	}
	eventBus.Subscribe(events.EventConfigChanged, propagate)
	eventBus.Subscribe(events.EventConfigRolledBack, propagate)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, bots, adapter, learner, eventBus, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	// Wait for shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	for _, b := range bots {
		b.Stop()
	}
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API shutdown error")
		}
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info().Msg("Shutdown complete")
}

// loadCredentials prefers Vault; with Vault disabled the environment
// values already on the config are used as-is.
func loadCredentials(cfg *config.Config, vaultClient *vault.Client, logger zerolog.Logger) hyperliquid.Credentials {
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if data, err := vaultClient.GetCredentials(ctx, cfg.HyperliquidConfig.TestNet); err == nil {
			return hyperliquid.Credentials{
				PrivateKey:     data.PrivateKey,
				AccountAddress: data.AccountAddress,
			}
		} else {
			logger.Warn().Err(err).Msg("Vault credential lookup failed, falling back to environment")
		}
	}
	return hyperliquid.Credentials{
		PrivateKey:     cfg.HyperliquidConfig.PrivateKey,
		AccountAddress: cfg.HyperliquidConfig.AccountAddress,
	}
}

// buildAdapter selects paper or live execution per config.
func buildAdapter(cfg *config.Config, creds hyperliquid.Credentials,
	riskMgrs map[string]*risk.Manager, series map[string]*marketdata.Series,
	logger zerolog.Logger) hyperliquid.ExecutionAdapter {

	if cfg.TradingConfig.Mode == "live" {
		control := hyperliquid.NewControlState(cfg.HyperliquidConfig.LiveEnabled)
		return hyperliquid.NewLiveAdapter(hyperliquid.LiveConfig{
			BridgeCommand:  strings.Fields(cfg.HyperliquidConfig.BridgeCommand),
			CallTimeout:    time.Duration(cfg.HyperliquidConfig.CallTimeout) * time.Second,
			MaxLeverage:    cfg.RiskConfig.MaxLeverage,
			RequestsPerSec: cfg.HyperliquidConfig.RequestsPerSec,
		}, control, creds, worstDrawdown(riskMgrs), logger)
	}

	return hyperliquid.NewPaperAdapter(cfg.TradingConfig.InitialBalance, func(symbol string) (float64, error) {
		s, ok := series[symbol]
		if !ok {
			return 0, fmt.Errorf("no market data for %s", symbol)
		}
		last, ok := s.Last()
		if !ok {
			return 0, fmt.Errorf("no candles yet for %s", symbol)
		}
		return last.Close, nil
	})
}

// decisionConfig maps config fields onto the policy configuration.
func decisionConfig(cfg *config.Config) decision.Config {
	dc := decision.DefaultConfig()
	dc.MinConfirmations = cfg.DecisionConfig.MinConfirmations
	dc.MinConfidence = cfg.DecisionConfig.MinConfidence
	dc.RSIOverbought = cfg.DecisionConfig.RSIOverbought
	dc.RSIOversold = cfg.DecisionConfig.RSIOversold
	dc.EnableEMATrend = cfg.DecisionConfig.EnableEMATrend
	dc.EnableIchimoku = cfg.DecisionConfig.EnableIchimoku
	dc.EnableRSI = cfg.DecisionConfig.EnableRSI
	dc.EnableATRBand = cfg.DecisionConfig.EnableATRBand
	dc.EnableNewsGate = cfg.DecisionConfig.EnableNewsGate
	return dc
}

// worstDrawdown reports the highest current drawdown across the per-symbol
// risk engines, for the live adapter's independent drawdown gate.
func worstDrawdown(riskMgrs map[string]*risk.Manager) hyperliquid.DrawdownFunc {
	return func() (current, max float64) {
		for _, m := range riskMgrs {
			if st := m.State(); st.CurrentDrawdown > current {
				current = st.CurrentDrawdown
			}
			max = m.Config().MaxDrawdownPercent
		}
		return current, max
	}
}

// applyParams pushes a learner-updated parameter set into every bot's
// policy and risk engine.
func applyParams(p learning.BotParams, policies []*decision.Policy, riskMgrs map[string]*risk.Manager) {
	for _, policy := range policies {
		dc := policy.Config()
		dc.MinConfirmations = p.MinConfirmations
		dc.MinConfidence = p.MinConfidence
		dc.RSIOverbought = p.RSIOverbought
		dc.RSIOversold = p.RSIOversold
		policy.SetConfig(dc)
	}

	for _, riskMgr := range riskMgrs {
		rc := riskMgr.Config()
		rc.MaxPositionSizePercent = p.MaxPositionSizePercent
		rc.StopLossATRMultiplier = p.StopLossATRMultiplier
		rc.TakeProfitATRMultiplier = p.TakeProfitATRMultiplier
		rc.CooldownAfterLoss = time.Duration(p.CooldownAfterLossMinutes * float64(time.Minute))
		riskMgr.SetConfig(rc)
	}
}
