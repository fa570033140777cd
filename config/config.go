package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HyperliquidConfig HyperliquidConfig `json:"hyperliquid"`
	TradingConfig     TradingConfig     `json:"trading"`
	DecisionConfig    DecisionConfig    `json:"decision"`
	RiskConfig        RiskConfig        `json:"risk"`
	LoggingConfig     LoggingConfig     `json:"logging"`
	ServerConfig      ServerConfig      `json:"server"`
	VaultConfig       VaultConfig       `json:"vault"`
	RedisConfig       RedisConfig       `json:"redis"`
}

// HyperliquidConfig holds exchange connectivity and live-trading settings.
// PrivateKey is never read from the config file; it comes from Vault or,
// when Vault is disabled, from the environment only.
type HyperliquidConfig struct {
	APIURL         string  `json:"api_url"`
	WSURL          string  `json:"ws_url"`
	BridgeCommand  string  `json:"bridge_command"` // path to the signing bridge binary
	TestNet        bool    `json:"testnet"`
	LiveEnabled    bool    `json:"live_enabled"` // master switch, env only
	AccountAddress string  `json:"account_address"`
	PrivateKey     string  `json:"-"`
	RequestsPerSec float64 `json:"requests_per_sec"`
	CallTimeout    int     `json:"call_timeout"` // Seconds per bridge call
}

type TradingConfig struct {
	Symbols              []string `json:"symbols"`
	Timeframe            string   `json:"timeframe"` // "1m", "1h", "1d", "1w"
	Mode                 string   `json:"mode"`      // "paper" or "live"
	Leverage             int      `json:"leverage"`
	InitialBalance       float64  `json:"initial_balance"` // Paper mode starting equity
	FeeRate              float64  `json:"fee_rate"`
	DecisionIntervalSecs int      `json:"decision_interval_secs"`
}

type DecisionConfig struct {
	MinConfirmations int     `json:"min_confirmations"`
	MinConfidence    float64 `json:"min_confidence"`
	RSIOverbought    float64 `json:"rsi_overbought"`
	RSIOversold      float64 `json:"rsi_oversold"`
	EnableEMATrend   bool    `json:"enable_ema_trend"`
	EnableIchimoku   bool    `json:"enable_ichimoku"`
	EnableRSI        bool    `json:"enable_rsi"`
	EnableATRBand    bool    `json:"enable_atr_band"`
	EnableNewsGate   bool    `json:"enable_news_gate"`
}

type RiskConfig struct {
	MaxPositionSizePercent   float64 `json:"max_position_size_percent"`
	MaxLeverage              float64 `json:"max_leverage"`
	MaxDrawdownPercent       float64 `json:"max_drawdown_percent"`
	MaxDailyLossPercent      float64 `json:"max_daily_loss_percent"`
	MaxOpenPositions         int     `json:"max_open_positions"`
	StopLossATRMultiplier    float64 `json:"stop_loss_atr_multiplier"`
	TakeProfitATRMultiplier  float64 `json:"take_profit_atr_multiplier"`
	CooldownAfterLossMinutes int     `json:"cooldown_after_loss_minutes"`

	TrailingStopEnabled       bool    `json:"trailing_stop_enabled"`
	TrailingStopPercent       float64 `json:"trailing_stop_percent"`
	TrailingActivationPercent float64 `json:"trailing_activation_percent"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for exchange credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the trade tracker
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// Seed defaults, then layer the config file on top so omitted keys
	// keep their defaults. A missing file leaves the defaults as-is.
	cfg := defaultConfig()
	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig seeds the boolean defaults a zero struct cannot express.
// Without these, a missing config file would leave every confirmation
// disabled while min_confirmations still demands three, blocking all
// entries.
func defaultConfig() *Config {
	return &Config{
		DecisionConfig: DecisionConfig{
			EnableEMATrend: true,
			EnableIchimoku: true,
			EnableRSI:      true,
			EnableATRBand:  true,
		},
		RiskConfig: RiskConfig{
			TrailingStopEnabled: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// HL_LIVE_ENABLED and HL_PRIVATE_KEY are environment-only: the config file
// can never arm live trading or carry signing material.
func applyEnvOverrides(cfg *Config) {
	// Hyperliquid config
	cfg.HyperliquidConfig.APIURL = getEnvOrDefault("HL_API_URL", cfg.HyperliquidConfig.APIURL)
	if cfg.HyperliquidConfig.APIURL == "" {
		cfg.HyperliquidConfig.APIURL = "https://api.hyperliquid.xyz"
	}
	cfg.HyperliquidConfig.WSURL = getEnvOrDefault("HL_WS_URL", cfg.HyperliquidConfig.WSURL)
	if cfg.HyperliquidConfig.WSURL == "" {
		cfg.HyperliquidConfig.WSURL = "wss://api.hyperliquid.xyz/ws"
	}
	cfg.HyperliquidConfig.BridgeCommand = getEnvOrDefault("HL_BRIDGE_COMMAND", cfg.HyperliquidConfig.BridgeCommand)
	if cfg.HyperliquidConfig.BridgeCommand == "" {
		cfg.HyperliquidConfig.BridgeCommand = "hl-bridge"
	}
	cfg.HyperliquidConfig.TestNet = getEnvOrDefault("HL_TESTNET", "false") == "true"
	cfg.HyperliquidConfig.LiveEnabled = getEnvOrDefault("HL_LIVE_ENABLED", "false") == "true"
	cfg.HyperliquidConfig.AccountAddress = getEnvOrDefault("HL_ACCOUNT_ADDRESS", cfg.HyperliquidConfig.AccountAddress)
	cfg.HyperliquidConfig.PrivateKey = getEnvOrDefault("HL_PRIVATE_KEY", "")
	if cfg.HyperliquidConfig.RequestsPerSec == 0 {
		cfg.HyperliquidConfig.RequestsPerSec = 5
	}
	if cfg.HyperliquidConfig.CallTimeout == 0 {
		cfg.HyperliquidConfig.CallTimeout = 10
	}

	// Trading config
	if len(cfg.TradingConfig.Symbols) == 0 {
		cfg.TradingConfig.Symbols = []string{"BTC"}
	}
	cfg.TradingConfig.Timeframe = getEnvOrDefault("TRADING_TIMEFRAME", defaultString(cfg.TradingConfig.Timeframe, "1h"))
	cfg.TradingConfig.Mode = getEnvOrDefault("TRADING_MODE", defaultString(cfg.TradingConfig.Mode, "paper"))
	if cfg.TradingConfig.Leverage == 0 {
		cfg.TradingConfig.Leverage = 3
	}
	if cfg.TradingConfig.InitialBalance == 0 {
		cfg.TradingConfig.InitialBalance = 10000
	}
	if cfg.TradingConfig.FeeRate == 0 {
		cfg.TradingConfig.FeeRate = 0.00045
	}
	cfg.TradingConfig.DecisionIntervalSecs = getEnvIntOrDefault("TRADING_DECISION_INTERVAL", defaultInt(cfg.TradingConfig.DecisionIntervalSecs, 60))

	// Decision config
	if cfg.DecisionConfig.MinConfirmations == 0 {
		cfg.DecisionConfig.MinConfirmations = 3
	}
	if cfg.DecisionConfig.MinConfidence == 0 {
		cfg.DecisionConfig.MinConfidence = 60
	}
	if cfg.DecisionConfig.RSIOverbought == 0 {
		cfg.DecisionConfig.RSIOverbought = 70
	}
	if cfg.DecisionConfig.RSIOversold == 0 {
		cfg.DecisionConfig.RSIOversold = 30
	}

	// Risk config
	if cfg.RiskConfig.MaxPositionSizePercent == 0 {
		cfg.RiskConfig.MaxPositionSizePercent = 2
	}
	if cfg.RiskConfig.MaxLeverage == 0 {
		cfg.RiskConfig.MaxLeverage = 5
	}
	if cfg.RiskConfig.MaxDrawdownPercent == 0 {
		cfg.RiskConfig.MaxDrawdownPercent = 10
	}
	if cfg.RiskConfig.MaxDailyLossPercent == 0 {
		cfg.RiskConfig.MaxDailyLossPercent = 5
	}
	if cfg.RiskConfig.MaxOpenPositions == 0 {
		cfg.RiskConfig.MaxOpenPositions = 3
	}
	if cfg.RiskConfig.StopLossATRMultiplier == 0 {
		cfg.RiskConfig.StopLossATRMultiplier = 2
	}
	if cfg.RiskConfig.TakeProfitATRMultiplier == 0 {
		cfg.RiskConfig.TakeProfitATRMultiplier = 3
	}
	if cfg.RiskConfig.CooldownAfterLossMinutes == 0 {
		cfg.RiskConfig.CooldownAfterLossMinutes = 15
	}
	if cfg.RiskConfig.TrailingStopPercent == 0 {
		cfg.RiskConfig.TrailingStopPercent = 1.5
	}
	if cfg.RiskConfig.TrailingActivationPercent == 0 {
		cfg.RiskConfig.TrailingActivationPercent = 1
	}

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("WEB_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "trading-bot/hyperliquid")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
}

// Validate rejects configurations that cannot run safely.
func (c *Config) Validate() error {
	if c.TradingConfig.Mode != "paper" && c.TradingConfig.Mode != "live" {
		return fmt.Errorf("invalid trading mode %q (want paper or live)", c.TradingConfig.Mode)
	}
	if c.TradingConfig.Mode == "live" && !c.HyperliquidConfig.LiveEnabled {
		return fmt.Errorf("trading mode is live but HL_LIVE_ENABLED is not set")
	}
	if _, err := time.ParseDuration(normalizeTimeframe(c.TradingConfig.Timeframe)); err != nil {
		return fmt.Errorf("invalid timeframe %q", c.TradingConfig.Timeframe)
	}
	if float64(c.TradingConfig.Leverage) > c.RiskConfig.MaxLeverage {
		return fmt.Errorf("trading leverage %d exceeds risk max leverage %.0f",
			c.TradingConfig.Leverage, c.RiskConfig.MaxLeverage)
	}
	if c.DecisionConfig.MinConfirmations < 1 || c.DecisionConfig.MinConfirmations > 5 {
		return fmt.Errorf("min_confirmations %d out of range [1,5]", c.DecisionConfig.MinConfirmations)
	}
	if c.RiskConfig.MaxPositionSizePercent <= 0 || c.RiskConfig.MaxPositionSizePercent > 100 {
		return fmt.Errorf("max_position_size_percent %.2f out of range (0,100]", c.RiskConfig.MaxPositionSizePercent)
	}
	return nil
}

// normalizeTimeframe maps exchange intervals to Go duration strings.
func normalizeTimeframe(tf string) string {
	switch tf {
	case "1m":
		return "1m"
	case "1h":
		return "1h"
	case "1d":
		return "24h"
	case "1w":
		return "168h"
	default:
		return tf
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		HyperliquidConfig: HyperliquidConfig{
			APIURL:         "https://api.hyperliquid.xyz",
			WSURL:          "wss://api.hyperliquid.xyz/ws",
			BridgeCommand:  "hl-bridge",
			TestNet:        true,
			RequestsPerSec: 5,
			CallTimeout:    10,
		},
		TradingConfig: TradingConfig{
			Symbols:              []string{"BTC", "ETH"},
			Timeframe:            "1h",
			Mode:                 "paper",
			Leverage:             3,
			InitialBalance:       10000,
			FeeRate:              0.00045,
			DecisionIntervalSecs: 60,
		},
		DecisionConfig: DecisionConfig{
			MinConfirmations: 3,
			MinConfidence:    60,
			RSIOverbought:    70,
			RSIOversold:      30,
			EnableEMATrend:   true,
			EnableIchimoku:   true,
			EnableRSI:        true,
			EnableATRBand:    true,
			EnableNewsGate:   false,
		},
		RiskConfig: RiskConfig{
			MaxPositionSizePercent:    2.0,
			MaxLeverage:               5,
			MaxDrawdownPercent:        10,
			MaxDailyLossPercent:       5,
			MaxOpenPositions:          3,
			StopLossATRMultiplier:     2,
			TakeProfitATRMultiplier:   3,
			CooldownAfterLossMinutes:  15,
			TrailingStopEnabled:       true,
			TrailingStopPercent:       1.5,
			TrailingActivationPercent: 1,
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
		ServerConfig: ServerConfig{
			Enabled:        true,
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: "*",
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
