// Package tracker mirrors open trades into Redis so a restarted process
// can see what was in flight when the previous one died. All methods are
// nil-safe: with no Redis client the tracker is a no-op.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/execution"
)

// Redis key layout
const (
	// openTradeKeyPrefix is the prefix for one open trade.
	// Format: hlbot:open_trade:{symbol}:{tradeID}
	openTradeKeyPrefix = "hlbot:open_trade"

	// openTradeListKey is the set of all open trade keys.
	openTradeListKey = "hlbot:open_trades:list"
)

// TradeTracker keeps a Redis copy of the execution engine's open trade
// table. It is a mirror, not a source of truth: the engine reconciles
// against live positions, the mirror only survives restarts.
type TradeTracker struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewTradeTracker creates a tracker. A nil client disables persistence.
func NewTradeTracker(client *redis.Client, logger zerolog.Logger) *TradeTracker {
	return &TradeTracker{
		client: client,
		logger: logger.With().Str("component", "TradeTracker").Logger(),
	}
}

// Enabled reports whether a Redis client is wired in.
func (t *TradeTracker) Enabled() bool {
	return t != nil && t.client != nil
}

// SaveTrade writes or overwrites one open trade in the mirror.
func (t *TradeTracker) SaveTrade(ctx context.Context, trade *execution.Trade) error {
	if !t.Enabled() {
		return nil
	}

	key := fmt.Sprintf("%s:%s:%s", openTradeKeyPrefix, trade.Symbol, trade.ID)

	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	if err := t.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store trade in Redis: %w", err)
	}
	if err := t.client.SAdd(ctx, openTradeListKey, key).Err(); err != nil {
		t.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Failed to index trade")
	}

	t.logger.Debug().Str("trade_id", trade.ID).Str("symbol", trade.Symbol).Msg("Trade mirrored")
	return nil
}

// RemoveTrade drops a trade from the mirror once it is closed or rejected.
func (t *TradeTracker) RemoveTrade(ctx context.Context, symbol, tradeID string) error {
	if !t.Enabled() {
		return nil
	}

	key := fmt.Sprintf("%s:%s:%s", openTradeKeyPrefix, symbol, tradeID)

	if err := t.client.Del(ctx, key).Err(); err != nil {
		t.logger.Warn().Err(err).Str("trade_id", tradeID).Msg("Failed to remove trade from Redis")
	}
	if err := t.client.SRem(ctx, openTradeListKey, key).Err(); err != nil {
		t.logger.Warn().Err(err).Str("trade_id", tradeID).Msg("Failed to unindex trade")
	}
	return nil
}

// OpenTrades returns every mirrored trade. Stale index entries whose keys
// have expired are pruned as a side effect.
func (t *TradeTracker) OpenTrades(ctx context.Context) ([]execution.Trade, error) {
	if !t.Enabled() {
		return nil, nil
	}

	keys, err := t.client.SMembers(ctx, openTradeListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}

	trades := make([]execution.Trade, 0, len(keys))
	for _, key := range keys {
		data, err := t.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			t.client.SRem(ctx, openTradeListKey, key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trade %s: %w", key, err)
		}

		var trade execution.Trade
		if err := json.Unmarshal(data, &trade); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("Dropping unreadable trade record")
			t.client.Del(ctx, key)
			t.client.SRem(ctx, openTradeListKey, key)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// Clear removes every mirrored trade.
func (t *TradeTracker) Clear(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	keys, err := t.client.SMembers(ctx, openTradeListKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list open trades: %w", err)
	}
	for _, key := range keys {
		t.client.Del(ctx, key)
	}
	return t.client.Del(ctx, openTradeListKey).Err()
}
