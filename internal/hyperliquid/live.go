package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"hyperliquid-trading-bot/internal/metrics"
)

// Credentials holds the signing material for live trading. Order signing
// is delegated to the bridge process, which wraps the official exchange
// SDK; the adapter never handles raw signatures.
type Credentials struct {
	PrivateKey     string
	AccountAddress string
}

// Valid reports whether the credentials are usable for signing.
func (c Credentials) Valid() bool {
	return c.PrivateKey != ""
}

// DrawdownFunc supplies the current and maximum drawdown at call time so
// the adapter can enforce the drawdown limit independently of upstream
// stages.
type DrawdownFunc func() (current, max float64)

// LiveConfig configures the live adapter.
type LiveConfig struct {
	BridgeCommand  []string      // e.g. ["python3", "scripts/hl_bridge.py"]
	CallTimeout    time.Duration // bound on each bridge invocation
	MaxLeverage    float64
	RequestsPerSec float64
}

// LiveAdapter places real orders on Hyperliquid through the bridge
// process. Every PlaceOrder re-checks the armed state, the drawdown limit
// and the leverage limit; arming is never a one-time bypass. Bridge calls
// run behind a rate limiter and a circuit breaker.
type LiveAdapter struct {
	cfg      LiveConfig
	control  *ControlState
	creds    Credentials
	drawdown DrawdownFunc
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

var _ ExecutionAdapter = (*LiveAdapter)(nil)

// NewLiveAdapter creates a live adapter bound to the shared control state.
func NewLiveAdapter(cfg LiveConfig, control *ControlState, creds Credentials, drawdown DrawdownFunc, logger zerolog.Logger) *LiveAdapter {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if len(cfg.BridgeCommand) == 0 {
		cfg.BridgeCommand = []string{"python3", "scripts/hl_bridge.py"}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hyperliquid-bridge",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &LiveAdapter{
		cfg:      cfg,
		control:  control,
		creds:    creds,
		drawdown: drawdown,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		breaker:  breaker,
		logger:   logger.With().Str("component", "LiveAdapter").Logger(),
	}
}

// Connect verifies the bridge responds by fetching the account balance.
func (a *LiveAdapter) Connect(ctx context.Context) error {
	_, err := a.GetAccountInfo(ctx)
	return err
}

// Disconnect is a no-op; the bridge is invoked per call.
func (a *LiveAdapter) Disconnect() error { return nil }

// Arm enables live order placement. Requires the environment-level live
// switch and valid credentials; anything less leaves the adapter disarmed.
func (a *LiveAdapter) Arm() error {
	if !a.control.LiveEnabled() {
		return errors.New("live trading is not enabled in this environment")
	}
	if a.control.KillSwitchActive() {
		return errors.New("kill switch is active")
	}
	if !a.creds.Valid() {
		return errors.New("no valid signing credentials configured")
	}
	a.control.SetArmed(true)
	a.logger.Warn().Msg("Live adapter ARMED")
	return nil
}

// Disarm always succeeds and is idempotent.
func (a *LiveAdapter) Disarm() {
	a.control.SetArmed(false)
	a.logger.Info().Msg("Live adapter disarmed")
}

// IsArmed reports the freshest armed state.
func (a *LiveAdapter) IsArmed() bool {
	return a.control.Armed() && !a.control.KillSwitchActive()
}

// GetSafetyStatus returns the current gate state for display.
func (a *LiveAdapter) GetSafetyStatus() SafetyStatus {
	maxDrawdown := 0.0
	if a.drawdown != nil {
		_, maxDrawdown = a.drawdown()
	}
	return SafetyStatus{
		LiveTradingEnabled: a.control.LiveEnabled(),
		Armed:              a.control.Armed(),
		KillSwitch:         a.control.KillSwitchActive(),
		MaxLeverage:        a.cfg.MaxLeverage,
		MaxDrawdownPercent: maxDrawdown,
	}
}

// PlaceOrder places a live order. The safety gate is evaluated on every
// call with the freshest control state.
func (a *LiveAdapter) PlaceOrder(ctx context.Context, req OrderRequest) OrderResult {
	if err := a.checkSafety(req); err != nil {
		a.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("Order rejected at safety gate")
		return OrderResult{Error: err.Error()}
	}

	var resp struct {
		Success bool    `json:"success"`
		Filled  bool    `json:"filled"`
		OrderID int64   `json:"oid"`
		AvgPx   float64 `json:"avgPx,string"`
		Error   string  `json:"error"`
	}
	if err := a.bridgeCall(ctx, bridgeOrderArgs(req), &resp); err != nil {
		return OrderResult{Error: err.Error()}
	}
	if !resp.Success {
		return OrderResult{Error: resp.Error}
	}

	status := "NEW"
	price := req.Price
	if resp.Filled {
		status = "FILLED"
		price = resp.AvgPx
	}
	return OrderResult{
		Success: true,
		Order: &Order{
			OrderID:   strconv.FormatInt(resp.OrderID, 10),
			Symbol:    req.Symbol,
			Side:      req.Side,
			Type:      req.Type,
			Quantity:  req.Quantity,
			Price:     price,
			Status:    status,
			CreatedAt: time.Now(),
		},
	}
}

// bridgeOrderArgs maps an order request onto the bridge command line.
// Stop orders use the trigger command, which places a reduce-only stop
// on the venue. Market and limit orders use the order command; it takes
// an optional limit price and nothing else, so reduce-only closes are
// sent as plain opposite-side orders and net against the position.
func bridgeOrderArgs(req OrderRequest) []string {
	if req.Type == OrderTypeStopMarket {
		return []string{"trigger", req.Symbol, sideArg(req.Side), formatQty(req.Quantity), "sl", formatQty(req.StopPrice)}
	}
	args := []string{"order", req.Symbol, sideArg(req.Side), formatQty(req.Quantity)}
	if req.Type == OrderTypeLimit && req.Price > 0 {
		args = append(args, formatQty(req.Price))
	}
	return args
}

// checkSafety is the second, independent enforcement layer behind the risk
// engine: it rejects regardless of what upstream stages computed.
func (a *LiveAdapter) checkSafety(req OrderRequest) error {
	if a.control.KillSwitchActive() {
		return errors.New("kill switch is active")
	}
	if !a.control.LiveEnabled() {
		return errors.New("live trading is not enabled in this environment")
	}
	if !a.control.Armed() {
		return errors.New("adapter is not armed")
	}
	if a.cfg.MaxLeverage > 0 && req.Leverage > a.cfg.MaxLeverage {
		return fmt.Errorf("requested leverage %.1fx exceeds maximum %.1fx", req.Leverage, a.cfg.MaxLeverage)
	}
	if a.drawdown != nil {
		current, max := a.drawdown()
		if max > 0 && current >= max {
			return fmt.Errorf("Max drawdown reached (%.1f%% >= %.0f%%)", current, max)
		}
	}
	return nil
}

// CancelOrder cancels one resting order.
func (a *LiveAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := a.bridgeCall(ctx, []string{"cancel", symbol, orderID}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// CancelAllOrders cancels all resting orders for a symbol.
func (a *LiveAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := a.bridgeCall(ctx, []string{"cancel_all", symbol}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// GetOpenOrders lists resting orders for a symbol.
func (a *LiveAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Orders  []struct {
			OrderID int64   `json:"oid"`
			Coin    string  `json:"coin"`
			Side    string  `json:"side"`
			Size    float64 `json:"size"`
			Price   float64 `json:"price"`
		} `json:"orders"`
	}
	if err := a.bridgeCall(ctx, []string{"open_orders"}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}

	// The bridge returns every open order on the account.
	orders := make([]Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		if symbol != "" && o.Coin != symbol {
			continue
		}
		side := SideBuy
		if o.Side == "sell" || o.Side == "SELL" {
			side = SideSell
		}
		orders = append(orders, Order{
			OrderID:  strconv.FormatInt(o.OrderID, 10),
			Symbol:   o.Coin,
			Side:     side,
			Type:     OrderTypeLimit,
			Quantity: o.Size,
			Price:    o.Price,
			Status:   "NEW",
		})
	}
	return orders, nil
}

// GetPositions returns all non-zero live positions.
func (a *LiveAdapter) GetPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		Positions []struct {
			Symbol        string  `json:"symbol"`
			Size          float64 `json:"size"`
			EntryPx       float64 `json:"entryPx"`
			UnrealizedPnL float64 `json:"unrealizedPnl"`
			Leverage      float64 `json:"leverage"`
		} `json:"positions"`
	}
	if err := a.bridgeCall(ctx, []string{"positions"}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}

	positions := make([]Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Size:          p.Size,
			EntryPrice:    p.EntryPx,
			UnrealizedPnL: p.UnrealizedPnL,
			Leverage:      p.Leverage,
		})
	}
	return positions, nil
}

// GetAccountInfo returns the account equity snapshot.
func (a *LiveAdapter) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var resp struct {
		Success      bool    `json:"success"`
		Error        string  `json:"error"`
		AccountValue float64 `json:"accountValue,string"`
		Withdrawable float64 `json:"withdrawable,string"`
	}
	if err := a.bridgeCall(ctx, []string{"balance"}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}
	return &AccountInfo{
		Equity:           resp.AccountValue,
		AvailableBalance: resp.Withdrawable,
	}, nil
}

// SetLeverage reports that per-symbol leverage is not adjustable through
// the bridge; the leverage limit is enforced per order at the safety gate.
func (a *LiveAdapter) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	if a.cfg.MaxLeverage > 0 && leverage > a.cfg.MaxLeverage {
		return fmt.Errorf("requested leverage %.1fx exceeds maximum %.1fx", leverage, a.cfg.MaxLeverage)
	}
	return fmt.Errorf("bridge does not support setting leverage for %s", symbol)
}

// bridgeCall invokes the bridge with a bounded timeout behind the rate
// limiter and circuit breaker, decoding the single-line JSON response.
func (a *LiveAdapter) bridgeCall(ctx context.Context, args []string, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	op := "call"
	if len(args) > 0 {
		op = args[0]
	}
	start := time.Now()
	defer func() {
		metrics.BridgeCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	raw, err := a.breaker.Execute(func() (any, error) {
		cmdArgs := append(append([]string{}, a.cfg.BridgeCommand[1:]...), a.credArgs()...)
		cmdArgs = append(cmdArgs, args...)
		cmd := exec.CommandContext(callCtx, a.cfg.BridgeCommand[0], cmdArgs...)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				// Unknown outcome: the order may have reached the venue.
				return nil, fmt.Errorf("bridge call timed out (outcome unknown): %w", callCtx.Err())
			}
			return nil, fmt.Errorf("bridge call failed: %w (%s)", err, stderr.String())
		}
		return stdout.Bytes(), nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(raw.([]byte), out)
}

func (a *LiveAdapter) credArgs() []string {
	args := []string{}
	if a.creds.PrivateKey != "" {
		args = append(args, "--agent-key="+a.creds.PrivateKey)
	}
	if a.creds.AccountAddress != "" {
		args = append(args, "--master="+a.creds.AccountAddress)
	}
	return args
}

func sideArg(s Side) string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
