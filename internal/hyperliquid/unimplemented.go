package hyperliquid

import "context"

// UnimplementedAdapter is the placeholder for venues that are not wired up
// yet. It satisfies ExecutionAdapter and uniformly reports
// ErrNotImplemented; it never partially succeeds or silently no-ops.
type UnimplementedAdapter struct{}

var _ ExecutionAdapter = (*UnimplementedAdapter)(nil)

func (UnimplementedAdapter) Connect(ctx context.Context) error { return ErrNotImplemented }
func (UnimplementedAdapter) Disconnect() error                 { return ErrNotImplemented }

func (UnimplementedAdapter) PlaceOrder(ctx context.Context, req OrderRequest) OrderResult {
	return OrderResult{Error: ErrNotImplemented.Error()}
}

func (UnimplementedAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return ErrNotImplemented
}

func (UnimplementedAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return ErrNotImplemented
}

func (UnimplementedAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	return nil, ErrNotImplemented
}

func (UnimplementedAdapter) GetPositions(ctx context.Context) ([]Position, error) {
	return nil, ErrNotImplemented
}

func (UnimplementedAdapter) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	return nil, ErrNotImplemented
}

func (UnimplementedAdapter) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return ErrNotImplemented
}

func (UnimplementedAdapter) Arm() error    { return ErrNotImplemented }
func (UnimplementedAdapter) Disarm()       {}
func (UnimplementedAdapter) IsArmed() bool { return false }
func (UnimplementedAdapter) GetSafetyStatus() SafetyStatus {
	return SafetyStatus{}
}
