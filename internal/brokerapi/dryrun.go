package brokerapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// DryRunClient decorates a domain.BrokerClient so every mutating call (§12.6
// dry-run mode) logs what would have been sent and returns a synthetic
// success instead of reaching the brokerage. Read-only calls pass through
// untouched, so rule evaluators still see real positions/contracts/quotes
// and downstream state mutation runs exactly as it would in live mode.
type DryRunClient struct {
	real domain.BrokerClient
	log  zerolog.Logger
}

// NewDryRunClient wraps real for --dry-run mode.
func NewDryRunClient(real domain.BrokerClient, log zerolog.Logger) *DryRunClient {
	return &DryRunClient{real: real, log: log.With().Str("component", "dryrun").Logger()}
}

func (d *DryRunClient) ClosePosition(ctx context.Context, accountID int64, contractID string) error {
	d.log.Info().
		Str("action", "close_position").
		Int64("account_id", accountID).
		Str("contract_id", contractID).
		Msg("dry-run: would close position")
	return nil
}

func (d *DryRunClient) CancelOrder(ctx context.Context, accountID int64, orderID string) error {
	d.log.Info().
		Str("action", "cancel_order").
		Int64("account_id", accountID).
		Str("order_id", orderID).
		Msg("dry-run: would cancel order")
	return nil
}

func (d *DryRunClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (string, error) {
	d.log.Info().
		Str("action", "place_order").
		Int64("account_id", req.AccountID).
		Str("contract_id", req.ContractID).
		Str("type", req.Type.String()).
		Str("side", req.Side.String()).
		Float64("size", req.Size).
		Msg("dry-run: would place order")
	return "dryrun-" + uuid.NewString(), nil
}

func (d *DryRunClient) ModifyOrder(ctx context.Context, accountID int64, orderID string, newStopPrice *float64) error {
	d.log.Info().
		Str("action", "modify_order").
		Int64("account_id", accountID).
		Str("order_id", orderID).
		Msg("dry-run: would modify order")
	return nil
}

func (d *DryRunClient) SearchOpenPositions(ctx context.Context, accountID int64) ([]domain.Position, error) {
	return d.real.SearchOpenPositions(ctx, accountID)
}

func (d *DryRunClient) SearchContract(ctx context.Context, contractID string) (domain.Contract, error) {
	return d.real.SearchContract(ctx, contractID)
}

func (d *DryRunClient) AccountStatus(ctx context.Context, accountID int64) (bool, error) {
	return d.real.AccountStatus(ctx, accountID)
}

func (d *DryRunClient) IsConnected() bool {
	return d.real.IsConnected()
}
