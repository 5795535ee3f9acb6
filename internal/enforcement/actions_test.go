package enforcement

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

type fakeBroker struct {
	closeErr  error
	cancelErr error
	placeErr  error
	modifyErr error

	closed  []string
	cancels []string
	placed  []domain.PlaceOrderRequest
	modify  []string
}

func (f *fakeBroker) ClosePosition(ctx context.Context, accountID int64, contractID string) error {
	f.closed = append(f.closed, contractID)
	return f.closeErr
}

func (f *fakeBroker) CancelOrder(ctx context.Context, accountID int64, orderID string) error {
	f.cancels = append(f.cancels, orderID)
	return f.cancelErr
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (string, error) {
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return "order-1", nil
}

func (f *fakeBroker) ModifyOrder(ctx context.Context, accountID int64, orderID string, newStopPrice *float64) error {
	f.modify = append(f.modify, orderID)
	return f.modifyErr
}

func (f *fakeBroker) SearchOpenPositions(ctx context.Context, accountID int64) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakeBroker) SearchContract(ctx context.Context, contractID string) (domain.Contract, error) {
	return domain.Contract{}, nil
}

func (f *fakeBroker) AccountStatus(ctx context.Context, accountID int64) (bool, error) {
	return true, nil
}

func (f *fakeBroker) IsConnected() bool { return true }

type fakePositions struct {
	byAccount map[int64][]domain.Position
}

func (f *fakePositions) OpenPositions(accountID int64) []domain.Position {
	return f.byAccount[accountID]
}

type fakeOrders struct {
	byAccount map[int64][]domain.Order
}

func (f *fakeOrders) ActiveOrders(accountID int64) []domain.Order {
	return f.byAccount[accountID]
}

type recordingLogStore struct {
	entries []domain.EnforcementLogEntry
}

func (s *recordingLogStore) SaveEnforcementLogEntry(e domain.EnforcementLogEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestCloseAllPositionsClosesEveryOpenPosition(t *testing.T) {
	broker := &fakeBroker{}
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{ContractID: "c1", Size: 2}, {ContractID: "c2", Size: 1}, {ContractID: "c3", Size: 0}},
	}}
	logs := &recordingLogStore{}
	a := New(broker, positions, &fakeOrders{}, logs, zerolog.Nop())

	res := a.CloseAllPositions(context.Background(), "RULE-001", 1, "over limit")

	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Attempted)
	assert.ElementsMatch(t, []string{"c1", "c2"}, broker.closed)
	require.Len(t, logs.entries, 1)
	assert.True(t, logs.entries[0].Success)
}

func TestCloseAllPositionsNoOpWhenAlreadyFlat(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker, &fakePositions{}, &fakeOrders{}, nil, zerolog.Nop())

	res := a.CloseAllPositions(context.Background(), "RULE-001", 1, "n/a")

	assert.True(t, res.OK())
	assert.Equal(t, 0, res.Attempted)
	assert.Empty(t, broker.closed)
}

func TestCloseAllPositionsRecordsPerLegFailure(t *testing.T) {
	broker := &fakeBroker{closeErr: errors.New("rejected")}
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{ContractID: "c1", Size: 2}},
	}}
	logs := &recordingLogStore{}
	a := New(broker, positions, &fakeOrders{}, logs, zerolog.Nop())

	res := a.CloseAllPositions(context.Background(), "RULE-001", 1, "over limit")

	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 0, res.Succeeded)
	require.Len(t, logs.entries, 1)
	assert.False(t, logs.entries[0].Success)
}

func TestCancelAllOrdersCancelsEveryActiveOrder(t *testing.T) {
	broker := &fakeBroker{}
	orders := &fakeOrders{byAccount: map[int64][]domain.Order{
		1: {{OrderID: "o1"}, {OrderID: "o2"}},
	}}
	a := New(broker, &fakePositions{}, orders, nil, zerolog.Nop())

	res := a.CancelAllOrders(context.Background(), "RULE-005", 1, "daily loss")

	assert.True(t, res.OK())
	assert.ElementsMatch(t, []string{"o1", "o2"}, broker.cancels)
}

func TestReducePositionPlacesOpposingMarketOrder(t *testing.T) {
	broker := &fakeBroker{}
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{ContractID: "c1", Direction: domain.DirectionLong, Size: 5}},
	}}
	a := New(broker, positions, &fakeOrders{}, nil, zerolog.Nop())

	err := a.ReducePosition(context.Background(), "RULE-002", 1, "c1", 2, "per-instrument limit")

	require.NoError(t, err)
	require.Len(t, broker.placed, 1)
	assert.Equal(t, domain.OrderSideSell, broker.placed[0].Side)
	assert.Equal(t, 2.0, broker.placed[0].Size)
	assert.Empty(t, broker.closed)
}

func TestReducePositionShortSideOpposesWithBuy(t *testing.T) {
	broker := &fakeBroker{}
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{ContractID: "c1", Direction: domain.DirectionShort, Size: 5}},
	}}
	a := New(broker, positions, &fakeOrders{}, nil, zerolog.Nop())

	err := a.ReducePosition(context.Background(), "RULE-002", 1, "c1", 2, "per-instrument limit")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderSideBuy, broker.placed[0].Side)
}

func TestReducePositionBeyondSizeClosesInstead(t *testing.T) {
	broker := &fakeBroker{}
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{ContractID: "c1", Direction: domain.DirectionLong, Size: 5}},
	}}
	a := New(broker, positions, &fakeOrders{}, nil, zerolog.Nop())

	err := a.ReducePosition(context.Background(), "RULE-002", 1, "c1", 10, "per-instrument limit")

	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, broker.closed)
	assert.Empty(t, broker.placed)
}

func TestPlaceStopLossReturnsOrderID(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker, &fakePositions{}, &fakeOrders{}, nil, zerolog.Nop())

	orderID, err := a.PlaceStopLoss(context.Background(), "RULE-012", 1, "c1", 2, 19000, domain.OrderSideSell)

	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
	require.Len(t, broker.placed, 1)
	assert.Equal(t, domain.OrderTypeStop, broker.placed[0].Type)
}

func TestModifyStopLossCallsBrokerWithNewPrice(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker, &fakePositions{}, &fakeOrders{}, nil, zerolog.Nop())

	err := a.ModifyStopLoss(context.Background(), "RULE-012", 1, "order-1", 19050)

	require.NoError(t, err)
	assert.Equal(t, []string{"order-1"}, broker.modify)
}
