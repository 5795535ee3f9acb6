package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

func TestTradeManagementBreakevenTriggersAtProfitTarget(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, ProfitTriggerTicks: 10, OffsetTicks: 2}, h.Deps)

	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 21000})

	// 10 ticks of 0.25 = 2.50 profit.
	b := r.CheckQuote(1, "CON.F.US.MNQ.U25", 21002.50)
	require.NotNil(t, b)
	assert.Equal(t, "apply_breakeven", b.ObservedMetrics["action"])
	assert.InDelta(t, 21000.50, b.ObservedMetrics["stop_price"].(float64), 1e-9)
}

func TestTradeManagementBreakevenOnlyAppliesOnce(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, ProfitTriggerTicks: 10, OffsetTicks: 0}, h.Deps)
	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 21000})

	require.NotNil(t, r.CheckQuote(1, "CON.F.US.MNQ.U25", 21003.00))
	assert.Nil(t, r.CheckQuote(1, "CON.F.US.MNQ.U25", 21010.00))
}

func TestTradeManagementBreakevenSkipsManualStopWhenRespected(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, ProfitTriggerTicks: 10, RespectManualStops: true}, h.Deps)
	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 21000})
	r.OnStopOrderObserved(1, "CON.F.US.MNQ.U25", "manual-order", true)

	assert.Nil(t, r.CheckQuote(1, "CON.F.US.MNQ.U25", 21010.00))
}

func TestTradeManagementTrailingStopAdvancesOnFavorableTicksOnly(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, TrailingActive: true, TrailDistanceTicks: 10}, h.Deps)
	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 21000})
	r.OnStopOrderObserved(1, "CON.F.US.MNQ.U25", "stop-1", false)

	b1 := r.CheckQuote(1, "CON.F.US.MNQ.U25", 21005.00)
	require.NotNil(t, b1)
	assert.InDelta(t, 21002.50, b1.ObservedMetrics["new_stop_price"].(float64), 1e-9)

	b2 := r.CheckQuote(1, "CON.F.US.MNQ.U25", 21010.00)
	require.NotNil(t, b2)
	assert.InDelta(t, 21007.50, b2.ObservedMetrics["new_stop_price"].(float64), 1e-9)

	// An unfavorable tick produces no update.
	assert.Nil(t, r.CheckQuote(1, "CON.F.US.MNQ.U25", 21008.00))
}

func TestTradeManagementEnforceAppliesBreakevenStop(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, ProfitTriggerTicks: 10}, h.Deps)
	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 21000})

	b := r.CheckQuote(1, "CON.F.US.MNQ.U25", 21003.00)
	require.NotNil(t, b)
	r.Enforce(context.Background(), 1, *b)

	require.Len(t, h.Broker.placed, 1)
	assert.Equal(t, domain.OrderSideSell, h.Broker.placed[0].Side)
	assert.Equal(t, domain.OrderTypeStop, h.Broker.placed[0].Type)
}

func TestTradeManagementEnforceModifiesTrailingStop(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, TrailingActive: true, TrailDistanceTicks: 10}, h.Deps)
	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 21000})
	r.OnStopOrderObserved(1, "CON.F.US.MNQ.U25", "stop-1", false)

	b := r.CheckQuote(1, "CON.F.US.MNQ.U25", 21005.00)
	require.NotNil(t, b)
	r.Enforce(context.Background(), 1, *b)

	assert.InDelta(t, 21002.50, h.Broker.modify["stop-1"], 1e-9)
}

func TestTradeManagementShortPositionMirrorsLogic(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25})
	r := NewTradeManagement(config.TradeManagementConfig{Enabled: true, ProfitTriggerTicks: 10, OffsetTicks: 0}, h.Deps)
	r.OnPositionOpened(1, "CON.F.US.MNQ.U25", domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionShort, Size: 2, AveragePrice: 21000})

	// price falling is favorable for a short: 10 ticks * 0.25 = 2.50 below entry
	b := r.CheckQuote(1, "CON.F.US.MNQ.U25", 20997.50)
	require.NotNil(t, b)
	assert.Equal(t, "apply_breakeven", b.ObservedMetrics["action"])
	assert.InDelta(t, 21000.00, b.ObservedMetrics["stop_price"].(float64), 1e-9)
}
