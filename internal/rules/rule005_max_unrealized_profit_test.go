package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

func seedWinningPosition(h *testHarness, accountID int64, contractID string, lastPrice float64) {
	h.State.ApplyPosition(domain.Position{
		AccountID:    accountID,
		ContractID:   contractID,
		Size:         2,
		Direction:    domain.DirectionLong,
		AveragePrice: 19000,
	})
	h.Quotes.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: lastPrice, LastUpdated: time.Now()})
}

func TestMaxUnrealizedProfitTargetTotalScopeBreach(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5})
	seedWinningPosition(h, 1, "CON.F.US.MNQ.U25", 19100) // (100/0.25)*0.5*2 = 400

	r := NewMaxUnrealizedProfit(config.MaxUnrealizedProfitConfig{Enabled: true, Mode: "profit_target", Scope: "total", Target: 300}, h.Deps)
	b := r.CheckQuote(1)
	require.NotNil(t, b)
	assert.True(t, b.Terminal)
}

func TestMaxUnrealizedProfitTargetPerPositionClosesThatPosition(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5})
	seedWinningPosition(h, 1, "CON.F.US.MNQ.U25", 19100)

	r := NewMaxUnrealizedProfit(config.MaxUnrealizedProfitConfig{Enabled: true, Mode: "profit_target", Scope: "per_position", Target: 300}, h.Deps)
	b := r.CheckQuote(1)
	require.NotNil(t, b)
	assert.False(t, b.Terminal)

	r.Enforce(context.Background(), 1, *b)
	assert.Equal(t, []string{"CON.F.US.MNQ.U25"}, h.Broker.closed)
}

func TestMaxUnrealizedProfitBreakevenClosesOnReturnToZero(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5})
	r := NewMaxUnrealizedProfit(config.MaxUnrealizedProfitConfig{Enabled: true, Mode: "breakeven", Scope: "per_position"}, h.Deps)

	// first in profit: no breach, but marks seen
	seedWinningPosition(h, 1, "CON.F.US.MNQ.U25", 19100)
	assert.Nil(t, r.CheckQuote(1))

	// now back to exactly entry price: pnl == 0, was previously profitable
	h.Quotes.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 19000, LastUpdated: time.Now()})
	b := r.CheckQuote(1)
	require.NotNil(t, b)
	assert.False(t, b.Terminal)
}

func TestMaxUnrealizedProfitBreakevenNoBreachWithoutPriorProfit(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5})
	r := NewMaxUnrealizedProfit(config.MaxUnrealizedProfitConfig{Enabled: true, Mode: "breakeven", Scope: "per_position"}, h.Deps)

	seedWinningPosition(h, 1, "CON.F.US.MNQ.U25", 19000)
	assert.Nil(t, r.CheckQuote(1))
}
