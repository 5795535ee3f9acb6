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

func TestSymbolBlocksNoBreachForUnlistedSymbol(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.ES.U25", SymbolRoot: "ES"})
	r := NewSymbolBlocks(config.SymbolBlocksConfig{Enabled: true, BlockedSymbols: []string{"MNQ"}}, h.Deps)
	assert.Nil(t, r.CheckPosition(1, "CON.F.US.ES.U25"))
}

func TestSymbolBlocksBreachOnPosition(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ"})
	r := NewSymbolBlocks(config.SymbolBlocksConfig{Enabled: true, BlockedSymbols: []string{"MNQ"}}, h.Deps)

	b := r.CheckPosition(1, "CON.F.US.MNQ.U25")
	require.NotNil(t, b)
	assert.Equal(t, "position", b.ObservedMetrics["kind"])
}

func TestSymbolBlocksBreachOnOrder(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ"})
	r := NewSymbolBlocks(config.SymbolBlocksConfig{Enabled: true, BlockedSymbols: []string{"MNQ"}}, h.Deps)

	b := r.CheckOrder(1, "order-9", "CON.F.US.MNQ.U25")
	require.NotNil(t, b)
	assert.Equal(t, "order", b.ObservedMetrics["kind"])
	assert.Equal(t, "order-9", b.ObservedMetrics["order_id"])
}

func TestSymbolBlocksEnforceOrderCancelsOnlyThatOrder(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ"})
	// An unrelated active order must survive.
	h.State.ApplyOrder(domain.Order{OrderID: "order-unrelated", AccountID: 1, State: domain.OrderStateActive})

	r := NewSymbolBlocks(config.SymbolBlocksConfig{Enabled: true, BlockedSymbols: []string{"MNQ"}}, h.Deps)
	b := r.CheckOrder(1, "order-9", "CON.F.US.MNQ.U25")
	require.NotNil(t, b)

	r.Enforce(context.Background(), 1, *b)
	assert.Equal(t, []string{"order-9"}, h.Broker.cancels)
}

func TestSymbolBlocksEnforcePositionClosesAndLocksSymbolOnly(t *testing.T) {
	h := newHarness(domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ"})
	r := NewSymbolBlocks(config.SymbolBlocksConfig{Enabled: true, BlockedSymbols: []string{"MNQ"}}, h.Deps)

	b := r.CheckPosition(1, "CON.F.US.MNQ.U25")
	require.NotNil(t, b)
	r.Enforce(context.Background(), 1, *b)

	assert.Equal(t, []string{"CON.F.US.MNQ.U25"}, h.Broker.closed)
	assert.True(t, h.Deps.Lockouts.IsSymbolLocked(1, "MNQ", time.Now()))
	assert.False(t, h.Deps.Lockouts.IsLockedOut(1, time.Now()))
}
