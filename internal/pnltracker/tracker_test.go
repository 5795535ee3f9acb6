package pnltracker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/contracts"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/quotes"
)

type fakePositions struct {
	byAccount map[int64][]domain.Position
}

func (f *fakePositions) OpenPositions(accountID int64) []domain.Position {
	return f.byAccount[accountID]
}

type recordingStore struct {
	saved []domain.DailyPnL
}

func (s *recordingStore) SaveDailyPnL(p domain.DailyPnL) error {
	s.saved = append(s.saved, p)
	return nil
}

type fixedFetcher struct {
	contract domain.Contract
}

func (f fixedFetcher) SearchContract(ctx context.Context, contractID string) (domain.Contract, error) {
	return f.contract, nil
}

func TestAddTradePnLAccumulates(t *testing.T) {
	store := &recordingStore{}
	tr := New(store, &fakePositions{}, contracts.New(nil), quotes.New(), zerolog.Nop())

	require.NoError(t, tr.AddTradePnL(1, "2026-07-31", 100))
	require.NoError(t, tr.AddTradePnL(1, "2026-07-31", -40))

	assert.Equal(t, 60.0, tr.RealizedPnL(1))
	assert.Len(t, store.saved, 2)
}

func TestAddTradePnLStartsFreshOnNewDate(t *testing.T) {
	tr := New(nil, &fakePositions{}, contracts.New(nil), quotes.New(), zerolog.Nop())

	require.NoError(t, tr.AddTradePnL(1, "2026-07-30", 500))
	require.NoError(t, tr.AddTradePnL(1, "2026-07-31", 10))

	assert.Equal(t, 10.0, tr.RealizedPnL(1))
}

func TestResetDailyZeroesAndReturnsPrevious(t *testing.T) {
	tr := New(nil, &fakePositions{}, contracts.New(nil), quotes.New(), zerolog.Nop())
	require.NoError(t, tr.AddTradePnL(1, "2026-07-31", 250))

	prev := tr.ResetDaily(1, "2026-08-01")
	assert.Equal(t, 250.0, prev.RealizedPnL)
	assert.Equal(t, 0.0, tr.RealizedPnL(1))
}

func TestCalculateUnrealizedLongPosition(t *testing.T) {
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 19000}},
	}}
	cc := contracts.New(fixedFetcher{contract: domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5}})
	_, err := cc.Get(context.Background(), "CON.F.US.MNQ.U25")
	require.NoError(t, err)

	q := quotes.New()
	q.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 19010, LastUpdated: time.Now()})

	tr := New(nil, positions, cc, q, zerolog.Nop())

	// (19010-19000)/0.25 = 40 ticks * 0.5 tickValue * 2 size = 40
	assert.Equal(t, 40.0, tr.CalculateUnrealized(1))
}

func TestCalculateUnrealizedShortPositionFlipsSign(t *testing.T) {
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionShort, Size: 2, AveragePrice: 19000}},
	}}
	cc := contracts.New(fixedFetcher{contract: domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5}})
	_, err := cc.Get(context.Background(), "CON.F.US.MNQ.U25")
	require.NoError(t, err)

	q := quotes.New()
	q.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 19010, LastUpdated: time.Now()})

	tr := New(nil, positions, cc, q, zerolog.Nop())

	assert.Equal(t, -40.0, tr.CalculateUnrealized(1))
}

func TestCalculateUnrealizedSkipsMissingContract(t *testing.T) {
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 19000}},
	}}
	tr := New(nil, positions, contracts.New(nil), quotes.New(), zerolog.Nop())

	assert.Equal(t, 0.0, tr.CalculateUnrealized(1))
	assert.Empty(t, tr.CalculatePerPosition(1))
}

func TestCalculateUnrealizedSkipsMissingQuote(t *testing.T) {
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 19000}},
	}}
	cc := contracts.New(fixedFetcher{contract: domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0.25, TickValue: 0.5}})
	_, err := cc.Get(context.Background(), "CON.F.US.MNQ.U25")
	require.NoError(t, err)

	tr := New(nil, positions, cc, quotes.New(), zerolog.Nop())
	assert.Equal(t, 0.0, tr.CalculateUnrealized(1))
	assert.Empty(t, tr.CalculatePerPosition(1))
}

func TestCalculateUnrealizedSkipsZeroTickSize(t *testing.T) {
	positions := &fakePositions{byAccount: map[int64][]domain.Position{
		1: {{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Direction: domain.DirectionLong, Size: 2, AveragePrice: 19000}},
	}}
	cc := contracts.New(fixedFetcher{contract: domain.Contract{ContractID: "CON.F.US.MNQ.U25", SymbolRoot: "MNQ", TickSize: 0, TickValue: 0.5}})
	_, err := cc.Get(context.Background(), "CON.F.US.MNQ.U25")
	require.NoError(t, err)

	q := quotes.New()
	q.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 19010, LastUpdated: time.Now()})

	tr := New(nil, positions, cc, q, zerolog.Nop())
	assert.Equal(t, 0.0, tr.CalculateUnrealized(1))
}
