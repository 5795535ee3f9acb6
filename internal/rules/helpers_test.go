package rules

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/contracts"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/enforcement"
	"github.com/riskd/sentinel-risk-daemon/internal/lockout"
	"github.com/riskd/sentinel-risk-daemon/internal/pnltracker"
	"github.com/riskd/sentinel-risk-daemon/internal/quotes"
	"github.com/riskd/sentinel-risk-daemon/internal/state"
	"github.com/riskd/sentinel-risk-daemon/internal/timers"
	"github.com/riskd/sentinel-risk-daemon/internal/tradecounter"
)

// fakeBroker is the shared domain.BrokerClient double every rule test
// builds its Deps.Enforcement on. It records every call so tests can assert
// on what enforcement actually did.
type fakeBroker struct {
	closed  []string
	cancels []string
	placed  []domain.PlaceOrderRequest
	modify  map[string]float64

	closeErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{modify: make(map[string]float64)}
}

func (f *fakeBroker) ClosePosition(ctx context.Context, accountID int64, contractID string) error {
	f.closed = append(f.closed, contractID)
	return f.closeErr
}

func (f *fakeBroker) CancelOrder(ctx context.Context, accountID int64, orderID string) error {
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (string, error) {
	f.placed = append(f.placed, req)
	return "order-1", nil
}

func (f *fakeBroker) ModifyOrder(ctx context.Context, accountID int64, orderID string, newStopPrice *float64) error {
	if newStopPrice != nil {
		f.modify[orderID] = *newStopPrice
	}
	return nil
}

func (f *fakeBroker) SearchOpenPositions(ctx context.Context, accountID int64) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakeBroker) SearchContract(ctx context.Context, contractID string) (domain.Contract, error) {
	return domain.Contract{ContractID: contractID}, nil
}

func (f *fakeBroker) AccountStatus(ctx context.Context, accountID int64) (bool, error) {
	return true, nil
}

func (f *fakeBroker) IsConnected() bool { return true }

var _ domain.BrokerClient = (*fakeBroker)(nil)

// fakeLogStore records every enforcement log entry without persisting
// anything.
type fakeLogStore struct {
	entries []domain.EnforcementLogEntry
}

func (f *fakeLogStore) SaveEnforcementLogEntry(e domain.EnforcementLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

// testHarness bundles a fully wired Deps with the fakes a test needs direct
// access to.
type testHarness struct {
	Deps    *Deps
	Broker  *fakeBroker
	Logs    *fakeLogStore
	State   *state.Manager
	Quotes  *quotes.Tracker
	Contracts *contracts.Cache
}

// fixedFetcher serves pre-registered contracts by id and otherwise returns
// a zero-value contract with a 0.25 default tick size.
type fixedFetcher struct {
	byID map[string]domain.Contract
}

func (f fixedFetcher) SearchContract(ctx context.Context, contractID string) (domain.Contract, error) {
	if c, ok := f.byID[contractID]; ok {
		return c, nil
	}
	return domain.Contract{ContractID: contractID, SymbolRoot: domain.SymbolRoot(contractID), TickSize: 0.25}, nil
}

// newHarness builds a Deps wired with real, in-memory components (state,
// quotes, contract cache, pnl tracker, trade counter, lockouts, timers,
// enforcement) and a recording fake broker — everything a rule needs to run
// against, none of it touching the network.
func newHarness(contractsByID ...domain.Contract) *testHarness {
	log := zerolog.Nop()
	st := state.New()
	qt := quotes.New()

	byID := make(map[string]domain.Contract, len(contractsByID))
	for _, c := range contractsByID {
		byID[c.ContractID] = c
	}
	cc := contracts.New(fixedFetcher{byID: byID})
	for id := range byID {
		cc.Get(context.Background(), id)
	}

	broker := newFakeBroker()
	logs := &fakeLogStore{}

	pnl := pnltracker.New(nil, st, cc, qt, log)
	lo := lockout.New(nil, log)
	tm := timers.New(log)
	act := enforcement.New(broker, st, st, logs, log)

	return &testHarness{
		Deps: &Deps{
			State:       st,
			Quotes:      qt,
			Contracts:   cc,
			PnL:         pnl,
			Trades:      tradecounter.New(),
			Lockouts:    lo,
			Timers:      tm,
			Enforcement: act,
			Log:         log,
		},
		Broker:    broker,
		Logs:      logs,
		State:     st,
		Quotes:    qt,
		Contracts: cc,
	}
}
