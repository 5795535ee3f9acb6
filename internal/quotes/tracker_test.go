package quotes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

func TestOnQuoteThenLastPrice(t *testing.T) {
	tr := New()
	tr.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 19000.25, LastUpdated: time.Now()})

	q, ok := tr.LastPrice("MNQ")
	require.True(t, ok)
	assert.Equal(t, 19000.25, q.LastPrice)
}

func TestLastPriceMissingSymbol(t *testing.T) {
	tr := New()
	_, ok := tr.LastPrice("MNQ")
	assert.False(t, ok)
}

func TestOnQuoteFillsMissingTimestamp(t *testing.T) {
	tr := New()
	tr.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 100})

	q, _ := tr.LastPrice("MNQ")
	assert.False(t, q.LastUpdated.IsZero())
}

func TestIsStale(t *testing.T) {
	fresh := domain.Quote{LastUpdated: time.Now()}
	assert.False(t, IsStale(fresh))

	stale := domain.Quote{LastUpdated: time.Now().Add(-61 * time.Second)}
	assert.True(t, IsStale(stale))
}

func TestOnQuoteOverwritesPrior(t *testing.T) {
	tr := New()
	tr.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 100, LastUpdated: time.Now()})
	tr.OnQuote(domain.Quote{Symbol: "MNQ", LastPrice: 200, LastUpdated: time.Now()})

	q, _ := tr.LastPrice("MNQ")
	assert.Equal(t, 200.0, q.LastPrice)
}
