package brokerapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

func TestDecodeOrderStatusCoding(t *testing.T) {
	o, err := DecodeOrder([]byte(`{"orderId":"o1","accountId":1,"contractId":"CON.F.US.MNQ.U25","status":1}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateActive, o.State)
}

func TestDecodeOrderSearchStateCoding(t *testing.T) {
	o, err := DecodeOrder([]byte(`{"orderId":"o1","accountId":1,"contractId":"CON.F.US.MNQ.U25","state":2}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateActive, o.State)
}

func TestDecodeOrderDefaultsToPending(t *testing.T) {
	o, err := DecodeOrder([]byte(`{"orderId":"o1","accountId":1,"contractId":"CON.F.US.MNQ.U25"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatePending, o.State)
}

func TestDecodePositionDirection(t *testing.T) {
	p, err := DecodePosition([]byte(`{"positionId":"p1","accountId":1,"contractId":"CON.F.US.MNQ.U25","type":2,"size":3,"averagePrice":10.5}`))
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionShort, p.Direction)
	assert.Equal(t, 3.0, p.Size)
}

func TestDecodeTradeHalfTurn(t *testing.T) {
	tr, err := DecodeTrade([]byte(`{"tradeId":"t1","orderId":"o1","accountId":1,"contractId":"CON.F.US.MNQ.U25","side":0,"size":1,"price":100}`))
	require.NoError(t, err)
	assert.True(t, tr.IsHalfTurn())
}

func TestDecodeAccountUpdate(t *testing.T) {
	u, err := DecodeAccountUpdate([]byte(`{"accountId":7,"canTrade":false}`))
	require.NoError(t, err)
	assert.EqualValues(t, 7, u.AccountID)
	assert.False(t, u.CanTrade)
}

func TestDecodeQuote(t *testing.T) {
	q, err := DecodeQuote([]byte(`{"symbol":"MNQ","lastPrice":19000.25,"bestBid":19000,"bestAsk":19000.5,"timestamp":1700000000000}`))
	require.NoError(t, err)
	assert.Equal(t, "MNQ", q.Symbol)
	assert.Equal(t, 19000.25, q.LastPrice)
	assert.False(t, q.LastUpdated.IsZero())
}
