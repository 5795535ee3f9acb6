package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFrameRoundTrip(t *testing.T) {
	data, err := marshalFrame([]string{"GatewayQuote", "CON.F.US.MNQ.U25"})
	require.NoError(t, err)

	channel, payload, ok := splitFrame(data)
	require.True(t, ok)
	assert.Equal(t, "GatewayQuote", channel)
	assert.JSONEq(t, `"CON.F.US.MNQ.U25"`, string(payload))
}

func TestSplitFrameRejectsMalformed(t *testing.T) {
	_, _, ok := splitFrame([]byte(`{"not":"an array"}`))
	assert.False(t, ok)

	_, _, ok = splitFrame([]byte(`["only-one-element"]`))
	assert.False(t, ok)

	_, _, ok = splitFrame([]byte(`not json at all`))
	assert.False(t, ok)
}

func TestSplitFrameWithObjectPayload(t *testing.T) {
	channel, payload, ok := splitFrame([]byte(`["GatewayUserTrade",{"tradeId":"t1","size":1}]`))
	require.True(t, ok)
	assert.Equal(t, "GatewayUserTrade", channel)
	assert.JSONEq(t, `{"tradeId":"t1","size":1}`, string(payload))
}
