package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

func TestStatusAPIPort(t *testing.T) {
	port, err := statusAPIPort("127.0.0.1:8090")
	require.NoError(t, err)
	require.Equal(t, 8090, port)

	port, err = statusAPIPort(":9000")
	require.NoError(t, err)
	require.Equal(t, 9000, port)

	_, err = statusAPIPort("not-an-address")
	require.Error(t, err)

	_, err = statusAPIPort("127.0.0.1:notaport")
	require.Error(t, err)
}

func TestAppTimezoneFallsBackToUTC(t *testing.T) {
	a := &App{cfg: &config.Config{BrokerageTimezone: "America/New_York"}}
	require.Equal(t, "America/New_York", a.timezone().String())

	a = &App{cfg: &config.Config{BrokerageTimezone: "Not/AZone"}}
	require.Equal(t, "UTC", a.timezone().String())
}
