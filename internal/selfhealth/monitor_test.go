package selfhealth

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMonitorSnapshotPopulatesFields(t *testing.T) {
	m := New(zerolog.Nop())

	snap := m.Snapshot()
	require.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
	require.Greater(t, snap.Goroutines, 0)
}

func TestSnapshotHealthy(t *testing.T) {
	healthy := Snapshot{CPUPercent: 10, Goroutines: 50}
	require.True(t, healthy.Healthy(200))

	hot := Snapshot{CPUPercent: 99.9, Goroutines: 50}
	require.False(t, hot.Healthy(200))

	leaking := Snapshot{CPUPercent: 10, Goroutines: 5000}
	require.False(t, leaking.Healthy(200))

	require.True(t, leaking.Healthy(0))
}
