package prof

import (
	"context"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/goals-api/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	var calls []bool
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{
		Enabled:       false,
		ServerAddress: "not a url",
		OnActive:      func(active bool) { calls = append(calls, active) },
	})
	require.NoError(t, err)
	require.NotNil(t, stop)

	stop()
	stop()
	assert.Empty(t, calls, "disabled profiler reported state")
}

func TestStart_RejectsBadAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"no scheme", "pyroscope.internal:4040"},
		{"grpc scheme", "grpc://pyroscope.internal:4040"},
		{"no host", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []bool
			stop, err := Start(context.Background(), Options{
				Enabled:       true,
				AppName:       "goals-api",
				ServerAddress: tt.addr,
				OnActive:      func(active bool) { calls = append(calls, active) },
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid server address")
			require.NotNil(t, stop, "stop must be usable on error")
			stop()
			assert.Empty(t, calls)
		})
	}
}

func TestCheckServerAddress_Accepts(t *testing.T) {
	for _, addr := range []string{
		"http://127.0.0.1:4040",
		"https://profiles.example.com",
	} {
		assert.NoError(t, checkServerAddress(addr), addr)
	}
}

func TestProfileTypes(t *testing.T) {
	base := profileTypes(Options{})
	assert.Contains(t, base, pyroscope.ProfileCPU)
	assert.Contains(t, base, pyroscope.ProfileGoroutines)
	assert.NotContains(t, base, pyroscope.ProfileMutexCount)
	assert.NotContains(t, base, pyroscope.ProfileBlockCount)

	all := profileTypes(Options{ProfileMutexFraction: 5, BlockProfileRate: 1000})
	assert.Len(t, all, len(base)+4)
	assert.Contains(t, all, pyroscope.ProfileMutexDuration)
	assert.Contains(t, all, pyroscope.ProfileBlockDuration)
}

func TestStart_UnreachableServerStopIsSafe(t *testing.T) {
	// pyroscope connects lazily; only the stop contract is checked
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		AppName:       "goals-api",
		ServerAddress: "http://127.0.0.1:1",
	})
	require.NotNil(t, stop)
	assert.NotPanics(t, stop)
	assert.NotPanics(t, stop)
}
