package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadtestCommand(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AUTHCORE_JWT_SECRET", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"loadtest", "--sessions", "20", "--concurrency", "4", "--ops", "50", "--rotate", "--log-level", "error"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	got := out.String()
	assert.Contains(t, got, "issue: ops=20 failures=0")
	assert.Contains(t, got, "authenticate: ops=50")
	assert.Contains(t, got, "refresh: ops=50 failures=0")
	assert.Contains(t, got, "authcore_session_issued_total=20")
}

func TestLoadtestRejectsBadFlags(t *testing.T) {
	rootCmd.SetArgs([]string{"loadtest", "--sessions", "0", "--log-level", "error"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Error(t, rootCmd.Execute())
}

func TestPercentile(t *testing.T) {
	samples := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	stats := computeStats(1e9, durations(samples), 0)
	assert.Equal(t, 10, stats.ops)
	assert.EqualValues(t, 5, stats.p50)
	assert.EqualValues(t, 9, stats.p95)
	assert.EqualValues(t, 9, stats.p99)
	assert.InDelta(t, 10.0, stats.opsPerS, 0.001)
}

func durations(ns []int64) []time.Duration {
	out := make([]time.Duration, len(ns))
	for i, n := range ns {
		out[i] = time.Duration(n)
	}
	return out
}
