package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pdqminer/btcminer/internal/job"
)

func TestObserveSetsGaugesDirectly(t *testing.T) {
	Observe(job.MinerStats{HashesPerSecond: 12345}, job.Ready, 42)

	require.InDelta(t, 12345, testutil.ToFloat64(Hashrate), 0.001)
	require.InDelta(t, 42, testutil.ToFloat64(UptimeSeconds), 0.001)
	require.InDelta(t, float64(job.Ready), testutil.ToFloat64(SessionState), 0.001)
}

func TestObserveAdvancesCountersByDelta(t *testing.T) {
	last = counterState{}

	Observe(job.MinerStats{TotalHashes: 100, SharesAccepted: 2, SharesRejected: 1, BlocksFound: 0}, job.Ready, 1)
	Observe(job.MinerStats{TotalHashes: 250, SharesAccepted: 5, SharesRejected: 1, BlocksFound: 1}, job.Ready, 2)

	require.InDelta(t, 250, testutil.ToFloat64(TotalHashes), 0.001)
	require.InDelta(t, 5, testutil.ToFloat64(SharesAccepted), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(SharesRejected), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(BlocksFound), 0.001)
}

func TestDeltaClampsNonDecreasingCounters(t *testing.T) {
	require.Equal(t, uint64(5), delta(10, 5))
	require.Equal(t, uint64(0), delta(5, 10))
	require.Equal(t, uint64(0), delta(5, 5))
}
