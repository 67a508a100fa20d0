// Package telemetry exposes miner stats as Prometheus metrics on a
// /metrics endpoint.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdqminer/btcminer/internal/job"
)

var (
	Hashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcminer",
		Name:      "hashrate",
		Help:      "Estimated local miner hashrate in H/s.",
	})

	TotalHashes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcminer",
		Name:      "hashes_total",
		Help:      "Total nonce candidates hashed since startup.",
	})

	SharesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcminer",
		Name:      "shares_accepted_total",
		Help:      "Total shares the pool accepted.",
	})

	SharesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcminer",
		Name:      "shares_rejected_total",
		Help:      "Total shares the pool rejected.",
	})

	BlocksFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcminer",
		Name:      "blocks_found_total",
		Help:      "Total nonces found meeting the job target.",
	})

	UptimeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcminer",
		Name:      "uptime_seconds",
		Help:      "Time since the miner process started.",
	})

	SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcminer",
		Name:      "session_state",
		Help:      "Current StratumSession state, as the SessionState enum ordinal.",
	})
)

func init() {
	prometheus.MustRegister(
		Hashrate,
		TotalHashes,
		SharesAccepted,
		SharesRejected,
		BlocksFound,
		UptimeSeconds,
		SessionState,
	)
}

// counterState remembers the last cumulative value published to each
// monotonic counter, since prometheus.Counter only exposes Add, not
// Set, and MinerStats hands back an absolute total each poll.
type counterState struct {
	hashes, accepted, rejected, blocks uint64
}

var last counterState

// Observe publishes a MinerStats snapshot. Gauges are set directly;
// counters are advanced by the delta since the previous observation.
func Observe(stats job.MinerStats, state job.SessionState, uptime float64) {
	Hashrate.Set(stats.HashesPerSecond)
	UptimeSeconds.Set(uptime)
	SessionState.Set(float64(state))

	if d := delta(stats.TotalHashes, last.hashes); d > 0 {
		TotalHashes.Add(float64(d))
	}
	if d := delta(stats.SharesAccepted, last.accepted); d > 0 {
		SharesAccepted.Add(float64(d))
	}
	if d := delta(stats.SharesRejected, last.rejected); d > 0 {
		SharesRejected.Add(float64(d))
	}
	if d := delta(stats.BlocksFound, last.blocks); d > 0 {
		BlocksFound.Add(float64(d))
	}

	last = counterState{
		hashes:   stats.TotalHashes,
		accepted: stats.SharesAccepted,
		rejected: stats.SharesRejected,
		blocks:   stats.BlocksFound,
	}
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
