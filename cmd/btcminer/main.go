// Command btcminer connects to a Stratum V1 pool and mines against it,
// submitting shares back as they're found.
package main

import (
	"flag"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/dispatch"
	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/ports"
	"github.com/pdqminer/btcminer/internal/stratum"
	"github.com/pdqminer/btcminer/internal/telemetry"
)

var currentSession atomic.Value // holds *stratum.Session

func main() {
	host := flag.String("pool-host", "", "Stratum pool hostname")
	port := flag.Int("pool-port", 3333, "Stratum pool TCP port")
	worker := flag.String("worker", "", "pool worker name, e.g. user.worker1")
	password := flag.String("password", "x", "pool worker password")
	algName := flag.String("algorithm", "sha256d", "proof-of-work algorithm: sha256d, scrypt, or x11")
	workers := flag.Int("workers", runtime.NumCPU(), "parallel nonce-search goroutines")
	batchSize := flag.Uint("batch-size", dispatch.DefaultBatchSize, "nonce candidates per worker batch")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	reconnectDelay := flag.Duration("reconnect-delay", 5*time.Second, "delay before reconnecting after a dropped session")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	if *host == "" || *worker == "" {
		logrus.Fatal("btcminer: -pool-host and -worker are required")
	}

	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	alg, err := algorithm.Parse(*algName)
	if err != nil {
		logrus.WithError(err).Fatal("btcminer: invalid algorithm")
	}

	d := dispatch.New(*workers, uint32(*batchSize))
	d.Start()
	defer d.Stop()

	go serveMetrics(*metricsAddr, d)

	creds := ports.Credentials{
		WorkerName:   *worker,
		PoolPassword: *password,
		PoolHost:     *host,
		PoolPort:     *port,
	}

	for {
		session := stratum.New(ports.TCPTransport{}, ports.SystemClock{}, creds, alg, d, "btcminer/1.0")
		currentSession.Store(session)
		logrus.WithFields(logrus.Fields{
			"pool_host": *host,
			"pool_port": *port,
			"worker":    *worker,
		}).Info("btcminer: connecting")

		if err := session.Run(); err != nil {
			logrus.WithError(err).Warn("btcminer: session ended, reconnecting")
		}

		time.Sleep(*reconnectDelay)
	}
}

func serveMetrics(addr string, d *dispatch.Dispatcher) {
	start := time.Now()
	go func() {
		for range time.Tick(5 * time.Second) {
			stats := d.Stats()
			uptime := time.Since(start).Seconds()
			if uptime > 0 {
				stats.HashesPerSecond = float64(stats.TotalHashes) / uptime
			}

			state := job.Disconnected
			if s, ok := currentSession.Load().(*stratum.Session); ok && s != nil {
				state = s.State()
			}
			telemetry.Observe(stats, state, uptime)
		}
	}()

	http.Handle("/metrics", telemetry.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		logrus.WithError(err).Error("btcminer: metrics server stopped")
	}
}
