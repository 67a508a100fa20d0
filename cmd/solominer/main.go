// Command solominer drives getblocktemplate/submitblock solo mining
// against a local node, reusing the same hash kernel as the Stratum
// miner.
package main

import (
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/solo"
)

func main() {
	rpcURL := flag.String("rpc-url", "http://127.0.0.1:8332", "node RPC endpoint")
	rpcUser := flag.String("rpc-user", "", "node RPC basic-auth username")
	rpcPassword := flag.String("rpc-password", "", "node RPC basic-auth password")
	address := flag.String("address", "", "payout address for the coinbase output")
	algName := flag.String("algorithm", "sha256d", "proof-of-work algorithm: sha256d or scrypt")
	workers := flag.Int("workers", runtime.NumCPU(), "parallel nonce-search goroutines per template")
	templateDeadline := flag.Duration("template-deadline", solo.DefaultDeadline, "max time to search one block template before refreshing it")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	if *address == "" {
		logrus.Fatal("solominer: -address is required")
	}

	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	alg, err := algorithm.Parse(*algName)
	if err != nil {
		logrus.WithError(err).Fatal("solominer: invalid algorithm")
	}

	client := solo.NewClient(solo.RPCConfig{URL: *rpcURL, User: *rpcUser, Password: *rpcPassword})

	for {
		bt, err := client.GetBlockTemplate()
		if err != nil {
			logrus.WithError(err).Error("solominer: getblocktemplate failed")
			time.Sleep(5 * time.Second)
			continue
		}

		logrus.WithFields(logrus.Fields{
			"height": bt.Height,
			"bits":   bt.Bits,
		}).Info("solominer: mining new template")

		result, err := solo.Mine(bt, *address, alg, *workers, *templateDeadline)
		if err != nil {
			logrus.WithError(err).Error("solominer: mine failed")
			continue
		}

		logrus.WithField("hashrate", result.HashesPerSecond).Info("solominer: template search finished")

		if !result.Found {
			continue
		}

		submission, err := solo.BlockSubmission(result.Header, result.Coinbase, bt.Transactions)
		if err != nil {
			logrus.WithError(err).Error("solominer: failed to assemble submission")
			continue
		}

		if err := client.SubmitBlock(submission); err != nil {
			logrus.WithError(err).Error("solominer: submitblock rejected")
			continue
		}

		logrus.WithField("nonce", result.Nonce).Info("solominer: block accepted")
		os.Exit(0)
	}
}
