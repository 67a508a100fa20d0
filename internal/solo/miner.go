package solo

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/bitutil"
	"github.com/pdqminer/btcminer/internal/dispatch"
	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/kernel"
)

// DefaultDeadline bounds how long Mine searches a single block
// template before giving up and letting the caller fetch a fresh one.
const DefaultDeadline = 60 * time.Second

// Result reports the outcome of a Mine call.
type Result struct {
	Found           bool
	ExtraNonce      uint32
	Nonce           uint32
	Header          [80]byte
	Coinbase        []byte
	HashesPerSecond float64
}

// Mine searches bt for a valid proof of work paying address, trying
// successive coinbase extra-nonce values and, for each, the full
// 32-bit header nonce space split across workerCount goroutines. It
// returns once a solution is found or deadline elapses.
func Mine(bt BlockTemplate, address string, alg algorithm.Algorithm, workerCount int, deadline time.Duration) (Result, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	deadlineAt := time.Now().Add(deadline)
	var totalHashes uint64
	start := time.Now()

	for extraNonce := uint32(0); ; extraNonce++ {
		if time.Now().After(deadlineAt) {
			return Result{HashesPerSecond: hashrate(totalHashes, start)}, nil
		}

		coinbase, err := buildCoinbase(extraNonce, address, bt.CoinBaseValue, bt.Height)
		if err != nil {
			return Result{}, err
		}
		coinbaseHash := alg.HashFunc()(coinbase)

		txHashes := [][]byte{coinbaseHash}
		for _, tx := range bt.Transactions {
			raw, err := bitutil.DecodeHex(tx.Hash)
			if err != nil || len(raw) != 32 {
				continue
			}
			txHashes = append(txHashes, bitutil.ReverseBytesCopy(raw))
		}
		root := merkleRoot(alg.HashFunc(), txHashes)

		header, err := buildHeader(bt.Version, bt.PreviousBlockHash, root, bt.CurTime, bt.Bits, 0)
		if err != nil {
			return Result{}, err
		}
		midstate, tail, target, err := headerJob(header, bt.Bits)
		if err != nil {
			return Result{}, err
		}

		found, nonce, hashed := searchFullRange(midstate, tail, target, workerCount, deadlineAt)
		totalHashes += hashed

		if found {
			binary.BigEndian.PutUint32(header[76:80], nonce)
			return Result{
				Found:           true,
				ExtraNonce:      extraNonce,
				Nonce:           nonce,
				Header:          header,
				Coinbase:        coinbase,
				HashesPerSecond: hashrate(totalHashes, start),
			}, nil
		}

		logrus.WithFields(logrus.Fields{
			"extra_nonce": extraNonce,
			"hashes":      totalHashes,
		}).Debug("solo: nonce space exhausted, advancing extra-nonce")
	}
}

// searchFullRange splits the 32-bit nonce space across workerCount
// goroutines and returns as soon as one finds a winner or deadlineAt
// passes.
func searchFullRange(midstate [32]byte, tail [16]byte, target [8]uint32, workerCount int, deadlineAt time.Time) (found bool, nonce uint32, hashed uint64) {
	ranges := dispatch.WorkerRanges(workerCount)

	var wg sync.WaitGroup
	var winner int32
	var winnerNonce uint32
	var hashCount uint64

	for _, r := range ranges {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			mj := job.MiningJob{Midstate: midstate, Tail: tail, Target: target, NonceStart: r[0], NonceEnd: r[1]}
			n, ok := kernel.Search(mj, func() bool {
				return atomic.LoadInt32(&winner) == 1 || time.Now().After(deadlineAt)
			})
			atomic.AddUint64(&hashCount, uint64(r[1]-r[0])+1)
			if ok {
				if atomic.CompareAndSwapInt32(&winner, 0, 1) {
					winnerNonce = n
				}
			}
		}()
	}
	wg.Wait()

	return atomic.LoadInt32(&winner) == 1, winnerNonce, atomic.LoadUint64(&hashCount)
}

func hashrate(totalHashes uint64, start time.Time) float64 {
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(totalHashes) / elapsed
}
