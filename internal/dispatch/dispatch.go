// Package dispatch holds the current mining job under a guard, slices
// the 32-bit nonce space across a fixed worker pool, and collects
// shares the workers find into a bounded queue.
package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/kernel"
)

// DefaultBatchSize is the nonce count per worker batch that New uses
// when it is given a batch size of zero.
const DefaultBatchSize = 8192

const shareQueueCapacity = 8

// noJobPollInterval bounds how long a worker without a job sleeps
// before checking again.
const noJobPollInterval = 20 * time.Millisecond

// currentJob is the dispatcher's guarded, shared job state.
type currentJob struct {
	mu      sync.Mutex
	sj      job.StratumJob
	alg     algorithm.Algorithm
	version uint64
	hasJob  bool
}

func (c *currentJob) set(sj job.StratumJob, alg algorithm.Algorithm) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sj = sj
	c.alg = alg
	c.hasJob = true
	c.version++
	return c.version
}

func (c *currentJob) get() (job.StratumJob, algorithm.Algorithm, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sj, c.alg, c.version, c.hasJob
}

// Dispatcher assigns disjoint nonce ranges to a fixed worker pool and
// collects ShareInfo results. It holds no transport or protocol
// knowledge; StratumSession publishes jobs to it and drains its share
// queue.
type Dispatcher struct {
	workerCount int
	batchSize   uint32

	cur    currentJob
	shares *job.ShareQueue

	running int32

	totalHashes    uint64
	sharesFound    uint64
	blocksFound    uint64
	sharesAccepted uint64
	sharesRejected uint64
}

// New creates a Dispatcher with workerCount parallel search workers
// (minimum 1) and the given per-batch nonce count.
func New(workerCount int, batchSize uint32) *Dispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		workerCount: workerCount,
		batchSize:   batchSize,
		shares:      job.NewShareQueue(shareQueueCapacity),
	}
}

// WorkerRanges divides the full 32-bit nonce space uniformly across n
// workers; worker i gets [start_i, end_i] inclusive. With n=2 this is
// exactly [0x00000000,0x7FFFFFFF] and [0x80000000,0xFFFFFFFF].
func WorkerRanges(n int) [][2]uint32 {
	if n < 1 {
		n = 1
	}
	ranges := make([][2]uint32, n)
	span := (uint64(1) << 32) / uint64(n)
	for i := 0; i < n; i++ {
		start := uint64(i) * span
		end := start + span - 1
		if i == n-1 {
			end = 1<<32 - 1
		}
		ranges[i] = [2]uint32{uint32(start), uint32(end)}
	}
	return ranges
}

// SetJob installs a new StratumJob, invalidating any in-flight worker
// batches on the next version check. If clean flags the prior job as
// fully superseded, the share queue is drained first so stale shares
// never reach the session.
func (d *Dispatcher) SetJob(sj job.StratumJob, alg algorithm.Algorithm, clean bool) {
	if clean {
		d.shares.Drain()
	}
	version := d.cur.set(sj, alg)
	logrus.WithFields(logrus.Fields{
		"job_id":  sj.JobID,
		"version": version,
		"clean":   clean,
	}).Info("dispatcher: job installed")
}

// Start launches the worker pool; it returns immediately. Stop must be
// called to terminate the workers.
func (d *Dispatcher) Start() {
	atomic.StoreInt32(&d.running, 1)
	ranges := WorkerRanges(d.workerCount)
	for i, r := range ranges {
		go d.runWorker(i, r[0], r[1])
	}
}

// Stop raises the cooperative-cancellation flag; workers exit at their
// next batch boundary.
func (d *Dispatcher) Stop() {
	atomic.StoreInt32(&d.running, 0)
}

func (d *Dispatcher) isRunning() bool {
	return atomic.LoadInt32(&d.running) == 1
}

// runWorker is the per-worker loop: await a job, mine its assigned
// nonce sub-range in fixed-size batches, and re-check the job version
// between batches so a replaced job is abandoned within one batch.
func (d *Dispatcher) runWorker(id int, rangeStart, rangeEnd uint32) {
	log := logrus.WithField("worker", id)

	for d.isRunning() {
		sj, alg, version, hasJob := d.cur.get()
		if !hasJob {
			time.Sleep(noJobPollInterval)
			continue
		}

		batchStart := rangeStart
		for d.isRunning() {
			curSj, curAlg, curVersion, _ := d.cur.get()
			if curVersion != version {
				sj, alg, version = curSj, curAlg, curVersion
				batchStart = rangeStart
				continue
			}

			batchEnd := batchStart + d.batchSize - 1
			if batchEnd > rangeEnd || batchEnd < batchStart {
				batchEnd = rangeEnd
			}

			mj := job.Build(sj, alg, batchStart, batchEnd)

			nonce, found := kernel.Search(mj, d.cancelForVersion(version))

			hashCount := uint64(batchEnd) - uint64(batchStart) + 1
			atomic.AddUint64(&d.totalHashes, hashCount)

			if found {
				share := job.ShareInfo{
					JobID:       mj.JobID,
					Extranonce2: mj.Extranonce2,
					Nonce:       nonce,
					NTime:       mj.NTime,
				}
				if d.shares.Push(share) {
					atomic.AddUint64(&d.sharesFound, 1)
				} else {
					log.WithField("job_id", share.JobID).
						Warn("dispatcher: share queue full, dropping newest")
				}
			}

			if batchEnd == rangeEnd {
				break
			}
			batchStart = batchEnd + 1
		}
	}
}

// cancelForVersion returns a kernel cancel predicate that aborts a
// search as soon as either the dispatcher is stopped or the job has
// been replaced, independent of the batch boundary.
func (d *Dispatcher) cancelForVersion(version uint64) func() bool {
	return func() bool {
		if !d.isRunning() {
			return true
		}
		_, _, curVersion, _ := d.cur.get()
		return curVersion != version
	}
}

// TakeShare returns the oldest pending share, if any.
func (d *Dispatcher) TakeShare() (job.ShareInfo, bool) {
	return d.shares.TryPop()
}

// HasShare reports whether a share is pending.
func (d *Dispatcher) HasShare() bool {
	return d.shares.Len() > 0
}

// NoteAccepted and NoteRejected update the share-result counters driven
// by the session's submit responses.
func (d *Dispatcher) NoteAccepted() { atomic.AddUint64(&d.sharesAccepted, 1) }
func (d *Dispatcher) NoteRejected() { atomic.AddUint64(&d.sharesRejected, 1) }

// Stats returns a point-in-time snapshot. HashesPerSecond and
// UptimeSeconds are left to the caller, which has access to a Clock.
func (d *Dispatcher) Stats() job.MinerStats {
	return job.MinerStats{
		TotalHashes:    atomic.LoadUint64(&d.totalHashes),
		SharesAccepted: atomic.LoadUint64(&d.sharesAccepted),
		SharesRejected: atomic.LoadUint64(&d.sharesRejected),
		BlocksFound:    atomic.LoadUint64(&d.sharesFound),
	}
}
