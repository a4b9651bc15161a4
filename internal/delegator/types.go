// File: internal/delegator/types.go
// Author: momentics <momentics@gmail.com>
//
// Delegator-side records for workers, jobs, and pending batches, per
// spec.md section 3 and section 9's ownership design note: workers and
// pending batches are values in two maps owned by the delegator; jobs
// refer to batches by key (batch id), workers to jobs by key (job id); no
// back-pointers. This mirrors the teacher's pool.BufferPoolManager
// (map keyed by node id, lazily created, no back-references into the
// owning manager).
package delegator

import "time"

// JobTypeRange is the inclusive [lo,hi] range of job types a worker can serve.
type JobTypeRange struct {
	Lo, Hi uint32
}

// Covers reports whether t falls within the range.
func (r JobTypeRange) Covers(t uint32) bool { return t >= r.Lo && t <= r.Hi }

// WorkerState is the lifecycle state of a worker record, per spec.md
// section 4.5: NEW -> READY (after Hello/Welcome) -> BUSY (>=1 in-progress
// job) <-> READY -> GONE (timeout or Bye).
type WorkerState int

const (
	WorkerReady WorkerState = iota
	WorkerBusy
	WorkerGone
)

// worker is the delegator's bookkeeping record for one connected worker
// process, created on Hello and destroyed on heartbeat timeout or Bye.
type worker struct {
	addr       string
	jobRange   JobTypeRange
	hbTimeout  time.Duration
	inProgress map[uint32]*job // job id -> job, for jobs dispatched to this worker
	ema        map[uint32]time.Duration // job type -> exponential moving average service time
}

func newWorker(addr string, jr JobTypeRange, hbTimeout time.Duration) *worker {
	return &worker{
		addr:       addr,
		jobRange:   jr,
		hbTimeout:  hbTimeout,
		inProgress: make(map[uint32]*job),
		ema:        make(map[uint32]time.Duration),
	}
}

func (w *worker) state() WorkerState {
	if len(w.inProgress) > 0 {
		return WorkerBusy
	}
	return WorkerReady
}

// emaAlpha is the smoothing factor for the per-type service time EMA.
const emaAlpha = 0.2

func (w *worker) observeServiceTime(jobType uint32, elapsed time.Duration) {
	prev, ok := w.ema[jobType]
	if !ok {
		w.ema[jobType] = elapsed
		return
	}
	w.ema[jobType] = time.Duration(float64(prev)*(1-emaAlpha) + float64(elapsed)*emaAlpha)
}

// eta estimates the expected wall time for this worker to drain its
// current in-progress jobs and then serve a new job of jobType — the
// selection criterion named in spec.md section 4.5.
func (w *worker) eta(jobType uint32) time.Duration {
	var total time.Duration
	for _, j := range w.inProgress {
		total += w.emaFor(j.jobType)
	}
	total += w.emaFor(jobType)
	return total
}

func (w *worker) emaFor(jobType uint32) time.Duration {
	if d, ok := w.ema[jobType]; ok {
		return d
	}
	// No observations yet: assume a conservative default so a worker with
	// no history isn't starved of work, but also isn't preferred blindly
	// over a proven-fast worker.
	return 100 * time.Millisecond
}

// job is a single component evaluation belonging to one batch, per
// spec.md section 3. It lives on the delegator's job_queue until
// dispatched, then in exactly one worker's in-progress map until a Result
// arrives.
type job struct {
	id           uint32
	batchID      uint32
	jobType      uint32
	input        []float64 // shared sample vector for this batch, per spec.md section 6
	queuedAt     time.Time
	dispatchedAt time.Time
	retries      int // observability only; see SPEC_FULL.md section 3.1
}

// pendingBatch tracks one in-flight BatchJob until every component result
// has arrived, per spec.md's PendingBatch data model.
type pendingBatch struct {
	id          uint32
	requester   []byte
	input       []float64
	results     []float64
	filled      []bool
	done        int
}

func newPendingBatch(id uint32, requester []byte, input []float64, n int) *pendingBatch {
	return &pendingBatch{
		id:        id,
		requester: requester,
		input:     input,
		results:   make([]float64, n),
		filled:    make([]bool, n),
	}
}

func (b *pendingBatch) fill(slot int, value float64) {
	if !b.filled[slot] {
		b.filled[slot] = true
		b.results[slot] = value
		b.done++
	}
}

func (b *pendingBatch) complete() bool { return b.done == len(b.results) }
