// Package delegator implements the global scheduler described in
// spec.md section 4.5: it accepts batch requests, assigns jobs to
// workers, reassembles batches, and recovers from worker death by
// requeuing in-progress jobs.
//
// The delegator is touched only by the single goroutine running its poll
// loop (spec.md section 5), so none of its internal state needs locking —
// the same ownership discipline the teacher applies to
// internal/session.sessionManager, simplified here because stateline has
// no cross-thread sharing of this structure at all.
//
// Author: momentics <momentics@gmail.com>
package delegator

import (
	"sort"
	"time"

	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/wire"
)

// Sender is the minimal outbound surface the delegator needs; satisfied
// by *internal/socket.Socket.
type Sender interface {
	Send(msg wire.Message) bool
}

// HeartbeatConnector is the minimal surface of heartbeat.Monitor the
// delegator drives directly (Connect on Hello, Disconnect on Bye).
type HeartbeatConnector interface {
	Connect(addr string, proposedTimeout time.Duration, now time.Time) time.Duration
	Disconnect(addr string)
}

// Config holds the delegator's tunables, consumed from internal/config.Config.
type Config struct {
	NumJobTypes        int
	DefaultHBTimeout   time.Duration
	MaxInProgressPerWorker int // 0 means unbounded
}

// Delegator is the single point through which all batches, jobs, and
// worker liveness flow.
type Delegator struct {
	cfg     Config
	sender  Sender
	hb      HeartbeatConnector
	clock   func() time.Time

	workers   map[string]*worker
	jobQueue  *jobQueue
	batches   map[uint32]*pendingBatch
	nextJobID uint32
}

// New constructs a Delegator. sender is used to emit Welcome/Job/BatchResult
// frames; hb is the socket's heartbeat monitor used to negotiate timeouts.
func New(cfg Config, sender Sender, hb HeartbeatConnector) *Delegator {
	if cfg.MaxInProgressPerWorker <= 0 {
		cfg.MaxInProgressPerWorker = 1 << 30 // effectively unbounded
	}
	return &Delegator{
		cfg:      cfg,
		sender:   sender,
		hb:       hb,
		clock:    time.Now,
		workers:  make(map[string]*worker),
		jobQueue: newJobQueue(),
		batches:  make(map[uint32]*pendingBatch),
	}
}

// HandleHello creates (or re-welcomes) a worker record. Per spec.md
// section 9, WELCOME is sent before the heartbeat monitor starts counting
// missed beats against the new peer, so a slow Hello/Welcome round trip
// never causes an immediate spurious disconnect.
func (d *Delegator) HandleHello(msg wire.Message) {
	hello, err := wire.DecodeHello(msg.Payload)
	if err != nil {
		applog.With("delegator").Warn("malformed HELLO", "err", err)
		return
	}
	addr := string(msg.Source)
	proposed := time.Duration(hello.HBTimeoutSecs) * time.Second
	effective := proposed
	if d.cfg.DefaultHBTimeout > effective {
		effective = d.cfg.DefaultHBTimeout
	}

	d.sender.Send(wire.Message{
		Dest:    msg.Source,
		Subject: wire.Welcome,
		Payload: wire.WelcomePayload{HBTimeoutSecs: uint32(effective / time.Second)}.Encode(),
	})

	effective = d.hb.Connect(addr, effective, d.clock())

	if w, ok := d.workers[addr]; ok {
		w.hbTimeout = effective
		w.jobRange = JobTypeRange{Lo: hello.JobTypesRangeLo, Hi: hello.JobTypesRangeHi}
		return
	}
	d.workers[addr] = newWorker(addr, JobTypeRange{Lo: hello.JobTypesRangeLo, Hi: hello.JobTypesRangeHi}, effective)
	d.DispatchPending()
}

// HandleBatchJob accepts a new batch, fanning it out into one Job per
// configured job type, per spec.md section 4.5.
func (d *Delegator) HandleBatchJob(msg wire.Message) {
	bj, err := wire.DecodeBatchJob(msg.Payload)
	if err != nil {
		applog.With("delegator").Warn("malformed BATCH_JOB", "err", err)
		return
	}
	pb := newPendingBatch(bj.ID, msg.Source, bj.Data, d.cfg.NumJobTypes)
	d.batches[bj.ID] = pb

	now := d.clock()
	for t := 1; t <= d.cfg.NumJobTypes; t++ {
		d.jobQueue.pushBack(&job{
			batchID:  bj.ID,
			jobType:  uint32(t),
			input:    bj.Data,
			queuedAt: now,
		})
	}
	d.DispatchPending()
}

// HandleResult reassembles one component of a batch and, once every
// component has arrived, emits the BatchResult and drops the PendingBatch.
func (d *Delegator) HandleResult(msg wire.Message) {
	res, err := wire.DecodeResult(msg.Payload)
	if err != nil {
		applog.With("delegator").Warn("malformed RESULT", "err", err)
		return
	}
	addr := string(msg.Source)
	w, ok := d.workers[addr]
	if !ok {
		applog.With("delegator").Warn("RESULT from unknown worker", "addr", addr)
		return
	}
	j, ok := w.inProgress[res.ID]
	if !ok {
		applog.With("delegator").Warn("RESULT for unknown job", "id", res.ID, "worker", addr)
		return
	}
	delete(w.inProgress, res.ID)
	w.observeServiceTime(j.jobType, d.clock().Sub(j.dispatchedAt))

	pb, ok := d.batches[j.batchID]
	if !ok {
		// Batch already completed/dropped (should not happen); nothing to do.
		d.DispatchPending()
		return
	}
	pb.fill(int(j.jobType)-1, float64(res.Data))
	if pb.complete() {
		delete(d.batches, pb.id)
		d.sender.Send(wire.Message{
			Dest:    pb.requester,
			Subject: wire.BatchResult,
			Payload: wire.BatchResultPayload{ID: pb.id, Data: pb.results}.Encode(),
		})
	}
	d.DispatchPending()
}

// HandleBye removes a worker explicitly, requeuing its in-progress jobs.
func (d *Delegator) HandleBye(msg wire.Message) {
	d.removeWorker(string(msg.Source))
}

// HandleDisconnect is wired to the socket's heartbeat.Monitor onDisconnect
// callback (timeout path); functionally identical to HandleBye.
func (d *Delegator) HandleDisconnect(addr string) {
	d.removeWorker(addr)
}

func (d *Delegator) removeWorker(addr string) {
	w, ok := d.workers[addr]
	if !ok {
		return
	}
	delete(d.workers, addr)
	d.hb.Disconnect(addr)
	if len(w.inProgress) == 0 {
		return
	}
	requeued := make([]*job, 0, len(w.inProgress))
	ids := make([]uint32, 0, len(w.inProgress))
	for id := range w.inProgress {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		j := w.inProgress[id]
		j.retries++
		requeued = append(requeued, j)
	}
	d.jobQueue.pushFront(requeued)
	applog.With("delegator").Info("worker disconnected, requeued jobs", "addr", addr, "count", len(requeued))
	d.DispatchPending()
}

// DispatchPending runs the scheduler: while job_queue is non-empty and at
// least one worker can accept, assign jobs to workers. Selection policy
// (spec.md section 4.5, explicitly replaceable per section 9): among
// eligible workers under their in-progress cap, pick the smallest ETA,
// tie-broken by lower in-progress count then lower address.
func (d *Delegator) DispatchPending() {
	pending := d.jobQueue.drain()
	var leftover []*job
	now := d.clock()
	for _, j := range pending {
		w := d.pickWorker(j.jobType)
		if w == nil {
			leftover = append(leftover, j)
			continue
		}
		if j.id == 0 {
			// Job ids are assigned by a monotonically increasing counter at
			// dispatch time, not at enqueue time; a requeued job keeps the id
			// it was first dispatched with.
			d.nextJobID++
			j.id = d.nextJobID
		}
		j.dispatchedAt = now
		w.inProgress[j.id] = j
		d.sender.Send(wire.Message{
			Dest:    []byte(w.addr),
			Subject: wire.Job,
			Payload: wire.JobPayload{ID: j.id, Type: j.jobType, Data: toFloat32s(j.input)}.Encode(),
		})
	}
	d.jobQueue.refill(leftover)
}

// toFloat32s narrows the batch's sample vector for the job's wire payload
// (JobPayload carries f32 per spec.md section 6).
func toFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func (d *Delegator) pickWorker(jobType uint32) *worker {
	var best *worker
	for _, w := range d.workers {
		if !w.jobRange.Covers(jobType) {
			continue
		}
		if len(w.inProgress) >= d.cfg.MaxInProgressPerWorker {
			continue
		}
		if best == nil {
			best = w
			continue
		}
		etaW, etaBest := w.eta(jobType), best.eta(jobType)
		switch {
		case etaW < etaBest:
			best = w
		case etaW == etaBest:
			if len(w.inProgress) < len(best.inProgress) {
				best = w
			} else if len(w.inProgress) == len(best.inProgress) && w.addr < best.addr {
				best = w
			}
		}
	}
	return best
}

// QueueLen reports the number of jobs waiting for a worker (used by
// internal/server's metrics).
func (d *Delegator) QueueLen() int { return d.jobQueue.len() }

// WorkerCount reports the number of live workers.
func (d *Delegator) WorkerCount() int { return len(d.workers) }

// PendingBatchCount reports the number of in-flight batches.
func (d *Delegator) PendingBatchCount() int { return len(d.batches) }
