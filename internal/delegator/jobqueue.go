// File: internal/delegator/jobqueue.go
// Author: momentics <momentics@gmail.com>
//
// FIFO job queue wrapping the teacher's github.com/eapache/queue, with a
// requeue-to-front operation for spec.md section 4.5's worker-death
// recovery path ("push it back onto job_queue at the front, so stalled
// batches can complete promptly"). eapache/queue only supports back
// insertion, so pushFront rebuilds the queue once per disconnect event
// — acceptable since disconnects are rare relative to normal enqueue/
// dequeue traffic and k (jobs held by one worker) is small.
package delegator

import "github.com/eapache/queue"

type jobQueue struct {
	q *queue.Queue
}

func newJobQueue() *jobQueue {
	return &jobQueue{q: queue.New()}
}

// pushBack enqueues a newly created job at the tail, the normal path when
// a BatchJob is accepted.
func (jq *jobQueue) pushBack(j *job) {
	jq.q.Add(j)
}

// pushFront re-enqueues jobs (in the given order) ahead of everything
// already queued, used when a worker dies holding in-progress jobs.
func (jq *jobQueue) pushFront(jobs []*job) {
	rebuilt := queue.New()
	for _, j := range jobs {
		rebuilt.Add(j)
	}
	for jq.q.Length() > 0 {
		rebuilt.Add(jq.q.Remove())
	}
	jq.q = rebuilt
}

func (jq *jobQueue) len() int { return jq.q.Length() }

// drain removes and returns every queued job, in FIFO order.
func (jq *jobQueue) drain() []*job {
	out := make([]*job, 0, jq.q.Length())
	for jq.q.Length() > 0 {
		out = append(out, jq.q.Remove().(*job))
	}
	return out
}

// refill restores jobs (e.g. the ones a dispatch pass could not place) to
// the front of the queue, preserving their relative order.
func (jq *jobQueue) refill(jobs []*job) {
	for jq.q.Length() > 0 {
		jobs = append(jobs, jq.q.Remove().(*job))
	}
	for _, j := range jobs {
		jq.q.Add(j)
	}
}
