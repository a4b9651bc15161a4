// Package worker implements the "minion" loop described in spec.md
// section 2: fetch a job, invoke the user-supplied likelihood component,
// return the result.
//
// Grounded on the teacher's internal/concurrency.EventLoop.Run: a tight
// loop that blocks for the next unit of work, processes it, and checks a
// shared running flag between iterations — generalized here to block on a
// job channel fed by the endpoint dispatch table instead of a ring buffer.
//
// Author: momentics <momentics@gmail.com>
package worker

import (
	"fmt"
	"math"

	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/wire"
)

// Likelihood evaluates one component of the target distribution for the
// given job type and sample vector, returning that component's energy
// (negative log-likelihood) contribution; the sampler sums a batch's
// components into the chain's energy. User-supplied; any panic is
// recovered by Minion.evaluate and treated per spec.md section 7 ("log,
// treat as infinite energy").
type Likelihood func(jobType uint32, data []float32) float32

// Sender is the outbound surface a Minion needs (sending HELLO/RESULT).
type Sender interface {
	Send(msg wire.Message) bool
}

// Minion drives one worker process's job loop: there is exactly one
// outstanding job at a time, matching the agent's single worker_waiting
// flag (spec.md section 4.4).
type Minion struct {
	sock Sender
	fn   Likelihood
	jobs chan wire.Message
}

// New constructs a Minion bound to sock for sending HELLO/RESULT, and fn as
// the user likelihood to invoke for each JOB received.
func New(sock Sender, fn Likelihood) *Minion {
	return &Minion{sock: sock, fn: fn, jobs: make(chan wire.Message, 1)}
}

// SayHello announces this worker's supported job-type range and proposed
// heartbeat timeout, per spec.md section 6's HELLO payload.
func (m *Minion) SayHello(jobTypesLo, jobTypesHi uint32, hbTimeoutSecs uint32) {
	m.sock.Send(wire.Message{
		Subject: wire.Hello,
		Payload: wire.HelloPayload{
			HBTimeoutSecs:   hbTimeoutSecs,
			JobTypesRangeLo: jobTypesLo,
			JobTypesRangeHi: jobTypesHi,
		}.Encode(),
	})
}

// OnJob is the endpoint handler for the JOB subject: it decodes the
// payload and hands it to the single-slot jobs channel for Run to pick up.
// A worker never has more than one job outstanding, so this never
// blocks under the protocol's own invariants.
func (m *Minion) OnJob(msg wire.Message) {
	m.jobs <- msg.Clone()
}

// Run processes jobs from the channel until closed, invoking fn for each
// and sending the RESULT back. Intended to run on the worker's own
// goroutine, separate from the poll loop driving OnJob.
func (m *Minion) Run() {
	log := applog.With("worker")
	for msg := range m.jobs {
		job, err := wire.DecodeJob(msg.Payload)
		if err != nil {
			log.Warn("malformed JOB payload", "err", err)
			continue
		}
		result := m.evaluate(job)
		m.sock.Send(wire.Message{
			Subject: wire.Result,
			Payload: wire.ResultPayload{ID: job.ID, Data: result}.Encode(),
		})
	}
}

// Stop closes the job channel, causing Run to return once any in-flight
// job finishes.
func (m *Minion) Stop() { close(m.jobs) }

// evaluate invokes the user likelihood, recovering from panics per
// spec.md section 7 ("user likelihood exception... treat as infinite
// energy (rejection)").
func (m *Minion) evaluate(job wire.JobPayload) (result float32) {
	defer func() {
		if r := recover(); r != nil {
			applog.With("worker").Error("likelihood panicked, treating as infinite energy", "err", fmt.Sprint(r))
			result = float32(math.Inf(1))
		}
	}()
	return m.fn(job.Type, job.Data)
}
