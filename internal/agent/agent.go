// Package agent implements the per-host bridge described in spec.md
// section 4.4: it presents one upstream connection to the delegator while
// fronting local worker processes, proxying Hello/Job/Result/Bye traffic
// between the two sides.
//
// Grounded on the teacher's highlevel/client.go Client, which owns a
// transport and a send/receive loop behind a single goroutine; generalized
// here to own two sockets (upstream dealer, local router) instead of one.
//
// Author: momentics <momentics@gmail.com>
package agent

import (
	"github.com/eapache/queue"

	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/wire"
)

// Sender is the outbound surface the agent needs from a socket.
type Sender interface {
	Send(msg wire.Message) bool
}

// Agent bridges one upstream socket (to the delegator) with one local
// socket (accepting connections from worker processes on the same host).
//
// Per spec.md section 4.4 it holds a single FIFO of pending jobs and a
// single worker_waiting flag: the local side is request/reply-synchronous,
// so at most one worker request is ever outstanding at a time.
type Agent struct {
	upstream Sender
	local    Sender

	pending       *queue.Queue
	workerWaiting bool
	workerAddr    []byte // the local worker currently considered "waiting", if any

	shutdown func()
}

// New constructs an Agent. shutdown is invoked when the network side sends
// BYE, asking the surrounding supervisor to stop this agent's poll loop.
func New(upstream, local Sender, shutdown func()) *Agent {
	return &Agent{
		upstream:      upstream,
		local:         local,
		pending:       queue.New(),
		workerWaiting: true, // no job in flight yet; ready to accept one immediately
		shutdown:      shutdown,
	}
}

// OnWorkerHello forwards a worker's HELLO upstream unchanged, remembering
// which local address is now the "current" worker for this agent instance.
func (a *Agent) OnWorkerHello(msg wire.Message) {
	a.workerAddr = append([]byte(nil), msg.Source...)
	a.upstream.Send(wire.Message{Subject: wire.Hello, Payload: msg.Payload})
}

// OnNetworkWelcome is a pass-through hook; heartbeats toward the delegator
// are driven by the upstream socket's own heartbeat.Monitor once Connect
// has been called by the caller wiring this agent (see cmd/stateline-worker).
func (a *Agent) OnNetworkWelcome(msg wire.Message) {
	applog.With("agent").Info("received WELCOME from network")
}

// OnNetworkJob implements: if worker_waiting, forward to the worker and
// clear the flag; else queue it for the next RESULT.
func (a *Agent) OnNetworkJob(msg wire.Message) {
	if a.workerWaiting && a.workerAddr != nil {
		a.workerWaiting = false
		a.local.Send(wire.Message{Dest: a.workerAddr, Subject: wire.Job, Payload: msg.Payload})
		return
	}
	a.pending.Add(msg.Clone())
}

// OnWorkerResult implements: forward to network; if queue non-empty, pop
// and send the next job to the worker; else mark worker_waiting.
func (a *Agent) OnWorkerResult(msg wire.Message) {
	a.upstream.Send(wire.Message{Subject: wire.Result, Payload: msg.Payload})
	if a.pending.Length() > 0 {
		next := a.pending.Remove().(wire.Message)
		a.local.Send(wire.Message{Dest: a.workerAddr, Subject: wire.Job, Payload: next.Payload})
		return
	}
	a.workerWaiting = true
}

// OnNetworkBye requests shutdown of this agent's poll loop.
func (a *Agent) OnNetworkBye(msg wire.Message) {
	applog.With("agent").Info("received BYE from network, shutting down")
	if a.shutdown != nil {
		a.shutdown()
	}
}

// PendingLen reports the number of jobs queued awaiting a waiting worker
// (used by tests and metrics).
func (a *Agent) PendingLen() int { return a.pending.Length() }

// WorkerWaiting reports the current state of the single worker_waiting flag.
func (a *Agent) WorkerWaiting() bool { return a.workerWaiting }
