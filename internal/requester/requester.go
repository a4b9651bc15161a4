// Package requester implements the thin client handle described in
// spec.md section 4.6: submit a batch, retrieve results in completion
// order (which need not match submission order).
//
// Grounded on the teacher's client.Client constructor/send/receive shape,
// narrowed from a general request/response client to the two operations
// the sampler actually needs.
//
// Author: momentics <momentics@gmail.com>
package requester

import (
	"github.com/momentics/stateline/internal/wire"
)

// Sender is the outbound surface a Requester needs from its socket.
type Sender interface {
	Send(msg wire.Message) bool
}

// Result is one completed batch as delivered to the sampler.
type Result struct {
	BatchID uint32
	Data    []float64
}

// Requester submits BatchJob messages and receives BatchResult messages in
// completion order via a buffered channel fed by the owning endpoint's
// OnBatchResult handler.
type Requester struct {
	sock     Sender
	results  chan Result
}

// New constructs a Requester bound to sock for outbound BatchJob frames.
// bufSize bounds how many completed batches may be buffered before
// Retrieve is called; it should be at least the number of chains that can
// have an outstanding submission simultaneously.
func New(sock Sender, bufSize int) *Requester {
	return &Requester{sock: sock, results: make(chan Result, bufSize)}
}

// Submit sends a BatchJob with the given id and sample data. It is legal
// to submit multiple batches before retrieving any of them.
func (r *Requester) Submit(batchID uint32, data []float64) bool {
	return r.sock.Send(wire.Message{
		Subject: wire.BatchJob,
		Payload: wire.BatchJobPayload{ID: batchID, Data: data}.Encode(),
	})
}

// OnBatchResult is the endpoint handler wired to the BatchResult subject;
// it decodes the payload and pushes it onto the completion channel that
// Retrieve drains.
func (r *Requester) OnBatchResult(msg wire.Message) {
	br, err := wire.DecodeBatchResult(msg.Payload)
	if err != nil {
		return
	}
	r.results <- Result{BatchID: br.ID, Data: br.Data}
}

// Retrieve blocks until a BatchResult has arrived, in the order batches
// actually completed (not the order they were submitted).
func (r *Requester) Retrieve() Result {
	return <-r.results
}
