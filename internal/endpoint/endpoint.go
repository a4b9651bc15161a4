// Package endpoint implements the subject-dispatch table and the
// multi-socket poll loop described in spec.md section 4.3.
//
// Grounded on the teacher's highlevel.Server, which keeps a map of
// pattern -> RouteHandler with a fallback path; here the "pattern" is a
// closed tagged union (wire.Subject) rather than an HTTP path, per
// spec.md section 9's design note ("model as a closed tagged union of
// subjects with a dispatcher that matches on the tag").
//
// Author: momentics <momentics@gmail.com>
package endpoint

import "github.com/momentics/stateline/internal/wire"

// Handlers holds one callback per subject, each optional. Missing
// handlers fall through to OnDefault (which defaults to a silent drop);
// OnAny, if set, fires after the subject-specific handler regardless of
// whether one was registered.
type Handlers struct {
	OnHello       func(msg wire.Message)
	OnWelcome     func(msg wire.Message)
	OnJob         func(msg wire.Message)
	OnResult      func(msg wire.Message)
	OnBatchJob    func(msg wire.Message)
	OnBatchResult func(msg wire.Message)
	OnHeartbeat   func(msg wire.Message)
	OnBye         func(msg wire.Message)
	OnDefault     func(msg wire.Message)
	OnAny         func(msg wire.Message)
}

// Socket is the minimal surface an Endpoint needs from internal/socket.Socket.
type Socket interface {
	Chan() <-chan wire.Message
	ErrChan() <-chan error
	Send(msg wire.Message) bool
}

// Endpoint pairs a socket with its subject-dispatch table.
type Endpoint struct {
	Sock     Socket
	Handlers Handlers
}

// New constructs an Endpoint.
func New(sock Socket, h Handlers) *Endpoint {
	return &Endpoint{Sock: sock, Handlers: h}
}

// Dispatch routes msg to the matching handler, falling through to
// OnDefault, and always firing OnAny last.
func (e *Endpoint) Dispatch(msg wire.Message) {
	h := e.Handlers
	var handled bool
	switch msg.Subject {
	case wire.Hello:
		if h.OnHello != nil {
			h.OnHello(msg)
			handled = true
		}
	case wire.Welcome:
		if h.OnWelcome != nil {
			h.OnWelcome(msg)
			handled = true
		}
	case wire.Job:
		if h.OnJob != nil {
			h.OnJob(msg)
			handled = true
		}
	case wire.Result:
		if h.OnResult != nil {
			h.OnResult(msg)
			handled = true
		}
	case wire.BatchJob:
		if h.OnBatchJob != nil {
			h.OnBatchJob(msg)
			handled = true
		}
	case wire.BatchResult:
		if h.OnBatchResult != nil {
			h.OnBatchResult(msg)
			handled = true
		}
	case wire.Heartbeat:
		if h.OnHeartbeat != nil {
			h.OnHeartbeat(msg)
			handled = true
		}
	case wire.Bye:
		if h.OnBye != nil {
			h.OnBye(msg)
			handled = true
		}
	}
	if !handled && h.OnDefault != nil {
		h.OnDefault(msg)
	}
	if h.OnAny != nil {
		h.OnAny(msg)
	}
}
