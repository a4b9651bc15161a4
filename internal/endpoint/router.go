// File: internal/endpoint/router.go
// Author: momentics <momentics@gmail.com>
//
// The router polls a tuple of endpoints with a bounded wait, per spec.md
// section 4.3. Grounded on the teacher's internal/concurrency.EventLoop.Run:
// a tight loop that dequeues what's ready, then backs off, checked against
// a shared running flag rather than the teacher's quit/stopped channel pair
// (spec.md section 5 asks for "a shared atomic running flag checked between
// poll iterations").
package endpoint

import (
	"reflect"
	"sync/atomic"
	"time"

	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/wire"
)

// Idler is satisfied by heartbeat.Monitor: Idle runs one pass of the
// heartbeat algorithm and returns the duration until next due.
type Idler interface {
	Idle(now time.Time) time.Duration
}

// defaultPollCap bounds the wait when no idler has yet reported a next-due
// time (e.g. no peers connected), so Poll still observes the running flag
// promptly.
const defaultPollCap = 250 * time.Millisecond

// Router multiplexes a set of endpoints and a set of heartbeat idlers
// behind one poll loop.
type Router struct {
	endpoints []*Endpoint
	idlers    []Idler
	onIdle    func()

	lastWait time.Duration
}

// NewRouter constructs a Router over the given endpoints. onIdle, if
// non-nil, is invoked once per poll iteration after heartbeats are
// serviced, so a caller can drive its own periodic work (e.g. the agent's
// supervisor checks, or a sampler's background flush timer).
func NewRouter(onIdle func(), endpoints ...*Endpoint) *Router {
	return &Router{endpoints: endpoints, onIdle: onIdle, lastWait: defaultPollCap}
}

// AddIdler registers a heartbeat monitor whose Idle() bounds the poll wait
// and is serviced once per iteration.
func (r *Router) AddIdler(idler Idler) {
	r.idlers = append(r.idlers, idler)
}

// Poll runs the loop until running is cleared. Cancellation is cooperative:
// clearing running lets the current wait/dispatch finish, then the loop
// exits — in-flight messages are always fully processed before return.
func (r *Router) Poll(running *atomic.Bool) error {
	log := applog.With("router")
	for running.Load() {
		cases, kinds := r.buildSelectCases(r.lastWait)

		chosen, val, ok := reflect.Select(cases)
		switch kinds[chosen].kind {
		case kindMessage:
			if ok {
				msg := val.Interface().(wire.Message)
				kinds[chosen].endpoint.Dispatch(msg)
			}
		case kindError:
			if ok {
				if err, _ := val.Interface().(error); err != nil {
					log.Warn("endpoint error", "err", err)
				}
			}
		case kindTimeout:
			// nothing to dispatch this round; fall through to idle servicing.
		}

		r.runIdle()
	}
	return nil
}

// runIdle services every registered heartbeat monitor and caches the
// smallest next-due duration to bound the following select.
func (r *Router) runIdle() {
	now := time.Now()
	wait := defaultPollCap
	for _, idler := range r.idlers {
		d := idler.Idle(now)
		if d > 0 && d < wait {
			wait = d
		}
	}
	r.lastWait = wait
	if r.onIdle != nil {
		r.onIdle()
	}
}

type dispatchKind int

const (
	kindTimeout dispatchKind = iota
	kindMessage
	kindError
)

type caseKind struct {
	kind     dispatchKind
	endpoint *Endpoint
}

func (r *Router) buildSelectCases(wait time.Duration) ([]reflect.SelectCase, []caseKind) {
	cases := make([]reflect.SelectCase, 0, 2*len(r.endpoints)+1)
	kinds := make([]caseKind, 0, cap(cases))
	for _, ep := range r.endpoints {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ep.Sock.Chan())})
		kinds = append(kinds, caseKind{kind: kindMessage, endpoint: ep})
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ep.Sock.ErrChan())})
		kinds = append(kinds, caseKind{kind: kindError, endpoint: ep})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(wait))})
	kinds = append(kinds, caseKind{kind: kindTimeout})
	return cases, kinds
}
