package endpoint

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/stateline/internal/wire"
)

type fakeSocket struct {
	recv chan wire.Message
	errs chan error
	sent []wire.Message
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{recv: make(chan wire.Message, 8), errs: make(chan error, 8)}
}

func (f *fakeSocket) Chan() <-chan wire.Message { return f.recv }
func (f *fakeSocket) ErrChan() <-chan error      { return f.errs }
func (f *fakeSocket) Send(msg wire.Message) bool {
	f.sent = append(f.sent, msg)
	return true
}

type fakeIdler struct {
	calls int32
}

func (f *fakeIdler) Idle(now time.Time) time.Duration {
	atomic.AddInt32(&f.calls, 1)
	return 10 * time.Millisecond
}

func TestRouterPollDispatchesAndStopsOnRunningFlag(t *testing.T) {
	sock := newFakeSocket()
	var jobs int32
	ep := New(sock, Handlers{OnJob: func(wire.Message) { atomic.AddInt32(&jobs, 1) }})
	router := NewRouter(nil, ep)

	var running atomic.Bool
	running.Store(true)

	done := make(chan error, 1)
	go func() { done <- router.Poll(&running) }()

	sock.recv <- wire.Message{Subject: wire.Job}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&jobs) == 1 }, time.Second, time.Millisecond)

	running.Store(false)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after running was cleared")
	}
}

func TestRouterPollServicesIdlersEveryIteration(t *testing.T) {
	sock := newFakeSocket()
	ep := New(sock, Handlers{})
	router := NewRouter(nil, ep)
	idler := &fakeIdler{}
	router.AddIdler(idler)

	var running atomic.Bool
	running.Store(true)
	done := make(chan error, 1)
	go func() { done <- router.Poll(&running) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&idler.calls) > 0 }, time.Second, time.Millisecond)

	running.Store(false)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not return")
	}
}

func TestRouterPollSurfacesErrorsWithoutStopping(t *testing.T) {
	sock := newFakeSocket()
	ep := New(sock, Handlers{})
	router := NewRouter(nil, ep)

	var running atomic.Bool
	running.Store(true)
	done := make(chan error, 1)
	go func() { done <- router.Poll(&running) }()

	sock.errs <- wire.ErrFrameTooLarge

	time.Sleep(20 * time.Millisecond)
	running.Store(false)
	select {
	case err := <-done:
		require.NoError(t, err, "an endpoint-level error must not abort the poll loop itself")
	case <-time.After(time.Second):
		t.Fatal("Poll did not return")
	}
}
