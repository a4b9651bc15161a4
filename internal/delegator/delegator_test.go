package delegator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/stateline/internal/wire"
)

type fakeSender struct {
	order *[]string
	sent  []wire.Message
}

func (f *fakeSender) Send(msg wire.Message) bool {
	if f.order != nil {
		*f.order = append(*f.order, "send:"+msg.Subject.String())
	}
	f.sent = append(f.sent, msg.Clone())
	return true
}

type fakeHB struct {
	order      *[]string
	proposed   map[string]time.Duration
	disconnect []string
}

func newFakeHB(order *[]string) *fakeHB {
	return &fakeHB{order: order, proposed: make(map[string]time.Duration)}
}

func (f *fakeHB) Connect(addr string, proposedTimeout time.Duration, now time.Time) time.Duration {
	*f.order = append(*f.order, "connect:"+addr)
	f.proposed[addr] = proposedTimeout
	return proposedTimeout
}

func (f *fakeHB) Disconnect(addr string) {
	*f.order = append(*f.order, "disconnect:"+addr)
	f.disconnect = append(f.disconnect, addr)
}

func newTestDelegator(t *testing.T, numJobTypes int) (*Delegator, *fakeSender, *fakeHB, *[]string) {
	t.Helper()
	order := &[]string{}
	sender := &fakeSender{order: order}
	hb := newFakeHB(order)
	d := New(Config{NumJobTypes: numJobTypes, DefaultHBTimeout: 15 * time.Second}, sender, hb)
	return d, sender, hb, order
}

func helloMsg(addr string, lo, hi, hbSecs uint32) wire.Message {
	return wire.Message{
		Source:  []byte(addr),
		Subject: wire.Hello,
		Payload: wire.HelloPayload{HBTimeoutSecs: hbSecs, JobTypesRangeLo: lo, JobTypesRangeHi: hi}.Encode(),
	}
}

func TestHandleHelloSendsWelcomeBeforeHeartbeatConnect(t *testing.T) {
	d, sender, _, order := newTestDelegator(t, 1)
	d.HandleHello(helloMsg("w1", 1, 1, 15))

	require.Len(t, sender.sent, 1)
	require.Equal(t, wire.Welcome, sender.sent[0].Subject)
	require.Equal(t, []string{"send:WELCOME", "connect:w1"}, *order, "WELCOME must be sent before the heartbeat monitor starts tracking the peer")
	require.Equal(t, 1, d.WorkerCount())
}

func TestHandleBatchJobQueuesOneJobPerType(t *testing.T) {
	d, _, _, _ := newTestDelegator(t, 3)
	d.HandleBatchJob(wire.Message{
		Source:  []byte("requester1"),
		Subject: wire.BatchJob,
		Payload: wire.BatchJobPayload{ID: 1, Data: []float64{1, 2, 3}}.Encode(),
	})
	require.Equal(t, 3, d.QueueLen(), "with no workers connected, every job type's job stays queued")
	require.Equal(t, 1, d.PendingBatchCount())
}

func TestFullBatchRoundTrip(t *testing.T) {
	d, sender, _, _ := newTestDelegator(t, 2)
	d.HandleHello(helloMsg("w1", 1, 2, 15))
	sender.sent = nil

	d.HandleBatchJob(wire.Message{
		Source:  []byte("requester1"),
		Subject: wire.BatchJob,
		Payload: wire.BatchJobPayload{ID: 42, Data: []float64{10, 20}}.Encode(),
	})
	require.Zero(t, d.QueueLen(), "a covering worker should drain the queue immediately")
	require.Len(t, sender.sent, 2)

	var jobs []wire.JobPayload
	for _, m := range sender.sent {
		require.Equal(t, wire.Job, m.Subject)
		jp, err := wire.DecodeJob(m.Payload)
		require.NoError(t, err)
		jobs = append(jobs, jp)
	}

	d.HandleResult(wire.Message{
		Source:  []byte("w1"),
		Subject: wire.Result,
		Payload: wire.ResultPayload{ID: jobs[0].ID, Data: 1.5}.Encode(),
	})
	require.Equal(t, 1, d.PendingBatchCount(), "batch incomplete until every job type reports")

	sender.sent = nil
	d.HandleResult(wire.Message{
		Source:  []byte("w1"),
		Subject: wire.Result,
		Payload: wire.ResultPayload{ID: jobs[1].ID, Data: 2.5}.Encode(),
	})
	require.Zero(t, d.PendingBatchCount())
	require.Len(t, sender.sent, 1)
	require.Equal(t, wire.BatchResult, sender.sent[0].Subject)
	br, err := wire.DecodeBatchResult(sender.sent[0].Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(42), br.ID)
	require.ElementsMatch(t, []float64{1.5, 2.5}, br.Data)
}

func TestRemoveWorkerRequeuesInProgressJobsSortedByID(t *testing.T) {
	d, sender, hb, _ := newTestDelegator(t, 2)
	d.HandleHello(helloMsg("w1", 1, 2, 15))
	d.HandleBatchJob(wire.Message{
		Source:  []byte("requester1"),
		Subject: wire.BatchJob,
		Payload: wire.BatchJobPayload{ID: 1, Data: []float64{1, 2}}.Encode(),
	})
	require.Zero(t, d.QueueLen())
	require.NotNil(t, sender)

	d.HandleBye(wire.Message{Source: []byte("w1")})

	require.Equal(t, 0, d.WorkerCount())
	require.Equal(t, 2, d.QueueLen(), "both in-progress jobs must be requeued on worker death")
	require.Contains(t, hb.disconnect, "w1")
	require.Equal(t, []uint32{1, 2}, ids(d.jobQueue.drain()), "requeued jobs come back in job-id order")
}

func TestRemoveWorkerIsNoopForUnknownAddr(t *testing.T) {
	d, _, _, _ := newTestDelegator(t, 1)
	require.NotPanics(t, func() { d.HandleBye(wire.Message{Source: []byte("ghost")}) })
}

func TestPickWorkerBreaksEqualETATieByLowerAddr(t *testing.T) {
	d, sender, _, _ := newTestDelegator(t, 1)
	d.HandleHello(helloMsg("w-b", 1, 1, 15))
	d.HandleHello(helloMsg("w-a", 1, 1, 15))
	sender.sent = nil

	d.HandleBatchJob(wire.Message{
		Source:  []byte("requester1"),
		Subject: wire.BatchJob,
		Payload: wire.BatchJobPayload{ID: 1, Data: []float64{1}}.Encode(),
	})

	require.Len(t, sender.sent, 1)
	require.Equal(t, []byte("w-a"), sender.sent[0].Dest, "equal ETA (no history on either) ties to the lower address")
}

func TestHandleResultIgnoresUnknownWorkerOrJob(t *testing.T) {
	d, _, _, _ := newTestDelegator(t, 1)
	require.NotPanics(t, func() {
		d.HandleResult(wire.Message{Source: []byte("ghost"), Payload: wire.ResultPayload{ID: 1}.Encode()})
	})

	d.HandleHello(helloMsg("w1", 1, 1, 15))
	require.NotPanics(t, func() {
		d.HandleResult(wire.Message{Source: []byte("w1"), Payload: wire.ResultPayload{ID: 999}.Encode()})
	})
}
