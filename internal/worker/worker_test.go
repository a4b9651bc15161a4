package worker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/stateline/internal/wire"
)

type fakeSender struct {
	sent []wire.Message
}

func (f *fakeSender) Send(msg wire.Message) bool {
	f.sent = append(f.sent, msg.Clone())
	return true
}

func TestSayHelloSendsHelloPayload(t *testing.T) {
	sock := &fakeSender{}
	m := New(sock, func(uint32, []float32) float32 { return 0 })
	m.SayHello(1, 3, 15)

	require.Len(t, sock.sent, 1)
	require.Equal(t, wire.Hello, sock.sent[0].Subject)
	got, err := wire.DecodeHello(sock.sent[0].Payload)
	require.NoError(t, err)
	require.Equal(t, wire.HelloPayload{HBTimeoutSecs: 15, JobTypesRangeLo: 1, JobTypesRangeHi: 3}, got)
}

func TestRunProcessesJobAndSendsResult(t *testing.T) {
	sock := &fakeSender{}
	m := New(sock, func(jobType uint32, data []float32) float32 {
		var sum float32
		for _, v := range data {
			sum += v
		}
		return sum
	})
	go m.Run()
	defer m.Stop()

	job := wire.JobPayload{ID: 5, Type: 1, Data: []float32{1, 2, 3}}
	m.OnJob(wire.Message{Subject: wire.Job, Payload: job.Encode()})

	require.Eventually(t, func() bool { return len(sock.sent) == 1 }, time.Second, time.Millisecond)
	res, err := wire.DecodeResult(sock.sent[0].Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(5), res.ID)
	require.InDelta(t, float32(6), res.Data, 1e-6)
}

func TestRunTreatsPanicAsInfiniteEnergy(t *testing.T) {
	sock := &fakeSender{}
	m := New(sock, func(uint32, []float32) float32 { panic("boom") })
	go m.Run()
	defer m.Stop()

	job := wire.JobPayload{ID: 1, Type: 1, Data: []float32{1}}
	m.OnJob(wire.Message{Subject: wire.Job, Payload: job.Encode()})

	require.Eventually(t, func() bool { return len(sock.sent) == 1 }, time.Second, time.Millisecond)
	res, err := wire.DecodeResult(sock.sent[0].Payload)
	require.NoError(t, err)
	require.True(t, math.IsInf(float64(res.Data), 1))
}

func TestRunExitsWhenStopped(t *testing.T) {
	m := New(&fakeSender{}, func(uint32, []float32) float32 { return 0 })
	done := make(chan struct{})
	go func() { m.Run(); close(done) }()
	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
