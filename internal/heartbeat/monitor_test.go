package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectTakesLargerOfExistingAndProposedTimeout(t *testing.T) {
	m := NewMonitor(func(string) {}, func(string, Reason) {})
	now := time.Now()

	eff := m.Connect("a", 10*time.Second, now)
	require.Equal(t, 10*time.Second, eff)

	eff = m.Connect("a", 30*time.Second, now)
	require.Equal(t, 30*time.Second, eff, "proposing a longer timeout should widen it")

	eff = m.Connect("a", 5*time.Second, now)
	require.Equal(t, 30*time.Second, eff, "proposing a shorter timeout must not shrink it")
}

func TestIdleDisconnectsBeforeHeartbeatOnTie(t *testing.T) {
	var disconnected []string
	var heartbeats []string
	m := NewMonitor(
		func(addr string) { heartbeats = append(heartbeats, addr) },
		func(addr string, reason Reason) { disconnected = append(disconnected, addr) },
	)

	start := time.Now()
	m.Connect("w1", 10*time.Second, start) // interval = 5s

	// Just past the disconnect threshold (more than 2*interval since
	// lastRecv) and also past the heartbeat-due point: disconnect must win
	// the tie.
	later := start.Add(10*time.Second + time.Millisecond)
	m.Idle(later)

	require.Equal(t, []string{"w1"}, disconnected)
	require.Empty(t, heartbeats)
	require.False(t, m.Connected("w1"))
}

func TestIdleFiresHeartbeatBeforeDisconnectThreshold(t *testing.T) {
	var heartbeats []string
	m := NewMonitor(
		func(addr string) { heartbeats = append(heartbeats, addr) },
		func(string, Reason) {},
	)
	start := time.Now()
	m.Connect("w1", 10*time.Second, start) // interval = 5s

	m.Idle(start.Add(5 * time.Second))
	require.Equal(t, []string{"w1"}, heartbeats)
	require.True(t, m.Connected("w1"))
}

func TestDisconnectRemovesWithoutCallback(t *testing.T) {
	var called bool
	m := NewMonitor(func(string) {}, func(string, Reason) { called = true })
	m.Connect("w1", time.Second, time.Now())
	m.Disconnect("w1")
	require.False(t, m.Connected("w1"))
	require.False(t, called)
}

func TestIdleReturnsNextDueDuration(t *testing.T) {
	m := NewMonitor(func(string) {}, func(string, Reason) {})
	start := time.Now()
	m.Connect("w1", 10*time.Second, start) // interval = 5s

	next := m.Idle(start)
	require.InDelta(t, 5*time.Second, next, float64(time.Millisecond))
}

func TestIdleWithNoConnectionsReturnsZero(t *testing.T) {
	m := NewMonitor(func(string) {}, func(string, Reason) {})
	require.Zero(t, m.Idle(time.Now()))
}

func TestUpdateLastSendBumpsHeartbeatDueTime(t *testing.T) {
	m := NewMonitor(func(string) {}, func(string, Reason) {})
	start := time.Now()
	m.Connect("w1", 10*time.Second, start)
	m.UpdateLastSend("w1", start.Add(3*time.Second))

	var heartbeats []string
	m.onHeartbeat = func(addr string) { heartbeats = append(heartbeats, addr) }
	m.Idle(start.Add(6 * time.Second)) // 3s since lastSend < 5s interval
	require.Empty(t, heartbeats)
}
