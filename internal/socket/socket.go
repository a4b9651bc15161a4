// Package socket implements named sockets over a TCP datagram-style
// transport with four primitive roles — request, reply, router, dealer —
// per spec.md section 4.1.
//
// Grounded on the teacher's transport.NetConn (a thin pool-backed wrapper
// over net.Conn) and protocol.DecodeFrameFromBytes's incremental,
// incomplete-frame-tolerant decode loop, generalized from WebSocket frames
// to wire.Message envelopes. Every socket owns its own heartbeat.Monitor,
// exactly as spec.md section 4.1 requires ("every socket holds its own
// Heartbeat monitor").
//
// Author: momentics <momentics@gmail.com>
package socket

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/heartbeat"
	"github.com/momentics/stateline/internal/wire"
)

// Role selects the socket's messaging pattern.
type Role int

const (
	Request Role = iota
	Reply
	Router
	Dealer
)

var (
	ErrNotConnected   = errors.New("socket: not connected")
	ErrUnknownPeer    = errors.New("socket: unknown destination address")
	ErrIdentitySetTwice = errors.New("socket: identity must be set before connecting")
)

type peerConn struct {
	addr string
	conn net.Conn
	wmu  sync.Mutex
	buf  []byte
}

// Socket is a named wrapper around a set of TCP connections that speaks the
// wire.Message framing and tracks per-peer liveness.
type Socket struct {
	role     Role
	identity string
	connected bool

	mu       sync.Mutex
	peers    map[string]*peerConn
	listener net.Listener

	hb *heartbeat.Monitor

	recvCh chan wire.Message
	errCh  chan error
	closed chan struct{}
	closeOnce sync.Once

	onDisconnect func(addr string)
}

// OnDisconnect registers an additional callback invoked whenever a peer is
// dropped, whether by heartbeat timeout or by a read/write failure. Owning
// components (e.g. internal/delegator) use this to trigger their own
// recovery logic without needing to own the socket's heartbeat.Monitor
// directly.
func (s *Socket) OnDisconnect(fn func(addr string)) { s.onDisconnect = fn }

// New constructs a Socket of the given role with no identity assigned.
func New(role Role) *Socket {
	s := &Socket{
		role:   role,
		peers:  make(map[string]*peerConn),
		recvCh: make(chan wire.Message, 256),
		errCh:  make(chan error, 16),
		closed: make(chan struct{}),
	}
	s.hb = heartbeat.NewMonitor(s.sendHeartbeat, s.handleDisconnect)
	return s
}

// SetIdentity assigns the socket's identity. If id is empty, an 8-hex-digit
// id derived from a random UUID is generated, matching spec.md section 4.1.
// Identity must be set before Connect/Listen.
func (s *Socket) SetIdentity(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return ErrIdentitySetTwice
	}
	if id == "" {
		id = randomIdentity()
	}
	s.identity = id
	return nil
}

func (s *Socket) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func randomIdentity() string {
	// 8 hex digits from a uuid's leading bytes, per spec.md section 4.1.
	u := uuid.New()
	return hex.EncodeToString(u[:4])
}

// Listen starts accepting inbound connections, for Reply/Router sockets.
func (s *Socket) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("socket: listen %s: %w", addr, err)
	}
	tuneListener(ln)
	s.mu.Lock()
	s.listener = ln
	s.connected = true
	s.mu.Unlock()
	go s.acceptLoop(ln)
	return nil
}

func (s *Socket) acceptLoop(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.errCh <- fmt.Errorf("socket: accept: %w", err)
				return
			}
		}
		addr := c.RemoteAddr().String()
		pc := &peerConn{addr: addr, conn: c}
		s.mu.Lock()
		s.peers[addr] = pc
		s.mu.Unlock()
		go s.readLoop(pc)
	}
}

// Connect dials out to addr, for Request/Dealer sockets.
func (s *Socket) Connect(addr string) error {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("socket: dial %s: %w", addr, err)
	}
	pc := &peerConn{addr: addr, conn: c}
	s.mu.Lock()
	s.peers[addr] = pc
	s.connected = true
	s.mu.Unlock()
	go s.readLoop(pc)
	return nil
}

func (s *Socket) readLoop(pc *peerConn) {
	chunk := make([]byte, 64*1024)
	for {
		n, err := pc.conn.Read(chunk)
		if n > 0 {
			pc.buf = append(pc.buf, chunk[:n]...)
			for {
				msg, consumed, derr := wire.DecodeFrame(pc.buf)
				if derr != nil {
					s.errCh <- fmt.Errorf("socket: decode from %s: %w", pc.addr, derr)
					s.dropPeer(pc.addr)
					return
				}
				if consumed == 0 {
					break
				}
				pc.buf = pc.buf[consumed:]
				if msg.Source == nil {
					msg.Source = []byte(pc.addr)
				}
				s.hb.UpdateLastRecv(pc.addr, time.Now())
				s.recvCh <- msg
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.errCh <- fmt.Errorf("socket: read from %s: %w", pc.addr, err)
			}
			s.dropPeer(pc.addr)
			return
		}
	}
}

func (s *Socket) dropPeer(addr string) {
	s.mu.Lock()
	pc, ok := s.peers[addr]
	if ok {
		delete(s.peers, addr)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = pc.conn.Close()
	s.hb.Disconnect(addr)
	if s.onDisconnect != nil {
		s.onDisconnect(addr)
	}
}

// Send transmits msg, returning false (and flagging the peer for
// disconnect) on any transport failure, per spec.md section 4.1's
// contract that send never throws across the component boundary.
func (s *Socket) Send(msg wire.Message) bool {
	addr := string(msg.Dest)
	s.mu.Lock()
	pc, ok := s.peers[addr]
	if !ok && len(s.peers) == 1 {
		// req/rep/dealer: a single implicit peer.
		for _, only := range s.peers {
			pc, ok = only, true
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	frame, err := wire.EncodeFrame(msg)
	if err != nil {
		applog.With("socket").Warn("encode failed", "err", err)
		return false
	}

	pc.wmu.Lock()
	_, err = pc.conn.Write(frame)
	pc.wmu.Unlock()
	if err != nil {
		s.dropPeer(pc.addr)
		return false
	}
	s.hb.UpdateLastSend(pc.addr, time.Now())
	return true
}

// Recv blocks until at least one frame is available. Address is empty for
// dealer-typed sockets (set by the caller's own logic, since dealer peers
// are anonymous by convention).
func (s *Socket) Recv() (wire.Message, error) {
	select {
	case m := <-s.recvCh:
		if s.role == Dealer {
			m.Source = nil
		}
		return m, nil
	case err := <-s.errCh:
		return wire.Message{}, err
	case <-s.closed:
		return wire.Message{}, errors.New("socket: closed")
	}
}

// Chan exposes the receive channel for multiplexed polling (internal/endpoint).
func (s *Socket) Chan() <-chan wire.Message { return s.recvCh }

// ErrChan exposes the async error channel for multiplexed polling.
func (s *Socket) ErrChan() <-chan error { return s.errCh }

// Heartbeat returns the socket's own heartbeat monitor.
func (s *Socket) Heartbeat() *heartbeat.Monitor { return s.hb }

func (s *Socket) sendHeartbeat(addr string) {
	s.Send(wire.Message{Dest: []byte(addr), Subject: wire.Heartbeat})
}

func (s *Socket) handleDisconnect(addr string, reason heartbeat.Reason) {
	applog.With("socket").Info("peer disconnected", "addr", addr, "reason", reason.String())
	s.dropPeer(addr)
}

// Close shuts down the listener and every peer connection.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	s.mu.Lock()
	ln := s.listener
	peers := s.peers
	s.peers = make(map[string]*peerConn)
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, pc := range peers {
		_ = pc.conn.Close()
	}
	return nil
}
