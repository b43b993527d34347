package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-monitor/internal/signal"
)

// ConnState is the socket lifecycle state, owned exclusively by the
// Supervisor. Transitions happen only on lifecycle events (open, read
// failure, scheduled redial) or an explicit Stop.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const dialTimeout = 10 * time.Second

// Supervisor owns the stream socket: connect, receive, close, reconnect
// with backoff. Reconnect delays double from one second; the budget resets
// on a successful open or an explicit Start. Once the budget is spent the
// supervisor stays down until the next explicit Start.
type Supervisor struct {
	client    *Client
	buf       *signal.Buffer
	log       *slog.Logger
	transport Transport
	afterFunc func(time.Duration, func()) *time.Timer

	mu          sync.Mutex
	state       ConnState
	streaming   bool // desired mode, as distinct from transient socket state
	attempts    int
	maxAttempts int
	gen         int // session generation; bumped by Start/Stop so stale callbacks abort
	conn        Conn
	retryTimer  *time.Timer
	exhausted   bool
	closed      bool

	notes chan Notification
}

func NewSupervisor(client *Client, buf *signal.Buffer, maxAttempts int, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		client:      client,
		buf:         buf,
		log:         logger,
		transport:   wsTransport{},
		afterFunc:   time.AfterFunc,
		maxAttempts: maxAttempts,
		notes:       make(chan Notification, 64),
	}
}

// Notifications delivers fire-and-forget events for the view layer. Slow
// consumers lose notifications rather than stalling the read loop.
func (s *Supervisor) Notifications() <-chan Notification { return s.notes }

func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Start begins (or explicitly restarts) a streaming session. It resets the
// retry budget; reconnects scheduled by the supervisor itself do not.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.streaming && s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.streaming = true
	s.attempts = 0
	s.exhausted = false
	s.gen++
	s.stopTimerLocked()
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	s.log.Info("stream starting", slog.String("backend_url", s.client.BaseURL()))
	go s.dial(gen)
}

// Stop ends the streaming session: cancels any pending reconnect, closes the
// socket, and parks the supervisor in Disconnected. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.streaming && s.state == StateDisconnected && s.retryTimer == nil {
		s.mu.Unlock()
		return
	}
	wasLive := s.state != StateDisconnected
	s.streaming = false
	s.gen++
	s.stopTimerLocked()
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.log.Info("stream stopped")
	if wasLive {
		s.notify(newNotification(KindDisconnected, "streaming stopped"))
	}
}

// Close tears the supervisor down for good: Stop plus closing the
// notifications channel. For process shutdown, not mid-session use.
func (s *Supervisor) Close() {
	s.Stop()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.notes)
	}
	s.mu.Unlock()
}

func (s *Supervisor) stopTimerLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Supervisor) stale(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}

func (s *Supervisor) dial(gen int) {
	wsURL, err := s.client.WebSocketURL()
	if err != nil {
		if s.stale(gen) {
			return
		}
		s.log.Error("stream endpoint rejected", slog.String("err", err.Error()))
		s.notify(newNotification(KindConnectionError, err.Error()))
		s.connectionClosed(gen)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := s.transport.Dial(ctx, wsURL)
	if err != nil {
		if s.stale(gen) {
			return
		}
		s.log.Warn("stream dial failed", slog.String("url", wsURL), slog.String("err", err.Error()))
		s.notify(newNotification(KindConnectionError, fmt.Sprintf("connect: %v", err)))
		s.connectionClosed(gen)
		return
	}

	s.mu.Lock()
	if gen != s.gen || !s.streaming {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.state = StateConnected
	s.attempts = 0
	s.exhausted = false
	s.mu.Unlock()

	s.log.Info("stream connected", slog.String("url", wsURL))
	s.notify(newNotification(KindConnected, "signal stream connected"))
	go s.readLoop(conn, gen)
}

// readLoop is the only goroutine that touches inbound frames, so frames are
// processed strictly in arrival order and buffer pushes are serialized.
func (s *Supervisor) readLoop(conn Conn, gen int) {
	// The conn's keepalive stops only on Close, so the conn must die with
	// its read loop regardless of the exit path.
	defer func() { _ = conn.Close() }()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if s.stale(gen) {
				return
			}
			if !isNormalClose(err) {
				s.log.Warn("stream read", slog.String("err", err.Error()))
				s.notify(newNotification(KindConnectionError, err.Error()))
			}
			s.connectionClosed(gen)
			return
		}
		s.handleFrame(data)
	}
}

func (s *Supervisor) handleFrame(data []byte) {
	frame, err := signal.DecodeFrame(data)
	if err != nil {
		s.log.Debug("discarding frame", slog.String("err", err.Error()))
		return
	}
	switch frame.Type {
	case signal.FrameSignal:
		ev, err := signal.DecodeEvent(frame.Data)
		if err != nil {
			s.log.Debug("discarding frame", slog.String("err", err.Error()))
			return
		}
		s.buf.Push(ev)
		s.notify(newSignalNotification(ev))
	case signal.FrameConnection:
		s.log.Info("stream acknowledgment", slog.String("message", frame.Message))
	}
}

// connectionClosed is the single path through which every failed or closed
// connection goes: schedule a redial while budget remains, otherwise give
// up until the next explicit Start.
func (s *Supervisor) connectionClosed(gen int) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected

	if s.attempts >= s.maxAttempts {
		first := !s.exhausted
		s.exhausted = true
		s.mu.Unlock()
		s.notify(newNotification(KindDisconnected, "signal stream disconnected"))
		if first {
			s.log.Error("stream retry budget exhausted", slog.Int("attempts", s.maxAttempts))
			s.notify(newNotification(KindConnectionFailed,
				fmt.Sprintf("signal stream unavailable after %d attempts; toggle streaming to retry", s.maxAttempts)))
		}
		return
	}

	delay := time.Duration(1<<uint(s.attempts)) * time.Second
	s.attempts++
	attempt := s.attempts
	s.retryTimer = s.afterFunc(delay, func() { s.redial(gen) })
	s.mu.Unlock()

	s.log.Warn("stream closed, reconnect scheduled",
		slog.Duration("delay", delay),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", s.maxAttempts),
	)
	s.notify(newNotification(KindDisconnected,
		fmt.Sprintf("signal stream disconnected; reconnecting in %s", delay)))
}

func (s *Supervisor) redial(gen int) {
	s.mu.Lock()
	if gen != s.gen || !s.streaming || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.state = StateConnecting
	s.mu.Unlock()
	s.dial(gen)
}

func (s *Supervisor) notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notes <- n:
	default:
		// drop if buffer full
	}
}
