package stream

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"signal-monitor/internal/signal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

// manualClock captures reconnect scheduling so tests drive time by hand.
type manualClock struct {
	calls chan scheduledCall
}

func newManualClock() *manualClock {
	return &manualClock{calls: make(chan scheduledCall, 16)}
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) *time.Timer {
	c.calls <- scheduledCall{delay: d, fn: fn}
	return time.NewTimer(time.Hour) // never fires; Stop still works
}

func newTestSupervisor(t *testing.T, maxAttempts int) (*Supervisor, *MockTransport, *manualClock) {
	t.Helper()
	mt := NewMockTransport()
	clock := newManualClock()
	sup := NewSupervisor(NewClient("http://127.0.0.1:8091", testLogger()), signal.NewBuffer(50), maxAttempts, testLogger())
	sup.transport = mt
	sup.afterFunc = clock.AfterFunc
	return sup, mt, clock
}

func waitNote(t *testing.T, sup *Supervisor, kind Kind) Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-sup.Notifications():
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notification", kind)
		}
	}
}

func waitConn(t *testing.T, mt *MockTransport) *MockConn {
	t.Helper()
	select {
	case c := <-mt.Dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no dial")
		return nil
	}
}

func waitSchedule(t *testing.T, clock *manualClock) scheduledCall {
	t.Helper()
	select {
	case sc := <-clock.calls:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect scheduled")
		return scheduledCall{}
	}
}

func TestConnectLifecycle(t *testing.T) {
	sup, mt, _ := newTestSupervisor(t, 5)
	defer sup.Close()

	sup.Start()
	conn := waitConn(t, mt)
	waitNote(t, sup, KindConnected)
	if got := sup.State(); got != StateConnected {
		t.Fatalf("state got %v want connected", got)
	}
	if !sup.Streaming() {
		t.Fatal("desired mode should be streaming")
	}

	conn.SendFrame([]byte(`{"type":"signal","data":{"id":"1","symbol":"BTCUSDT","signalType":"buy","price":50000}}`))
	n := waitNote(t, sup, KindNewSignal)
	if n.Signal == nil || n.Signal.Symbol != "BTCUSDT" || n.Signal.Type != signal.Buy {
		t.Fatalf("notification signal got %+v", n.Signal)
	}
	if sup.buf.Len() != 1 {
		t.Fatalf("buffer len got %d want 1", sup.buf.Len())
	}
}

func TestBackoffScheduleAndExhaustion(t *testing.T) {
	sup, mt, clock := newTestSupervisor(t, 5)
	defer sup.Close()

	mt.FailDials(errors.New("connection refused"))
	sup.Start()

	for i, base := range []time.Duration{1, 2, 4, 8, 16} {
		sc := waitSchedule(t, clock)
		if sc.delay != base*time.Second {
			t.Fatalf("attempt %d delay got %v want %v", i, sc.delay, base*time.Second)
		}
		sc.fn()
	}

	waitNote(t, sup, KindConnectionFailed)
	if got := sup.State(); got != StateDisconnected {
		t.Fatalf("state got %v want disconnected", got)
	}

	// No sixth attempt may be scheduled.
	select {
	case sc := <-clock.calls:
		t.Fatalf("unexpected sixth reconnect scheduled after %v", sc.delay)
	case <-time.After(100 * time.Millisecond):
	}

	// And the give-up notification fires exactly once.
	extra := 0
	for {
		select {
		case n := <-sup.Notifications():
			if n.Kind == KindConnectionFailed {
				extra++
			}
		case <-time.After(100 * time.Millisecond):
			if extra != 0 {
				t.Fatalf("connection_failed fired %d extra times", extra)
			}
			return
		}
	}
}

func TestRetryBudgetResetsOnOpen(t *testing.T) {
	sup, mt, clock := newTestSupervisor(t, 5)
	defer sup.Close()

	mt.FailDials(errors.New("connection refused"))
	sup.Start()

	sc := waitSchedule(t, clock)
	if sc.delay != time.Second {
		t.Fatalf("first delay got %v want 1s", sc.delay)
	}
	sc.fn()
	sc = waitSchedule(t, clock)
	if sc.delay != 2*time.Second {
		t.Fatalf("second delay got %v want 2s", sc.delay)
	}

	mt.FailDials(nil) // backend is back
	sc.fn()
	conn := waitConn(t, mt)
	waitNote(t, sup, KindConnected)
	if got := sup.Attempts(); got != 0 {
		t.Fatalf("attempts got %d want 0 after successful open", got)
	}

	conn.FailRead(io.ErrUnexpectedEOF)
	sc = waitSchedule(t, clock)
	if sc.delay != time.Second {
		t.Fatalf("post-open delay got %v want 1s (schedule restarts)", sc.delay)
	}
}

func TestReadFailureClosesConn(t *testing.T) {
	sup, mt, clock := newTestSupervisor(t, 5)
	defer sup.Close()

	sup.Start()
	conn := waitConn(t, mt)
	waitNote(t, sup, KindConnected)

	conn.FailRead(io.ErrUnexpectedEOF)
	waitSchedule(t, clock)

	// The dead conn must be released; its keepalive loop exits only on Close.
	deadline := time.After(2 * time.Second)
	for !conn.Closed() {
		select {
		case <-deadline:
			t.Fatal("conn left open after read failure")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopIdempotent(t *testing.T) {
	sup, mt, _ := newTestSupervisor(t, 5)
	defer sup.Close()

	sup.Start()
	conn := waitConn(t, mt)
	waitNote(t, sup, KindConnected)

	sup.Stop()
	waitNote(t, sup, KindDisconnected)
	sup.Stop()

	if !conn.Closed() {
		t.Fatal("stop must close the live conn")
	}
	if got := sup.State(); got != StateDisconnected {
		t.Fatalf("state got %v want disconnected", got)
	}
	if sup.Streaming() {
		t.Fatal("desired mode should be off")
	}
	sup.mu.Lock()
	timer := sup.retryTimer
	sup.mu.Unlock()
	if timer != nil {
		t.Fatal("no reconnect timer may survive stop")
	}
	select {
	case n := <-sup.Notifications():
		t.Fatalf("unexpected notification after second stop: %s", n.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	sup, mt, clock := newTestSupervisor(t, 5)
	defer sup.Close()

	mt.FailDials(errors.New("connection refused"))
	sup.Start()
	sc := waitSchedule(t, clock)

	sup.Stop()
	sc.fn() // stale timer fires anyway; the generation guard must ignore it

	select {
	case <-mt.Dialed:
		t.Fatal("stale reconnect timer must not dial")
	case <-time.After(100 * time.Millisecond):
	}
	sup.mu.Lock()
	timer := sup.retryTimer
	sup.mu.Unlock()
	if timer != nil {
		t.Fatal("timer handle should be cleared by stop")
	}
}

func TestMalformedFramesTolerated(t *testing.T) {
	sup, mt, clock := newTestSupervisor(t, 5)
	defer sup.Close()

	sup.Start()
	conn := waitConn(t, mt)
	waitNote(t, sup, KindConnected)

	conn.SendFrame([]byte(`this is not json`))
	conn.SendFrame([]byte(`{"type":"mystery","data":{}}`))
	conn.SendFrame([]byte(`{"type":"signal","data":{"id":"x","symbol":"","signalType":"buy","price":1}}`))
	conn.SendFrame([]byte(`{"type":"signal","data":{"id":"ok","symbol":"ETHUSDT","signalType":"sell","price":2500}}`))

	// Frames are processed in order, so once the valid one lands the
	// malformed ones have already been discarded.
	n := waitNote(t, sup, KindNewSignal)
	if n.Signal.ID != "ok" {
		t.Fatalf("signal id got %s want ok", n.Signal.ID)
	}
	if sup.buf.Len() != 1 {
		t.Fatalf("buffer len got %d want 1", sup.buf.Len())
	}
	if got := sup.State(); got != StateConnected {
		t.Fatalf("state got %v want connected", got)
	}
	if got := sup.Attempts(); got != 0 {
		t.Fatalf("attempts got %d want 0", got)
	}
	select {
	case sc := <-clock.calls:
		t.Fatalf("unexpected reconnect scheduled after %v", sc.delay)
	default:
	}
}

func TestInvalidEndpointFollowsClosePath(t *testing.T) {
	mt := NewMockTransport()
	clock := newManualClock()
	sup := NewSupervisor(NewClient("ftp://example.com", testLogger()), signal.NewBuffer(50), 2, testLogger())
	sup.transport = mt
	sup.afterFunc = clock.AfterFunc
	defer sup.Close()

	sup.Start()
	waitNote(t, sup, KindConnectionError)

	sc := waitSchedule(t, clock)
	if sc.delay != time.Second {
		t.Fatalf("delay got %v want 1s", sc.delay)
	}
	sc.fn()
	sc = waitSchedule(t, clock)
	if sc.delay != 2*time.Second {
		t.Fatalf("delay got %v want 2s", sc.delay)
	}
	sc.fn()
	waitNote(t, sup, KindConnectionFailed)
	if got := sup.State(); got != StateDisconnected {
		t.Fatalf("state got %v want disconnected", got)
	}
	select {
	case <-mt.Dialed:
		t.Fatal("invalid endpoint must never reach the transport")
	default:
	}
}

func TestStartWhileConnectedIsNoop(t *testing.T) {
	sup, mt, _ := newTestSupervisor(t, 5)
	defer sup.Close()

	sup.Start()
	waitConn(t, mt)
	waitNote(t, sup, KindConnected)

	sup.Start()
	select {
	case <-mt.Dialed:
		t.Fatal("start while connected must not redial")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartAfterExhaustionRetries(t *testing.T) {
	sup, mt, clock := newTestSupervisor(t, 1)
	defer sup.Close()

	mt.FailDials(errors.New("connection refused"))
	sup.Start()
	sc := waitSchedule(t, clock)
	sc.fn()
	waitNote(t, sup, KindConnectionFailed)

	mt.FailDials(nil)
	sup.Start() // explicit restart resets the budget
	waitConn(t, mt)
	waitNote(t, sup, KindConnected)
	if got := sup.Attempts(); got != 0 {
		t.Fatalf("attempts got %d want 0", got)
	}
}
