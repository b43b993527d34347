package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport opens stream connections. Production uses the gorilla dialer;
// tests inject MockTransport.
type Transport interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// Conn is the read side of a stream socket. The supervisor is a read-only
// consumer; the outbound direction is unused.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type wsTransport struct{}

func (wsTransport) Dial(ctx context.Context, rawURL string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := d.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}

// wsConn wraps a gorilla connection with keepalive plumbing: read limit,
// rolling read deadline refreshed by pongs, and a ping loop.
type wsConn struct {
	ws   *websocket.Conn
	done chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{ws: ws, done: make(chan struct{})}
	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"),
			time.Now().Add(time.Second))
	})
	return c.ws.Close()
}

// isNormalClose reports whether a read error is a polite shutdown rather
// than a transport fault.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// ---------- Test/mock transport (handy for tests & demos) ----------

// MockTransport hands out scripted connections and exposes each dialed
// MockConn so tests can drive the read loop.
type MockTransport struct {
	mu      sync.Mutex
	dialErr error
	Dialed  chan *MockConn
}

func NewMockTransport() *MockTransport {
	return &MockTransport{Dialed: make(chan *MockConn, 16)}
}

// FailDials makes every subsequent dial fail with err; nil restores success.
func (m *MockTransport) FailDials(err error) {
	m.mu.Lock()
	m.dialErr = err
	m.mu.Unlock()
}

func (m *MockTransport) Dial(ctx context.Context, rawURL string) (Conn, error) {
	m.mu.Lock()
	err := m.dialErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := &MockConn{
		URL:  rawURL,
		in:   make(chan []byte, 16),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	m.Dialed <- c
	return c, nil
}

type MockConn struct {
	URL  string
	in   chan []byte
	errs chan error
	done chan struct{}
	once sync.Once
}

func (c *MockConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case err := <-c.errs:
		return nil, err
	case <-c.done:
		return nil, &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"}
	}
}

func (c *MockConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Helpers for tests
func (c *MockConn) SendFrame(b []byte) { c.in <- b }
func (c *MockConn) FailRead(err error) { c.errs <- err }

// Closed reports whether the conn has been released.
func (c *MockConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
