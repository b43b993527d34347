package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signal-monitor/internal/signal"
)

// streamPath is the fixed WebSocket path on the backend host.
const streamPath = "/ws/signals"

// Client talks to the product backend's REST surface and derives the stream
// socket URL from the same base.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *Client) url(p string) string {
	return fmt.Sprintf("%s%s", c.baseURL, p)
}

// WebSocketURL derives the stream endpoint from the backend base URL: http
// becomes ws, https becomes wss, host and port are inherited. This is the
// local validation performed before every dial; a failure here is handled
// like any other failed connection attempt.
func (c *Client) WebSocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("stream endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("stream endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("stream endpoint: missing host")
	}
	u.Path = streamPath
	return u.String(), nil
}

// StreamStatus fetches the backend's aggregate streaming status.
func (c *Client) StreamStatus(ctx context.Context) (signal.StreamStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/signals/status"), nil)
	if err != nil {
		return signal.StreamStatus{}, fmt.Errorf("status fetch: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return signal.StreamStatus{}, fmt.Errorf("status fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return signal.StreamStatus{}, fmt.Errorf("status fetch: http %d", resp.StatusCode)
	}
	var st signal.StreamStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return signal.StreamStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// SendTestSignal asks the backend to broadcast a one-shot test signal. The
// direction defaults to a coin flip; the resulting broadcast, if any, comes
// back through the normal stream path.
func (c *Client) SendTestSignal(ctx context.Context, symbol string, dir signal.Direction) error {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return errors.New("empty symbol")
	}
	if dir == "" {
		dir = signal.RandomDirection()
	}
	body, _ := json.Marshal(map[string]string{"symbol": sym, "signalType": string(dir)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/signals/test"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("test signal: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.logger.Debug("test signal requested",
		slog.String("symbol", sym),
		slog.String("direction", string(dir)),
	)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("test signal: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("test signal: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) HTTPClient() *http.Client { return c.httpc }
func (c *Client) BaseURL() string          { return c.baseURL }
