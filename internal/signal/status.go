package signal

import "time"

// StreamStatus is the backend's aggregate streaming status. Each poll
// replaces the whole snapshot; there are no partial updates.
type StreamStatus struct {
	WebSocket SocketStatus `json:"websocket"`
	Tickers   TickerStatus `json:"tickers"`
	Signals   SignalCounts `json:"signals"`
	Server    ServerInfo   `json:"server"`
}

type SocketStatus struct {
	Connected int    `json:"connected"` // connected client count
	Status    string `json:"status"`    // "active" or "idle"
}

type TickerStatus struct {
	Enabled int      `json:"enabled"`
	Symbols []string `json:"symbols"`
}

type SignalCounts struct {
	Recent     int        `json:"recent"`
	LastSignal *time.Time `json:"lastSignal"`
}

type ServerInfo struct {
	UptimeSeconds float64     `json:"uptime"`
	Memory        MemoryUsage `json:"memory"`
}

// MemoryUsage mirrors the backend's process memory report, in bytes.
type MemoryUsage struct {
	RSS       int64 `json:"rss"`
	HeapTotal int64 `json:"heapTotal"`
	HeapUsed  int64 `json:"heapUsed"`
	External  int64 `json:"external"`
}
