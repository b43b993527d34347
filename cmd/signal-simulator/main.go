package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"signal-monitor/internal/signal"
)

// A stand-in for the real signal source, for local development: speaks the
// same stream and HTTP contract and invents plausible crypto signals.

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type simulator struct {
	mu      sync.Mutex
	conns   map[*websocket.Conn]bool
	symbols []string
	bases   map[string]decimal.Decimal
	sent    int
	last    time.Time
	started time.Time
}

func newSimulator(symbols []string) *simulator {
	known := map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(50000),
		"ETHUSDT": decimal.NewFromInt(2600),
		"SOLUSDT": decimal.NewFromInt(150),
	}
	s := &simulator{
		conns:   map[*websocket.Conn]bool{},
		bases:   map[string]decimal.Decimal{},
		started: time.Now(),
	}
	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			continue
		}
		s.symbols = append(s.symbols, sym)
		if base, ok := known[sym]; ok {
			s.bases[sym] = base
		} else {
			s.bases[sym] = decimal.NewFromInt(100)
		}
	}
	if len(s.symbols) == 0 {
		log.Fatal("no symbols to simulate")
	}
	return s
}

func (s *simulator) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	greeting, _ := json.Marshal(signal.Frame{
		Type:    signal.FrameConnection,
		Message: "connected to signal stream",
	})
	_ = conn.WriteMessage(websocket.TextMessage, greeting)

	s.mu.Lock()
	s.conns[conn] = true
	n := len(s.conns)
	s.mu.Unlock()
	log.Printf("client connected (%d total)", n)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		log.Printf("client gone")
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// synth invents a signal: price jittered within ±0.5% of the symbol base.
func (s *simulator) synth(sym string, dir signal.Direction) signal.Event {
	if dir == "" {
		dir = signal.RandomDirection()
	}
	base, ok := s.bases[sym]
	if !ok {
		base = decimal.NewFromInt(100)
	}
	jitter := decimal.NewFromFloat(1 + (rand.Float64()-0.5)*0.01)
	return signal.Event{
		ID:        uuid.NewString(),
		Symbol:    sym,
		Type:      dir,
		Price:     base.Mul(jitter).Round(2),
		Timestamp: time.Now().UTC(),
		Source:    "simulator",
	}
}

func (s *simulator) broadcast(ev signal.Event) {
	data, _ := json.Marshal(ev)
	frame, _ := json.Marshal(signal.Frame{Type: signal.FrameSignal, Data: data})

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			_ = conn.Close()
			delete(s.conns, conn)
		}
	}
	s.sent++
	s.last = time.Now().UTC()
}

func (s *simulator) emitLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for range t.C {
		sym := s.symbols[rand.IntN(len(s.symbols))]
		ev := s.synth(sym, "")
		s.broadcast(ev)
		log.Printf("signal %s %s @ %s", ev.Symbol, strings.ToUpper(string(ev.Type)), ev.Price)
	}
}

func (s *simulator) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Symbol     string `json:"symbol"`
		SignalType string `json:"signalType,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if sym == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}
	var dir signal.Direction
	if req.SignalType != "" {
		var err error
		dir, err = signal.ParseDirection(req.SignalType)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	ev := s.synth(sym, dir)
	s.broadcast(ev)
	log.Printf("test signal %s %s @ %s", ev.Symbol, strings.ToUpper(string(ev.Type)), ev.Price)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "id": ev.ID})
}

func (s *simulator) handleStatus(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.mu.Lock()
	connected := len(s.conns)
	sent := s.sent
	var last *time.Time
	if !s.last.IsZero() {
		t := s.last
		last = &t
	}
	s.mu.Unlock()

	status := "idle"
	if connected > 0 {
		status = "active"
	}
	st := signal.StreamStatus{
		WebSocket: signal.SocketStatus{Connected: connected, Status: status},
		Tickers:   signal.TickerStatus{Enabled: len(s.symbols), Symbols: s.symbols},
		Signals:   signal.SignalCounts{Recent: sent, LastSignal: last},
		Server: signal.ServerInfo{
			UptimeSeconds: time.Since(s.started).Seconds(),
			Memory: signal.MemoryUsage{
				RSS:       int64(ms.Sys),
				HeapTotal: int64(ms.HeapSys),
				HeapUsed:  int64(ms.HeapAlloc),
				External:  int64(ms.StackSys),
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func main() {
	addr := flag.String("addr", ":8091", "listen address")
	every := flag.Duration("every", 10*time.Second, "interval between synthetic signals")
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT,SOLUSDT", "comma-separated symbols to rotate through")
	flag.Parse()

	sim := newSimulator(strings.Split(*symbols, ","))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/signals", sim.handleWS)
	mux.HandleFunc("/api/signals/test", sim.handleTest)
	mux.HandleFunc("/api/signals/status", sim.handleStatus)

	go sim.emitLoop(*every)

	log.Printf("signal simulator on %s, emitting every %s for %s", *addr, *every, strings.Join(sim.symbols, ","))
	log.Fatal(http.ListenAndServe(*addr, mux))
}
