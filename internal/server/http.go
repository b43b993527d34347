package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"signal-monitor/internal/config"
	"signal-monitor/internal/signal"
	"signal-monitor/internal/sound"
	"signal-monitor/internal/stream"
)

type HTTPServer struct {
	cfg    config.Config
	sup    *stream.Supervisor
	pol    *stream.Poller
	buf    *signal.Buffer
	client *stream.Client
	snd    *sound.Manager
	hub    *hub
	log    *slog.Logger
	mux    *http.ServeMux
}

func NewHTTPServer(cfg config.Config, sup *stream.Supervisor, pol *stream.Poller, buf *signal.Buffer, client *stream.Client, snd *sound.Manager, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:    cfg,
		sup:    sup,
		pol:    pol,
		buf:    buf,
		client: client,
		snd:    snd,
		hub:    newHub(logger),
		log:    logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// --------- WS broadcasts ----------

func (s *HTTPServer) statePayload() map[string]any {
	return map[string]any{
		"state":     s.sup.State().String(),
		"streaming": s.sup.Streaming(),
		"attempts":  s.sup.Attempts(),
	}
}

func (s *HTTPServer) BroadcastState() {
	s.hub.broadcast <- marshalWS("status", s.statePayload())
}

func (s *HTTPServer) BroadcastNotification(n stream.Notification) {
	s.hub.broadcast <- marshalWS("notification", n)
}

func (s *HTTPServer) BroadcastStreamStatus(st signal.StreamStatus) {
	s.hub.broadcast <- marshalWS("stream_status", st)
}

func (s *HTTPServer) BroadcastError(msg string) {
	s.hub.broadcast <- marshalWS("error", map[string]string{"message": msg})
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	// SPA
	s.mux.HandleFunc("/", s.serveIndex)
	s.mux.HandleFunc("/index.html", s.serveIndex)
	s.mux.HandleFunc("/app.js", s.serveAppJS)
	s.mux.HandleFunc("/styles.css", s.serveCSS)

	// Sounds
	s.mux.HandleFunc("/sounds/", s.serveSound)

	// WS
	s.mux.HandleFunc("/ws", s.handleWS)

	// API
	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/config", s.apiConfig)
	s.mux.HandleFunc("/api/signals", s.apiSignals)
	s.mux.HandleFunc("/api/signals/summary", s.apiSignalsSummary)
	s.mux.HandleFunc("/api/signals/test", s.apiTestSignal)
	s.mux.HandleFunc("/api/status", s.apiStatus)
	s.mux.HandleFunc("/api/stream/start", s.apiStreamStart)
	s.mux.HandleFunc("/api/stream/stop", s.apiStreamStop)
	s.mux.HandleFunc("/api/stream/toggle", s.apiStreamToggle)
}

func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	// New dashboards get the current connection state right away.
	s.hub.serveWS(w, r, marshalWS("status", s.statePayload()))
}

func (s *HTTPServer) serveIndex(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile("./web/index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *HTTPServer) serveAppJS(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile("./web/app.js")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *HTTPServer) serveCSS(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile("./web/styles.css")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *HTTPServer) serveSound(w http.ResponseWriter, r *http.Request) {
	// Only serve the configured file name
	if s.snd == nil || !s.snd.Available() {
		http.NotFound(w, r)
		return
	}
	_, name := filepath.Split(s.snd.Path())
	if !strings.HasSuffix(r.URL.Path, name) {
		http.NotFound(w, r)
		return
	}
	// strong caching (1 year) + immutable; the URL carries a content hash
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, s.snd.Path())
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":        true,
		"state":     s.sup.State().String(),
		"streaming": s.sup.Streaming(),
	})
}

func (s *HTTPServer) apiConfig(w http.ResponseWriter, r *http.Request) {
	soundURL := ""
	if s.snd != nil && s.snd.Available() {
		soundURL = s.snd.URL()
	}
	writeJSON(w, map[string]any{
		"backendURL":           s.cfg.BackendURL,
		"bufferCapacity":       s.cfg.BufferCapacity,
		"statusPollSeconds":    s.cfg.StatusPollSeconds,
		"maxReconnectAttempts": s.cfg.MaxReconnectAttempts,
		"soundAvailable":       s.snd != nil && s.snd.Available(),
		"soundURL":             soundURL,
	})
}

func (s *HTTPServer) apiSignals(w http.ResponseWriter, r *http.Request) {
	events := s.buf.Snapshot()
	writeJSON(w, map[string]any{
		"signals": events,
		"count":   len(events),
	})
}

func (s *HTTPServer) apiSignalsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"symbols": signal.Summarize(s.buf.Snapshot()),
	})
}

// GET /api/status returns the last snapshot the poller managed to fetch.
// Before the first successful poll there is nothing to show.
func (s *HTTPServer) apiStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.pol.Snapshot()
	if !ok {
		writeJSON(w, map[string]any{"available": false})
		return
	}
	writeJSON(w, map[string]any{"available": true, "status": st})
}

func (s *HTTPServer) apiStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.sup.Start()
	s.pol.Arm()
	s.BroadcastState()
	writeJSON(w, map[string]any{"ok": true, "streaming": s.sup.Streaming(), "state": s.sup.State().String()})
}

func (s *HTTPServer) apiStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.sup.Stop()
	s.pol.Disarm()
	s.BroadcastState()
	writeJSON(w, map[string]any{"ok": true, "streaming": s.sup.Streaming(), "state": s.sup.State().String()})
}

// POST /api/stream/toggle flips the desired mode: supervisor and status
// poller always move together.
func (s *HTTPServer) apiStreamToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.sup.Streaming() {
		s.sup.Stop()
		s.pol.Disarm()
	} else {
		s.sup.Start()
		s.pol.Arm()
	}
	s.BroadcastState()
	writeJSON(w, map[string]any{"ok": true, "streaming": s.sup.Streaming(), "state": s.sup.State().String()})
}

// POST /api/signals/test { "symbol": "BTCUSDT", "signalType": "buy"|"sell" }
// signalType is optional; the backend client flips a coin when it is absent.
func (s *HTTPServer) apiTestSignal(w http.ResponseWriter, r *http.Request) {
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
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.client.SendTestSignal(ctx, sym, dir); err != nil {
		s.log.Warn("test signal forward failed", slog.String("err", err.Error()))
		s.BroadcastError("Backend rejected the test signal. Is it running at the configured backend_url?")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "symbol": sym})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
