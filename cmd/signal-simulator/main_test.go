package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signal-monitor/internal/signal"
)

func TestStatusReportsActiveWhileConnected(t *testing.T) {
	sim := newSimulator([]string{"BTCUSDT"})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/signals", sim.handleWS)
	mux.HandleFunc("/api/signals/status", sim.handleStatus)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetch := func() signal.StreamStatus {
		t.Helper()
		resp, err := http.Get(srv.URL + "/api/signals/status")
		if err != nil {
			t.Fatalf("status fetch: %v", err)
		}
		defer resp.Body.Close()
		var st signal.StreamStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return st
	}

	if got := fetch().WebSocket.Status; got != "idle" {
		t.Fatalf("status got %q want idle", got)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The conn is registered just after the greeting is written, so the
	// handshake returning does not yet guarantee it shows up in the count.
	deadline := time.After(2 * time.Second)
	for {
		st := fetch()
		if st.WebSocket.Status == "active" {
			if st.WebSocket.Connected != 1 {
				t.Fatalf("connected got %d want 1", st.WebSocket.Connected)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("status got %q want active", st.WebSocket.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
