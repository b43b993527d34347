package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"signal-monitor/internal/config"
	"signal-monitor/internal/server"
	"signal-monitor/internal/signal"
	"signal-monitor/internal/sound"
	"signal-monitor/internal/stream"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config.yaml: %v\n", err)
		os.Exit(1)
	}

	// Env overrides, handy when pointing the monitor at the simulator.
	if v := os.Getenv("SIGNAL_MONITOR_BACKEND_URL"); v != "" {
		cfg.BackendURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}

	logger := config.NewLogger(cfg.LogLevel)

	logger.Info("signal-monitor starting",
		slog.Int("port", cfg.Port),
		slog.String("backend_url", cfg.BackendURL),
		slog.Int("max_reconnect_attempts", cfg.MaxReconnectAttempts),
	)

	// Signal buffer
	buf := signal.NewBuffer(cfg.BufferCapacity)

	// Sound / hashed URL
	snd, err := sound.NewManager(cfg.SoundFile)
	if err != nil {
		logger.Warn("sound manager init", slog.String("err", err.Error()))
	}

	// Backend client + stream supervisor + status poller
	client := stream.NewClient(cfg.BackendURL, logger)
	sup := stream.NewSupervisor(client, buf, cfg.MaxReconnectAttempts, logger)
	pol := stream.NewPoller(client, time.Duration(cfg.StatusPollSeconds)*time.Second, logger)

	// HTTP server + WS hub
	srv := server.NewHTTPServer(cfg, sup, pol, buf, client, snd, logger)

	// Context & signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pipe supervisor notifications and poller snapshots to the browser
	go func() {
		for {
			select {
			case n, ok := <-sup.Notifications():
				if !ok {
					return
				}
				srv.BroadcastNotification(n)
				switch n.Kind {
				case stream.KindConnected, stream.KindDisconnected, stream.KindConnectionFailed:
					srv.BroadcastState()
				}
			case st := <-pol.Updates():
				srv.BroadcastStreamStatus(st)
			case <-ctx.Done():
				return
			}
		}
	}()

	if os.Getenv("SIGNAL_MONITOR_AUTOSTART") == "1" {
		logger.Info("autostart: streaming on boot")
		sup.Start()
		pol.Arm()
	}

	// HTTP serving
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	ossignal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	sup.Close()
	pol.Disarm()
	<-done
	logger.Info("bye")
}
