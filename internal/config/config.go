package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                 int    `yaml:"port"`
	BackendURL           string `yaml:"backend_url"`
	LogLevel             string `yaml:"log_level"`
	BufferCapacity       int    `yaml:"signal_buffer_capacity"`
	StatusPollSeconds    int    `yaml:"status_poll_seconds"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	SoundFile            string `yaml:"sound_file"`
}

func defaults() Config {
	return Config{
		Port:                 8099,
		BackendURL:           "http://127.0.0.1:8091",
		LogLevel:             "info",
		BufferCapacity:       50,
		StatusPollSeconds:    30,
		MaxReconnectAttempts: 5,
		SoundFile:            "./web/sounds/ping.mp3",
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// Validation & normalization
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	if cfg.BackendURL == "" {
		return cfg, errors.New("backend_url must be set")
	}
	if cfg.BufferCapacity < 1 {
		return cfg, errors.New("signal_buffer_capacity must be >=1")
	}
	if cfg.StatusPollSeconds < 1 {
		return cfg, errors.New("status_poll_seconds must be >=1")
	}
	if cfg.MaxReconnectAttempts < 0 {
		return cfg, errors.New("max_reconnect_attempts must be >=0")
	}
	return cfg, nil
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
