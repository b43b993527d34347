package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signal-monitor/internal/signal"
)

// Poller refreshes the backend's streaming status on a fixed cadence while
// streaming is toggled on. The first fetch fires on Arm, not after the first
// interval. Fetch failures keep the previous snapshot; the next tick is the
// retry.
type Poller struct {
	client   *Client
	log      *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	snap   signal.StreamStatus
	have   bool

	updates chan signal.StreamStatus
}

func NewPoller(client *Client, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		client:   client,
		log:      logger,
		interval: interval,
		updates:  make(chan signal.StreamStatus, 8),
	}
}

// Updates delivers each successful snapshot; slow consumers miss snapshots
// rather than stalling the poll loop.
func (p *Poller) Updates() <-chan signal.StreamStatus { return p.updates }

// Arm starts the poll loop if it is not already running.
func (p *Poller) Arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// Disarm stops the poll loop. The last snapshot stays readable.
func (p *Poller) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Snapshot returns the last successfully fetched status and whether one
// exists yet.
func (p *Poller) Snapshot() (signal.StreamStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.have
}

func (p *Poller) run(ctx context.Context) {
	p.fetch(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) {
	st, err := p.client.StreamStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn("status poll failed, keeping last snapshot", slog.String("err", err.Error()))
		return
	}
	p.mu.Lock()
	p.snap = st
	p.have = true
	p.mu.Unlock()

	select {
	case p.updates <- st:
	default:
		// drop if buffer full
	}
}
