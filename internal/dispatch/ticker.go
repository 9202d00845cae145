package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// tickConcurrency bounds how many thermostats a scheduled tick adjusts in
// parallel. Each cycle talks to a remote API, so fan-out stays modest.
const tickConcurrency = 4

// Ticker drives periodic dispatch cycles for every enabled thermostat.
type Ticker struct {
	engine   *Engine
	repo     thermostat.Repository
	interval time.Duration
	timeout  time.Duration
	logger   Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewTicker creates a ticker.
//
// Parameters:
//   - engine: Dispatch engine to drive
//   - repo: Used to enumerate enabled thermostats each tick
//   - interval: Time between ticks
//   - timeout: Deadline for one thermostat's cycle within a tick
//   - logger: Logger instance (nil for silent operation)
func NewTicker(engine *Engine, repo thermostat.Repository, interval, timeout time.Duration, logger Logger) *Ticker {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ticker{
		engine:   engine,
		repo:     repo,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start launches the tick loop in a background goroutine.
func (t *Ticker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.run()

	t.logger.Info("dispatch ticker started", "interval", t.interval.String())
	return nil
}

// Stop halts the tick loop, waiting for an in-flight tick to finish or the
// context to expire.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	t.running = false
	close(t.stop)
	done := t.done
	t.mu.Unlock()

	select {
	case <-done:
		t.logger.Info("dispatch ticker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticker) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick adjusts every enabled thermostat, bounded in parallelism and per-cycle
// deadline. One failing thermostat never blocks the others.
func (t *Ticker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	thermostats, err := t.repo.ListEnabled(ctx)
	if err != nil {
		t.logger.Error("failed to list thermostats for tick", "error", err)
		return
	}
	if len(thermostats) == 0 {
		return
	}

	g := &errgroup.Group{}
	g.SetLimit(tickConcurrency)
	for i := range thermostats {
		id := thermostats[i].ID
		g.Go(func() error {
			cycleCtx, cycleCancel := context.WithTimeout(ctx, t.timeout)
			defer cycleCancel()

			if _, err := t.engine.Adjust(cycleCtx, id); err != nil {
				t.logger.Error("scheduled dispatch failed", "thermostat_id", id, "error", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-thermostat errors are logged, not propagated
}
