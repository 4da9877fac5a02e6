package tasks

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/mediasync-events/internal/model"
)

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 2s)
	Timeout  time.Duration // Per-snapshot timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// PublishFunc receives each changed task list.
type PublishFunc func([]model.TaskStatus)

// Stats holds poller counters.
type Stats struct {
	Polls     int64
	Errors    int64
	Publishes int64
}

// Poller periodically snapshots a Source and publishes when the list
// changed, so an idle daemon does not spam subscribers.
type Poller struct {
	cfg     Config
	source  Source
	publish PublishFunc
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	lastHash uint64
	stats    Stats
}

// New creates a new Poller.
func New(cfg Config, source Source, publish PublishFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		publish: publish,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("task poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("task poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current poller counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll takes one snapshot and publishes it if it differs from the last one.
func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	snap, err := p.source.Snapshot(ctx)

	p.mu.Lock()
	p.stats.Polls++
	if err != nil {
		p.stats.Errors++
		p.mu.Unlock()
		p.logger.Warn("task snapshot failed", "error", err)
		return
	}

	h := fingerprint(snap)
	if h == p.lastHash {
		p.mu.Unlock()
		return
	}
	p.lastHash = h
	p.stats.Publishes++
	p.mu.Unlock()

	p.logger.Debug("task list changed", "tasks", len(snap))
	p.publish(snap)
}

// fingerprint hashes the marshaled list. Unchanged rows keep their
// updated_at, so an idle daemon produces a stable hash.
func fingerprint(tasks []model.TaskStatus) uint64 {
	data, _ := json.Marshal(tasks)
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}
