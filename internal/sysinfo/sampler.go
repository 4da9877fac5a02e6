// Package sysinfo samples host telemetry for the dashboard's sysInfo feed.
package sysinfo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rickgao/mediasync-events/internal/model"
)

// Config holds sampler configuration.
type Config struct {
	Interval time.Duration // Sample period
	DiskPath string        // Volume to report; point this at the sync storage mount
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		DiskPath: "/",
	}
}

// PublishFunc receives each completed sample.
type PublishFunc func(model.SysInfo)

// Sampler periodically collects cpu/memory/disk/load/uptime readings.
type Sampler struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sampler.
func New(cfg Config, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = DefaultConfig().DiskPath
	}
	return &Sampler{cfg: cfg, logger: logger}
}

// Start begins the sampling loop, handing each sample to publish.
func (s *Sampler) Start(ctx context.Context, publish PublishFunc) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run(publish)

	s.logger.Info("sysinfo sampler started",
		"interval", s.cfg.Interval,
		"disk_path", s.cfg.DiskPath,
	)

	return nil
}

// Stop gracefully shuts down the sampler.
func (s *Sampler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sysinfo sampler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sampler) run(publish PublishFunc) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Sample immediately on start.
	publish(s.Collect(s.ctx))

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			publish(s.Collect(s.ctx))
		}
	}
}

// Collect gathers one sample. Metrics fail independently: a probe that does
// not work on this host (common in containers) leaves its fields zero while
// the rest of the sample is still reported.
func (s *Sampler) Collect(ctx context.Context) model.SysInfo {
	info := model.SysInfo{SampledAt: time.Now().UnixMicro()}

	// Interval 0 measures utilization since the previous call.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.logger.Debug("cpu sample failed", "error", err)
	} else if len(percents) > 0 {
		info.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logger.Debug("memory sample failed", "error", err)
	} else {
		info.MemUsed = vm.Used
		info.MemTotal = vm.Total
	}

	if du, err := disk.UsageWithContext(ctx, s.cfg.DiskPath); err != nil {
		s.logger.Debug("disk sample failed", "path", s.cfg.DiskPath, "error", err)
	} else {
		info.DiskUsed = du.Used
		info.DiskTotal = du.Total
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		s.logger.Debug("load sample failed", "error", err)
	} else {
		info.Load1 = avg.Load1
	}

	if up, err := host.UptimeWithContext(ctx); err != nil {
		s.logger.Debug("uptime sample failed", "error", err)
	} else {
		info.UptimeSec = up
	}

	return info
}
