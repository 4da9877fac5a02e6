package sysinfo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/mediasync-events/internal/model"
)

func TestSampler_Collect(t *testing.T) {
	s := New(DefaultConfig(), nil)

	before := time.Now().UnixMicro()
	info := s.Collect(context.Background())
	after := time.Now().UnixMicro()

	if info.SampledAt < before || info.SampledAt > after {
		t.Errorf("SampledAt = %d, want between %d and %d", info.SampledAt, before, after)
	}
	// Memory is the one metric available on every supported platform.
	if info.MemTotal == 0 {
		t.Error("MemTotal = 0, want > 0")
	}
	if info.MemUsed > info.MemTotal {
		t.Errorf("MemUsed = %d exceeds MemTotal = %d", info.MemUsed, info.MemTotal)
	}
}

func TestSampler_StartPublishesImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 50 * time.Millisecond
	s := New(cfg, nil)

	var (
		mu      sync.Mutex
		samples []model.SysInfo
	)
	err := s.Start(context.Background(), func(info model.SysInfo) {
		mu.Lock()
		samples = append(samples, info)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(samples)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d samples, want >= 2", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
