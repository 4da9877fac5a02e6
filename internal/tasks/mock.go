package tasks

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rickgao/mediasync-events/internal/model"
)

// MockSource generates a synthetic task list that progresses on every
// snapshot, so eventsd can demo the dashboard without the daemon's database.
type MockSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	tasks []mockTask
}

type mockTask struct {
	status model.TaskStatus
	rate   float64 // progress gained per snapshot, before jitter
	stall  int     // snapshots to sit queued before starting
}

// NewMockSource creates a MockSource. The same seed replays the same
// progression.
func NewMockSource(seed int64) *MockSource {
	m := &MockSource{rng: rand.New(rand.NewSource(seed))}
	m.tasks = []mockTask{
		{
			status: model.TaskStatus{
				ID: "dl-1001", Kind: model.KindVideoDownload,
				Title: "【4K修复】老番剧合集 P1-P24",
				State: model.TaskRunning, TotalItems: 24,
			},
			rate: 0.03,
		},
		{
			status: model.TaskStatus{
				ID: "fav-2001", Kind: model.KindFavoriteSync,
				Title: "默认收藏夹",
				State: model.TaskRunning, TotalItems: 310,
			},
			rate: 0.015,
		},
		{
			status: model.TaskStatus{
				ID: "col-3001", Kind: model.KindCollectionSync,
				Title: "每周放送合集",
				State: model.TaskQueued, TotalItems: 12,
			},
			rate:  0.05,
			stall: 4,
		},
		{
			status: model.TaskStatus{
				ID: "live-4001", Kind: model.KindLiveRecord,
				Title: "直播间 912 录制",
				State: model.TaskRunning,
			},
		},
		{
			status: model.TaskStatus{
				ID: "dl-1002", Kind: model.KindVideoDownload,
				Title: "UP主投稿补档",
				State: model.TaskFailed, Error: "风控校验失败 (code -352)",
			},
		},
	}
	return m
}

func (m *MockSource) Snapshot(ctx context.Context) ([]model.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMicro()
	out := make([]model.TaskStatus, 0, len(m.tasks))
	for i := range m.tasks {
		m.advance(&m.tasks[i], now)
		out = append(out, m.tasks[i].status)
	}
	return out, nil
}

func (m *MockSource) advance(t *mockTask, now int64) {
	switch t.status.State {
	case model.TaskQueued:
		if t.stall > 0 {
			t.stall--
			return
		}
		t.status.State = model.TaskRunning
		t.status.UpdatedAt = now
	case model.TaskRunning:
		t.status.UpdatedAt = now
		if t.rate == 0 {
			// A live recording has no end; only the byte rate moves.
			t.status.SpeedBPS = 300_000 + m.rng.Int63n(1_200_000)
			return
		}
		t.status.Progress += t.rate * (0.5 + m.rng.Float64())
		if t.status.Progress >= 1 {
			t.status.Progress = 1
			t.status.State = model.TaskDone
			t.status.DoneItems = t.status.TotalItems
			t.status.SpeedBPS = 0
			return
		}
		t.status.DoneItems = int(t.status.Progress * float64(t.status.TotalItems))
		t.status.SpeedBPS = 800_000 + m.rng.Int63n(4_000_000)
	}
}
