package model

import "encoding/json"

// -----------------------------------------------------------------------------
// Event Categories
// -----------------------------------------------------------------------------

// Category identifies one multiplexed event stream on the dashboard socket.
// The set is closed: adding a category means teaching both peers about it.
type Category string

const (
	CategoryTasks   Category = "tasks"   // sync task list updates
	CategorySysInfo Category = "sysInfo" // host telemetry samples
)

// Categories returns every known category in a fixed order.
func Categories() []Category {
	return []Category{CategoryTasks, CategorySysInfo}
}

// Valid reports whether c names a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTasks, CategorySysInfo:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Wire Frames
// -----------------------------------------------------------------------------

// ControlFrame is a client-to-server subscription change. Exactly one field
// is set per frame.
type ControlFrame struct {
	Subscribe   Category `json:"subscribe,omitempty"`
	Unsubscribe Category `json:"unsubscribe,omitempty"`
}

// EventFrame is the server-to-client envelope. The sender sets exactly one
// category field; the payload stays raw so each side can (de)serialize at its
// own layer. An empty task list still marshals as "tasks":[] rather than
// dropping the key.
type EventFrame struct {
	Tasks   json.RawMessage `json:"tasks,omitempty"`
	SysInfo json.RawMessage `json:"sysInfo,omitempty"`
}

// -----------------------------------------------------------------------------
// Task Feed
// -----------------------------------------------------------------------------

// TaskState is the lifecycle state of one sync task.
type TaskState string

const (
	TaskQueued  TaskState = "queued"
	TaskRunning TaskState = "running"
	TaskPaused  TaskState = "paused"
	TaskFailed  TaskState = "failed"
	TaskDone    TaskState = "done"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == TaskFailed || s == TaskDone
}

// Task kinds mirror the sync daemon's job table.
const (
	KindVideoDownload  = "video_download"
	KindFavoriteSync   = "favorite_sync"
	KindCollectionSync = "collection_sync"
	KindLiveRecord     = "live_record"
)

// TaskStatus is one row of the dashboard task list. The tasks payload is the
// full current list, not a delta.
type TaskStatus struct {
	ID         string    `json:"id"`              // Primary key (daemon-assigned)
	Kind       string    `json:"kind"`            // One of the Kind* constants
	Title      string    `json:"title"`           // Display title
	State      TaskState `json:"state"`           // Lifecycle state
	Progress   float64   `json:"progress"`        // 0.0-1.0
	DoneItems  int       `json:"doneItems"`       // Completed work items
	TotalItems int       `json:"totalItems"`      // Total work items
	SpeedBPS   int64     `json:"speedBps"`        // Bytes/sec, 0 when idle
	Error      string    `json:"error,omitempty"` // Last error, empty unless failed
	UpdatedAt  int64     `json:"updatedAt"`       // Last change (µs since epoch)
}

// -----------------------------------------------------------------------------
// Host Telemetry
// -----------------------------------------------------------------------------

// SysInfo is one host telemetry sample.
type SysInfo struct {
	CPUPercent float64 `json:"cpuPercent"` // Aggregate CPU utilization, 0-100
	MemUsed    uint64  `json:"memUsed"`    // Bytes
	MemTotal   uint64  `json:"memTotal"`   // Bytes
	DiskUsed   uint64  `json:"diskUsed"`   // Bytes, sync storage volume
	DiskTotal  uint64  `json:"diskTotal"`  // Bytes
	Load1      float64 `json:"load1"`      // 1-minute load average, 0 where unsupported
	UptimeSec  uint64  `json:"uptimeSec"`  // Host uptime
	SampledAt  int64   `json:"sampledAt"`  // Sample time (µs since epoch)
}
