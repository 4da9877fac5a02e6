package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/mediasync-events/internal/model"
)

// rawPreviewLimit caps how much of a malformed frame reaches the error sink.
const rawPreviewLimit = 256

// route classifies one inbound frame by which category field is present and
// dispatches to that category's listeners. Frames with no known field are
// dropped. Runs on the read-loop goroutine only, which is what preserves
// per-category delivery order.
func (c *Client) route(data []byte) {
	c.mu.Lock()
	c.framesReceived++
	c.mu.Unlock()

	var frame model.EventFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.recordParseError(data, err)
		return
	}

	routed := false

	if frame.Tasks != nil {
		var tasks []model.TaskStatus
		if err := json.Unmarshal(frame.Tasks, &tasks); err != nil {
			c.recordParseError(data, err)
		} else {
			dispatch(c, model.CategoryTasks, &c.taskListeners, tasks)
			routed = true
		}
	}

	if frame.SysInfo != nil {
		var info model.SysInfo
		if err := json.Unmarshal(frame.SysInfo, &info); err != nil {
			c.recordParseError(data, err)
		} else {
			dispatch(c, model.CategorySysInfo, &c.infoListeners, info)
			routed = true
		}
	}

	if routed {
		c.mu.Lock()
		c.framesRouted++
		c.mu.Unlock()
	} else if frame.Tasks == nil && frame.SysInfo == nil {
		c.logger.Debug("skipping frame with no known category", "size", len(data))
	}
}

// recordParseError counts a malformed frame and surfaces a truncated copy of
// the raw payload through the sink.
func (c *Client) recordParseError(data []byte, err error) {
	c.mu.Lock()
	c.parseErrors++
	c.mu.Unlock()

	c.logger.Warn("failed to parse server frame", "error", err, "raw", string(data))
	c.notify(fmt.Sprintf("malformed event frame: %s", preview(data)))
}

// preview truncates raw frame bytes for user-facing messages.
func preview(data []byte) string {
	if len(data) > rawPreviewLimit {
		return string(data[:rawPreviewLimit]) + "..."
	}
	return string(data)
}

// dispatch invokes every listener attached to cat with payload. Iteration
// uses a snapshot so callbacks may attach or detach without deadlocking, and
// each callback runs under a recover so one panicking listener cannot starve
// the rest or kill the read loop.
func dispatch[T any](c *Client, cat model.Category, set *listenerSet[T], payload T) {
	c.mu.Lock()
	entries := set.snapshot()
	c.mu.Unlock()

	for _, e := range entries {
		invoke(c, cat, e.fn, payload)
	}
}

func invoke[T any](c *Client, cat model.Category, fn func(T), payload T) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.listenerPanics++
			c.mu.Unlock()
			c.logger.Error("listener panicked", "category", cat, "panic", r)
		}
	}()
	fn(payload)
}
