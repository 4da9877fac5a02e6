package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mediasync-events/internal/model"
)

// listenerSet holds the callbacks attached to one category, in attach order.
// Guarded by Client.mu.
type listenerSet[T any] struct {
	nextID  int
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id int
	fn func(T)
}

func (s *listenerSet[T]) add(fn func(T)) int {
	s.nextID++
	s.entries = append(s.entries, listenerEntry[T]{id: s.nextID, fn: fn})
	return s.nextID
}

// remove reports whether id was still present, so a detach func can run more
// than once without side effects.
func (s *listenerSet[T]) remove(id int) bool {
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *listenerSet[T]) snapshot() []listenerEntry[T] {
	out := make([]listenerEntry[T], len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *listenerSet[T]) clear() {
	s.entries = nil
}

// SubscribeToTasks attaches fn to the task list stream and returns its detach
// func. The first listener on a category sends the subscribe control frame
// (dialing first if needed); detaching the last one sends unsubscribe.
// Intermediate attaches and detaches only bump the reference count. The
// returned func is safe to call more than once and safe to call from inside
// a listener callback.
func (c *Client) SubscribeToTasks(fn func([]model.TaskStatus)) (detach func()) {
	return attach(c, model.CategoryTasks, &c.taskListeners, fn)
}

// SubscribeToSysInfo attaches fn to the host telemetry stream. See
// SubscribeToTasks for the attach/detach contract.
func (c *Client) SubscribeToSysInfo(fn func(model.SysInfo)) (detach func()) {
	return attach(c, model.CategorySysInfo, &c.infoListeners, fn)
}

// attach registers fn and kicks reconciliation when the category's listener
// count crossed zero. Methods cannot introduce type parameters, hence the
// free function.
func attach[T any](c *Client, cat model.Category, set *listenerSet[T], fn func(T)) func() {
	c.mu.Lock()
	id := set.add(fn)
	first := len(set.entries) == 1
	c.mu.Unlock()

	c.logger.Debug("listener attached", "category", cat)
	if first {
		go c.syncSubscriptions()
	}

	return func() {
		c.mu.Lock()
		removed := set.remove(id)
		last := removed && len(set.entries) == 0
		c.mu.Unlock()

		if removed {
			c.logger.Debug("listener detached", "category", cat)
		}
		if last {
			go c.syncSubscriptions()
		}
	}
}

// listenerCountLocked returns the number of callbacks attached to cat.
func (c *Client) listenerCountLocked(cat model.Category) int {
	switch cat {
	case model.CategoryTasks:
		return len(c.taskListeners.entries)
	case model.CategorySysInfo:
		return len(c.infoListeners.entries)
	}
	return 0
}

// pendingControlLocked returns the next control frame needed to bring the
// declared subscription set in line with the categories that have listeners.
func (c *Client) pendingControlLocked() (model.ControlFrame, bool) {
	for _, cat := range model.Categories() {
		active := c.listenerCountLocked(cat) > 0
		switch {
		case active && !c.declared[cat]:
			return model.ControlFrame{Subscribe: cat}, true
		case !active && c.declared[cat]:
			return model.ControlFrame{Unsubscribe: cat}, true
		}
	}
	return model.ControlFrame{}, false
}

// syncSubscriptions reconciles the server's view of our subscriptions with
// the categories that currently have listeners. One pass runs at a time and
// every iteration recomputes the diff, so passes kicked mid-pass collapse
// into the running one and frames only go out on genuine transitions. The
// diff is recomputed after the connection check on purpose: a reopen clears
// the declared set, and computing against the pre-open view could emit
// subscription state from a dead session.
//
// Bookkeeping is optimistic but session-scoped: a category counts as declared
// even when its frame failed to send, so long as the frame went to the
// connection that is still current. Marks for a replaced connection are
// dropped and the next iteration re-sends against the fresh session. Every
// successful reopen clears the declared set and re-runs this pass, which is
// the backstop that repairs missed sends.
func (c *Client) syncSubscriptions() {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	for {
		c.mu.Lock()
		_, ok := c.pendingControlLocked()
		c.mu.Unlock()
		if !ok {
			return
		}

		if err := c.ensureOpen(); err != nil {
			// dial already notified the sink; the next reopen re-syncs
			c.mu.Lock()
			c.sendErrors++
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		frame, ok := c.pendingControlLocked()
		conn := c.conn
		c.mu.Unlock()
		if !ok {
			continue
		}
		if conn == nil {
			// lost again between open and send; reopen re-syncs
			c.mu.Lock()
			c.sendErrors++
			c.mu.Unlock()
			return
		}

		c.sendControl(conn, frame)
		c.markDeclared(conn, frame)
	}
}

// markDeclared records frame as applied, provided conn is still the current
// session. A send that raced a reconnect went to a replaced connection; its
// mark is dropped so it cannot misrepresent what the fresh session declared.
func (c *Client) markDeclared(conn *websocket.Conn, frame model.ControlFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	if frame.Subscribe != "" {
		c.declared[frame.Subscribe] = true
	} else {
		delete(c.declared, frame.Unsubscribe)
	}
}

// sendControl transmits one subscription frame. Failures surface through the
// error sink and the stats counters; callers never see them.
func (c *Client) sendControl(conn *websocket.Conn, frame model.ControlFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("marshal control frame", "error", err)
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.mu.Lock()
		c.sendErrors++
		c.mu.Unlock()
		c.logger.Warn("control frame send failed", "frame", string(data), "error", err)
		c.notify(fmt.Sprintf("failed to send subscription update: %v", err))
		return
	}

	c.logger.Debug("control frame sent", "frame", string(data))
}
