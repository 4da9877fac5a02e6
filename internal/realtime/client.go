package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/mediasync-events/internal/model"
)

// wsPath is the event endpoint served by the hub.
const wsPath = "/api/ws"

// Client maintains one logical WebSocket connection to the dashboard event
// endpoint and multiplexes category subscriptions over it.
type Client struct {
	cfg    Config
	logger *slog.Logger
	url    string

	// Connect de-duplication: concurrent callers share one dial.
	flight singleflight.Group

	// Write serialization
	writeMu sync.Mutex

	// Lifecycle state
	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	attempts int         // consecutive failed connects since last open
	retry    *time.Timer // pending reconnect, nil when none
	gen      uint64      // bumped by Disconnect; stale dials check it

	// Subscription bookkeeping (guarded by mu)
	declared      map[model.Category]bool // categories the server has been told about
	taskListeners listenerSet[[]model.TaskStatus]
	infoListeners listenerSet[model.SysInfo]

	// Control-frame reconciliation runs one pass at a time.
	syncMu sync.Mutex

	// Stats (guarded by mu)
	framesReceived int64
	framesRouted   int64
	parseErrors    int64
	sendErrors     int64
	listenerPanics int64
}

// New creates a Client for the dashboard at cfg.BaseURL. Zero config fields
// fall back to DefaultConfig values; a nil logger falls back to
// slog.Default(). Nothing is dialed until the first Connect call or listener
// attach.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}

	u, err := endpointURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		url:      u,
		declared: make(map[model.Category]bool),
	}, nil
}

// endpointURL derives the event endpoint from the dashboard origin:
// http becomes ws, https becomes wss, path is fixed at /api/ws.
func endpointURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidBaseURL)
	}

	u.Path = wsPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Connect ensures the connection is open, dialing if necessary. Concurrent
// calls share a single physical attempt and settle together. An explicit call
// also restarts a client whose automatic retries were exhausted. ctx bounds
// only this caller's wait; the attempt itself is bounded by HandshakeTimeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.attempts = 0 // explicit call re-arms a parked client
	c.mu.Unlock()

	return c.await(ctx)
}

// await joins (or starts) the shared dial and waits for it to settle.
func (c *Client) await(ctx context.Context) error {
	ch := c.flight.DoChan("dial", func() (interface{}, error) {
		return nil, c.dial()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// ensureOpen is the internal variant used by the send path and the retry
// timer. It never resets the attempt counter.
func (c *Client) ensureOpen() error {
	c.mu.Lock()
	open := c.state == StateOpen
	c.mu.Unlock()
	if open {
		return nil
	}
	return c.await(context.Background())
}

// dial performs one physical connection attempt. Only one runs at a time.
// Failure schedules the next retry; success resets the backoff and
// re-declares the active subscriptions on the fresh session.
func (c *Client) dial() error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.stopRetryLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.mu.Lock()
		if c.gen != gen {
			// Torn down while dialing; stay idle, no retry, no toast.
			c.mu.Unlock()
			return fmt.Errorf("dial %s: %w", c.url, err)
		}
		c.state = StateClosed
		c.scheduleRetryLocked()
		c.mu.Unlock()

		c.logger.Warn("dial failed", "url", c.url, "error", err)
		c.notify(fmt.Sprintf("connection to %s failed: %v", c.cfg.BaseURL, err))
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		// Disconnect won the race; discard the fresh socket.
		conn.Close()
		c.logger.Debug("dial succeeded after teardown, discarding")
		return nil
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	// The new session starts with no server-side subscriptions.
	c.declared = make(map[model.Category]bool)
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.syncSubscriptions()

	c.logger.Debug("websocket connected", "url", c.url)
	return nil
}

// Disconnect tears the connection down and forgets all subscription state,
// returning the client to Idle. No reconnect fires afterward, including from
// a drop or dial racing this call. The client stays usable: a later Connect
// or listener attach starts a fresh cycle.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.attempts = 0
	c.declared = make(map[model.Category]bool)
	c.taskListeners.clear()
	c.infoListeners.clear()
	c.mu.Unlock()

	// A dial still in flight belongs to the torn-down generation; forget it
	// so later Connect calls start a fresh attempt instead of joining it.
	c.flight.Forget("dial")

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	c.logger.Debug("disconnected")
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := make([]model.Category, 0, len(model.Categories()))
	for _, cat := range model.Categories() {
		if c.listenerCountLocked(cat) > 0 {
			active = append(active, cat)
		}
	}

	return Stats{
		State:             c.state,
		ReconnectAttempts: c.attempts,
		ActiveCategories:  active,
		FramesReceived:    c.framesReceived,
		FramesRouted:      c.framesRouted,
		ParseErrors:       c.parseErrors,
		SendErrors:        c.sendErrors,
		ListenerPanics:    c.listenerPanics,
	}
}

// readLoop owns inbound dispatch for one connection. Per-category listener
// order follows frame arrival order because this is the only goroutine that
// routes.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.route(data)
	}
}

// handleClose runs when a connection's read loop ends. A connection already
// replaced by Disconnect is stale and must not trigger anything.
func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	c.scheduleRetryLocked()
	c.mu.Unlock()

	conn.Close()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("server closed connection", "error", err)
		return
	}
	c.logger.Warn("connection lost", "error", err)
	c.notify(fmt.Sprintf("connection lost: %v", err))
}

// stopRetryLocked cancels the pending reconnect timer, if any.
func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// scheduleRetryLocked arms the next reconnect attempt. The delay doubles per
// consecutive failure; after MaxReconnectAttempts failures the client parks
// in Closed until an explicit Connect.
func (c *Client) scheduleRetryLocked() {
	c.stopRetryLocked()

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.attempts)
		return
	}

	delay := c.cfg.ReconnectBaseDelay << c.attempts
	c.attempts++

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.retry != t {
			// Superseded by a newer schedule or a teardown.
			c.mu.Unlock()
			return
		}
		c.retry = nil
		c.mu.Unlock()

		if err := c.ensureOpen(); err != nil {
			c.logger.Debug("scheduled reconnect failed", "error", err)
		}
	})
	c.retry = t

	c.logger.Info("reconnect scheduled", "delay", delay, "attempt", c.attempts)
}

// notify surfaces a human-readable problem notice through the error sink.
// Callers log details separately.
func (c *Client) notify(msg string) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(msg)
	}
}
