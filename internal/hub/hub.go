package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/mediasync-events/internal/model"
)

// conn is one accepted websocket connection. Its send queue is drained by a
// dedicated write pump; subs is guarded by the hub mutex.
type conn struct {
	id     string
	logger *slog.Logger
	sock   *websocket.Conn
	send   chan []byte
	subs   map[model.Category]bool
}

// Hub fans event frames out to subscribed websocket connections.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	allowed  map[string]bool
	ping     time.Duration

	mu        sync.Mutex
	conns     map[*conn]bool
	latest    map[model.Category][]byte
	closed    bool
	published uint64
	dropped   uint64
}

// New creates a Hub. Zero config fields fall back to DefaultConfig values;
// a nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = def.MaxFrameSize
	}

	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		allowed: make(map[string]bool),
		ping:    cfg.PongTimeout * 9 / 10,
		conns:   make(map[*conn]bool),
		latest:  make(map[model.Category][]byte),
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			h.allowed[origin] = true
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// HandleWS upgrades the request and serves the connection until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	c := &conn{
		id:     id,
		logger: h.logger.With("conn", id),
		sock:   sock,
		send:   make(chan []byte, h.cfg.SendQueueSize),
		subs:   make(map[model.Category]bool),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sock.Close()
		return
	}
	h.conns[c] = true
	h.mu.Unlock()

	c.logger.Info("client connected", "remote", r.RemoteAddr)
	go h.writePump(c)
	h.readLoop(c)
	c.logger.Info("client disconnected")
}

// PublishTasks sends the full task list to tasks subscribers and caches it
// for replay. A nil list is published as an empty one, since "no tasks" is
// real state the dashboard must render.
func (h *Hub) PublishTasks(tasks []model.TaskStatus) {
	if tasks == nil {
		tasks = []model.TaskStatus{}
	}
	payload, err := json.Marshal(tasks)
	if err != nil {
		h.logger.Error("failed to marshal task list", "error", err)
		return
	}
	h.publish(model.CategoryTasks, model.EventFrame{Tasks: payload})
}

// PublishSysInfo sends a telemetry sample to sysInfo subscribers and caches
// it for replay.
func (h *Hub) PublishSysInfo(info model.SysInfo) {
	payload, err := json.Marshal(info)
	if err != nil {
		h.logger.Error("failed to marshal sysinfo sample", "error", err)
		return
	}
	h.publish(model.CategorySysInfo, model.EventFrame{SysInfo: payload})
}

// Stats returns current hub statistics.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := make(map[model.Category]int, len(model.Categories()))
	for _, cat := range model.Categories() {
		subs[cat] = 0
	}
	for c := range h.conns {
		for cat := range c.subs {
			subs[cat]++
		}
	}
	return Stats{
		Clients:     len(h.conns),
		Subscribers: subs,
		Published:   h.published,
		Dropped:     h.dropped,
	}
}

// Close drops every connection and rejects further upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
		delete(h.conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		close(c.send)
	}
}

func (h *Hub) publish(cat model.Category, frame model.EventFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal event frame", "category", cat, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest[cat] = data
	h.published++

	for c := range h.conns {
		if !c.subs[cat] {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped++
			c.logger.Warn("dropping slow client", "category", cat)
			h.removeLocked(c)
		}
	}
}

// readLoop consumes control frames until the connection dies. Runs on the
// HTTP handler goroutine.
func (h *Hub) readLoop(c *conn) {
	defer h.remove(c)

	c.sock.SetReadLimit(h.cfg.MaxFrameSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("client read ended", "error", err)
			}
			return
		}

		var cf model.ControlFrame
		if err := json.Unmarshal(data, &cf); err != nil {
			c.logger.Debug("ignoring malformed control frame", "raw", string(data))
			continue
		}
		h.applyControl(c, cf)
	}
}

func (h *Hub) applyControl(c *conn, cf model.ControlFrame) {
	switch {
	case cf.Subscribe != "":
		if !cf.Subscribe.Valid() {
			c.logger.Debug("ignoring unknown category", "category", cf.Subscribe)
			return
		}
		h.subscribe(c, cf.Subscribe)
	case cf.Unsubscribe != "":
		if !cf.Unsubscribe.Valid() {
			c.logger.Debug("ignoring unknown category", "category", cf.Unsubscribe)
			return
		}
		h.unsubscribe(c, cf.Unsubscribe)
	default:
		c.logger.Debug("ignoring empty control frame")
	}
}

func (h *Hub) subscribe(c *conn, cat model.Category) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	c.subs[cat] = true
	c.logger.Debug("subscribed", "category", cat)

	// Replay the cached payload so the subscriber renders immediately
	// instead of waiting out a poll interval.
	if data, ok := h.latest[cat]; ok {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) unsubscribe(c *conn, cat model.Category) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.subs, cat)
	c.logger.Debug("unsubscribed", "category", cat)
}

// writePump serializes all writes to one connection: queued frames plus
// keepalive pings.
func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(h.ping)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// removeLocked deregisters c and closes its send queue, which ends the write
// pump and closes the socket. Idempotent.
func (h *Hub) removeLocked(c *conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
}

// checkOrigin accepts configured origins exactly; with none configured it
// accepts same-host and loopback requests, which covers the dashboard being
// served by this process.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowed) > 0 {
		return h.allowed[origin]
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
