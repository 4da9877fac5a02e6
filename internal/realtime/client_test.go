package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mediasync-events/internal/model"
)

// testServer is a websocket endpoint that records every client session and
// the control frames received on it. Sessions survive client reconnects, so
// tests can assert on what the second connection sent.
type testServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	accepts  int
	sessions []*testSession

	sessionCh chan *testSession
}

type testSession struct {
	conn   *websocket.Conn
	frames chan model.ControlFrame
	closed chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{t: t, sessionCh: make(chan *testSession, 8)}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.accepts++
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		sess := &testSession{
			conn:   conn,
			frames: make(chan model.ControlFrame, 16),
			closed: make(chan struct{}),
		}
		s.mu.Lock()
		s.sessions = append(s.sessions, sess)
		s.mu.Unlock()
		s.sessionCh <- sess

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(sess.closed)
				return
			}
			var cf model.ControlFrame
			if err := json.Unmarshal(data, &cf); err != nil {
				t.Errorf("bad control frame %s: %v", data, err)
				continue
			}
			sess.frames <- cf
		}
	}))

	return s
}

func (s *testServer) baseURL() string { return s.srv.URL }

func (s *testServer) acceptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

func (s *testServer) waitSession() *testSession {
	select {
	case sess := <-s.sessionCh:
		return sess
	case <-time.After(2 * time.Second):
		s.t.Fatal("timeout waiting for client session")
		return nil
	}
}

func (s *testServer) close() {
	s.mu.Lock()
	sessions := append([]*testSession(nil), s.sessions...)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.conn.Close()
	}
	s.srv.Close()
}

func (sess *testSession) expectFrame(t *testing.T) model.ControlFrame {
	t.Helper()
	select {
	case cf := <-sess.frames:
		return cf
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for control frame")
		return model.ControlFrame{}
	}
}

func (sess *testSession) expectNoFrame(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case cf := <-sess.frames:
		t.Fatalf("unexpected control frame: %+v", cf)
	case <-time.After(d):
	}
}

func (sess *testSession) send(t *testing.T, raw string) {
	t.Helper()
	if err := sess.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server send failed: %v", err)
	}
}

// sinkRecorder collects error sink notices.
type sinkRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (s *sinkRecorder) add(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.MaxReconnectAttempts = 5
	return cfg
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8866", "ws://127.0.0.1:8866/api/ws"},
		{"https://sync.example.com", "wss://sync.example.com/api/ws"},
		{"https://sync.example.com:8443/web/", "wss://sync.example.com:8443/api/ws"},
		{"ws://localhost:9000", "ws://localhost:9000/api/ws"},
		{"wss://sync.example.com", "wss://sync.example.com/api/ws"},
	}
	for _, tt := range tests {
		got, err := endpointURL(tt.base)
		if err != nil {
			t.Errorf("endpointURL(%q) error: %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("endpointURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}

	for _, bad := range []string{"", "ftp://example.com", "127.0.0.1:8866", "http://"} {
		if _, err := endpointURL(bad); !errors.Is(err, ErrInvalidBaseURL) {
			t.Errorf("endpointURL(%q) = %v, want ErrInvalidBaseURL", bad, err)
		}
	}
}

func TestClient_Connect(t *testing.T) {
	server := newTestServer(t)
	defer server.close()

	client, err := New(testConfig(server.baseURL()), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := client.State(); got != StateIdle {
		t.Errorf("initial state = %v, want idle", got)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	server.waitSession()

	if got := client.State(); got != StateOpen {
		t.Errorf("state after connect = %v, want open", got)
	}

	client.Disconnect()
	if got := client.State(); got != StateIdle {
		t.Errorf("state after disconnect = %v, want idle", got)
	}
}

// TestClient_ConnectShared verifies that concurrent Connect calls share one
// physical dial and settle together.
func TestClient_ConnectShared(t *testing.T) {
	server := newTestServer(t)
	defer server.close()

	client, err := New(testConfig(server.baseURL()), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Disconnect()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Connect(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Connect failed: %v", err)
		}
	}
	if got := server.acceptCount(); got != 1 {
		t.Errorf("dial attempts = %d, want 1", got)
	}
}

func TestClient_ConnectIdempotentWhenOpen(t *testing.T) {
	server := newTestServer(t)
	defer server.close()

	client, err := New(testConfig(server.baseURL()), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	server.waitSession()

	for i := 0; i < 3; i++ {
		if err := client.Connect(context.Background()); err != nil {
			t.Errorf("repeat Connect failed: %v", err)
		}
	}
	if got := server.acceptCount(); got != 1 {
		t.Errorf("dial attempts = %d, want 1", got)
	}
}

// TestClient_RetryBackoff verifies the doubling retry schedule: a failing
// endpoint gets the initial attempt plus MaxReconnectAttempts retries, the
// retries respect the delay sum, and the client then parks until an explicit
// Connect starts a fresh cycle.
func TestClient_RetryBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink := &sinkRecorder{}
	cfg := testConfig(srv.URL)
	cfg.ReconnectBaseDelay = 5 * time.Millisecond
	cfg.OnError = sink.add

	client, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against failing endpoint")
	}

	// 1 initial + 5 retries at 5, 10, 20, 40, 80ms.
	deadline := time.After(2 * time.Second)
	for hits.Load() < 6 {
		select {
		case <-deadline:
			t.Fatalf("attempts = %d, want 6", hits.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("six attempts took %v, want >= 155ms of backoff", elapsed)
	}

	// Parked: no further attempts.
	time.Sleep(200 * time.Millisecond)
	if got := hits.Load(); got != 6 {
		t.Errorf("attempts after parking = %d, want 6", got)
	}
	stats := client.Stats()
	if stats.State != StateClosed {
		t.Errorf("state = %v, want closed", stats.State)
	}
	if stats.ReconnectAttempts != 5 {
		t.Errorf("ReconnectAttempts = %d, want 5", stats.ReconnectAttempts)
	}
	if sink.count() == 0 {
		t.Error("error sink never notified")
	}

	// An explicit Connect re-arms the cycle.
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against failing endpoint")
	}
	time.Sleep(50 * time.Millisecond)
	if got := hits.Load(); got <= 6 {
		t.Errorf("attempts after explicit Connect = %d, want > 6", got)
	}
	client.Disconnect()
}

func TestClient_AutoReconnect(t *testing.T) {
	server := newTestServer(t)
	defer server.close()

	sink := &sinkRecorder{}
	cfg := testConfig(server.baseURL())
	cfg.OnError = sink.add

	client, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess1 := server.waitSession()

	// Drop the connection server-side; the client reconnects on its own.
	sess1.conn.Close()
	server.waitSession()

	if got := server.acceptCount(); got != 2 {
		t.Errorf("dial attempts = %d, want 2", got)
	}
	if sink.count() == 0 {
		t.Error("connection loss never reached the error sink")
	}
}

func TestClient_DisconnectSuppressesReconnect(t *testing.T) {
	server := newTestServer(t)
	defer server.close()

	client, err := New(testConfig(server.baseURL()), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess := server.waitSession()

	client.Disconnect()
	select {
	case <-sess.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the close")
	}

	// Well past the retry delay: no reconnect may fire.
	time.Sleep(150 * time.Millisecond)
	if got := server.acceptCount(); got != 1 {
		t.Errorf("dial attempts after Disconnect = %d, want 1", got)
	}
	if got := client.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestClient_DisconnectThenReuse(t *testing.T) {
	server := newTestServer(t)
	defer server.close()

	client, err := New(testConfig(server.baseURL()), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Disconnect()

	detach := client.SubscribeToTasks(func([]model.TaskStatus) {})
	sess1 := server.waitSession()
	if cf := sess1.expectFrame(t); cf.Subscribe != model.CategoryTasks {
		t.Fatalf("frame = %+v, want subscribe tasks", cf)
	}

	client.Disconnect()
	detach() // stale detach after teardown must be harmless

	// Listener sets were cleared, so a fresh attach is a 0→1 transition again.
	client.SubscribeToTasks(func([]model.TaskStatus) {})
	sess2 := server.waitSession()
	if cf := sess2.expectFrame(t); cf.Subscribe != model.CategoryTasks {
		t.Fatalf("frame = %+v, want subscribe tasks", cf)
	}
}

// TestClient_ConnectAfterDisconnectDuringDial tears the client down while a
// dial is still in flight and verifies that a subsequent Connect starts a
// fresh cycle instead of joining the doomed attempt.
func TestClient_ConnectAfterDisconnectDuringDial(t *testing.T) {
	firstArrived := make(chan struct{})
	release := make(chan struct{})
	var accepts atomic.Int32

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accepts.Add(1) == 1 {
			close(firstArrived)
			<-release // keep the first handshake in flight
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, err := New(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	held := make(chan error, 1)
	go func() { held <- client.Connect(context.Background()) }()
	<-firstArrived

	client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("post-teardown Connect failed: %v", err)
	}
	if got := client.State(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
	if got := accepts.Load(); got != 2 {
		t.Errorf("dial attempts = %d, want 2", got)
	}

	// Let the held dial settle; it belongs to the torn-down generation and
	// must not disturb the fresh session.
	close(release)
	select {
	case <-held:
	case <-time.After(2 * time.Second):
		t.Fatal("held dial never settled")
	}
	if got := client.State(); got != StateOpen {
		t.Errorf("state after stale dial settled = %v, want open", got)
	}
	client.Disconnect()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReconnectBaseDelay != 1*time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 1s", cfg.ReconnectBaseDelay)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.WriteTimeout)
	}
}

func TestNew_ZeroFieldsUseDefaults(t *testing.T) {
	client, err := New(Config{BaseURL: "http://127.0.0.1:8866"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	def := DefaultConfig()
	if client.cfg.HandshakeTimeout != def.HandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", client.cfg.HandshakeTimeout, def.HandshakeTimeout)
	}
	if client.cfg.WriteTimeout != def.WriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", client.cfg.WriteTimeout, def.WriteTimeout)
	}
	if client.cfg.ReconnectBaseDelay != def.ReconnectBaseDelay {
		t.Errorf("ReconnectBaseDelay = %v, want %v", client.cfg.ReconnectBaseDelay, def.ReconnectBaseDelay)
	}
	if client.cfg.MaxReconnectAttempts != def.MaxReconnectAttempts {
		t.Errorf("MaxReconnectAttempts = %d, want %d", client.cfg.MaxReconnectAttempts, def.MaxReconnectAttempts)
	}

	// Explicit values survive the backfill.
	client, err = New(Config{BaseURL: "http://127.0.0.1:8866", MaxReconnectAttempts: 2}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.cfg.MaxReconnectAttempts != 2 {
		t.Errorf("MaxReconnectAttempts = %d, want 2", client.cfg.MaxReconnectAttempts)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateOpen, "open"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
