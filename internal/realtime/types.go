package realtime

import (
	"errors"
	"time"

	"github.com/rickgao/mediasync-events/internal/model"
)

// Errors
var (
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// State is the lifecycle state of the managed connection.
type State int

const (
	StateIdle       State = iota // never connected, or torn down by Disconnect
	StateConnecting              // dial in flight
	StateOpen                    // connected
	StateClosed                  // lost; retry pending or attempts exhausted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrorSink receives human-readable problem notices (connection drops, send
// and parse failures) for surfacing to the user, e.g. as dashboard toasts.
// Called synchronously; implementations must not block.
type ErrorSink func(message string)

// Config configures a Client.
type Config struct {
	BaseURL              string        // Dashboard origin (e.g. http://127.0.0.1:8866); http→ws, https→wss
	HandshakeTimeout     time.Duration // Transport-level bound on one dial
	WriteTimeout         time.Duration // Write deadline for control frames
	ReconnectBaseDelay   time.Duration // First retry delay; doubles per consecutive failure
	MaxReconnectAttempts int           // Retries before parking until an explicit Connect
	OnError              ErrorSink     // nil = log only
}

// DefaultConfig returns sensible defaults. BaseURL must still be set.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Stats is a point-in-time view of the client.
type Stats struct {
	State             State
	ReconnectAttempts int              // consecutive failed connects since last open
	ActiveCategories  []model.Category // categories with at least one listener
	FramesReceived    int64
	FramesRouted      int64
	ParseErrors       int64
	SendErrors        int64
	ListenerPanics    int64
}
