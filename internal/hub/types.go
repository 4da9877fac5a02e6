package hub

import (
	"time"

	"github.com/rickgao/mediasync-events/internal/model"
)

// Config configures a Hub.
type Config struct {
	AllowedOrigins []string      // Exact Origin values to accept; empty = same host + localhost
	SendQueueSize  int           // Frames buffered per connection before it is dropped
	WriteTimeout   time.Duration // Write deadline per frame and ping
	PongTimeout    time.Duration // Read deadline window; pings go out at 9/10 of this
	MaxFrameSize   int64         // Inbound frame cap; clients only send small control frames
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendQueueSize: 64,
		WriteTimeout:  10 * time.Second,
		PongTimeout:   60 * time.Second,
		MaxFrameSize:  512,
	}
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients     int                    // open connections
	Subscribers map[model.Category]int // per-category subscriber counts
	Published   uint64                 // frames published across all categories
	Dropped     uint64                 // frames discarded on full send queues
}
