package config

import "time"

// Task source names.
const (
	SourcePostgres = "postgres"
	SourceMock     = "mock"
)

// Default values for optional configuration fields.
const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8866
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultTaskSource      = SourceMock
	DefaultPollInterval    = 2 * time.Second
	DefaultSysInfoInterval = 5 * time.Second
	DefaultDiskPath        = "/"
	DefaultSendQueueSize   = 64
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongTimeout     = 60 * time.Second
	DefaultMaxFrameSize    = 512
)

func (c *EventsConfig) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Task feed defaults
	if c.Tasks.Source == "" {
		c.Tasks.Source = DefaultTaskSource
	}
	if c.Tasks.PollInterval == 0 {
		c.Tasks.PollInterval = DefaultPollInterval
	}

	// Telemetry defaults
	if c.SysInfo.Interval == 0 {
		c.SysInfo.Interval = DefaultSysInfoInterval
	}
	if c.SysInfo.DiskPath == "" {
		c.SysInfo.DiskPath = DefaultDiskPath
	}

	// Hub defaults
	if c.Hub.SendQueueSize == 0 {
		c.Hub.SendQueueSize = DefaultSendQueueSize
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = DefaultWriteTimeout
	}
	if c.Hub.PongTimeout == 0 {
		c.Hub.PongTimeout = DefaultPongTimeout
	}
	if c.Hub.MaxFrameSize == 0 {
		c.Hub.MaxFrameSize = DefaultMaxFrameSize
	}
}
