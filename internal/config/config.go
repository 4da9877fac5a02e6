package config

import "time"

// EventsConfig is the root configuration for the events daemon.
type EventsConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Database DBConfig      `yaml:"database"`
	Tasks    TasksConfig   `yaml:"tasks"`
	SysInfo  SysInfoConfig `yaml:"sysinfo"`
	Hub      HubConfig     `yaml:"hub"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Empty accepts same-host and localhost
}

// DBConfig holds the media-sync daemon's database connection. This process
// only reads from it; the daemon owns all writes.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// TasksConfig holds task feed settings.
type TasksConfig struct {
	Source       string        `yaml:"source"` // "postgres" or "mock"
	PollInterval time.Duration `yaml:"poll_interval"`
}

// SysInfoConfig holds host telemetry sampling settings.
type SysInfoConfig struct {
	Interval time.Duration `yaml:"interval"`
	DiskPath string        `yaml:"disk_path"` // Volume reported on the dashboard
}

// HubConfig holds websocket hub settings.
type HubConfig struct {
	SendQueueSize int           `yaml:"send_queue_size"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	PongTimeout   time.Duration `yaml:"pong_timeout"`
	MaxFrameSize  int64         `yaml:"max_frame_size"`
}
