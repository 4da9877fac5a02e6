package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *EventsConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Tasks.Source {
	case SourcePostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	case SourceMock:
		// No database needed.
	default:
		return fmt.Errorf("tasks.source must be %q or %q, got %q", SourcePostgres, SourceMock, c.Tasks.Source)
	}

	if c.Tasks.PollInterval < 100*time.Millisecond {
		return errors.New("tasks.poll_interval must be >= 100ms")
	}
	if c.SysInfo.Interval < time.Second {
		return errors.New("sysinfo.interval must be >= 1s")
	}
	if c.Hub.SendQueueSize < 1 {
		return errors.New("hub.send_queue_size must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
