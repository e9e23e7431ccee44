package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
//
// Auth and broker settings are deliberately not checked here: the connection
// supervisor reports them as configuration errors on each connect attempt and
// keeps retrying until they are fixed.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	switch c.Broker.ReconnectPolicy {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("broker.reconnect_policy must be fixed or exponential, got %q", c.Broker.ReconnectPolicy)
	}
	if c.Broker.ReconnectDelay <= 0 {
		return errors.New("broker.reconnect_delay must be > 0")
	}
	if c.Broker.WatchdogInterval <= 0 {
		return errors.New("broker.watchdog_interval must be > 0")
	}
	if c.Broker.StaleAfter <= 0 {
		return errors.New("broker.stale_after must be > 0")
	}
	if c.Broker.QoS > 2 {
		return fmt.Errorf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS)
	}
	if c.Broker.MessageBuffer < 1 {
		return errors.New("broker.message_buffer must be >= 1")
	}

	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}
	if c.Cache.CleanupInterval <= 0 {
		return errors.New("cache.cleanup_interval must be > 0")
	}

	if c.Broadcast.Kafka.Enabled && len(c.Broadcast.Kafka.Brokers) == 0 {
		return errors.New("broadcast.kafka.brokers is required when kafka is enabled")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
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
