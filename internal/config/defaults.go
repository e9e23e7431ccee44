package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID         = "quote-relay"
	DefaultAuthTimeout        = 15 * time.Second
	DefaultReconnectPolicy    = "fixed"
	DefaultReconnectDelay     = 5 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultWatchdogInterval   = 10 * time.Second
	DefaultStaleAfter         = 30 * time.Second
	DefaultConnectTimeout     = 15 * time.Second
	DefaultMessageBuffer      = 10000
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultCacheTTL           = 5 * time.Minute
	DefaultWebSocketPath      = "/ws"
	DefaultClientBuffer       = 256
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisChannelPrefix = "quotes."
	DefaultRedisSnapshotTTL   = time.Hour
	DefaultKafkaTopic         = "quotes"
	DefaultServerPort         = 8080
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultLogOutput          = "stdout"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Auth defaults
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = DefaultAuthTimeout
	}

	// Broker defaults
	if c.Broker.ReconnectPolicy == "" {
		c.Broker.ReconnectPolicy = DefaultReconnectPolicy
	}
	if c.Broker.ReconnectDelay == 0 {
		c.Broker.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Broker.ReconnectMaxDelay == 0 {
		c.Broker.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Broker.WatchdogInterval == 0 {
		c.Broker.WatchdogInterval = DefaultWatchdogInterval
	}
	if c.Broker.StaleAfter == 0 {
		c.Broker.StaleAfter = DefaultStaleAfter
	}
	if c.Broker.ConnectTimeout == 0 {
		c.Broker.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Broker.MessageBuffer == 0 {
		c.Broker.MessageBuffer = DefaultMessageBuffer
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Cache defaults
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = c.Cache.TTL
	}

	// Broadcast defaults
	if c.Broadcast.WebSocket.Path == "" {
		c.Broadcast.WebSocket.Path = DefaultWebSocketPath
	}
	if c.Broadcast.WebSocket.ClientBuffer == 0 {
		c.Broadcast.WebSocket.ClientBuffer = DefaultClientBuffer
	}
	if c.Broadcast.Redis.Addr == "" {
		c.Broadcast.Redis.Addr = DefaultRedisAddr
	}
	if c.Broadcast.Redis.ChannelPrefix == "" {
		c.Broadcast.Redis.ChannelPrefix = DefaultRedisChannelPrefix
	}
	if c.Broadcast.Redis.SnapshotTTL == 0 {
		c.Broadcast.Redis.SnapshotTTL = DefaultRedisSnapshotTTL
	}
	if c.Broadcast.Kafka.Topic == "" {
		c.Broadcast.Kafka.Topic = DefaultKafkaTopic
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
