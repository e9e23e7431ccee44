package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Auth      AuthConfig      `yaml:"auth"`
	Broker    BrokerConfig    `yaml:"broker"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// AuthConfig holds the login and identity endpoints used to obtain broker credentials.
// Missing values are reported when the first connection is attempted, not at load time.
type AuthConfig struct {
	URL      string        `yaml:"url"`    // AUTH_URL
	MeURL    string        `yaml:"me_url"` // ME_URL
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// BrokerConfig holds MQTT broker settings.
type BrokerConfig struct {
	URL                string        `yaml:"url"`       // wss://host:port/mqtt
	ClientID           string        `yaml:"client_id"` // prefix; a unique suffix is added per connection
	Topic              string        `yaml:"topic"`
	QoS                byte          `yaml:"qos"`
	ReconnectPolicy    string        `yaml:"reconnect_policy"` // "fixed" or "exponential"
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	WatchdogInterval   time.Duration `yaml:"watchdog_interval"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	MessageBuffer      int           `yaml:"message_buffer"`
}

// DatabaseConfig holds the PostgreSQL connection for quotes and credentials.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
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

// CacheConfig holds change-detection cache settings.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// BroadcastConfig selects the sinks that receive changed quotes.
type BroadcastConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

// WebSocketConfig configures the push endpoint for UI clients.
type WebSocketConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	ClientBuffer int    `yaml:"client_buffer"`
}

// RedisConfig configures the Redis pub/sub sink.
type RedisConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	SnapshotTTL   time.Duration `yaml:"snapshot_ttl"`
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ServerConfig holds the HTTP server settings (query API, health, push endpoint).
type ServerConfig struct {
	Port int `yaml:"port"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	Output     string `yaml:"output"` // stdout, stderr or a file path
	MaxAgeDays int    `yaml:"max_age_days"`
}
