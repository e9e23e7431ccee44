package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/quote-relay/internal/api"
	"github.com/rickgao/quote-relay/internal/auth"
	"github.com/rickgao/quote-relay/internal/broadcast"
	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/connection"
	"github.com/rickgao/quote-relay/internal/database"
	"github.com/rickgao/quote-relay/internal/dedup"
	"github.com/rickgao/quote-relay/internal/logging"
	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/server"
	"github.com/rickgao/quote-relay/internal/version"
	"github.com/rickgao/quote-relay/internal/writer"
)

const (
	storeWriteTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	connection.RouteMQTTLogs(logger)

	logger.Info("starting quote relay", append(version.LogAttrs(),
		"instance_id", cfg.Instance.ID,
		"config", configPath,
	)...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.NewRegistry())
	}

	// Database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database.Postgres, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	// Credentials
	authClient := api.NewClient(cfg.Auth.URL, cfg.Auth.MeURL,
		api.WithTimeout(cfg.Auth.Timeout),
		api.WithLogger(logger),
	)
	provider := auth.NewProvider(auth.Config{
		LoginURL: cfg.Auth.URL,
		MeURL:    cfg.Auth.MeURL,
		Username: cfg.Auth.User,
		Password: cfg.Auth.Password,
	}, authClient, database.NewCredentialStore(pool), logger)

	// Sinks
	hub, sinks, err := buildSinks(ctx, cfg.Broadcast, m, logger)
	if err != nil {
		return err
	}
	broadcaster := broadcast.NewMulti(sinks, 0, m, logger)

	// Change cache
	quoteWriter := writer.NewQuoteWriter(pool, storeWriteTimeout, m, logger)
	cache := dedup.New(dedup.Config{
		TTL:             cfg.Cache.TTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, quoteWriter, broadcaster, m, logger)
	if err := cache.Start(ctx); err != nil {
		return err
	}

	// Broker connection
	supervisor := connection.NewSupervisor(connection.Config{
		BrokerURL:          cfg.Broker.URL,
		ClientID:           cfg.Broker.ClientID,
		Topic:              cfg.Broker.Topic,
		QoS:                cfg.Broker.QoS,
		WatchdogInterval:   cfg.Broker.WatchdogInterval,
		StaleAfter:         cfg.Broker.StaleAfter,
		ConnectTimeout:     cfg.Broker.ConnectTimeout,
		InsecureSkipVerify: cfg.Broker.InsecureSkipVerify,
		MessageBuffer:      cfg.Broker.MessageBuffer,
	}, provider, connection.NewMQTTDialer(logger), cache,
		connection.WithReconnectPolicy(reconnectPolicy(cfg.Broker)),
		connection.WithMetrics(m),
		connection.WithLogger(logger),
	)

	// HTTP
	deps := server.Deps{
		DB:         pool,
		Quotes:     database.NewQuoteReader(pool),
		Connection: supervisor,
		Cache:      cache,
	}
	if hub != nil {
		deps.WebSocket = hub
	}
	if m != nil {
		deps.Metrics = m.Handler()
	}
	srv := server.New(server.Config{
		Port:          cfg.Server.Port,
		WebSocketPath: cfg.Broadcast.WebSocket.Path,
		MetricsPath:   cfg.Metrics.Path,
	}, deps, logger)
	srv.Start()

	if err := supervisor.Start(ctx); err != nil {
		return err
	}

	logger.Info("quote relay running",
		"broker", cfg.Broker.URL,
		"topic", cfg.Broker.Topic,
		"sinks", broadcaster.Sinks(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdown(supervisor, cache, srv, broadcaster, pool, logger)

	logger.Info("quote relay stopped")
	return nil
}

// buildSinks creates the enabled broadcast sinks. The hub is returned
// separately because the HTTP server routes to it.
func buildSinks(ctx context.Context, cfg config.BroadcastConfig, m *metrics.Metrics, logger *slog.Logger) (*broadcast.Hub, []broadcast.Sink, error) {
	var (
		hub   *broadcast.Hub
		sinks []broadcast.Sink
	)

	if cfg.WebSocket.Enabled {
		hub = broadcast.NewHub(cfg.WebSocket.ClientBuffer, m, logger)
		sinks = append(sinks, hub)
	}

	if cfg.Redis.Enabled {
		rdb, err := broadcast.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, broadcast.NewRedisPublisher(rdb, cfg.Redis.ChannelPrefix, cfg.Redis.SnapshotTTL))
		logger.Info("redis sink enabled", "addr", cfg.Redis.Addr)
	}

	if cfg.Kafka.Enabled {
		w := broadcast.NewKafkaWriter(cfg.Kafka, logger)
		sinks = append(sinks, broadcast.NewKafkaPublisher(w))
		logger.Info("kafka sink enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	return hub, sinks, nil
}

func reconnectPolicy(cfg config.BrokerConfig) connection.ReconnectPolicy {
	if cfg.ReconnectPolicy == "exponential" {
		return connection.ExponentialBackoff{Base: cfg.ReconnectDelay, Max: cfg.ReconnectMaxDelay}
	}
	return connection.FixedDelay(cfg.ReconnectDelay)
}

// shutdown stops components in dependency order: no new messages, then no
// new writes, then no new readers, then the sinks and the pool.
func shutdown(
	supervisor *connection.Supervisor,
	cache *dedup.ChangeCache,
	srv *server.Server,
	broadcaster *broadcast.Multi,
	pool *pgxpool.Pool,
	logger *slog.Logger,
) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := supervisor.Stop(ctx); err != nil {
		logger.Warn("supervisor stop", "error", err)
	}
	if err := cache.Stop(ctx); err != nil {
		logger.Warn("cache stop", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := broadcaster.Close(); err != nil {
		logger.Warn("close sinks", "error", err)
	}
	pool.Close()
}
