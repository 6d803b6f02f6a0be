package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/mq"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := *logging.Component(base, "api-main")

	catalog, err := loadCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, catalog, logging.Component(base, "database"))
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := initPublisher(cfg, &logger)
	if err != nil {
		return err
	}
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}

	bus := events.NewEventBus()
	bus.OnError(func(e *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", e.Type).Str("event_id", e.ID).Msg("event handler failed")
	})
	outbox := worker.NewOutboxWorker(db, publisher, redisClient, worker.RetryPolicy{}, logging.Component(base, "outbox"))
	bus.SubscribeAll(outbox.Handler(ctx))
	go outbox.Start(ctx)

	svc := service.NewBookingService(db, initDraftStore(redisClient, &logger), bus, cfg.Drafts.TTL, logging.Component(base, "booking"))

	if cfg.Holds.Enabled {
		holds := worker.NewHoldExpiryWorker(svc, cfg.Holds.Interval, worker.RetryPolicy{
			MaxRetries:    cfg.Holds.MaxRetries,
			InitialDelay:  cfg.Holds.RetryDelay,
			MaxDelay:      cfg.Holds.MaxRetryDelay,
			BackoffFactor: 2,
		}, logging.Component(base, "holds"))
		go holds.Start(ctx)
	}

	exporter := export.NewExporter(cfg.Exports.Path, logging.Component(base, "export"))

	grpcServer, err := api.NewGRPCServer(&cfg.API, base)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	go grpcServer.WatchHealth(ctx, db.PingContext, 15*time.Second)

	httpServer := api.NewHTTPServer(cfg.API, svc, exporter, db.PingContext, base)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, baseLogger, closer, nil
}

func loadCatalog(cfg *config.Config, logger *zerolog.Logger) (*config.Catalog, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = cfg.Catalog
	}
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, err
	}

	var catalog config.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, err
	}
	if err := cfg.Prepare(&catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("validate catalog")
		return nil, err
	}

	return &catalog, nil
}

func initDatabase(cfg *config.Config, catalog *config.Catalog, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.SeedCatalog(ctx, cfg.Facilities, catalog.Courts, catalog.Services, catalog.BranchServices); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("seed catalog")
		return nil, err
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initDraftStore keeps drafts in Redis when it is reachable and in memory otherwise.
func initDraftStore(redisClient *redis.Client, logger *zerolog.Logger) domain.DraftStore {
	memory := repository.NewMemoryDraftStore()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverDraftStore(repository.NewRedisDraftStore(redisClient), memory, logger)
}

func initPublisher(cfg *config.Config, logger *zerolog.Logger) (worker.Publisher, error) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info().Msg("rabbitmq disabled, events are logged only")
		return mq.LogPublisher{Logger: logger}, nil
	}

	publisher, err := mq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		logger.Error().Err(err).Msg("connect rabbitmq")
		return nil, err
	}
	logger.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("rabbitmq connected")
	return publisher, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
