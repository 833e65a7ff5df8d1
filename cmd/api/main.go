package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotbook/internal/api"
	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/google"
	"slotbook/internal/logging"
	"slotbook/internal/meeting"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/notify"
	"slotbook/internal/repository"
	"slotbook/internal/service"
	"slotbook/internal/worker"

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
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, &logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	if kafkaForwarder := initKafka(cfg, bus, &logger); kafkaForwarder != nil {
		defer kafkaForwarder.Close()
	}

	availability := service.NewAvailabilityService(db, cfg.Schedule, logging.Component(&logger, "availability"))
	availability.SetPublisher(bus)
	if err := seedOverrides(ctx, availability, &logger); err != nil {
		return err
	}

	mailer, err := notify.NewMailer(cfg.SMTP)
	if err != nil {
		logger.Error().Err(err).Msg("init mailer")
		return err
	}
	email := notify.NewEmailNotifier(mailer, cfg.Notify.Brand, cfg.Notify.OperatorEmail, cfg.Schedule.MeetingDuration, cfg.SMTP.Timeout)

	store, throttle := initVerificationStore(cfg, db, redisClient, &logger)
	verification := service.NewVerificationService(store, throttle, email, cfg.Verification, logging.Component(&logger, "verification"))

	notifiers := initNotifiers(cfg, email, &logger)

	var sheets domain.SheetsWriter
	if sheetsService := initGoogleSheets(ctx, cfg, &logger); sheetsService != nil {
		sheets = sheetsService
	}

	outbox := initOutbox(ctx, cfg, db, sheets, notifiers, redisClient, &logger)

	meetings, placeholder := meeting.NewFromConfig(cfg.Meeting, cfg.Schedule.Timezone)
	deps := service.BookingDeps{
		Ledger:       db,
		Schedule:     availability,
		Verification: verification,
		Meetings:     meetings,
		Placeholder:  placeholder,
		Notifiers:    notifiers,
		EventBus:     bus,
	}
	services := api.Services{
		Availability: availability,
		Verification: verification,
		Health:       healthChecks(db, redisClient),
	}
	attachOutbox(outbox, &deps, &services)
	bookings := service.NewBookingService(deps, cfg.Schedule, cfg.Meeting.Timeout, cfg.Notify.Brand, logging.Component(&logger, "booking"))
	services.Bookings = bookings

	go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, services, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, availability, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// seedOverrides loads per-day schedule overrides from OVERRIDES_PATH. A missing file is not an error.
func seedOverrides(ctx context.Context, availability *service.AvailabilityService, logger *zerolog.Logger) error {
	path := os.Getenv("OVERRIDES_PATH")
	if path == "" {
		path = "configs/overrides.yaml"
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("overrides_path", path).Msg("read overrides")
		return err
	}

	var file struct {
		Overrides []models.AvailabilityOverride `yaml:"overrides"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Error().Err(err).Str("overrides_path", path).Msg("parse overrides")
		return err
	}

	if err := availability.Seed(ctx, file.Overrides); err != nil {
		logger.Error().Err(err).Msg("seed overrides")
		return err
	}
	logger.Info().Int("count", len(file.Overrides)).Msg("availability overrides seeded")
	return nil
}

// initOutbox starts the outbox worker. It returns nil when the outbox is disabled,
// so bookings enqueue nothing that no loop would drain.
func initOutbox(
	ctx context.Context,
	cfg *config.Config,
	store worker.OutboxStore,
	sheets domain.SheetsWriter,
	notifiers []domain.BookingNotifier,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.OutboxWorker {
	if !cfg.Outbox.Enabled {
		logger.Info().Msg("outbox disabled, failed notifications and sheets rows are not retried")
		return nil
	}

	outbox := worker.NewOutboxWorker(
		store,
		sheets,
		notifiers,
		redisClient,
		worker.RetryPolicyFromConfig(cfg.Outbox),
		cfg.Outbox.PollInterval,
		logging.Component(logger, "outbox"),
	)
	go outbox.Start(ctx)
	return outbox
}

// attachOutbox leaves both fields as untyped nil when outbox is nil.
func attachOutbox(outbox *worker.OutboxWorker, deps *service.BookingDeps, services *api.Services) {
	if outbox == nil {
		return
	}
	deps.Outbox = outbox
	services.Outbox = outbox
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initVerificationStore picks the code store. Redis runs behind a failover onto the database.
func initVerificationStore(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) (domain.VerificationStore, domain.SendThrottle) {
	memory := repository.NewMemoryVerificationStore()
	sqlStore := repository.Throttled{
		VerificationStore: database.NewVerificationStore(db),
		SendThrottle:      memory,
	}

	switch cfg.Verification.Store {
	case "memory":
		return memory, memory
	case "database":
		return sqlStore, sqlStore
	}

	if redisClient == nil {
		if cfg.Verification.Store == "redis" {
			logger.Warn().Msg("verification store redis requested but redis is unavailable, using database")
		}
		return sqlStore, sqlStore
	}

	failover := repository.NewFailoverVerificationStore(
		repository.NewRedisVerificationStore(redisClient),
		sqlStore,
		logging.Component(logger, "verification-store"),
	)
	return failover, failover
}

func initNotifiers(cfg *config.Config, email *notify.EmailNotifier, logger *zerolog.Logger) []domain.BookingNotifier {
	notifiers := []domain.BookingNotifier{email.Customer()}
	if cfg.Notify.OperatorEmail != "" {
		notifiers = append(notifiers, email.Operator())
	}

	bot, err := notify.NewTelegramBot(cfg.Notify.Telegram)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
	case bot != nil:
		notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Notify.Telegram.ChatID))
		logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
	}
	return notifiers
}

func initKafka(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.KafkaForwarder {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	forwarder := events.NewKafkaForwarder(
		events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
		logging.Component(logger, "kafka"),
	)
	forwarder.Attach(bus, events.EventBookingCreated, events.EventAvailabilityUpdated)
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka event forwarding enabled")
	return forwarder
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingsSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func healthChecks(db *database.DB, redisClient *redis.Client) []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "database", Check: db.Ping}}
	if redisClient != nil {
		checks = append(checks, api.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
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
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
