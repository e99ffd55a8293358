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
	"sync"
	"syscall"
	"time"

	"studiobook/internal/api"
	"studiobook/internal/availability"
	"studiobook/internal/config"
	"studiobook/internal/database"
	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/export"
	"studiobook/internal/gateway"
	"studiobook/internal/idempotency"
	"studiobook/internal/logging"
	"studiobook/internal/metrics"
	"studiobook/internal/payment"
	"studiobook/internal/repository"
	"studiobook/internal/retry"
	"studiobook/internal/saga"
	"studiobook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	states := initStateRepository(redisClient, &logger)
	keys := initKeyManager(redisClient)

	backend := gateway.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout(), logging.WithComponent(&logger, "gateway"))
	charger := initCharger(cfg, backend, &logger)
	tokenizer := initTokenizer(ctx, cfg, &logger)

	auditWorker := worker.NewAuditWorker(db, redisClient, retry.Policy{}, logging.WithComponent(&logger, "audit_worker"))
	go auditWorker.Start(ctx)

	bus := events.NewEventBus()
	subscribeSagaEvents(bus, &logger)

	resolver, err := availability.NewResolver(cfg.Business.LocationID, cfg.Business.Timezone)
	if err != nil {
		logger.Error().Err(err).Str("timezone", cfg.Business.Timezone).Msg("init availability resolver")
		return err
	}

	orchestrator := saga.New(saga.Deps{
		Backend:   backend,
		Charger:   charger,
		Tokenizer: tokenizer,
		Keys:      keys,
		Resolver:  resolver,
		States:    states,
		Audit:     auditWorker,
		Bus:       bus,
		Logger:    logging.WithComponent(&logger, "saga"),
	}, saga.Config{
		BookingTimeout: cfg.Backend.Timeout(),
		LocationID:     cfg.Payment.LocationID,
		Currency:       cfg.Business.Currency,
	})

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Runner:   newCustomerRunner(orchestrator),
		Backend:  backend,
		Resolver: resolver,
		States:   states,
		Audits:   db,
		Exporter: export.NewExporter(cfg.Exports.Path, &logger),
		Services: cfg.Services,
		Logger:   logging.WithComponent(&logger, "http"),
	})

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, httpServer, cfg, &logger)
}

// customerRunner hands each customer their own orchestrator clone. The
// in-flight guard is per instance, so a rapid double submit from one customer
// is rejected while unrelated customers run concurrently.
type customerRunner struct {
	template *saga.Orchestrator

	mu     sync.Mutex
	active map[string]*saga.Orchestrator
}

func newCustomerRunner(template *saga.Orchestrator) *customerRunner {
	return &customerRunner{
		template: template,
		active:   make(map[string]*saga.Orchestrator),
	}
}

func (r *customerRunner) Run(ctx context.Context, input saga.Input) (*saga.Result, error) {
	key := input.Customer.Email
	if key == "" {
		key = input.Customer.Name
	}

	r.mu.Lock()
	o, ok := r.active[key]
	if !ok {
		o = r.template.Clone()
		r.active[key] = o
	}
	r.mu.Unlock()

	result, err := o.Run(ctx, input)
	if !errors.Is(err, saga.ErrSagaInFlight) {
		r.mu.Lock()
		delete(r.active, key)
		r.mu.Unlock()
	}
	return result, err
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

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initStateRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	fallback := repository.NewMemoryStateRepository()
	if redisClient == nil {
		return fallback
	}
	primary := repository.NewRedisStateRepository(redisClient, 24*time.Hour)
	return repository.NewFailoverStateRepository(primary, fallback, logger)
}

func initKeyManager(redisClient *redis.Client) *idempotency.Manager {
	if redisClient != nil {
		return idempotency.NewManager(idempotency.NewRedisStore(redisClient, 24*time.Hour))
	}
	return idempotency.NewManager(idempotency.NewMemoryStore())
}

// initCharger prefers a direct Stripe charge path when a key is configured;
// otherwise deposits go through the scheduling backend's payment endpoint.
func initCharger(cfg *config.Config, backend *gateway.Client, logger *zerolog.Logger) domain.Charger {
	if cfg.Payment.StripeKey != "" {
		logger.Info().Msg("charging directly via stripe")
		return payment.NewStripeCharger(cfg.Payment.StripeKey, logging.WithComponent(logger, "stripe"))
	}
	return backend
}

func initTokenizer(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.Tokenizer {
	gatewayURL := cfg.Payment.GatewayURL
	if gatewayURL == "" {
		gatewayURL = cfg.Backend.BaseURL
	}

	provider := payment.NewRemoteProvider(gatewayURL, cfg.Payment.ApplicationID, cfg.Backend.Timeout(), logging.WithComponent(logger, "payment_provider"))
	adapter := payment.NewAdapter(provider, payment.StaticMount{MountID: "card-container"}, payment.Config{}, logging.WithComponent(logger, "payment_adapter"))

	go func() {
		if err := adapter.Init(ctx); err != nil {
			step, msg := adapter.Failure()
			logger.Error().Err(err).Str("step", string(step)).Str("detail", msg).Msg("payment adapter init failed")
		}
	}()

	return adapter
}

func subscribeSagaEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventSagaCompleted, func(ev *events.Event) error {
		payload, err := ev.Saga()
		if err != nil {
			return nil
		}
		logger.Info().
			Str("saga_id", payload.SagaID).
			Str("booking_ref", payload.BookingRef).
			Int64("amount", payload.Amount).
			Msg("saga completed")
		return nil
	})

	bus.Subscribe(events.EventSagaFailed, func(ev *events.Event) error {
		payload, err := ev.Saga()
		if err != nil {
			return nil
		}
		logger.Warn().
			Str("saga_id", payload.SagaID).
			Str("failed_step", payload.FailedStep).
			Str("reason", payload.Reason).
			Msg("saga failed")
		return nil
	})
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

func startServers(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("booking API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("booking API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
