package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/multierr"

	"github.com/itsobito471-bot/thebottlestories/internal/api"
	"github.com/itsobito471-bot/thebottlestories/internal/config"
	"github.com/itsobito471-bot/thebottlestories/internal/event"
	handler "github.com/itsobito471-bot/thebottlestories/internal/handler/http"
	"github.com/itsobito471-bot/thebottlestories/internal/service"
	"github.com/itsobito471-bot/thebottlestories/pkg/health"
	"github.com/itsobito471-bot/thebottlestories/pkg/httpclient"
	pkgkafka "github.com/itsobito471-bot/thebottlestories/pkg/kafka"
	"github.com/itsobito471-bot/thebottlestories/pkg/middleware"
	"github.com/itsobito471-bot/thebottlestories/pkg/tracing"
)

// Version is reported in traces.
const Version = "0.1.0"

const unavailableMessage = "The store is temporarily unavailable. Please try again shortly."

// App wires together all dependencies and runs the storefront edge.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	backend        *backend
	producer       *pkgkafka.Producer
	registry       *service.Registry
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc

	// bgCtx scopes background work (rate limiter GC, session sweeps,
	// storage purge). It is cancelled by Shutdown.
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Device storage.
	be, err := openStorage(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	healthHandler := health.NewHandler()
	healthHandler.Register("storage", be.ping)

	// Domain events go to Kafka when enabled.
	var (
		events   service.Events = event.Noop{}
		producer *pkgkafka.Producer
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(producer, logger)
		healthHandler.RegisterOptional("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Upstream API client behind a circuit breaker.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.APITimeout,
		MaxRetries:      cfg.APIMaxRetries,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
		UserAgent:       "storefront-edge/" + Version,
	})
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         api.ServiceName,
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(httpclient.UnavailableFallback(unavailableMessage))
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.String("api_url", cfg.APIBaseURL),
		slog.Int("timeout_seconds", cfg.CBTimeout),
	)
	healthHandler.RegisterOptional("storefront-api", func(context.Context) error {
		if cbClient.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})

	client := api.New(cfg.APIBaseURL, cbClient, logger)

	// Build the dependency graph.
	registry := service.NewRegistry(be.storage,
		func(tokens func(context.Context) string) service.UpstreamAPI { return client.WithToken(tokens) },
		events, logger, service.RegistryConfig{
			IdleTTL:     cfg.SessionIdleTTL,
			InitTimeout: cfg.SessionInitTimeout,
			Cart: service.CartStoreConfig{
				SaveDebounce: cfg.CartSaveDebounce,
				SaveTimeout:  cfg.CartSaveTimeout,
			},
			Checkout: service.CheckoutConfig{
				Pricing: service.ThresholdShipping{
					Threshold: cfg.ShippingThreshold,
					FeeBelow:  cfg.ShippingFeeBelow,
					FeeAbove:  cfg.ShippingFeeAbove,
				},
				StrictStock: cfg.CheckoutStrictStock,
			},
		})
	h := handler.NewHandler(registry, service.NewCatalog(client, logger), logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())

	// HTTP router.
	router := handler.NewRouter(bgCtx, h, healthHandler, logger, handler.RouterConfig{
		CORS: corsConfig(cfg.CORSAllowedOrigins),
		Device: middleware.DeviceConfig{
			SecureCookie: cfg.SecureCookies,
		},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: cfg.RequestTimeout,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		backend:        be,
		producer:       producer,
		registry:       registry,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		bgCtx:          bgCtx,
		bgCancel:       bgCancel,
	}, nil
}

func corsConfig(origins []string) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(origins) > 0 {
		c.AllowedOrigins = origins
	}
	return c
}

// Run starts the HTTP server and background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	go a.registry.Run(a.bgCtx)
	if a.backend.purger != nil {
		go runPurge(a.bgCtx, a.backend.purger, time.Duration(a.cfg.DeviceStorageTTL)*time.Hour, a.logger)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return multierr.Append(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Sessions (flush pending cart saves while storage and the API are up)
// 3. Background workers
// 4. Tracer
// 5. Kafka producer
// 6. Device storage
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = multierr.Append(errs, err)
	}

	sessCtx, sessCancel := context.WithTimeout(context.Background(), a.cfg.CartSaveTimeout)
	defer sessCancel()
	if err := a.registry.Close(sessCtx); err != nil {
		a.logger.Error("session shutdown error", slog.String("error", err.Error()))
		errs = multierr.Append(errs, err)
	}

	a.bgCancel()

	tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer tracerCancel()
	if err := a.tracerShutdown(tracerCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = multierr.Append(errs, err)
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = multierr.Append(errs, err)
		}
	}

	a.backend.close()

	a.logger.Info("application shutdown complete")
	return errs
}
