package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/itsobito471-bot/thebottlestories/internal/config"
	"github.com/itsobito471-bot/thebottlestories/internal/repository"
	"github.com/itsobito471-bot/thebottlestories/internal/repository/memory"
	"github.com/itsobito471-bot/thebottlestories/internal/repository/postgres"
	redisrepo "github.com/itsobito471-bot/thebottlestories/internal/repository/redis"
	"github.com/itsobito471-bot/thebottlestories/pkg/database"
)

// backend is the opened device storage and the resources behind it.
type backend struct {
	storage repository.DeviceStorage
	ping    func(ctx context.Context) error
	pool    *pgxpool.Pool
	rdb     *goredis.Client
	purger  *postgres.Storage
}

func (b *backend) close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
}

// openStorage connects the configured device storage backend.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:            cfg.RedisAddr,
			Password:        cfg.RedisPass,
			DB:              cfg.RedisDB,
			ConnectAttempts: 3,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		s := redisrepo.NewStorage(rdb, time.Duration(cfg.DeviceStorageTTL)*time.Hour)
		return &backend{storage: s, ping: s.Ping, rdb: rdb}, nil

	case config.StoragePostgres:
		pgCfg := database.DefaultPostgresConfig(cfg.PostgresDSN())
		pgCfg.MaxConns = cfg.DBMaxConns
		pgCfg.MinConns = cfg.DBMinConns
		pgCfg.MaxConnLifetime = time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute
		pgCfg.MaxConnIdleTime = time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute

		pool, err := database.NewPostgresPool(ctx, pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "storefront"); err != nil {
			logger.Warn("register pool metrics failed", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		tracer := database.QueryTracer{Logger: logger}
		if cfg.SlowQueryThresholdMs > 0 {
			tracer.SlowThreshold = time.Duration(cfg.SlowQueryThresholdMs) * time.Millisecond
		}
		s := postgres.NewStorage(pool, tracer)
		return &backend{storage: s, ping: s.Ping, pool: pool, purger: s}, nil

	default:
		s := memory.New()
		logger.Warn("using in-memory device storage; carts are lost on restart")
		return &backend{storage: s, ping: s.Ping}, nil
	}
}

// runPurge deletes device storage rows older than ttl once an hour.
func runPurge(ctx context.Context, s *postgres.Storage, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.WarnContext(ctx, "device storage purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "device storage purged", slog.Int64("rows", n))
			}
		}
	}
}
