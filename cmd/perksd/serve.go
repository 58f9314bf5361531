package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/internal/catalog"
	"github.com/MarkoPoloResearchLab/perkledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/perkledger/internal/savings"
	"github.com/MarkoPoloResearchLab/perkledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// persistence is the catalog source and ledger the service runs on.
type persistence interface {
	perks.CatalogSource
	perks.Ledger
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	gormStore, err := prepareSchema(ctx, gormDB)
	if err != nil {
		return err
	}

	var store persistence = gormStore
	if cfg.StoreDriver == storeDriverPgx {
		if driver != databaseDriverPostgres {
			return fmt.Errorf("store driver %q requires a postgres database url", storeDriverPgx)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("pgx pool: %w", err)
		}
		defer pool.Close()
		store = pgstore.New(pool)
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	clock := func() time.Time { return time.Now().In(location) }

	cache, closeCache, err := newCatalogCache(cfg, store, clock)
	if err != nil {
		return err
	}
	defer closeCache()

	metrics, err := savings.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}
	service, err := savings.NewService(cache, store, clock,
		savings.WithLogger(logger),
		savings.WithMetrics(metrics),
		savings.WithFirstRedemptionHook(func(ctx context.Context, userID perks.UserID) error {
			logger.Info("first redemption", zap.String("user_id", userID.String()))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("savings service init: %w", err)
	}

	logger.Info("perks service starting",
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("database_driver", driver),
		zap.Bool("redis_cache", cfg.RedisURL != ""),
		zap.String("timezone", location.String()),
	)
	return httpapi.Run(ctx, httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		JWTSigningKey:  cfg.JWTSigningKey,
		JWTIssuer:      cfg.JWTIssuer,
		RequestTimeout: cfg.RequestTimeout,
	}, service,
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(prometheus.DefaultGatherer),
		httpapi.WithClock(clock),
	)
}

// newCatalogCache picks the Redis backend when a URL is configured and the
// in-process cache otherwise.
func newCatalogCache(cfg *runtimeConfig, source perks.CatalogSource, clock func() time.Time) (catalog.Cache, func(), error) {
	if cfg.RedisURL == "" {
		cache, err := catalog.NewMemoryCache(source, cfg.CatalogTTL, clock)
		if err != nil {
			return nil, nil, err
		}
		return cache, func() {}, nil
	}
	client, err := catalog.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	cache, err := catalog.NewRedisCache(source, client, cfg.CatalogTTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return cache, func() { _ = client.Close() }, nil
}
