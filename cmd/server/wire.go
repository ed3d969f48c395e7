package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/cache"
	"github.com/warp/tour-engine/config"
	"github.com/warp/tour-engine/gateway"
	"github.com/warp/tour-engine/metrics"
	"github.com/warp/tour-engine/notify"
	"github.com/warp/tour-engine/store/sqlstore"
	"github.com/warp/tour-engine/tours"
)

// app is everything serve needs, built from config.
type app struct {
	store    *sqlstore.Store
	metrics  *metrics.Metrics
	catalog  *tours.Catalog
	sched    *tours.Scheduler
	bookings *tours.BookingService
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*sqlstore.Store, error) {
	st, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	st.SetPool(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	return st, nil
}

func redisOpt(cfg config.Redis) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{store: st, closers: []func() error{st.Close}}

	if err := st.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	opts := []tours.Option{tours.WithLogger(log)}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
		opts = append(opts, tours.WithRecorder(a.metrics))
	}

	switch cfg.Payments.Provider {
	case "stripe":
		opts = append(opts, tours.WithGateway(gateway.NewStripe(cfg.Payments.StripeSecretKey, log)))
	default:
		log.Warn("payments use the in-memory gateway; refunds are not sent anywhere")
		opts = append(opts, tours.WithGateway(gateway.NewMemory()))
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable at startup; reads fall through to the database", zap.Error(err))
		}
		a.closers = append(a.closers, rdb.Close)
		ttl := time.Duration(cfg.Redis.RouteTTL) * time.Second
		opts = append(opts, tours.WithRouteCache(cache.NewRouteCache(rdb, st, ttl, log)))

		client := asynq.NewClient(redisOpt(cfg.Redis))
		a.closers = append(a.closers, client.Close)
		opts = append(opts, tours.WithNotifier(notify.NewQueue(client, cfg.Notifications.MaxRetry, log)))
	} else {
		opts = append(opts, tours.WithNotifier(notify.NewLog(log)))
	}

	a.catalog = tours.NewCatalog(st, opts...)
	a.sched = tours.NewScheduler(st, opts...)
	a.bookings = tours.NewBookingService(st, opts...)
	return a, nil
}

func describe(cfg config.Config) string {
	return fmt.Sprintf("driver=%s redis=%t payments=%s metrics=%t",
		cfg.Database.Driver, cfg.Redis.Enabled(), cfg.Payments.Provider, cfg.Metrics.Enabled)
}
