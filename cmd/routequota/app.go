package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	historymem "github.com/mihaimyh/routequota/history/memory"
	historysqlite "github.com/mihaimyh/routequota/history/sqlite"
	"github.com/mihaimyh/routequota/internal/config"
	"github.com/mihaimyh/routequota/pkg/lookup"
	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
	zlogadapter "github.com/mihaimyh/routequota/pkg/routequota/logger/zerolog"
	prommetrics "github.com/mihaimyh/routequota/pkg/routequota/metrics/prometheus"
	"github.com/mihaimyh/routequota/storage/file"
	"github.com/mihaimyh/routequota/storage/firestore"
	"github.com/mihaimyh/routequota/storage/memory"
	"github.com/mihaimyh/routequota/storage/postgres"
	"github.com/mihaimyh/routequota/storage/redis"
	"github.com/mihaimyh/routequota/storage/tiered"
)

// flightLog is what the scorer reads and the resolver writes
type flightLog interface {
	priority.RouteHistory
	lookup.RouteRecorder
}

// app holds the wired components for one CLI invocation
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	logger   *zlogadapter.Logger
	registry *prometheus.Registry

	tracker  *routequota.Tracker
	scorer   *priority.Scorer
	history  flightLog
	stats    *historysqlite.History
	resolver *lookup.Resolver

	closers []func()
}

func newLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		log:      newLogger(cfg.Logging, logOut),
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.logger = zlogadapter.NewLogger(a.log)
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prommetrics.NewMetrics(a.registry, "routequota")

	storage, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	qcfg := routequota.Config{
		Totals:           cfg.Quota.Totals,
		LowQuotaWarning:  cfg.Quota.LowQuotaWarning,
		PriorityReserve:  cfg.Quota.PriorityReserve,
		PriorityCarriers: cfg.Quota.PriorityCarriers,
		Location:         cfg.Location(),
		Logger:           a.logger.Component("tracker"),
		Metrics:          metrics,
	}
	if cfg.Quota.CircuitBreaker.Enabled {
		qcfg.CircuitBreakerConfig = &routequota.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: cfg.Quota.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.Quota.CircuitBreaker.ResetTimeout,
		}
	}
	a.tracker, err = routequota.NewTracker(storage, &qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}

	if err := a.openHistory(ctx); err != nil {
		return nil, err
	}

	pcfg, err := scorerConfig(cfg.Priority)
	if err != nil {
		return nil, err
	}
	pcfg.Logger = a.logger.Component("priority")
	pcfg.Metrics = metrics
	a.scorer, err = priority.NewScorer(a.history, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	a.resolver, err = a.newResolver()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases backend connections in reverse order of opening
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openStorage(ctx context.Context) (routequota.Storage, error) {
	sc := a.cfg.Storage

	var backend routequota.Storage
	switch sc.Backend {
	case config.BackendMemory:
		backend = memory.New()
	case config.BackendFile:
		s, err := file.New(file.Config{Path: sc.File.Path})
		if err != nil {
			return nil, err
		}
		backend = s
	case config.BackendRedis:
		s, err := a.openRedis()
		if err != nil {
			return nil, err
		}
		backend = s
	case config.BackendPostgres:
		pc := postgres.DefaultConfig()
		pc.ConnectionString = sc.Postgres.DSN
		s, err := postgres.New(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		backend = s
	case config.BackendFirestore:
		client, err := gcfirestore.NewClient(ctx, sc.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		s, err := firestore.New(client, firestore.Config{
			Collection:        sc.Firestore.Collection,
			ClockSyncInterval: sc.Firestore.ClockSyncInterval,
		})
		if err != nil {
			return nil, err
		}
		backend = s
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	if sc.Cache != config.BackendRedis {
		return backend, nil
	}

	hot, err := a.openRedis()
	if err != nil {
		return nil, err
	}
	logger := a.logger.Component("storage")
	t, err := tiered.New(tiered.Config{
		Hot:           hot,
		Cold:          backend,
		AsyncColdSync: true,
		AsyncErrorHandler: func(err error) {
			logger.Warn("cold storage sync failed", routequota.ErrorField(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = t.Close() })
	return t, nil
}

func (a *app) openRedis() (*redis.Storage, error) {
	rc := a.cfg.Storage.Redis
	client := goredis.NewClient(&goredis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })

	conf := redis.DefaultConfig()
	if rc.KeyPrefix != "" {
		conf.KeyPrefix = rc.KeyPrefix
	}
	return redis.New(client, conf)
}

func (a *app) openHistory(ctx context.Context) error {
	if a.cfg.History.Path == "" {
		a.history = historymem.New()
		return nil
	}
	h, err := historysqlite.Open(ctx, a.cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open flight log: %w", err)
	}
	a.closers = append(a.closers, func() { _ = h.Close() })
	a.history = h
	a.stats = h
	return nil
}

func scorerConfig(pc config.PriorityConfig) (*priority.Config, error) {
	cfg := priority.DefaultConfig()
	cfg.Baseline = pc.Baseline
	cfg.MilitaryBonus = pc.MilitaryBonus
	cfg.PrivateBonus = pc.PrivateBonus
	cfg.CargoBonus = pc.CargoBonus
	cfg.InternationalBonus = pc.InternationalBonus
	cfg.VeryCommonPenalty = pc.VeryCommonPenalty
	cfg.CommonPenalty = pc.CommonPenalty
	cfg.RepeatPenalty = pc.RepeatPenalty
	cfg.RepeatWindow = pc.RepeatWindow
	cfg.VeryCommonMinCount = pc.VeryCommonMinCount
	cfg.RepeatMinCount = pc.RepeatMinCount
	if len(pc.Bands) > 0 {
		cfg.Bands = pc.Bands
	}
	cfg.FloorThreshold = pc.FloorThreshold
	if len(pc.CommonRoutes) > 0 {
		routes := make([]priority.Route, 0, len(pc.CommonRoutes))
		for _, s := range pc.CommonRoutes {
			r, ok := priority.ParseRoute(s)
			if !ok || !r.Complete() {
				return nil, fmt.Errorf("priority.common_routes: invalid route %q", s)
			}
			routes = append(routes, r)
		}
		cfg.CommonRoutes = routes
	}
	return &cfg, nil
}

func (a *app) newResolver() (*lookup.Resolver, error) {
	lc := a.cfg.Lookup

	rc := lookup.ResolverConfig{
		Tracker:  a.tracker,
		Scorer:   a.scorer,
		Cache:    lookup.NewRouteCache(lc.CacheSize, lc.CacheTTL, time.Now),
		Recorder: a.history,
		Logger:   a.logger.Component("resolver"),
	}

	metered, err := lookup.NewAviationStack(lookup.AviationStackConfig{
		APIKey:            lc.AviationStack.AccessKey,
		Endpoint:          lc.AviationStack.Endpoint,
		Timeout:           lc.AviationStack.Timeout,
		RequestsPerSecond: lc.AviationStack.RequestsPerSecond,
		Logger:            a.logger.Component("aviationstack"),
	})
	switch {
	case err == nil:
		rc.Metered = metered
	case errors.Is(err, lookup.ErrNoAPIKey):
		a.logger.Info("no aviationstack key configured, metered lookups disabled")
	default:
		return nil, err
	}

	if lc.ADSBExchange.Enabled {
		rc.Fallbacks = append(rc.Fallbacks, lookup.NewADSBExchange(lookup.ADSBExchangeConfig{
			Endpoint: lc.ADSBExchange.Endpoint,
			Timeout:  lc.ADSBExchange.Timeout,
		}))
	}

	return lookup.NewResolver(rc)
}
