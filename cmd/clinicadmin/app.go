package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	cache "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/engine"
	"github.com/krisalay/clinic-swr-cache/expiration"
	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
	"github.com/krisalay/clinic-swr-cache/internal/adminstore"
	"github.com/krisalay/clinic-swr-cache/internal/config"
	"github.com/krisalay/clinic-swr-cache/internal/metrics"
	"github.com/krisalay/clinic-swr-cache/internal/realtime"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/writepolicy"
)

// app is the wired object graph shared by the subcommands:
// config → metrics → engine → cache → client → store.
type app struct {
	registry *prometheus.Registry
	metrics  *metrics.Prometheus
	cache    *cache.SWRCache
	client   *adminapi.Client
	writes   writepolicy.WritePolicy
	store    *adminstore.Store
	hub      *realtime.EventHub
	detach   func()
	logger   *zap.Logger
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	eng := engine.NewCacheEngine(expiration.AfterWrite{}, refresh.NewNotifier(), m, logger.Named("cache"))
	eng.SetDefault(cfg.Cache.DefaultPolicy())
	for _, p := range cfg.Cache.Policies() {
		eng.SetPolicy(p)
	}

	c := cache.NewSWRCache(cfg.Cache.Shards, cfg.Cache.Capacity, cfg.Cache.EvictionPolicy(), eng)
	if err := metrics.WatchSize(reg, c.Len); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	client, err := adminapi.New(adminapi.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,
	}, c, logger.Named("adminapi"))
	if err != nil {
		return nil, err
	}

	var writes writepolicy.WritePolicy
	deps := writepolicy.DefaultDependencies()
	if cfg.Invalidation.Mode == config.InvalidateDeferred {
		writes = writepolicy.NewInvalidateBack(c, deps, cfg.Invalidation.Delay, cfg.Invalidation.Buffer, logger.Named("writepolicy"))
	} else {
		writes = writepolicy.NewInvalidateThrough(c, deps, logger.Named("writepolicy"))
	}

	hub := realtime.NewEventHub(logger.Named("realtime"))

	return &app{
		registry: reg,
		metrics:  m,
		cache:    c,
		client:   client,
		writes:   writes,
		store:    adminstore.New(c, client, writes, logger.Named("store")),
		hub:      hub,
		detach:   hub.Attach(c),
		logger:   logger,
	}, nil
}

func (a *app) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// close flushes pending invalidations and waits for background loads.
func (a *app) close() {
	a.detach()
	a.writes.Close()
	a.cache.Close()
}
