package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/alert"
	"github.com/ppiankov/vetter/internal/audit"
	"github.com/ppiankov/vetter/internal/cache"
	"github.com/ppiankov/vetter/internal/fetcher"
	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/logging"
	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/refdata"
	"github.com/ppiankov/vetter/internal/remote"
	"github.com/ppiankov/vetter/internal/vetting"
)

// A running dashboard holds the cache lock; other commands give up quickly
// and run uncached.
const cacheLockTimeout = time.Second

// runtimeConfig selects the optional collaborators of a command.
type runtimeConfig struct {
	UseCache     bool
	AuditLogPath string
	HistoryPath  string
	Endpoint     string
}

// runtime is the wired dependency graph shared by verify, serve and mcp.
type runtime struct {
	logger   zerolog.Logger
	refPath  string
	holder   *refdata.Holder
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	history  *history.Store
	svc      *vetting.Service
	alerts   *alert.Dispatcher
	closers  []func() error
}

// dataDir returns ~/.vetter.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".vetter"), nil
}

// dataPath resolves a flag value: "off" disables, "" means ~/.vetter/name.
func dataPath(flag, name string) (string, error) {
	switch flag {
	case "off", "none":
		return "", nil
	case "":
		dir, err := dataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, name), nil
	}
	return flag, nil
}

func newLogger() (zerolog.Logger, error) {
	return logging.New(os.Stderr, logLevel, logFormat)
}

func newRuntime(cfg runtimeConfig) (*runtime, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	refPath := referencePath
	if refPath == "" {
		if refPath, err = refdata.DefaultPath(); err != nil {
			return nil, err
		}
	}
	rd, hash, err := refdata.LoadWithHash(refPath)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		logger:   logger,
		refPath:  refPath,
		holder:   refdata.NewHolder(rd, hash),
		registry: prometheus.NewRegistry(),
	}
	rt.metrics = metrics.New(rt.registry)

	endpoints := fetcher.DefaultEndpoints()
	if cfg.Endpoint != "" {
		endpoints = fetcher.SingleHost(cfg.Endpoint)
	}
	client := fetcher.NewClient(fetcher.Options{
		Endpoints: endpoints,
		RetryMax:  3,
		UserAgent: "vetter/" + version,
		Limits:    rt.limits,
		Logger:    logger,
		Metrics:   rt.metrics,
	})

	var f fetcher.Fetcher = client
	if cfg.UseCache {
		if c, err := rt.openCache(); err != nil {
			logger.Warn().Err(err).Msg("profile cache disabled")
		} else {
			f = fetcher.NewCachedFetcher(client, c, logger, rt.metrics)
		}
	}

	svcCfg := vetting.Config{
		Holder:  rt.holder,
		Fetcher: f,
		Remote: remote.NewLoader(remote.Options{
			AllowedHosts: []string{remote.DefaultAllowedHost},
			RetryMax:     3,
			Logger:       logger,
		}),
		Avatars: client,
		Metrics: rt.metrics,
		Logger:  logger,
	}

	if cfg.AuditLogPath != "" {
		al, err := audit.Open(cfg.AuditLogPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		rt.closers = append(rt.closers, al.Close)
		svcCfg.Audit = al
	}
	if cfg.HistoryPath != "" {
		hs, err := history.Open(cfg.HistoryPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		rt.closers = append(rt.closers, hs.Close)
		rt.history = hs
		svcCfg.History = hs
	}

	if rt.alerts = newDispatcher(logger); rt.alerts != nil {
		svcCfg.Alerts = rt.alerts
	}

	if rt.svc, err = vetting.New(svcCfg); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// newDispatcher builds the webhook dispatcher from the --alert-* flags.
// Returns nil when no webhook is configured.
func newDispatcher(logger zerolog.Logger) *alert.Dispatcher {
	configs := make([]alert.Config, 0, len(alertWebhooks))
	for _, u := range alertWebhooks {
		configs = append(configs, alert.Config{URL: u, Format: alertFormat, Statuses: alertOn})
	}
	return alert.NewDispatcher(configs, nil, logger)
}

// limits derives fetch limits from the current thresholds, so a reload
// applies to the next fetch.
func (rt *runtime) limits() fetcher.Limits {
	l := fetcher.DefaultLimits()
	th := rt.holder.Load().Thresholds()
	l.MinBadges = th.MinBadges
	l.OldestBadges = th.OldestBadgesToCheck
	return l
}

func (rt *runtime) openCache() (*cache.Cache, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	opts := cache.DefaultOptions()
	opts.Path = filepath.Join(dir, "cache.db")
	opts.Timeout = cacheLockTimeout
	c, err := cache.Open(opts)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, c.Close)
	return c, nil
}

// Close waits for pending alerts, then releases every opened store in
// reverse order.
func (rt *runtime) Close() {
	rt.alerts.Wait()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn().Err(err).Msg("close")
		}
	}
	rt.closers = nil
}
