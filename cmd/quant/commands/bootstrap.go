package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-signal/internal/api/handlers"
	"github.com/wonny/aegis-signal/internal/brain"
	"github.com/wonny/aegis-signal/internal/calibration"
	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
	"github.com/wonny/aegis-signal/internal/external/llm"
	"github.com/wonny/aegis-signal/internal/external/newsfeed"
	"github.com/wonny/aegis-signal/internal/metrics"
	"github.com/wonny/aegis-signal/internal/publish"
	"github.com/wonny/aegis-signal/internal/quota"
	"github.com/wonny/aegis-signal/internal/respcache"
	"github.com/wonny/aegis-signal/internal/store"
	"github.com/wonny/aegis-signal/internal/taskconfig"
	"github.com/wonny/aegis-signal/internal/tasks"
	"github.com/wonny/aegis-signal/pkg/config"
	"github.com/wonny/aegis-signal/pkg/database"
	"github.com/wonny/aegis-signal/pkg/httputil"
	"github.com/wonny/aegis-signal/pkg/logger"
	"github.com/wonny/aegis-signal/pkg/redis"
)

// app is the wired process: one upstream client, one cache, one quota gate and
// one orchestrator shared by every run
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Recorder
	cache    *respcache.Cache
	upstream *alphavantage.Client
	registry *tasks.Registry
	engine   *brain.Orchestrator
	store    *store.Repository // nil without DATABASE_URL
	hub      *handlers.ProgressHub

	closers []func()
}

// loadConfig applies the global flags on top of the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// appOptions selects where run progress goes
type appOptions struct {
	Notifier    contracts.ProgressNotifier // optional
	ProgressHub bool                       // websocket hub; overrides Notifier
}

// newApp wires every component
// ⭐ SSOT: 컴포넌트 조립은 이 함수에서만
func newApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log}

	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	// 1. Redis (optional: L2 cache + shared LLM rate limit)
	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without L2 cache")
		rc = redis.NewFromRedis(nil)
	}
	a.closers = append(a.closers, func() { rc.Close() })

	// 2. Quota gate + response cache
	gateOpts := []quota.Option{quota.WithLogger(log)}
	cacheOpts := []respcache.Option{respcache.WithLogger(log)}
	if a.metrics != nil {
		gateOpts = append(gateOpts, quota.WithObserver(a.metrics))
		cacheOpts = append(cacheOpts, respcache.WithObserver(a.metrics))
	}
	if rc.Enabled() && cfg.Cache.L2Enabled {
		cacheOpts = append(cacheOpts, respcache.WithL2(redis.NewCache(rc, "aegis:resp")))
	}
	gate := quota.NewGate(quota.DefaultConfig(cfg.Upstream.PerMinute, cfg.Upstream.PerDay), gateOpts...)
	a.cache = respcache.New(ttlPolicy(cfg.Cache), cacheOpts...)

	// 3. External clients
	// 업스트림 재시도는 쿼터를 우회하므로 비활성화
	upstreamHTTP := httputil.New(log, cfg.Upstream.Timeout).DisableRetry()
	a.upstream = alphavantage.NewClient(cfg.Upstream, upstreamHTTP, a.cache, gate, log)

	scraper := newsfeed.NewScraper(httputil.New(log, 15*time.Second), cfg.News.FallbackURL, cfg.News.MaxArticles, log)

	llmHTTP := httputil.New(log, cfg.LLM.Timeout).
		WithHeader("Authorization", "Bearer "+cfg.LLM.APIKey)
	if rc.Enabled() {
		llmHTTP = llmHTTP.WithRateLimiter(redis.NewRateLimiter(rc, "aegis:ratelimit"), redis.LLMRateLimit(cfg.LLM.RequestsPerMin))
	}
	synth := llm.NewSynthesizer(cfg.LLM, llmHTTP, log)

	// 4. Task registry + overrides
	a.registry, err = buildRegistry(cfg, tasks.Deps{
		Upstream:  a.upstream,
		Headlines: scraper,
		NewsLimit: cfg.News.MaxArticles,
		Logger:    log,
	}, log)
	if err != nil {
		return nil, err
	}

	components := brain.Components{
		Registry:    a.registry,
		Synthesizer: synth,
		Calibration: calibration.Static{},
		Logger:      log,
	}
	if opts.ProgressHub {
		a.hub = handlers.NewProgressHub(log)
		components.Notifier = a.hub
	} else if opts.Notifier != nil {
		components.Notifier = opts.Notifier
	}
	if a.metrics != nil {
		components.Observer = a.metrics
	}

	// 5. Persistence + calibration (optional)
	if cfg.Database.Enabled() {
		db, err := database.New(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		repo := store.NewRepository(db.Pool)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
		components.Store = repo
		a.store = repo
		components.Calibration = calibration.NewRepository(db.Pool)
		log.Info("Connected to database")
	} else {
		log.Warn("DATABASE_URL not set, runs will not be persisted")
	}

	// 6. Contract fan-out (optional)
	if cfg.Kafka.Enabled() {
		pub, err := publish.NewPublisher(cfg.Kafka, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { pub.Close() })
		components.Publisher = pub
	}

	// 7. Orchestrator
	a.engine, err = brain.NewOrchestrator(components, brain.Config{
		BatchTimeout:     cfg.Engine.BatchTimeout,
		DependentTimeout: cfg.Engine.DependentTimeout,
		SynthesisTimeout: cfg.Engine.SynthesisTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildRegistry declares the built-in tasks and applies file and env overrides
func buildRegistry(cfg *config.Config, deps tasks.Deps, log *logger.Logger) (*tasks.Registry, error) {
	reg, err := tasks.NewDefaultRegistry(deps)
	if err != nil {
		return nil, fmt.Errorf("build task registry: %w", err)
	}

	if path := cfg.Tasks.OverridesPath; path != "" {
		overrides, _, err := taskconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load task config: %w", err)
		}
		if err := taskconfig.Apply(reg, overrides); err != nil {
			return nil, fmt.Errorf("apply task config: %w", err)
		}
		fields := map[string]interface{}{"path": path}
		if hash, err := taskconfig.Hash(overrides); err != nil {
			log.WithError(err).Warn("Failed to hash task overrides")
		} else {
			fields["hash"] = hash
		}
		log.WithFields(fields).Info("Task overrides applied")
	}

	if err := taskconfig.Disable(reg, cfg.Tasks.Disabled); err != nil {
		return nil, fmt.Errorf("TASKS_DISABLED: %w", err)
	}
	return reg, nil
}

func ttlPolicy(c config.CacheConfig) respcache.TTLPolicy {
	p := respcache.DefaultTTLPolicy()
	p.ByCategory[respcache.CategoryQuote] = c.QuoteTTL
	p.ByCategory[respcache.CategoryTimeSeries] = c.TimeSeriesTTL
	p.ByCategory[respcache.CategoryNews] = c.NewsTTL
	p.ByCategory[respcache.CategoryFundamentals] = c.FundamentalsTTL
	p.ByCategory[respcache.CategoryMacro] = c.MacroTTL
	if c.DefaultTTL > 0 {
		p.Default = c.DefaultTTL
	}
	return p
}
