package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/config"
	"github.com/sells-group/hearing-sync/internal/congress"
	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
	"github.com/sells-group/hearing-sync/internal/scraper"
	"github.com/sells-group/hearing-sync/internal/store"
	"github.com/sells-group/hearing-sync/internal/syncer"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "hearings.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// syncEnv holds the components shared by the sync, dedup, status, daemon
// and serve commands.
type syncEnv struct {
	Store    store.Store
	Breakers *resilience.ServiceBreakers
	Orch     *syncer.Orchestrator
}

// Close releases the store.
func (e *syncEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initSync opens and migrates the store and builds the orchestrator from
// configuration. A missing Congress.gov key leaves the API source
// unconfigured rather than failing.
func initSync(ctx context.Context, mode string) (*syncEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &syncEnv{Store: st}
	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}

	configs, err := st.ListSyncConfigs(ctx, false)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load sync configs")
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Breakers = resilience.NewServiceBreakers(
		resilience.FromCircuitConfig(cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryMinutes),
	)

	opts := []syncer.Option{
		syncer.WithWebsite(newScraper(cfg.Scraper)),
		syncer.WithEngine(newEngine(cfg.Dedup, configs)),
		syncer.WithBreakers(env.Breakers),
		syncer.WithConfig(syncerConfig(cfg, loc)),
	}
	api, err := newCongressClient(cfg.Congress)
	switch {
	case errors.Is(err, congress.ErrMissingAPIKey):
		zap.L().Warn("congress.key not set; API source disabled")
	case err != nil:
		env.Close()
		return nil, err
	default:
		opts = append(opts, syncer.WithAPI(api))
	}

	env.Orch = syncer.New(st, opts...)
	return env, nil
}

func newCongressClient(c config.CongressConfig) (*congress.Client, error) {
	var opts []congress.Option
	if c.BaseURL != "" {
		opts = append(opts, congress.WithBaseURL(c.BaseURL))
	}
	if c.TimeoutSecs > 0 {
		opts = append(opts, congress.WithTimeout(c.Timeout()))
	}
	if c.MaxPages > 0 {
		opts = append(opts, congress.WithMaxPages(c.MaxPages))
	}
	if len(c.SystemCodes) > 0 {
		opts = append(opts, congress.WithSystemCodes(c.SystemCodes))
	}
	return congress.NewClient(c.Key, opts...)
}

func newScraper(c config.ScraperConfig) *scraper.Scraper {
	r := c.Retry
	opts := []scraper.Option{
		scraper.WithRetry(resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)),
	}
	if c.TimeoutSecs > 0 {
		opts = append(opts, scraper.WithTimeout(c.Timeout()))
	}
	if c.DetailConcurrency > 0 {
		opts = append(opts, scraper.WithDetailConcurrency(c.DetailConcurrency))
	}
	if len(c.Sites) > 0 {
		opts = append(opts, scraper.WithSites(c.Sites))
	}
	return scraper.New(opts...)
}

// newEngine builds the dedup engine. Thresholds stored on a committee's sync
// config take precedence over the per-committee entries in the config file.
func newEngine(c config.DedupConfig, configs []model.SyncConfig) *dedup.Engine {
	overrides := make(map[string]dedup.Thresholds, len(c.Committees)+len(configs))
	for code, t := range c.Committees {
		overrides[strings.ToUpper(code)] = t
	}
	for _, sc := range configs {
		if sc.AutoMergeThreshold <= 0 && sc.ReviewThreshold <= 0 {
			continue
		}
		code := strings.ToUpper(sc.CommitteeCode)
		t := overrides[code]
		if sc.AutoMergeThreshold > 0 {
			t.AutoMerge = sc.AutoMergeThreshold
		}
		if sc.ReviewThreshold > 0 {
			t.Review = sc.ReviewThreshold
		}
		overrides[code] = t
	}
	return dedup.NewEngine(
		dedup.WithThresholds(c.Thresholds()),
		dedup.WithCommitteeThresholds(overrides),
	)
}

func syncerConfig(c *config.Config, loc *time.Location) syncer.Config {
	return syncer.Config{
		APIDaysBack:            c.Sync.APIDaysBack,
		APIDaysForward:         c.Sync.APIDaysForward,
		WebsiteDaysBack:        c.Sync.WebsiteDaysBack,
		DedupWindowDays:        c.Sync.DedupWindowDays,
		APIUpdateThreshold:     c.Sync.APIUpdateThreshold,
		WebsiteUpdateThreshold: c.Sync.WebsiteUpdateThreshold,
		Concurrency:            c.Sync.Concurrency,
		DailyHour:              c.Schedule.DailyHour,
		WebsiteHours:           c.Schedule.WebsiteHours,
		Location:               loc,
		DefaultFrequencyHours:  c.Sync.DefaultFrequencyHours,
	}
}
