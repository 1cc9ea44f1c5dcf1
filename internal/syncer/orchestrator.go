// Package syncer coordinates per-committee synchronization across the
// Congress.gov API and committee websites, deduplicates the unified store
// and records run metrics.
package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
	"github.com/sells-group/hearing-sync/internal/store"
)

// MeetingSource is the API connector contract.
type MeetingSource interface {
	GetCommitteeMeetings(ctx context.Context, committeeCode string, daysBack, daysForward int) ([]model.HearingRecord, error)
}

// HearingSource is the website connector contract.
type HearingSource interface {
	ScrapeCommitteeHearings(ctx context.Context, committeeCode string, daysBack int) ([]model.HearingRecord, error)
}

// Config tunes sync windows, update thresholds and scheduling.
type Config struct {
	APIDaysBack     int
	APIDaysForward  int
	WebsiteDaysBack int
	DedupWindowDays int

	// A fetched record updates its best stored match when the similarity
	// exceeds the source's threshold, and is inserted otherwise.
	APIUpdateThreshold     float64
	WebsiteUpdateThreshold float64

	Concurrency int

	DailyHour    int
	WebsiteHours []int
	Location     *time.Location

	// DefaultFrequencyHours applies to committees without a sync frequency.
	DefaultFrequencyHours int
	RecentMetricsLimit    int
}

// DefaultConfig returns the standard sync windows and schedule.
func DefaultConfig() Config {
	return Config{
		APIDaysBack:            30,
		APIDaysForward:         30,
		WebsiteDaysBack:        14,
		DedupWindowDays:        60,
		APIUpdateThreshold:     0.8,
		WebsiteUpdateThreshold: 0.7,
		Concurrency:            3,
		DailyHour:              6,
		WebsiteHours:           []int{8, 14, 20},
		Location:               time.UTC,
		DefaultFrequencyHours:  24,
		RecentMetricsLimit:     20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.APIDaysBack <= 0 {
		c.APIDaysBack = d.APIDaysBack
	}
	if c.APIDaysForward < 0 {
		c.APIDaysForward = d.APIDaysForward
	}
	if c.WebsiteDaysBack <= 0 {
		c.WebsiteDaysBack = d.WebsiteDaysBack
	}
	if c.DedupWindowDays <= 0 {
		c.DedupWindowDays = d.DedupWindowDays
	}
	if c.APIUpdateThreshold <= 0 {
		c.APIUpdateThreshold = d.APIUpdateThreshold
	}
	if c.WebsiteUpdateThreshold <= 0 {
		c.WebsiteUpdateThreshold = d.WebsiteUpdateThreshold
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.DailyHour < 0 || c.DailyHour > 23 {
		c.DailyHour = d.DailyHour
	}
	if c.WebsiteHours == nil {
		c.WebsiteHours = d.WebsiteHours
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	if c.DefaultFrequencyHours <= 0 {
		c.DefaultFrequencyHours = d.DefaultFrequencyHours
	}
	if c.RecentMetricsLimit <= 0 {
		c.RecentMetricsLimit = d.RecentMetricsLimit
	}
	return c
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithAPI sets the Congress.gov connector. Without one, API syncs are skipped.
func WithAPI(src MeetingSource) Option {
	return func(o *Orchestrator) { o.api = src }
}

// WithWebsite sets the committee website connector.
func WithWebsite(src HearingSource) Option {
	return func(o *Orchestrator) { o.website = src }
}

// WithEngine sets the deduplication engine.
func WithEngine(e *dedup.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithBreakers sets the per-source circuit breakers.
func WithBreakers(b *resilience.ServiceBreakers) Option {
	return func(o *Orchestrator) { o.breakers = b }
}

// WithConfig sets windows, thresholds and schedule.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg.withDefaults() }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs syncs for committees. Connector calls for different
// committees run concurrently; store access is serialized.
type Orchestrator struct {
	store    store.Store
	api      MeetingSource
	website  HearingSource
	engine   *dedup.Engine
	breakers *resilience.ServiceBreakers
	cfg      Config
	now      func() time.Time
	log      *zap.Logger

	// storeMu serializes store access across committee tasks.
	storeMu sync.Mutex
}

// New creates an orchestrator over st.
func New(st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store: st,
		cfg:   DefaultConfig(),
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "syncer")),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = dedup.NewEngine()
	}
	if o.breakers == nil {
		o.breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	for _, src := range model.Sources() {
		o.breakers.Get(string(src))
	}
	return o
}

// Breaker returns the circuit breaker guarding source.
func (o *Orchestrator) Breaker(source model.Source) *resilience.CircuitBreaker {
	return o.breakers.Get(string(source))
}

func (o *Orchestrator) threshold(source model.Source) float64 {
	if source == model.SourceCongressAPI {
		return o.cfg.APIUpdateThreshold
	}
	return o.cfg.WebsiteUpdateThreshold
}
