// Package scraper is the committee website connector. It reads each Senate
// committee's public hearing list with goquery and enriches every hearing
// from its detail page.
package scraper

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hearing-sync/internal/fetcher"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
)

const (
	defaultTimeout           = 45 * time.Second
	defaultDetailConcurrency = 4
)

// Option configures the scraper.
type Option func(*Scraper)

// WithFetcher overrides the HTTP fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(s *Scraper) {
		s.fetch = f
	}
}

// WithSites adds or replaces entries in the committee website registry.
func WithSites(sites map[string]string) Option {
	return func(s *Scraper) {
		for code, u := range sites {
			code = normalizeCode(code)
			site := s.sites[code]
			site.Code = code
			site.URL = u
			s.sites[code] = site
		}
	}
}

// WithRetry sets the retry policy for page fetches.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Scraper) {
		s.retry = cfg
	}
}

// WithTimeout bounds one ScrapeCommitteeHearings call.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDetailConcurrency caps concurrent detail page fetches per committee.
func WithDetailConcurrency(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.detailConcurrency = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		s.now = now
	}
}

// Scraper collects hearings from committee websites.
type Scraper struct {
	fetch             fetcher.Fetcher
	sites             map[string]Site
	retry             resilience.RetryConfig
	timeout           time.Duration
	detailConcurrency int
	now               func() time.Time
	log               *zap.Logger
}

// New creates a Scraper with the default site registry.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		sites:             DefaultSites(),
		retry:             resilience.DefaultRetryConfig(),
		timeout:           defaultTimeout,
		detailConcurrency: defaultDetailConcurrency,
		now:               time.Now,
		log:               zap.L().With(zap.String("component", "scraper")),
	}
	for _, o := range opts {
		o(s)
	}
	if s.fetch == nil {
		// Retries happen in fetchDocument.
		s.fetch = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:      s.timeout,
			MaxRetries:   1,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
	}
	return s
}

// Site returns the registry entry for a committee code.
func (s *Scraper) Site(committeeCode string) (Site, bool) {
	site, ok := s.sites[normalizeCode(committeeCode)]
	return site, ok && site.URL != ""
}

// ScrapeCommitteeHearings returns hearings listed on the committee's website
// dated no earlier than daysBack days ago, upcoming hearings included.
//
// Committees without a registered site yield an empty list. A transient
// failure on the list page also yields an empty list with a logged warning.
// Timeouts and other failures are returned.
func (s *Scraper) ScrapeCommitteeHearings(ctx context.Context, committeeCode string, daysBack int) ([]model.HearingRecord, error) {
	code := normalizeCode(committeeCode)
	log := s.log.With(zap.String("committee", code))

	site, ok := s.Site(code)
	if !ok {
		log.Warn("no website registered for committee")
		return []model.HearingRecord{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	base, err := url.Parse(site.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "scraper: parse site url for %s", code)
	}

	doc, err := s.fetchDocument(ctx, code, site.URL)
	if err != nil {
		if !resilience.IsDeadline(err) && resilience.IsTransient(err) {
			log.Warn("committee website unavailable, returning no hearings", zap.Error(err))
			return []model.HearingRecord{}, nil
		}
		return nil, eris.Wrapf(err, "scraper: fetch hearing list for %s", code)
	}

	sel, ok := rows(doc)
	if !ok {
		log.Warn("no hearing rows matched", zap.String("url", site.URL))
		return []model.HearingRecord{}, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -daysBack).Format(model.DateLayout)
	var listings []listing
	sel.Each(func(_ int, row *goquery.Selection) {
		l, ok := parseRow(row, base)
		if !ok || l.date < cutoff {
			return
		}
		listings = append(listings, l)
	})

	records := make([]model.HearingRecord, len(listings))
	var mu sync.Mutex
	skipped := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.detailConcurrency)
	for i, l := range listings {
		records[i] = toRecord(code, l)
		if l.url == "" {
			continue
		}
		pageURL, err := url.Parse(l.url)
		if err != nil {
			log.Warn("skipping hearing page with invalid url", zap.String("url", l.url), zap.Error(err))
			skipped++
			continue
		}
		g.Go(func() error {
			ddoc, err := s.fetchDocument(gctx, code, l.url)
			if err != nil {
				if resilience.IsDeadline(err) {
					return eris.Wrapf(err, "scraper: hearing page %s", l.url)
				}
				log.Warn("skipping hearing page", zap.String("url", l.url), zap.Error(err))
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			enrich(&records[i], parseDetail(ddoc, pageURL))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("scraped committee hearings",
		zap.Int("rows", sel.Length()),
		zap.Int("in_window", len(records)),
		zap.Int("detail_skipped", skipped),
	)
	return records, nil
}

func (s *Scraper) fetchDocument(ctx context.Context, code, pageURL string) (*goquery.Document, error) {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger(string(model.SourceWebsite), code)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*goquery.Document, error) {
		body, err := s.fetch.Download(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		defer body.Close() //nolint:errcheck

		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return nil, eris.Wrap(err, "scraper: parse html")
		}
		return doc, nil
	})
}

func toRecord(code string, l listing) model.HearingRecord {
	return model.HearingRecord{
		CommitteeSourceID: sourceID(l.url),
		CommitteeCode:     code,
		Title:             l.title,
		Date:              l.date,
		Time:              l.time,
		HearingType:       hearingType(l.title),
		Location:          splitLocation(l.location),
		URL:               l.url,
		SourceWebsite:     true,
		SyncConfidence:    model.ConfidenceWebsite,
	}
}

func enrich(rec *model.HearingRecord, d detail) {
	if len(d.streams) > 0 {
		rec.Streams = d.streams
	}
	rec.Witnesses = d.witnesses
	rec.Documents = d.documents
	if rec.Time == "" {
		rec.Time = d.time
	}
	if rec.Location.IsZero() {
		rec.Location = splitLocation(d.location)
	}
}
