// Package congress is the Congress.gov API connector. It lists Senate
// committee meetings over a date window and maps their details onto
// unified hearing records.
package congress

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // America/New_York without a system zoneinfo

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/fetcher"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
)

const (
	defaultBaseURL   = "https://api.congress.gov/v3"
	defaultTimeout   = 30 * time.Second
	defaultPageLimit = 250
	defaultMaxPages  = 5
	apiTimeLayout    = "2006-01-02T15:04:05Z"
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = eris.New("congress: API key is required")

// defaultSystemCodes maps committee codes whose Congress.gov system code is
// not simply the lower-cased code followed by "00".
var defaultSystemCodes = map[string]string{
	"SCOM": "sscm00",
	"SSCI": "slin00",
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithFetcher overrides the HTTP fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Client) {
		c.fetch = f
	}
}

// WithTimeout bounds one GetCommitteeMeetings call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSystemCodes adds or replaces committee code to system code mappings.
func WithSystemCodes(codes map[string]string) Option {
	return func(c *Client) {
		for k, v := range codes {
			c.systemCodes[strings.ToUpper(k)] = strings.ToLower(v)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithMaxPages caps how many list pages are followed per call.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// Client fetches Senate committee meetings from the Congress.gov API.
type Client struct {
	apiKey      string
	baseURL     string
	fetch       fetcher.Fetcher
	timeout     time.Duration
	systemCodes map[string]string
	now         func() time.Time
	maxPages    int
	eastern     *time.Location
	log         *zap.Logger

	mu      sync.Mutex
	details map[string]cachedDetail
}

type cachedDetail struct {
	updateDate string
	meeting    meetingDetail
}

// NewClient creates a Congress.gov client. A missing key is a configuration
// error and is reported immediately.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		eastern = time.FixedZone("EST", -5*60*60)
	}

	c := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		timeout:     defaultTimeout,
		systemCodes: make(map[string]string, len(defaultSystemCodes)),
		now:         time.Now,
		maxPages:    defaultMaxPages,
		eastern:     eastern,
		log:         zap.L().With(zap.String("component", "congress")),
		details:     make(map[string]cachedDetail),
	}
	for k, v := range defaultSystemCodes {
		c.systemCodes[k] = v
	}
	for _, o := range opts {
		o(c)
	}
	if c.fetch == nil {
		c.fetch = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:    c.timeout,
			MaxRetries: 3,
			Headers:    map[string]string{"Accept": "application/json"},
		})
	}
	return c, nil
}

// SystemCode returns the Congress.gov system code for a committee code.
func (c *Client) SystemCode(committeeCode string) string {
	code := strings.ToUpper(strings.TrimSpace(committeeCode))
	if sc, ok := c.systemCodes[code]; ok {
		return sc
	}
	return strings.ToLower(code) + "00"
}

// CongressNumber returns the Congress in session at t. A new Congress
// convenes on January 3 of odd-numbered years.
func CongressNumber(t time.Time) int {
	year := t.Year()
	if t.Month() == time.January && t.Day() < 3 {
		year--
	}
	return (year-1789)/2 + 1
}

// GetCommitteeMeetings returns the committee's meetings dated between
// daysBack days ago and daysForward days ahead.
//
// A transient fetch failure (rate limiting, 5xx, network trouble) yields an
// empty list and a logged warning. Timeouts and other failures are returned.
func (c *Client) GetCommitteeMeetings(ctx context.Context, committeeCode string, daysBack, daysForward int) ([]model.HearingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	code := strings.ToUpper(strings.TrimSpace(committeeCode))
	log := c.log.With(zap.String("committee", code))

	now := c.now().UTC()
	from := now.AddDate(0, 0, -daysBack)
	to := now.AddDate(0, 0, daysForward)
	congress := CongressNumber(now.In(c.eastern))

	items, err := c.listMeetings(ctx, congress, from, to)
	if err != nil {
		if !resilience.IsDeadline(err) && resilience.IsTransient(err) {
			log.Warn("congress api unavailable, returning no meetings", zap.Error(err))
			return []model.HearingRecord{}, nil
		}
		return nil, eris.Wrapf(err, "congress: list meetings for %s", code)
	}

	systemCode := c.SystemCode(code)
	fromDate := from.In(c.eastern).Format(model.DateLayout)
	toDate := to.In(c.eastern).Format(model.DateLayout)

	records := make([]model.HearingRecord, 0)
	for _, item := range items {
		detail, err := c.meetingDetail(ctx, congress, item)
		if err != nil {
			if resilience.IsDeadline(err) {
				return nil, eris.Wrapf(err, "congress: meeting %s", item.EventID)
			}
			log.Warn("skipping meeting detail", zap.String("event_id", item.EventID), zap.Error(err))
			continue
		}
		if !detail.heldBy(systemCode) {
			continue
		}
		rec, ok := c.toRecord(code, detail)
		if !ok {
			continue
		}
		if rec.Date < fromDate || rec.Date > toDate {
			continue
		}
		records = append(records, rec)
	}

	log.Info("fetched committee meetings",
		zap.Int("listed", len(items)),
		zap.Int("matched", len(records)),
		zap.Int("congress", congress),
	)
	return records, nil
}

func (c *Client) listMeetings(ctx context.Context, congress int, from, to time.Time) ([]meetingItem, error) {
	q := url.Values{}
	q.Set("fromDateTime", from.Format(apiTimeLayout))
	q.Set("toDateTime", to.Format(apiTimeLayout))
	q.Set("limit", strconv.Itoa(defaultPageLimit))
	next := c.endpoint(congress, "", q)

	var items []meetingItem
	for page := 0; next != "" && page < c.maxPages; page++ {
		resp, err := fetcher.FetchJSON[listResponse](ctx, c.fetch, next)
		if err != nil {
			return nil, err
		}
		items = append(items, resp.CommitteeMeetings...)
		next = ""
		if resp.Pagination.Next != "" {
			next = c.withKey(resp.Pagination.Next)
		}
	}
	return items, nil
}

func (c *Client) meetingDetail(ctx context.Context, congress int, item meetingItem) (meetingDetail, error) {
	c.mu.Lock()
	cached, ok := c.details[item.EventID]
	c.mu.Unlock()
	if ok && cached.updateDate == item.UpdateDate {
		return cached.meeting, nil
	}

	resp, err := fetcher.FetchJSON[detailResponse](ctx, c.fetch, c.endpoint(congress, item.EventID, url.Values{}))
	if err != nil {
		return meetingDetail{}, err
	}

	c.mu.Lock()
	c.details[item.EventID] = cachedDetail{updateDate: item.UpdateDate, meeting: resp.CommitteeMeeting}
	c.mu.Unlock()
	return resp.CommitteeMeeting, nil
}

func (c *Client) endpoint(congress int, eventID string, q url.Values) string {
	path := c.baseURL + "/committee-meeting/" + strconv.Itoa(congress) + "/senate"
	if eventID != "" {
		path += "/" + url.PathEscape(eventID)
	}
	q.Set("format", "json")
	q.Set("api_key", c.apiKey)
	return path + "?" + q.Encode()
}

// withKey adds the API key to a pagination URL returned by the API.
func (c *Client) withKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	if q.Get("format") == "" {
		q.Set("format", "json")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) toRecord(code string, d meetingDetail) (model.HearingRecord, bool) {
	title := strings.Join(strings.Fields(d.Title), " ")
	if title == "" || d.EventID == "" {
		return model.HearingRecord{}, false
	}
	date, clock, ok := c.splitDate(d.Date)
	if !ok {
		return model.HearingRecord{}, false
	}

	rec := model.HearingRecord{
		CongressAPIID:  d.EventID,
		CommitteeCode:  code,
		Title:          title,
		Date:           date,
		Time:           clock,
		HearingType:    strings.TrimSpace(d.Type),
		MeetingStatus:  strings.TrimSpace(d.MeetingStatus),
		SourceAPI:      true,
		SyncConfidence: model.ConfidenceAPI,
	}
	if d.Location != nil {
		rec.Location = model.Location{
			Room:     strings.TrimSpace(d.Location.Room),
			Building: strings.TrimSpace(d.Location.Building),
		}
	}
	for _, docs := range [][]document{d.MeetingDocuments, d.WitnessDocuments} {
		for _, doc := range docs {
			rec.Documents = append(rec.Documents, doc.descriptor())
		}
	}
	for _, w := range d.Witnesses {
		if desc := w.descriptor(); desc != nil {
			rec.Witnesses = append(rec.Witnesses, desc)
		}
	}
	for _, v := range d.Videos {
		if v.URL != "" {
			rec.ExternalURLs = append(rec.ExternalURLs, v.URL)
		}
	}
	return rec, true
}

// splitDate converts an API timestamp into an Eastern calendar date and a
// clock time. Date-only values carry no clock time.
func (c *Client) splitDate(raw string) (string, string, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		local := t.In(c.eastern)
		return local.Format(model.DateLayout), local.Format("3:04 PM"), true
	}
	if t, err := time.Parse(model.DateLayout, raw); err == nil {
		return t.Format(model.DateLayout), "", true
	}
	return "", "", false
}
