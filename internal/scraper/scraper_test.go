package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hearing-sync/internal/fetcher"
	"github.com/sells-group/hearing-sync/internal/resilience"
)

var testNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

const listPage = `<html><body>
<table id="browser_table"><tbody>
<tr class="vevent">
	<td><a class="summary" href="/2025/3/ai-in-transportation">Hearing: Artificial Intelligence in Transportation</a></td>
	<td><time class="dtstart" datetime="2025-03-05">03/05/25 10:00 AM</time></td>
	<td class="location">253 Russell Senate Office Building</td>
</tr>
<tr class="vevent">
	<td><a class="summary" href="/2025/3/nominations">Nominations Hearing</a></td>
	<td><time class="dtstart" datetime="2025-03-20">03/20/25</time></td>
</tr>
<tr class="vevent">
	<td><a class="summary" href="/2025/1/old-hearing">Old Hearing</a></td>
	<td><time class="dtstart" datetime="2025-01-15">01/15/25 2:30 PM</time></td>
</tr>
<tr class="vevent"><td>Schedule to be announced</td></tr>
</tbody></table>
</body></html>`

const nominationsPage = `<html><body>
<span class="hearing-time">10:30 a.m.</span>
<div class="location">SR-253 Russell</div>
</body></html>`

func testScraper(t *testing.T, srvURL string, opts ...Option) *Scraper {
	t.Helper()
	base := []Option{
		WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1})),
		WithSites(map[string]string{"scom": srvURL + "/hearings"}),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
		WithClock(func() time.Time { return testNow }),
	}
	return New(append(base, opts...)...)
}

func committeeSite(t *testing.T, detailStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/hearings", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listPage)
	})
	mux.HandleFunc("/2025/3/ai-in-transportation", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if detailStatus != http.StatusOK {
			w.WriteHeader(detailStatus)
			return
		}
		fmt.Fprint(w, detailPage)
	})
	mux.HandleFunc("/2025/3/nominations", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, nominationsPage)
	})
	mux.HandleFunc("/2025/1/old-hearing", func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("out-of-window hearing page should not be fetched")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestScrapeCommitteeHearings(t *testing.T) {
	srv, hits := committeeSite(t, http.StatusOK)
	s := testScraper(t, srv.URL)

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int32(2), hits.Load())

	r := recs[0]
	assert.Equal(t, "SCOM", r.CommitteeCode)
	assert.Equal(t, "Hearing: Artificial Intelligence in Transportation", r.Title)
	assert.Equal(t, "2025-03-05", r.Date)
	assert.Equal(t, "10:00 AM", r.Time)
	assert.Equal(t, "Hearing", r.HearingType)
	assert.Equal(t, "253", r.Location.Room)
	assert.Equal(t, "Russell Senate Office Building", r.Location.Building)
	assert.Equal(t, srv.URL+"/2025/3/ai-in-transportation", r.URL)
	assert.Equal(t, "ai-in-transportation", r.CommitteeSourceID)
	assert.True(t, r.SourceWebsite)
	assert.False(t, r.SourceAPI)
	assert.Equal(t, 0.8, r.SyncConfidence)
	assert.Contains(t, r.Streams, "isvp")
	assert.Contains(t, r.Streams, "youtube")
	require.Len(t, r.Witnesses, 2)
	require.Len(t, r.Documents, 1)

	n := recs[1]
	assert.Equal(t, "Nominations Hearing", n.Title)
	assert.Equal(t, "2025-03-20", n.Date)
	assert.Equal(t, "10:30 AM", n.Time, "time filled from the hearing page")
	assert.Equal(t, "SR-253", n.Location.Room)
	assert.Nil(t, n.Streams)
}

func TestScrapeCommitteeHearings_UnknownCommittee(t *testing.T) {
	s := New(WithSites(map[string]string{}), WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1})))

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SXYZ", 30)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScrapeCommitteeHearings_TransientFailureReturnsEmpty(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	s := testScraper(t, srv.URL)

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.Equal(t, int32(2), hits.Load(), "list page is retried once")
}

func TestScrapeCommitteeHearings_RetryRecovers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hearings" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, listPage)
	}))
	defer srv.Close()
	s := testScraper(t, srv.URL)

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "detail 404s are skipped, rows kept")
	assert.Empty(t, recs[0].Witnesses)
}

func TestScrapeCommitteeHearings_NotFoundIsError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()
	s := testScraper(t, srv.URL)

	_, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), hits.Load(), "permanent failures are not retried")
}

func TestScrapeCommitteeHearings_DetailFailureSkipped(t *testing.T) {
	srv, _ := committeeSite(t, http.StatusInternalServerError)
	s := testScraper(t, srv.URL)

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].Streams)
	assert.Equal(t, "10:00 AM", recs[0].Time)
}

func TestScrapeCommitteeHearings_InvalidDetailURLSkipped(t *testing.T) {
	var detailHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/hearings", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><table id="browser_table"><tbody>
<tr class="vevent">
	<td><a class="summary" href="http://%zz/bad-host">Oversight of Spectrum Policy</a></td>
	<td><time class="dtstart" datetime="2025-03-05">03/05/25 10:00 AM</time></td>
</tr>
</tbody></table></body></html>`)
	})
	mux.HandleFunc("/", func(_ http.ResponseWriter, _ *http.Request) {
		detailHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	s := testScraper(t, srv.URL)

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Oversight of Spectrum Policy", recs[0].Title)
	assert.Nil(t, recs[0].Streams)
	assert.Equal(t, int32(0), detailHits.Load())
}

func TestScrapeCommitteeHearings_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	s := testScraper(t, srv.URL, WithTimeout(50*time.Millisecond))

	_, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.Error(t, err)
	assert.True(t, resilience.IsDeadline(err))
}

func TestScrapeCommitteeHearings_NoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>No hearings scheduled.</p></body></html>`)
	}))
	defer srv.Close()
	s := testScraper(t, srv.URL)

	recs, err := s.ScrapeCommitteeHearings(context.Background(), "SCOM", 30)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSite(t *testing.T) {
	s := New(WithSites(map[string]string{"ssci": "https://example.test/ssci"}),
		WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1})))

	site, ok := s.Site("SSCI")
	require.True(t, ok)
	assert.Equal(t, "https://example.test/ssci", site.URL)
	assert.Equal(t, "Select Committee on Intelligence", site.Name)

	_, ok = s.Site("SXYZ")
	assert.False(t, ok)
}
