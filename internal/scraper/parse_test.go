package scraper

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hearing-sync/internal/model"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"03/05/25 10:00 AM", "2025-03-05", true},
		{"3/5/2025", "2025-03-05", true},
		{"2025-03-05T10:00:00-05:00", "2025-03-05", true},
		{"Wednesday, March 5, 2025", "2025-03-05", true},
		{"Mar. 5, 2025", "2025-03-05", true},
		{"Sept. 17, 2025", "2025-09-17", true},
		{"September 17, 2025", "2025-09-17", true},
		{"TBD", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClock(t *testing.T) {
	assert.Equal(t, "10:00 AM", parseClock("03/05/25 10:00 AM"))
	assert.Equal(t, "2:30 PM", parseClock("at 02:30 p.m. in SD-106"))
	assert.Equal(t, "9:15 AM", parseClock("9:15am"))
	assert.Empty(t, parseClock("2025-03-05T10:00:00"))
}

func TestSplitLocation(t *testing.T) {
	assert.Equal(t, model.Location{Room: "253", Building: "Russell Senate Office Building"},
		splitLocation("253  Russell Senate Office Building"))
	assert.Equal(t, model.Location{Room: "SD-106", Building: "Dirksen"}, splitLocation("SD-106, Dirksen"))
	assert.Equal(t, model.Location{Building: "Hart Senate Office Building"}, splitLocation("Hart Senate Office Building"))
	assert.Equal(t, model.Location{Room: "Virtual"}, splitLocation("Virtual"))
	assert.True(t, splitLocation(" ").IsZero())
}

func TestSourceIDAndType(t *testing.T) {
	assert.Equal(t, "ai-in-transportation", sourceID("https://www.commerce.senate.gov/2025/3/ai-in-transportation/"))
	assert.Empty(t, sourceID("https://www.commerce.senate.gov/"))

	assert.Equal(t, "Markup", hearingType("Executive Session and Markup"))
	assert.Equal(t, "Meeting", hearingType("Business Meeting"))
	assert.Equal(t, "Hearing", hearingType("Nominations"))
}

func TestParseRow_ElementTemplate(t *testing.T) {
	doc := mustDoc(t, `<div class="element">
		<a class="element-title" href="/hearings/budget-review">  Budget   Review </a>
		<div class="element-date">Thursday, March 6, 2025 | 2:00 PM</div>
		<div class="element-location">SD-538 Dirksen Senate Office Building</div>
	</div>`)
	base, _ := url.Parse("https://www.banking.senate.gov/hearings")

	sel, ok := rows(doc)
	require.True(t, ok)
	l, ok := parseRow(sel.First(), base)
	require.True(t, ok)
	assert.Equal(t, "Budget Review", l.title)
	assert.Equal(t, "2025-03-06", l.date)
	assert.Equal(t, "2:00 PM", l.time)
	assert.Equal(t, "SD-538 Dirksen Senate Office Building", l.location)
	assert.Equal(t, "https://www.banking.senate.gov/hearings/budget-review", l.url)
}

func TestParseRow_RejectsRowsWithoutTitleOrDate(t *testing.T) {
	doc := mustDoc(t, `<table class="table"><tbody>
		<tr><td>No link here 03/05/25</td></tr>
		<tr><td><a href="/x">Dateless Hearing</a></td></tr>
	</tbody></table>`)
	sel, ok := rows(doc)
	require.True(t, ok)
	sel.Each(func(_ int, row *goquery.Selection) {
		_, ok := parseRow(row, nil)
		assert.False(t, ok)
	})
}

func TestRows_NoMatch(t *testing.T) {
	_, ok := rows(mustDoc(t, `<p>Nothing scheduled.</p>`))
	assert.False(t, ok)
}

func TestParseDetail(t *testing.T) {
	doc := mustDoc(t, detailPage)
	base, _ := url.Parse("https://www.commerce.senate.gov/2025/3/ai-in-transportation")

	d := parseDetail(doc, base)
	assert.Equal(t, map[string]string{
		"isvp":    "https://www.senate.gov/isvp/?comm=commerce&filename=commerce030525",
		"youtube": "https://www.youtube.com/watch?v=abc123",
	}, d.streams)
	require.Len(t, d.witnesses, 2)
	assert.Equal(t, "Dr. Jane Smith", d.witnesses[0]["name"])
	assert.Equal(t, "John Doe", d.witnesses[1]["name"])
	require.Len(t, d.documents, 1)
	assert.Equal(t, "Smith Testimony", d.documents[0]["title"])
	assert.Equal(t, "https://www.commerce.senate.gov/services/files/smith-testimony.pdf", d.documents[0]["url"])
}

const detailPage = `<html><body>
<h1>Artificial Intelligence in Transportation</h1>
<iframe src="//www.senate.gov/isvp/?comm=commerce&filename=commerce030525"></iframe>
<a href="https://www.youtube.com/watch?v=abc123">Watch on YouTube</a>
<ul class="hearing-witnesses">
	<li class="vcard"><span class="fn">Dr. Jane Smith</span> Professor, MIT</li>
	<li class="vcard"><span class="fn">John Doe</span></li>
	<li class="vcard"><span class="fn">Dr.  Jane  Smith</span></li>
</ul>
<a href="/services/files/smith-testimony.pdf">Smith Testimony</a>
</body></html>`
