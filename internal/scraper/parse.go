package scraper

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/hearing-sync/internal/model"
)

// listing is one row of a committee hearing list.
type listing struct {
	title    string
	date     string
	time     string
	location string
	url      string
}

var (
	numericDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	isoDateRe     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}`)
	longDateRe    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b`)
	clockRe       = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*([ap])\.?\s*m\b\.?`)
	spaceRe       = regexp.MustCompile(`\s+`)
	septRe        = regexp.MustCompile(`(?i)\bsept\b`)
)

var dateLayouts = map[*regexp.Regexp][]string{
	numericDateRe: {"01/02/06", "1/2/06", "01/02/2006", "1/2/2006"},
	isoDateRe:     {"2006-01-02"},
	longDateRe:    {"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan 2 2006", "Jan. 2, 2006"},
}

// parseDate finds the first recognizable date in text and returns it as
// YYYY-MM-DD.
func parseDate(text string) (string, bool) {
	for _, re := range []*regexp.Regexp{isoDateRe, numericDateRe, longDateRe} {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		m = strings.Join(strings.Fields(m), " ")
		if re == longDateRe {
			m = septRe.ReplaceAllString(m, "Sep")
		}
		for _, layout := range dateLayouts[re] {
			if t, err := time.Parse(layout, m); err == nil {
				return t.Format(model.DateLayout), true
			}
		}
	}
	return "", false
}

// parseClock finds a clock time such as "10:00 a.m." and returns it as
// "10:00 AM".
func parseClock(text string) string {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimLeft(m[1], "0") + ":" + m[2] + " " + strings.ToUpper(m[3]) + "M"
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// firstText returns the text of the first selector that yields non-empty
// text within sel.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if txt := cleanText(sel.Find(s).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}

// rows returns the hearing rows of a list page using the first row selector
// that matches anything.
func rows(doc *goquery.Document) (*goquery.Selection, bool) {
	for _, s := range rowSelectors {
		if sel := doc.Find(s); sel.Length() > 0 {
			return sel, true
		}
	}
	return nil, false
}

func parseRow(row *goquery.Selection, base *url.URL) (listing, bool) {
	var l listing
	for _, s := range titleSelectors {
		a := row.Find(s).First()
		if txt := cleanText(a.Text()); txt != "" {
			l.title = txt
			if href, ok := a.Attr("href"); ok {
				l.url = resolve(base, href)
			}
			break
		}
	}
	if l.title == "" {
		return listing{}, false
	}

	var dateText string
	if dt, ok := row.Find("time[datetime]").First().Attr("datetime"); ok {
		dateText = dt
	}
	if _, ok := parseDate(dateText); !ok {
		dateText = firstText(row, dateSelectors...)
	}
	if _, ok := parseDate(dateText); !ok {
		dateText = cleanText(row.Text())
	}
	date, ok := parseDate(dateText)
	if !ok {
		return listing{}, false
	}
	l.date = date
	l.time = parseClock(dateText)
	if l.time == "" {
		l.time = parseClock(row.Text())
	}
	l.location = firstText(row, locationSelectors...)
	return l, true
}

// detail is what a hearing page adds to its list row.
type detail struct {
	streams   map[string]string
	witnesses []model.Descriptor
	documents []model.Descriptor
	time      string
	location  string
}

func parseDetail(doc *goquery.Document, base *url.URL) detail {
	d := detail{streams: map[string]string{}}

	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = resolve(base, src)
		switch {
		case strings.Contains(src, "senate.gov/isvp"):
			setOnce(d.streams, "isvp", src)
		case strings.Contains(src, "youtube.com/embed"):
			setOnce(d.streams, "youtube", src)
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := resolve(base, s.AttrOr("href", ""))
		switch {
		case strings.Contains(href, "youtube.com/watch"), strings.Contains(href, "youtu.be/"):
			setOnce(d.streams, "youtube", href)
		case strings.Contains(href, "senate.gov/isvp"):
			setOnce(d.streams, "isvp", href)
		case strings.HasSuffix(strings.ToLower(href), ".pdf"):
			if title := cleanText(s.Text()); title != "" {
				d.documents = append(d.documents, model.Descriptor{"title": title, "url": href, "format": "PDF"})
			}
		}
	})

	for _, sel := range witnessSelectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		seen := make(map[string]bool)
		found.Each(func(_ int, s *goquery.Selection) {
			name := firstText(s, witnessNameSelectors...)
			if name == "" {
				name = cleanText(s.Text())
			}
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				return
			}
			seen[key] = true
			d.witnesses = append(d.witnesses, model.Descriptor{"name": name})
		})
		break
	}

	d.time = parseClock(firstText(doc.Selection, ".hearing-time", ".dtstart", "time"))
	d.location = firstText(doc.Selection, locationSelectors...)
	return d
}

func setOnce(m map[string]string, k, v string) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// sourceID derives a stable per-site identifier from a hearing page URL.
func sourceID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return path.Base(strings.TrimRight(u.Path, "/"))
}

// hearingType infers the meeting type from the title.
func hearingType(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "markup"):
		return "Markup"
	case strings.Contains(t, "executive session"), strings.Contains(t, "business meeting"):
		return "Meeting"
	default:
		return "Hearing"
	}
}

// splitLocation separates "253 Russell Senate Office Building" into a room
// and a building.
func splitLocation(text string) model.Location {
	text = cleanText(text)
	if text == "" {
		return model.Location{}
	}
	fields := strings.Fields(text)
	first := strings.TrimSuffix(fields[0], ",")
	if len(fields) > 1 && isRoom(first) {
		return model.Location{Room: first, Building: strings.Join(fields[1:], " ")}
	}
	if strings.Contains(strings.ToLower(text), "building") {
		return model.Location{Building: text}
	}
	return model.Location{Room: text}
}

func isRoom(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z', r == '-':
		default:
			return false
		}
	}
	return hasDigit
}
