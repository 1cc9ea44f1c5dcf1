package scraper

import "strings"

// Site describes where a committee publishes its hearing list.
type Site struct {
	Code string `yaml:"code" mapstructure:"code"`
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// DefaultSites returns the built-in committee website registry keyed by
// committee code.
func DefaultSites() map[string]Site {
	sites := []Site{
		{Code: "SCOM", Name: "Commerce, Science, and Transportation", URL: "https://www.commerce.senate.gov/hearings"},
		{Code: "SSCI", Name: "Select Committee on Intelligence", URL: "https://www.intelligence.senate.gov/hearings"},
		{Code: "SSJU", Name: "Judiciary", URL: "https://www.judiciary.senate.gov/committee-activity/hearings"},
		{Code: "SSBK", Name: "Banking, Housing, and Urban Affairs", URL: "https://www.banking.senate.gov/hearings"},
		{Code: "SSAS", Name: "Armed Services", URL: "https://www.armed-services.senate.gov/hearings"},
		{Code: "SSFR", Name: "Foreign Relations", URL: "https://www.foreign.senate.gov/hearings"},
		{Code: "SSHR", Name: "Health, Education, Labor, and Pensions", URL: "https://www.help.senate.gov/hearings"},
		{Code: "SSGA", Name: "Homeland Security and Governmental Affairs", URL: "https://www.hsgac.senate.gov/hearings"},
		{Code: "SSEG", Name: "Energy and Natural Resources", URL: "https://www.energy.senate.gov/hearings"},
		{Code: "SSFI", Name: "Finance", URL: "https://www.finance.senate.gov/hearings"},
	}
	out := make(map[string]Site, len(sites))
	for _, s := range sites {
		out[s.Code] = s
	}
	return out
}

// Selector lists are tried in order; the first that matches wins. Senate
// committee sites share a handful of CMS templates.
var (
	rowSelectors = []string{
		"#browser_table tr.vevent",
		"table.table tbody tr",
		".LegislationList table tbody tr",
		"div.element",
		"article.hearing",
		"li.hearing",
	}
	titleSelectors = []string{
		"a.summary",
		".element-title a",
		"a.element-title",
		".element-title",
		"h3 a",
		"h2 a",
		"td a",
		"a",
	}
	dateSelectors = []string{
		"time[datetime]",
		".dtstart",
		".element-date",
		".date",
		"td.date",
		"time",
		"td:first-child",
	}
	locationSelectors = []string{
		".location",
		".element-location",
		"td.location",
		".hearing-location",
	}
	witnessSelectors = []string{
		".hearing-witnesses li",
		"li.vcard",
		".witness",
		".element-witness",
		".witness-name",
	}
	witnessNameSelectors = []string{
		".fn",
		".name",
		"strong",
		"h4",
	}
)

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
