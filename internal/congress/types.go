package congress

import (
	"strings"

	"github.com/sells-group/hearing-sync/internal/model"
)

type listResponse struct {
	CommitteeMeetings []meetingItem `json:"committeeMeetings"`
	Pagination        struct {
		Count int    `json:"count"`
		Next  string `json:"next"`
	} `json:"pagination"`
}

type meetingItem struct {
	EventID    string `json:"eventId"`
	URL        string `json:"url"`
	UpdateDate string `json:"updateDate"`
	Chamber    string `json:"chamber"`
	Congress   int    `json:"congress"`
}

type detailResponse struct {
	CommitteeMeeting meetingDetail `json:"committeeMeeting"`
}

type meetingDetail struct {
	EventID          string      `json:"eventId"`
	Title            string      `json:"title"`
	Date             string      `json:"date"`
	Type             string      `json:"type"`
	MeetingStatus    string      `json:"meetingStatus"`
	Location         *location   `json:"location"`
	Committees       []committee `json:"committees"`
	MeetingDocuments []document  `json:"meetingDocuments"`
	WitnessDocuments []document  `json:"witnessDocuments"`
	Witnesses        []witness   `json:"witnesses"`
	Videos           []video     `json:"videos"`
}

type location struct {
	Room     string `json:"room"`
	Building string `json:"building"`
}

type committee struct {
	SystemCode string `json:"systemCode"`
	Name       string `json:"name"`
}

type document struct {
	Name         string `json:"name"`
	DocumentType string `json:"documentType"`
	Format       string `json:"format"`
	URL          string `json:"url"`
}

type witness struct {
	Name         string `json:"name"`
	Position     string `json:"position"`
	Organization string `json:"organization"`
}

type video struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// heldBy reports whether the meeting lists systemCode among its committees.
// Subcommittee codes share the parent's four-letter prefix.
func (d meetingDetail) heldBy(systemCode string) bool {
	prefix := strings.TrimSuffix(systemCode, "00")
	for _, c := range d.Committees {
		sc := strings.ToLower(strings.TrimSpace(c.SystemCode))
		if sc == systemCode || (len(prefix) == 4 && strings.HasPrefix(sc, prefix)) {
			return true
		}
	}
	return false
}

func (d document) descriptor() model.Descriptor {
	desc := model.Descriptor{"title": strings.TrimSpace(d.Name)}
	if d.URL != "" {
		desc["url"] = d.URL
	}
	if d.DocumentType != "" {
		desc["type"] = d.DocumentType
	}
	if d.Format != "" {
		desc["format"] = d.Format
	}
	return desc
}

func (w witness) descriptor() model.Descriptor {
	name := strings.Join(strings.Fields(w.Name), " ")
	if name == "" {
		return nil
	}
	desc := model.Descriptor{"name": name}
	if w.Position != "" {
		desc["position"] = strings.TrimSpace(w.Position)
	}
	if w.Organization != "" {
		desc["organization"] = strings.TrimSpace(w.Organization)
	}
	return desc
}
