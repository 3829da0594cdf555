package domain

import (
	"strings"
	"time"
)

// Platform identifies an external bibliometric platform.
type Platform string

const (
	PlatformScopus        Platform = "scopus"
	PlatformOpenAlex      Platform = "openalex"
	PlatformGoogleScholar Platform = "google_scholar"
	PlatformWebOfScience  Platform = "wos"
)

// Indicator holds the bibliometric figures a platform reports for a person.
type Indicator struct {
	HIndex    int       `json:"h_index"`
	Citations int       `json:"citations"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indicators maps a platform to the latest figures fetched from it.
type Indicators map[Platform]Indicator

// Person is a researcher registered in the lab.
type Person struct {
	ID              int64      `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email,omitempty"`
	ORCID           string     `json:"orcid,omitempty"`
	ScopusID        string     `json:"scopus_id,omitempty"`
	GoogleScholarID string     `json:"google_scholar_id,omitempty"`
	WosID           string     `json:"wos_id,omitempty"`
	OpenAlexID      string     `json:"openalex_id,omitempty"`
	Indicators      Indicators `json:"indicators,omitempty"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FullName renders the person as "First Last".
func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// IsNew reports whether the person has not been stored yet.
func (p Person) IsNew() bool {
	return p.ID == 0 || p.Version == 0
}

// Validate checks the fields required to store a person.
func (p Person) Validate() error {
	if strings.TrimSpace(p.LastName) == "" {
		return NewValidationError("last_name", "is required")
	}
	if p.ORCID != "" && !validORCID(p.ORCID) {
		return NewValidationError("orcid", "must look like 0000-0000-0000-000X")
	}
	return nil
}

// SetIndicator records fresh figures for a platform.
func (p *Person) SetIndicator(platform Platform, ind Indicator) {
	if p.Indicators == nil {
		p.Indicators = make(Indicators)
	}
	p.Indicators[platform] = ind
}

// ComparePersons is the canonical person ordering: last name, first name, id.
// Names compare case-insensitively.
func ComparePersons(a, b Person) int {
	if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func validORCID(s string) bool {
	if len(s) != 19 {
		return false
	}
	for i, r := range s {
		switch {
		case i == 4 || i == 9 || i == 14:
			if r != '-' {
				return false
			}
		case i == 18:
			if (r < '0' || r > '9') && r != 'X' {
				return false
			}
		default:
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
