// Package domain provides the domain models of the research registry.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Authorship links a person to a publication at a zero-based rank.
type Authorship struct {
	ID            int64 `json:"id"`
	PersonID      int64 `json:"person_id"`
	PublicationID int64 `json:"publication_id"`
	Rank          int   `json:"rank"`
}

// MemberStatus is the position a person holds in an organization.
// These values must match the database enum member_status.
type MemberStatus string

const (
	StatusFullProfessor      MemberStatus = "full_professor"
	StatusAssociateProfessor MemberStatus = "associate_professor"
	StatusResearcher         MemberStatus = "researcher"
	StatusPostdoc            MemberStatus = "postdoc"
	StatusPhDStudent         MemberStatus = "phd_student"
	StatusEngineer           MemberStatus = "engineer"
	StatusMasterStudent      MemberStatus = "master_student"
	StatusAssociatedMember   MemberStatus = "associated_member"
	StatusVisitor            MemberStatus = "visitor"
	StatusOther              MemberStatus = "other"
)

// IsValid reports whether s is a known status.
func (s MemberStatus) IsValid() bool {
	switch s {
	case StatusFullProfessor, StatusAssociateProfessor, StatusResearcher, StatusPostdoc,
		StatusPhDStudent, StatusEngineer, StatusMasterStudent, StatusAssociatedMember,
		StatusVisitor, StatusOther:
		return true
	}
	return false
}

// Membership places a person in an organization over a validity interval.
// A nil bound is open-ended.
type Membership struct {
	ID                int64        `json:"id"`
	PersonID          int64        `json:"person_id"`
	OrganizationID    int64        `json:"organization_id"`
	Since             *time.Time   `json:"since,omitempty"`
	To                *time.Time   `json:"to,omitempty"`
	Status            MemberStatus `json:"status"`
	PermanentPosition bool         `json:"permanent_position"`
	MainPosition      bool         `json:"main_position"`
}

// Validate checks the membership fields.
func (m Membership) Validate() error {
	if m.PersonID == 0 {
		return NewValidationError("person_id", "is required")
	}
	if m.OrganizationID == 0 {
		return NewValidationError("organization_id", "is required")
	}
	if !m.Status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown member status %q", m.Status))
	}
	if m.Since != nil && m.To != nil && m.To.Before(*m.Since) {
		return NewValidationError("to", "must not be before since")
	}
	return nil
}

// Overlaps reports whether the two validity intervals share at least one day.
func (m Membership) Overlaps(o Membership) bool {
	if m.To != nil && o.Since != nil && m.To.Before(*o.Since) {
		return false
	}
	if o.To != nil && m.Since != nil && o.To.Before(*m.Since) {
		return false
	}
	return true
}

// IsActiveAt reports whether the membership is valid at t.
func (m Membership) IsActiveAt(t time.Time) bool {
	if m.Since != nil && t.Before(*m.Since) {
		return false
	}
	if m.To != nil && t.After(*m.To) {
		return false
	}
	return true
}

// OrganizationType classifies research organizations.
type OrganizationType string

const (
	OrgUniversity OrganizationType = "university"
	OrgLaboratory OrganizationType = "laboratory"
	OrgTeam       OrganizationType = "team"
	OrgFaculty    OrganizationType = "faculty"
	OrgCompany    OrganizationType = "company"
	OrgOther      OrganizationType = "other"
)

// Address is a postal address owned by an organization.
type Address struct {
	Name    string `json:"name,omitempty"`
	Street  string `json:"street,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	City    string `json:"city,omitempty"`
}

// ResearchOrganization is a node of the organization hierarchy.
type ResearchOrganization struct {
	ID        int64            `json:"id"`
	Acronym   string           `json:"acronym,omitempty"`
	Name      string           `json:"name"`
	Type      OrganizationType `json:"type"`
	Country   string           `json:"country,omitempty"`
	Addresses []Address        `json:"addresses,omitempty"`
	Version   int              `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks the organization fields.
func (o ResearchOrganization) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return NewValidationError("name", "is required")
	}
	switch o.Type {
	case OrgUniversity, OrgLaboratory, OrgTeam, OrgFaculty, OrgCompany, OrgOther:
	default:
		return NewValidationError("type", fmt.Sprintf("unknown organization type %q", o.Type))
	}
	return nil
}

// Journal is a periodical referenced by journal papers and editions.
type Journal struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Publisher  string `json:"publisher,omitempty"`
	ISSN       string `json:"issn,omitempty"`
	OpenAccess bool   `json:"open_access"`
}

// Conference is an event referenced by conference papers and keynotes.
type Conference struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Acronym   string `json:"acronym,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	ISSN      string `json:"issn,omitempty"`
	ISBN      string `json:"isbn,omitempty"`
}

// PublicationSnapshot is a publication read together with its ordered
// authors and venue, ready for display or export.
type PublicationSnapshot struct {
	Publication *Publication `json:"publication"`
	Authors     []Person     `json:"authors"`
	Journal     *Journal     `json:"journal,omitempty"`
	Conference  *Conference  `json:"conference,omitempty"`
}

// PrePublication stages an entry read from a bibliography file before it is
// stored. It is never persisted.
type PrePublication struct {
	Key              string
	ExpectedKind     PublicationType
	Publication      *Publication
	JournalName      string
	JournalISSN      string
	ConferenceName   string
	TemporaryAuthors []string
}

// Title returns the entry title, falling back to its key.
func (p *PrePublication) Title() string {
	if p.Publication != nil && p.Publication.Title != "" {
		return p.Publication.Title
	}
	return p.Key
}
