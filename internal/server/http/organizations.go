package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/research-registry-service/internal/domain"
)

type membershipRequest struct {
	PersonID          int64               `json:"person_id" validate:"required,gt=0"`
	OrganizationID    int64               `json:"organization_id" validate:"required,gt=0"`
	Since             *time.Time          `json:"since,omitempty"`
	To                *time.Time          `json:"to,omitempty"`
	Status            domain.MemberStatus `json:"status" validate:"required"`
	PermanentPosition bool                `json:"permanent_position,omitempty"`
	MainPosition      bool                `json:"main_position,omitempty"`
	// Force stores the membership even when it overlaps another one.
	Force bool `json:"force,omitempty"`
}

type organizationRequest struct {
	Acronym   string                  `json:"acronym,omitempty" validate:"max=50"`
	Name      string                  `json:"name" validate:"required,max=300"`
	Type      domain.OrganizationType `json:"type" validate:"required"`
	Country   string                  `json:"country,omitempty"`
	Addresses []domain.Address        `json:"addresses,omitempty"`
}

type subOrganizationRequest struct {
	SubID int64 `json:"sub_id" validate:"required,gt=0"`
}

// createMembership handles POST /memberships.
func (s *Server) createMembership(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	m := &domain.Membership{
		PersonID:          req.PersonID,
		OrganizationID:    req.OrganizationID,
		Since:             req.Since,
		To:                req.To,
		Status:            req.Status,
		PermanentPosition: req.PermanentPosition,
		MainPosition:      req.MainPosition,
	}
	if err := s.deps.Registry.CreateMembership(r.Context(), m, req.Force); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// listMemberships handles GET /persons/{id}/memberships.
func (s *Server) listMemberships(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	memberships, err := s.deps.Registry.ListMemberships(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if memberships == nil {
		memberships = []*domain.Membership{}
	}
	writeJSON(w, http.StatusOK, memberships)
}

// deleteMembership handles DELETE /memberships/{id}.
func (s *Server) deleteMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	if err := s.deps.Registry.DeleteMembership(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listOrganizations handles GET /organizations.
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.deps.Registry.ListOrganizations(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orgs == nil {
		orgs = []*domain.ResearchOrganization{}
	}
	writeJSON(w, http.StatusOK, orgs)
}

// createOrganization handles POST /organizations.
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	org := &domain.ResearchOrganization{
		Acronym:   req.Acronym,
		Name:      req.Name,
		Type:      req.Type,
		Country:   req.Country,
		Addresses: req.Addresses,
	}
	if err := s.deps.Registry.CreateOrganization(r.Context(), org); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// getOrganization handles GET /organizations/{id}.
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	org, err := s.deps.Registry.GetOrganization(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// subOrganizations handles GET /organizations/{id}/subs. With
// ?direction=super it lists the organizations above instead.
func (s *Server) subOrganizations(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	list := s.deps.Registry.SubOrganizations
	if r.URL.Query().Get("direction") == "super" {
		list = s.deps.Registry.SuperOrganizations
	}
	orgs, err := list(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orgs == nil {
		orgs = []*domain.ResearchOrganization{}
	}
	writeJSON(w, http.StatusOK, orgs)
}

// addSubOrganization handles POST /organizations/{id}/subs.
func (s *Server) addSubOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	var req subOrganizationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Registry.AddSubOrganization(r.Context(), id, req.SubID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeSubOrganization handles DELETE /organizations/{id}/subs/{subID}.
func (s *Server) removeSubOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	subID, ok := parseID(w, chi.URLParam(r, "subID"), "sub_id")
	if !ok {
		return
	}
	if err := s.deps.Registry.RemoveSubOrganization(r.Context(), id, subID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
