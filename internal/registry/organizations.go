package registry

import (
	"context"
	"fmt"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/repository"
)

// CreateMembership stores a membership. A membership overlapping another one
// of the same person in the same organization is rejected unless force is set.
func (s *Service) CreateMembership(ctx context.Context, m *domain.Membership, force bool) error {
	if m == nil {
		return domain.NewValidationError("membership", "membership cannot be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Locker.Lock(ctx, repository.LockScopePerson, m.PersonID); err != nil {
			return fmt.Errorf("lock person %d: %w", m.PersonID, err)
		}
		if _, err := r.Persons.Get(ctx, m.PersonID); err != nil {
			return err
		}
		if _, err := r.Organizations.Get(ctx, m.OrganizationID); err != nil {
			return err
		}
		if !force {
			existing, err := r.Memberships.ListByPerson(ctx, m.PersonID)
			if err != nil {
				return fmt.Errorf("list memberships: %w", err)
			}
			for _, other := range existing {
				if other.OrganizationID == m.OrganizationID && other.Overlaps(*m) {
					return domain.NewBusinessRuleError("membership_overlap",
						fmt.Sprintf("person %d already has membership %d in organization %d over that period",
							m.PersonID, other.ID, m.OrganizationID))
				}
			}
		}
		return r.Memberships.Create(ctx, m)
	})
}

// ListMemberships returns the memberships of a person.
func (s *Service) ListMemberships(ctx context.Context, personID int64) ([]*domain.Membership, error) {
	r := s.store.Repos()
	if _, err := r.Persons.Get(ctx, personID); err != nil {
		return nil, err
	}
	return r.Memberships.ListByPerson(ctx, personID)
}

// DeleteMembership deletes a membership.
func (s *Service) DeleteMembership(ctx context.Context, id int64) error {
	return s.store.Repos().Memberships.Delete(ctx, id)
}

// CreateOrganization stores a research organization.
func (s *Service) CreateOrganization(ctx context.Context, o *domain.ResearchOrganization) error {
	if o == nil {
		return domain.NewValidationError("organization", "organization cannot be nil")
	}
	if err := o.Validate(); err != nil {
		return err
	}
	return s.store.Repos().Organizations.Create(ctx, o)
}

// GetOrganization returns an organization by id.
func (s *Service) GetOrganization(ctx context.Context, id int64) (*domain.ResearchOrganization, error) {
	return s.store.Repos().Organizations.Get(ctx, id)
}

// ListOrganizations returns every organization.
func (s *Service) ListOrganizations(ctx context.Context) ([]*domain.ResearchOrganization, error) {
	return s.store.Repos().Organizations.List(ctx)
}

// AddSubOrganization makes subID a direct sub-organization of superID. The
// hierarchy stays acyclic: the edge is rejected when subID is superID or
// one of its transitive super-organizations.
func (s *Service) AddSubOrganization(ctx context.Context, superID, subID int64) error {
	if superID == subID {
		return domain.NewBusinessRuleError("organization_cycle", "an organization cannot contain itself")
	}
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		// One lock for the whole hierarchy: two concurrent inserts could
		// otherwise close a cycle that neither sees.
		if err := r.Locker.Lock(ctx, repository.LockScopeOrganization, 0); err != nil {
			return fmt.Errorf("lock organization hierarchy: %w", err)
		}
		if _, err := r.Organizations.Get(ctx, superID); err != nil {
			return err
		}
		if _, err := r.Organizations.Get(ctx, subID); err != nil {
			return err
		}

		ancestors, err := walk(ctx, superID, r.Organizations.SuperIDs)
		if err != nil {
			return err
		}
		for _, id := range ancestors {
			if id == subID {
				return domain.NewBusinessRuleError("organization_cycle",
					fmt.Sprintf("organization %d is already above %d", subID, superID))
			}
		}
		return r.Organizations.AddEdge(ctx, superID, subID)
	})
}

// RemoveSubOrganization removes the direct edge superID -> subID.
func (s *Service) RemoveSubOrganization(ctx context.Context, superID, subID int64) error {
	return s.store.Repos().Organizations.RemoveEdge(ctx, superID, subID)
}

// SubOrganizations returns every transitive sub-organization of id in
// breadth-first order.
func (s *Service) SubOrganizations(ctx context.Context, id int64) ([]*domain.ResearchOrganization, error) {
	return s.related(ctx, id, func(r repository.Repos) func(context.Context, int64) ([]int64, error) {
		return r.Organizations.SubIDs
	})
}

// SuperOrganizations returns every transitive super-organization of id in
// breadth-first order.
func (s *Service) SuperOrganizations(ctx context.Context, id int64) ([]*domain.ResearchOrganization, error) {
	return s.related(ctx, id, func(r repository.Repos) func(context.Context, int64) ([]int64, error) {
		return r.Organizations.SuperIDs
	})
}

func (s *Service) related(ctx context.Context, id int64, edges func(repository.Repos) func(context.Context, int64) ([]int64, error)) ([]*domain.ResearchOrganization, error) {
	r := s.store.Repos()
	if _, err := r.Organizations.Get(ctx, id); err != nil {
		return nil, err
	}
	ids, err := walk(ctx, id, edges(r))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ResearchOrganization, 0, len(ids))
	for _, oid := range ids {
		o, err := r.Organizations.Get(ctx, oid)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// walk returns the ids reachable from start through next, excluding start,
// visiting each id once.
func walk(ctx context.Context, start int64, next func(context.Context, int64) ([]int64, error)) ([]int64, error) {
	seen := map[int64]bool{start: true}
	queue := []int64{start}
	var out []int64
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ids, err := next(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("walk organization %d: %w", id, err)
		}
		for _, n := range ids {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out, nil
}
