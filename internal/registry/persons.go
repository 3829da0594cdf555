package registry

import (
	"context"
	"fmt"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
)

// CreatePerson stores a new person.
func (s *Service) CreatePerson(ctx context.Context, p *domain.Person) error {
	if p == nil {
		return domain.NewValidationError("person", "person cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.store.Repos().Persons.Create(ctx, p)
}

// GetPerson returns a person by id.
func (s *Service) GetPerson(ctx context.Context, id int64) (*domain.Person, error) {
	return s.store.Repos().Persons.Get(ctx, id)
}

// ListPersons returns a page of persons and the total count.
func (s *Service) ListPersons(ctx context.Context, filter repository.PersonFilter) ([]*domain.Person, int64, error) {
	return s.store.Repos().Persons.List(ctx, filter)
}

// UpdatePerson saves p. p.Version must be the stored version, otherwise a
// ConflictError is returned and nothing changes.
func (s *Service) UpdatePerson(ctx context.Context, p *domain.Person) error {
	if p == nil || p.ID == 0 {
		return domain.NewValidationError("id", "is required")
	}
	return s.store.Repos().Persons.Update(ctx, p)
}

// PersonPublications lists the publications authored by a person.
func (s *Service) PersonPublications(ctx context.Context, personID int64, filter repository.PublicationFilter) ([]*domain.Publication, int64, error) {
	r := s.store.Repos()
	if _, err := r.Persons.Get(ctx, personID); err != nil {
		return nil, 0, err
	}
	filter.PersonID = personID
	return r.Publications.List(ctx, filter)
}

// RemovePerson deletes a person together with their authorships and
// memberships. The co-authors of every affected publication are renumbered
// so ranks stay contiguous. A person still referenced by juries,
// supervisions, invitations, projects or structures cannot be removed.
func (s *Service) RemovePerson(ctx context.Context, id int64) error {
	logger := observability.WithPersonContext(s.log(ctx), id)

	var renumbered []int64
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		renumbered = nil
		if err := r.Locker.Lock(ctx, repository.LockScopePerson, id); err != nil {
			return fmt.Errorf("lock person %d: %w", id, err)
		}
		if _, err := r.Persons.Get(ctx, id); err != nil {
			return err
		}

		for _, rel := range repository.PersonRelations {
			if rel.Table == "memberships" {
				continue
			}
			n, err := r.Relations.Count(ctx, rel, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return domain.NewBusinessRuleError("person_referenced",
					fmt.Sprintf("person %d is still referenced by %d %s row(s)", id, n, rel.Name))
			}
		}

		authorships, err := r.Authorships.ListByPerson(ctx, id)
		if err != nil {
			return fmt.Errorf("list authorships: %w", err)
		}
		for _, a := range authorships {
			if err := r.Authorships.Delete(ctx, a.ID); err != nil {
				return fmt.Errorf("delete authorship %d: %w", a.ID, err)
			}
			if err := compactRanks(ctx, r.Authorships, a.PublicationID); err != nil {
				return err
			}
			renumbered = append(renumbered, a.PublicationID)
		}

		memberships, err := r.Memberships.ListByPerson(ctx, id)
		if err != nil {
			return fmt.Errorf("list memberships: %w", err)
		}
		for _, m := range memberships {
			if err := r.Memberships.Delete(ctx, m.ID); err != nil {
				return fmt.Errorf("delete membership %d: %w", m.ID, err)
			}
		}

		if err := r.Persons.Delete(ctx, id); err != nil {
			return err
		}

		event, err := s.emitter.PersonRemoved(ctx, domain.PersonRemovedPayload{
			PersonID:               id,
			RenumberedPublications: renumbered,
		})
		if err != nil {
			return err
		}
		return r.Events.Insert(ctx, event)
	})
	if err != nil {
		return err
	}

	logger.Info().Int("publications", len(renumbered)).Msg("person removed")
	return nil
}
