package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
)

// AuthorOptions controls how author tokens are attached to a publication.
type AuthorOptions struct {
	Resolve ResolveOptions
	// RequireKnownMember rejects author lists where no author belongs to a
	// registered research organization.
	RequireKnownMember bool
}

// TransformOptions controls TransformPublication.
type TransformOptions struct {
	// AsCopy stores the transformed record under a new id and deletes the
	// original. The attached file follows the new id.
	AsCopy bool
	// Version, when non-zero, must match the stored version.
	Version int
}

// AttachAuthors resolves author tokens, saves the persons that are not
// found yet and makes them the authors of publicationID in order. It must
// be called with transaction-bound repositories.
func (s *Service) AttachAuthors(ctx context.Context, r repository.Repos, publicationID int64, tokens []string, opts AuthorOptions) ([]int64, error) {
	ids, err := s.resolver.ResolveAuthors(ctx, r, tokens, opts.Resolve)
	if err != nil {
		return nil, err
	}
	if opts.RequireKnownMember {
		if err := requireKnownMember(ctx, r, ids); err != nil {
			return nil, err
		}
	}
	if err := s.reconciler.ReconcileAuthors(ctx, r, publicationID, ids); err != nil {
		return nil, err
	}
	return collapseAuthors(ids), nil
}

// CreatePublication stores pub and attaches its authors in one transaction.
func (s *Service) CreatePublication(ctx context.Context, pub *domain.Publication, authors []string, opts AuthorOptions) error {
	if pub == nil {
		return domain.NewValidationError("publication", "publication cannot be nil")
	}
	if err := pub.Validate(); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Publications.Create(ctx, pub); err != nil {
			return err
		}
		_, err := s.AttachAuthors(ctx, r, pub.ID, authors, opts)
		return err
	})
}

// GetPublication returns a publication with its ordered authors and venue.
func (s *Service) GetPublication(ctx context.Context, id int64) (*domain.PublicationSnapshot, error) {
	r := s.store.Repos()
	pub, err := r.Publications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshot(ctx, r, pub)
}

// ListPublications returns a page of publications and the total count.
func (s *Service) ListPublications(ctx context.Context, filter repository.PublicationFilter) ([]*domain.Publication, int64, error) {
	return s.store.Repos().Publications.List(ctx, filter)
}

// Snapshots loads the publications matching filter with their authors and
// venues, in list order.
func (s *Service) Snapshots(ctx context.Context, filter repository.PublicationFilter) ([]domain.PublicationSnapshot, error) {
	r := s.store.Repos()
	pubs, _, err := r.Publications.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PublicationSnapshot, 0, len(pubs))
	for _, pub := range pubs {
		snap, err := snapshot(ctx, r, pub)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

func snapshot(ctx context.Context, r repository.Repos, pub *domain.Publication) (*domain.PublicationSnapshot, error) {
	authorships, err := r.Authorships.ListByPublication(ctx, pub.ID)
	if err != nil {
		return nil, fmt.Errorf("list authors of publication %d: %w", pub.ID, err)
	}
	snap := &domain.PublicationSnapshot{Publication: pub, Authors: make([]domain.Person, 0, len(authorships))}
	for _, a := range authorships {
		p, err := r.Persons.Get(ctx, a.PersonID)
		if err != nil {
			return nil, fmt.Errorf("load author %d: %w", a.PersonID, err)
		}
		snap.Authors = append(snap.Authors, *p)
	}
	if id := pub.JournalID(); id != 0 {
		if snap.Journal, err = r.Venues.GetJournal(ctx, id); err != nil {
			return nil, err
		}
	}
	if id := pub.ConferenceID(); id != 0 {
		if snap.Conference, err = r.Venues.GetConference(ctx, id); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// UpdatePublication saves pub under optimistic concurrency.
func (s *Service) UpdatePublication(ctx context.Context, pub *domain.Publication) error {
	if pub == nil || pub.ID == 0 {
		return domain.NewValidationError("id", "is required")
	}
	if err := pub.Validate(); err != nil {
		return err
	}
	return s.store.Repos().Publications.Update(ctx, pub)
}

// SetAuthors replaces the author list of a publication.
func (s *Service) SetAuthors(ctx context.Context, publicationID int64, authors []string, opts AuthorOptions) ([]int64, error) {
	var ids []int64
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Locker.Lock(ctx, repository.LockScopePublication, publicationID); err != nil {
			return fmt.Errorf("lock publication %d: %w", publicationID, err)
		}
		if _, err := r.Publications.Get(ctx, publicationID); err != nil {
			return err
		}
		var err error
		ids, err = s.AttachAuthors(ctx, r, publicationID, authors, opts)
		return err
	})
	return ids, err
}

// TransformPublication changes the kind of a publication. Shared fields and
// the payload fields both kinds have are kept.
func (s *Service) TransformPublication(ctx context.Context, id int64, target domain.PublicationType, opts TransformOptions) (*domain.Publication, error) {
	if !target.IsConcrete() {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("cannot transform into %q", target))
	}

	var out *domain.Publication
	var from domain.PublicationType
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Locker.Lock(ctx, repository.LockScopePublication, id); err != nil {
			return fmt.Errorf("lock publication %d: %w", id, err)
		}
		pub, err := r.Publications.Get(ctx, id)
		if err != nil {
			return err
		}
		if opts.Version != 0 && opts.Version != pub.Version {
			return domain.NewConflictError("publication", strconv.FormatInt(id, 10), opts.Version)
		}
		from = pub.Kind
		if pub.Kind == target && !opts.AsCopy {
			out = pub
			return nil
		}

		out, err = domain.Transform(pub, target)
		if err != nil {
			return err
		}
		if opts.AsCopy {
			if err := copyPublication(ctx, r, id, out); err != nil {
				return err
			}
		} else if err := r.Publications.Update(ctx, out); err != nil {
			return err
		}

		event, err := s.emitter.PublicationTransformed(ctx, domain.PublicationTransformedPayload{
			PublicationID: out.ID,
			From:          from,
			To:            target,
		})
		if err != nil {
			return err
		}
		return r.Events.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	logger := observability.WithPublicationContext(s.log(ctx), out.ID, string(target))
	if opts.AsCopy && s.files != nil {
		if err := s.files.Rename(ctx, id, out.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Err(err).Int64("previous_id", id).Msg("failed to move publication file")
		}
	}
	logger.Info().Str("from", string(from)).Msg("publication transformed")
	return out, nil
}

// copyPublication stores out as a new row carrying the authors of the
// publication oldID, then deletes oldID.
func copyPublication(ctx context.Context, r repository.Repos, oldID int64, out *domain.Publication) error {
	authorships, err := r.Authorships.ListByPublication(ctx, oldID)
	if err != nil {
		return fmt.Errorf("list authors of publication %d: %w", oldID, err)
	}
	out.ID = 0
	if err := r.Publications.Create(ctx, out); err != nil {
		return err
	}
	ids := make([]int64, len(authorships))
	for i, a := range authorships {
		ids[i] = a.PersonID
	}
	if _, err := reconcile(ctx, r.Authorships, out.ID, ids); err != nil {
		return err
	}
	return r.Publications.Delete(ctx, oldID)
}

// DeletePublication deletes a publication and its authorships. The attached
// file is removed afterwards on a best-effort basis.
func (s *Service) DeletePublication(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Locker.Lock(ctx, repository.LockScopePublication, id); err != nil {
			return fmt.Errorf("lock publication %d: %w", id, err)
		}
		return r.Publications.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.files != nil {
		s.files.DeleteQuietly(ctx, id)
	}
	logger := s.log(ctx)
	logger.Info().Int64("publication_id", id).Msg("publication deleted")
	return nil
}
