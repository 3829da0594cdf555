package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/repository"
)

// Merged row kinds reported next to the relations of repository.PersonRelations.
const (
	MovedAuthorships   = "authorships"
	DroppedAuthorships = "authorships_deduplicated"
	DeletedPersons     = "persons_deleted"
)

// MergeReport describes what a merge changed.
type MergeReport struct {
	TargetID int64          `json:"target_id"`
	Merged   []int64        `json:"merged"`
	Skipped  []int64        `json:"skipped,omitempty"`
	Moved    map[string]int `json:"moved"`
}

// Merge folds every source person into target and deletes the sources.
//
// All sources are merged in one transaction holding an advisory lock on the
// target. Authorships are repointed unless the target already authors the
// publication, in which case the source row is dropped and the ranks of that
// publication compacted. Every other person reference is repointed. A source
// that no longer exists is reported in Skipped.
func (s *Service) Merge(ctx context.Context, sourceIDs []int64, targetID int64) (*MergeReport, error) {
	if targetID <= 0 {
		return nil, domain.NewValidationError("target_id", "is required")
	}
	sources := uniqueSources(sourceIDs, targetID)
	if len(sources) == 0 {
		return nil, domain.NewValidationError("source_ids", "at least one source different from the target is required")
	}

	logger := s.log(ctx).With().Int64("target_id", targetID).Ints64("source_ids", sources).Logger()

	var report *MergeReport
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		report = &MergeReport{TargetID: targetID, Moved: map[string]int{}}

		if err := r.Locker.Lock(ctx, repository.LockScopePerson, targetID); err != nil {
			return fmt.Errorf("lock person %d: %w", targetID, err)
		}
		if _, err := r.Persons.Get(ctx, targetID); err != nil {
			return err
		}

		for _, sourceID := range sources {
			if _, err := r.Persons.Get(ctx, sourceID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					report.Skipped = append(report.Skipped, sourceID)
					continue
				}
				return err
			}
			if err := mergeOne(ctx, r, sourceID, targetID, report.Moved); err != nil {
				return fmt.Errorf("merge person %d into %d: %w", sourceID, targetID, err)
			}
			report.Merged = append(report.Merged, sourceID)
		}

		if len(report.Merged) == 0 {
			return nil
		}
		event, err := s.emitter.PersonMerged(ctx, domain.PersonMergedPayload{
			TargetID:  targetID,
			SourceIDs: report.Merged,
			Moved:     report.Moved,
		})
		if err != nil {
			return err
		}
		return r.Events.Insert(ctx, event)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordMergeFailed()
		}
		logger.Error().Err(err).Msg("merge rolled back")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMerge(report.Moved)
	}
	logger.Info().
		Int("merged", len(report.Merged)).
		Int("skipped", len(report.Skipped)).
		Interface("moved", report.Moved).
		Msg("persons merged")
	return report, nil
}

func mergeOne(ctx context.Context, r repository.Repos, sourceID, targetID int64, moved map[string]int) error {
	authorships, err := r.Authorships.ListByPerson(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list authorships: %w", err)
	}
	for _, a := range authorships {
		coauthors, err := r.Authorships.ListByPublication(ctx, a.PublicationID)
		if err != nil {
			return fmt.Errorf("list authorships of publication %d: %w", a.PublicationID, err)
		}
		if authoredBy(coauthors, targetID) {
			if err := r.Authorships.Delete(ctx, a.ID); err != nil {
				return fmt.Errorf("drop authorship %d: %w", a.ID, err)
			}
			if err := compactRanks(ctx, r.Authorships, a.PublicationID); err != nil {
				return err
			}
			moved[DroppedAuthorships]++
			continue
		}
		if err := r.Authorships.Reassign(ctx, a.ID, targetID); err != nil {
			return fmt.Errorf("repoint authorship %d: %w", a.ID, err)
		}
		moved[MovedAuthorships]++
	}

	for _, rel := range repository.PersonRelations {
		n, err := r.Relations.Reassign(ctx, rel, sourceID, targetID)
		if err != nil {
			return err
		}
		moved[rel.Name] += n
	}

	if err := r.Persons.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("delete person %d: %w", sourceID, err)
	}
	moved[DeletedPersons]++
	return nil
}

func authoredBy(list []*domain.Authorship, personID int64) bool {
	for _, a := range list {
		if a.PersonID == personID {
			return true
		}
	}
	return false
}

func uniqueSources(ids []int64, targetID int64) []int64 {
	seen := map[int64]bool{targetID: true}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
