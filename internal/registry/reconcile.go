package registry

import (
	"context"
	"fmt"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
)

// Reconciler brings the stored authorship list of a publication in line with
// a desired ordered list of person ids.
type Reconciler struct {
	metrics *observability.Metrics
}

// NewReconciler creates a reconciler. metrics may be nil.
func NewReconciler(metrics *observability.Metrics) *Reconciler {
	return &Reconciler{metrics: metrics}
}

// ReconcileAuthors makes the authors of publicationID exactly desired, ranked
// 0..N-1 in order. A person listed twice keeps its last position. Existing
// rows are updated in place, missing ones created and the rest deleted.
// Calling it twice with the same list writes nothing the second time.
//
// repos should be bound to a transaction: the rank updates go through
// negative ranks first so that no two rows of a publication share a rank
// between statements.
func (rc *Reconciler) ReconcileAuthors(ctx context.Context, repos repository.Repos, publicationID int64, desired []int64) error {
	changed, err := reconcile(ctx, repos.Authorships, publicationID, desired)
	if err != nil {
		return err
	}
	if changed && rc.metrics != nil {
		rc.metrics.RecordReconciliation()
	}
	return nil
}

// collapseAuthors removes repeated ids, keeping each at its last position.
func collapseAuthors(desired []int64) []int64 {
	last := make(map[int64]int, len(desired))
	for i, id := range desired {
		last[id] = i
	}
	out := make([]int64, 0, len(last))
	for i, id := range desired {
		if last[id] == i {
			out = append(out, id)
		}
	}
	return out
}

func reconcile(ctx context.Context, authorships repository.AuthorshipRepository, publicationID int64, desired []int64) (bool, error) {
	for _, id := range desired {
		if id <= 0 {
			return false, domain.NewValidationError("authors", fmt.Sprintf("invalid person id %d", id))
		}
	}
	final := collapseAuthors(desired)

	existing, err := authorships.ListByPublication(ctx, publicationID)
	if err != nil {
		return false, fmt.Errorf("list authorships of publication %d: %w", publicationID, err)
	}
	snapshot := make(map[int64]*domain.Authorship, len(existing))
	for _, a := range existing {
		snapshot[a.PersonID] = a
	}

	type move struct {
		id   int64
		rank int
	}
	var moves []move
	var creates []domain.Authorship
	for rank, personID := range final {
		if a, ok := snapshot[personID]; ok {
			if a.Rank != rank {
				moves = append(moves, move{id: a.ID, rank: rank})
			}
			delete(snapshot, personID)
			continue
		}
		creates = append(creates, domain.Authorship{PersonID: personID, PublicationID: publicationID, Rank: rank})
	}

	for _, a := range existing {
		if _, leftover := snapshot[a.PersonID]; !leftover {
			continue
		}
		if err := authorships.Delete(ctx, a.ID); err != nil {
			return false, fmt.Errorf("delete authorship %d: %w", a.ID, err)
		}
	}

	for _, m := range moves {
		if err := authorships.UpdateRank(ctx, m.id, -(m.rank + 1)); err != nil {
			return false, fmt.Errorf("park authorship %d: %w", m.id, err)
		}
	}
	for _, m := range moves {
		if err := authorships.UpdateRank(ctx, m.id, m.rank); err != nil {
			return false, fmt.Errorf("rank authorship %d: %w", m.id, err)
		}
	}

	for i := range creates {
		if err := authorships.Create(ctx, &creates[i]); err != nil {
			return false, fmt.Errorf("add person %d to publication %d: %w", creates[i].PersonID, publicationID, err)
		}
	}

	return len(snapshot) > 0 || len(moves) > 0 || len(creates) > 0, nil
}

// compactRanks renumbers the authorships of a publication 0..N-1 keeping
// their order.
func compactRanks(ctx context.Context, authorships repository.AuthorshipRepository, publicationID int64) error {
	list, err := authorships.ListByPublication(ctx, publicationID)
	if err != nil {
		return fmt.Errorf("list authorships of publication %d: %w", publicationID, err)
	}
	ids := make([]int64, len(list))
	for i, a := range list {
		ids[i] = a.PersonID
	}
	_, err = reconcile(ctx, authorships, publicationID, ids)
	return err
}
