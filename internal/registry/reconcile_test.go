package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
	"github.com/helixir/research-registry-service/internal/repository/repotest"
)

// rankChecker fails the test whenever two rows of a publication share a
// rank after a write, which a non-deferred constraint would reject.
type rankChecker struct {
	repository.AuthorshipRepository
	t             *testing.T
	publicationID int64
	writes        int
}

func (c *rankChecker) check() {
	list, err := c.AuthorshipRepository.ListByPublication(context.Background(), c.publicationID)
	require.NoError(c.t, err)
	seen := map[int]bool{}
	for _, a := range list {
		assert.False(c.t, seen[a.Rank], "rank %d used twice mid-update", a.Rank)
		seen[a.Rank] = true
	}
}

func (c *rankChecker) UpdateRank(ctx context.Context, id int64, rank int) error {
	c.writes++
	if err := c.AuthorshipRepository.UpdateRank(ctx, id, rank); err != nil {
		return err
	}
	c.check()
	return nil
}

func (c *rankChecker) Create(ctx context.Context, a *domain.Authorship) error {
	c.writes++
	if err := c.AuthorshipRepository.Create(ctx, a); err != nil {
		return err
	}
	c.check()
	return nil
}

func (c *rankChecker) Delete(ctx context.Context, id int64) error {
	c.writes++
	return c.AuthorshipRepository.Delete(ctx, id)
}

func reconcileIn(t *testing.T, store *repotest.Store, publicationID int64, desired []int64) (int, error) {
	t.Helper()
	var writes int
	err := store.WithTx(context.Background(), func(r repository.Repos) error {
		checker := &rankChecker{AuthorshipRepository: r.Authorships, t: t, publicationID: publicationID}
		r.Authorships = checker
		err := NewReconciler(nil).ReconcileAuthors(context.Background(), r, publicationID, desired)
		writes = checker.writes
		return err
	})
	return writes, err
}

func contiguous(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestCollapseAuthors(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{name: "empty", in: nil, want: []int64{}},
		{name: "no duplicates", in: []int64{3, 1, 2}, want: []int64{3, 1, 2}},
		{name: "later position wins", in: []int64{1, 2, 1}, want: []int64{2, 1}},
		{name: "repeated at the end", in: []int64{1, 2, 3, 3}, want: []int64{1, 2, 3}},
		{name: "all the same", in: []int64{7, 7, 7}, want: []int64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collapseAuthors(tt.in))
		})
	}
}

func TestReconcileAuthors_RanksStayContiguous(t *testing.T) {
	store := repotest.NewStore()
	var ids []int64
	for _, name := range []string{"Lovelace", "Turing", "Hopper", "Knuth", "Liskov"} {
		ids = append(ids, store.AddPerson("", name).ID)
	}
	a, b, c, d, e := ids[0], ids[1], ids[2], ids[3], ids[4]
	pub := store.AddPublication(domain.TypeBook, "Collected papers", 2001, a, b, c)

	steps := []struct {
		desired []int64
		want    []int64
	}{
		{desired: []int64{c, b, a}, want: []int64{c, b, a}},
		{desired: []int64{d, c}, want: []int64{d, c}},
		{desired: []int64{a, d, e, c, b}, want: []int64{a, d, e, c, b}},
		{desired: []int64{e, a, e}, want: []int64{a, e}},
		{desired: []int64{b, a, c, d, e}, want: []int64{b, a, c, d, e}},
		{desired: []int64{}, want: []int64{}},
		{desired: []int64{c}, want: []int64{c}},
	}

	for i, step := range steps {
		_, err := reconcileIn(t, store, pub.ID, step.desired)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.want, store.AuthorIDs(pub.ID), "step %d", i)
		assert.Equal(t, contiguous(len(step.want)), store.Ranks(pub.ID), "step %d", i)
	}
}

func TestReconcileAuthors_Idempotent(t *testing.T) {
	store := repotest.NewStore()
	a := store.AddPerson("Ada", "Lovelace")
	b := store.AddPerson("Alan", "Turing")
	c := store.AddPerson("Grace", "Hopper")
	pub := store.AddPublication(domain.TypeReport, "Report", 1950, a.ID, b.ID)

	desired := []int64{c.ID, a.ID, c.ID, b.ID}

	writes, err := reconcileIn(t, store, pub.ID, desired)
	require.NoError(t, err)
	assert.Positive(t, writes)
	first := store.AuthorIDs(pub.ID)

	writes, err = reconcileIn(t, store, pub.ID, desired)
	require.NoError(t, err)
	assert.Zero(t, writes)
	assert.Equal(t, first, store.AuthorIDs(pub.ID))
	assert.Equal(t, []int64{a.ID, c.ID, b.ID}, first)
}

func TestReconcileAuthors_NoWritesWhenUnchanged(t *testing.T) {
	store := repotest.NewStore()
	a := store.AddPerson("Ada", "Lovelace")
	b := store.AddPerson("Alan", "Turing")
	pub := store.AddPublication(domain.TypeReport, "Report", 1950, a.ID, b.ID)

	boom := errors.New("unexpected write")
	store.FailOn["Authorships.UpdateRank"] = boom
	store.FailOn["Authorships.Create"] = boom
	store.FailOn["Authorships.Delete"] = boom

	_, err := reconcileIn(t, store, pub.ID, []int64{a.ID, b.ID})
	require.NoError(t, err)
}

func TestReconcileAuthors_Errors(t *testing.T) {
	store := repotest.NewStore()
	a := store.AddPerson("Ada", "Lovelace")
	pub := store.AddPublication(domain.TypeReport, "Report", 1950, a.ID)

	t.Run("invalid id", func(t *testing.T) {
		_, err := reconcileIn(t, store, pub.ID, []int64{a.ID, 0})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown person rolls back", func(t *testing.T) {
		_, err := reconcileIn(t, store, pub.ID, []int64{9999, a.ID})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, []int64{a.ID}, store.AuthorIDs(pub.ID))
		assert.Equal(t, []int{0}, store.Ranks(pub.ID))
	})
}

func TestReconcileAuthors_RecordsChanges(t *testing.T) {
	store := repotest.NewStore()
	a := store.AddPerson("Ada", "Lovelace")
	b := store.AddPerson("Alan", "Turing")
	pub := store.AddPublication(domain.TypeReport, "Report", 1950, a.ID)

	m := observability.NewMetrics("test_registry_reconcile")
	rc := NewReconciler(m)
	run := func() {
		require.NoError(t, store.WithTx(context.Background(), func(r repository.Repos) error {
			return rc.ReconcileAuthors(context.Background(), r, pub.ID, []int64{b.ID, a.ID})
		}))
	}
	run()
	run()

	assert.Equal(t, []int64{b.ID, a.ID}, store.AuthorIDs(pub.ID))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reconciliations))
}
