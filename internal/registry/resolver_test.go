package registry

import (
	"context"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
	"github.com/helixir/research-registry-service/internal/repository/repotest"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	ada := store.AddPerson("Ada", "Lovelace")
	store.AddPerson("Alan", "Turing")
	ludwig := store.AddPerson("Ludwig", "Beethoven")
	persons := store.Repos().Persons

	r := NewResolver(dedup.DefaultComparator(), nil)

	tests := []struct {
		name        string
		token       string
		opts        ResolveOptions
		wantMatch   string
		wantID      int64
		wantCreated bool
		wantFirst   string
		wantLast    string
	}{
		{name: "numeric id", token: strconv.FormatInt(ada.ID, 10), wantMatch: MatchByID, wantID: ada.ID},
		{name: "exact first last", token: "Ada Lovelace", wantMatch: MatchExact, wantID: ada.ID},
		{name: "exact last comma first", token: "Lovelace, Ada", wantMatch: MatchExact, wantID: ada.ID},
		{name: "exact ignores case and accents", token: "ADA LOVELÀCE", wantMatch: MatchExact, wantID: ada.ID},
		{name: "initial with similarity", token: "A. Lovelace", opts: ResolveOptions{Similarity: true}, wantMatch: MatchSimilar, wantID: ada.ID},
		{
			name: "initial without similarity", token: "A. Lovelace",
			wantMatch: MatchByCreated, wantCreated: true, wantFirst: "A.", wantLast: "Lovelace",
		},
		{
			name: "typo needs full scan", token: "Ada Lovelacce", opts: ResolveOptions{Similarity: true},
			wantMatch: MatchByCreated, wantCreated: true, wantFirst: "Ada", wantLast: "Lovelacce",
		},
		{name: "typo with full scan", token: "Ada Lovelacce", opts: ResolveOptions{Similarity: true, FullScan: true}, wantMatch: MatchSimilar, wantID: ada.ID},
		{
			name: "particle ignored when narrowing candidates", token: "L. van Beethoven", opts: ResolveOptions{Similarity: true},
			wantMatch: MatchSimilar, wantID: ludwig.ID,
		},
		{
			name: "particle kept with last name", token: "Guido van Rossum", opts: ResolveOptions{Similarity: true},
			wantMatch: MatchByCreated, wantCreated: true, wantFirst: "Guido", wantLast: "van Rossum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(ctx, persons, tt.token, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatch, res.Match)
			assert.Equal(t, tt.wantCreated, res.Created)
			if tt.wantCreated {
				assert.Zero(t, res.Person.ID)
				assert.Equal(t, tt.wantFirst, res.Person.FirstName)
				assert.Equal(t, tt.wantLast, res.Person.LastName)
				return
			}
			assert.Equal(t, tt.wantID, res.Person.ID)
		})
	}

	count, _, _ := store.Counts()
	assert.Equal(t, 3, count, "resolving never saves")
}

func TestResolver_ResolveErrors(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	r := NewResolver(dedup.DefaultComparator(), nil)

	_, err := r.Resolve(ctx, store.Repos().Persons, "4242", ResolveOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Resolve(ctx, store.Repos().Persons, "   ", ResolveOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResolver_PreassignID(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	store.AddPerson("Ada", "Lovelace")
	r := NewResolver(dedup.DefaultComparator(), nil)

	res, err := r.Resolve(ctx, store.Repos().Persons, "Grace Hopper", ResolveOptions{PreassignID: true})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotZero(t, res.Person.ID)

	_, err = store.Repos().Persons.Get(ctx, res.Person.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Repos().Persons.Create(ctx, res.Person))
	got, err := store.Repos().Persons.Get(ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hopper", got.LastName)
}

func TestResolver_ResolveAuthors(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	ada := store.AddPerson("Ada", "Lovelace")

	m := observability.NewMetrics("test_registry_resolve_authors")
	r := NewResolver(dedup.DefaultComparator(), m)

	var ids []int64
	err := store.WithTx(ctx, func(repos repository.Repos) error {
		var err error
		ids, err = r.ResolveAuthors(ctx, repos, []string{"Hopper, Grace", "Ada Lovelace", "Grace Hopper"}, ResolveOptions{Similarity: true})
		return err
	})
	require.NoError(t, err)

	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2], "the second mention reuses the created person")
	assert.Equal(t, ada.ID, ids[1])

	count, _, _ := store.Counts()
	assert.Equal(t, 2, count)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthorResolutions.WithLabelValues(MatchByCreated)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthorResolutions.WithLabelValues(MatchExact)))
}

func TestResolver_ResolveAuthorsRollsBack(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	r := NewResolver(dedup.DefaultComparator(), nil)

	err := store.WithTx(ctx, func(repos repository.Repos) error {
		_, err := r.ResolveAuthors(ctx, repos, []string{"Grace Hopper", "999"}, ResolveOptions{})
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	count, _, _ := store.Counts()
	assert.Zero(t, count)
}

func TestRequireKnownMember(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	ada := store.AddPerson("Ada", "Lovelace")
	alan := store.AddPerson("Alan", "Turing")

	err := requireKnownMember(ctx, store.Repos(), []int64{ada.ID, alan.ID})
	assert.ErrorIs(t, err, domain.ErrBusinessRule)

	lab := mustOrganization(t, s, "Analytical Engines Lab")
	require.NoError(t, s.CreateMembership(ctx, &domain.Membership{
		PersonID: alan.ID, OrganizationID: lab.ID, Status: domain.StatusResearcher,
	}, false))

	assert.NoError(t, requireKnownMember(ctx, store.Repos(), []int64{ada.ID, alan.ID}))
}
