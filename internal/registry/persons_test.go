package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/repository"
)

func TestPersonCRUD(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	p := &domain.Person{FirstName: "Ada", LastName: "Lovelace", ORCID: "0000-0002-1825-0097"}
	require.NoError(t, s.CreatePerson(ctx, p))
	require.NotZero(t, p.ID)

	err := s.CreatePerson(ctx, &domain.Person{FirstName: "Nameless"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := s.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.FullName())

	got.Email = "ada@example.org"
	require.NoError(t, s.UpdatePerson(ctx, got))
	assert.Equal(t, 2, got.Version)

	stale := *p
	stale.Email = "stale@example.org"
	err = s.UpdatePerson(ctx, &stale)
	assert.ErrorIs(t, err, domain.ErrConflict)

	list, total, err := s.ListPersons(ctx, repository.PersonFilter{Name: "love"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "ada@example.org", list[0].Email)
}

func TestPersonPublications(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	ada := store.AddPerson("Ada", "Lovelace")
	alan := store.AddPerson("Alan", "Turing")
	store.AddPublication(domain.TypeBook, "Notes", 1843, ada.ID)
	store.AddPublication(domain.TypeReport, "Computable numbers", 1936, alan.ID)
	joint := store.AddPublication(domain.TypeReport, "Joint", 1950, alan.ID, ada.ID)

	pubs, total, err := s.PersonPublications(ctx, ada.ID, repository.PublicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, pubs, 2)
	assert.Equal(t, joint.ID, pubs[0].ID)

	_, _, err = s.PersonPublications(ctx, 999, repository.PublicationFilter{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemovePerson_RenumbersCoauthors(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	a := store.AddPerson("Ada", "Lovelace")
	b := store.AddPerson("Charles", "Babbage")
	c := store.AddPerson("Alan", "Turing")
	pub := store.AddPublication(domain.TypeBook, "Engines", 1840, a.ID, b.ID, c.ID)
	solo := store.AddPublication(domain.TypeBook, "Difference engine", 1822, b.ID)
	lab := mustOrganization(t, s, "Royal Society")
	require.NoError(t, s.CreateMembership(ctx, &domain.Membership{PersonID: b.ID, OrganizationID: lab.ID, Status: domain.StatusFullProfessor}, false))

	require.Equal(t, []int{0, 1, 2}, store.Ranks(pub.ID))

	require.NoError(t, s.RemovePerson(ctx, b.ID))

	assert.Equal(t, []int{0, 1}, store.Ranks(pub.ID))
	assert.Equal(t, []int64{a.ID, c.ID}, store.AuthorIDs(pub.ID))
	assert.Empty(t, store.AuthorIDs(solo.ID))

	_, err := s.GetPerson(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	memberships, err := store.Repos().Memberships.ListByOrganization(ctx, lab.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypePersonRemoved, events[0].EventType)
	var payload domain.PersonRemovedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, b.ID, payload.PersonID)
	assert.ElementsMatch(t, []int64{pub.ID, solo.ID}, payload.RenumberedPublications)
}

func TestRemovePerson_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		s, _ := newTestService(t)
		assert.ErrorIs(t, s.RemovePerson(ctx, 42), domain.ErrNotFound)
	})

	t.Run("still referenced", func(t *testing.T) {
		s, store := newTestService(t)
		a := store.AddPerson("Ada", "Lovelace")
		b := store.AddPerson("Charles", "Babbage")
		pub := store.AddPublication(domain.TypeBook, "Engines", 1840, a.ID, b.ID)
		store.AddRelationRow(relationByName(t, "supervisors"), b.ID)

		err := s.RemovePerson(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrBusinessRule)
		assert.Equal(t, []int64{a.ID, b.ID}, store.AuthorIDs(pub.ID))
		assert.Empty(t, store.Events())
	})
}
