package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
)

func date(year int) *time.Time {
	d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &d
}

func orgIDs(orgs []*domain.ResearchOrganization) []int64 {
	out := make([]int64, len(orgs))
	for i, o := range orgs {
		out[i] = o.ID
	}
	return out
}

func TestOrganizationHierarchy(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)

	univ := mustOrganization(t, s, "University")
	faculty := mustOrganization(t, s, "Faculty of Science")
	lab := mustOrganization(t, s, "Systems Lab")
	team := mustOrganization(t, s, "Distributed Team")

	require.NoError(t, s.AddSubOrganization(ctx, univ.ID, faculty.ID))
	require.NoError(t, s.AddSubOrganization(ctx, faculty.ID, lab.ID))
	require.NoError(t, s.AddSubOrganization(ctx, lab.ID, team.ID))
	require.NoError(t, s.AddSubOrganization(ctx, univ.ID, lab.ID), "a second path is not a cycle")

	t.Run("rejects cycles", func(t *testing.T) {
		assert.ErrorIs(t, s.AddSubOrganization(ctx, team.ID, univ.ID), domain.ErrBusinessRule)
		assert.ErrorIs(t, s.AddSubOrganization(ctx, lab.ID, faculty.ID), domain.ErrBusinessRule)
		assert.ErrorIs(t, s.AddSubOrganization(ctx, lab.ID, lab.ID), domain.ErrBusinessRule)
	})

	t.Run("rejects duplicates and unknown ids", func(t *testing.T) {
		assert.ErrorIs(t, s.AddSubOrganization(ctx, univ.ID, faculty.ID), domain.ErrAlreadyExists)
		assert.ErrorIs(t, s.AddSubOrganization(ctx, univ.ID, 999), domain.ErrNotFound)
	})

	t.Run("transitive walks", func(t *testing.T) {
		subs, err := s.SubOrganizations(ctx, univ.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{faculty.ID, lab.ID, team.ID}, orgIDs(subs))

		supers, err := s.SuperOrganizations(ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{lab.ID, univ.ID, faculty.ID}, orgIDs(supers))
	})

	t.Run("remove edge", func(t *testing.T) {
		require.NoError(t, s.RemoveSubOrganization(ctx, lab.ID, team.ID))
		subs, err := s.SubOrganizations(ctx, univ.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{faculty.ID, lab.ID}, orgIDs(subs))

		assert.ErrorIs(t, s.RemoveSubOrganization(ctx, lab.ID, team.ID), domain.ErrNotFound)
		require.NoError(t, s.AddSubOrganization(ctx, team.ID, univ.ID), "no cycle once the edge is gone")
	})

	assert.Contains(t, store.Locks(), "organization_hierarchy:0")
}

func TestCreateOrganization_Validation(t *testing.T) {
	s, _ := newTestService(t)
	err := s.CreateOrganization(context.Background(), &domain.ResearchOrganization{Name: "X", Type: "guild"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateMembership_Overlap(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	p := store.AddPerson("Ada", "Lovelace")
	lab := mustOrganization(t, s, "Lab")
	other := mustOrganization(t, s, "Other lab")

	first := &domain.Membership{PersonID: p.ID, OrganizationID: lab.ID, Since: date(2015), To: date(2018), Status: domain.StatusPhDStudent}
	require.NoError(t, s.CreateMembership(ctx, first, false))

	tests := []struct {
		name    string
		m       domain.Membership
		force   bool
		wantErr error
	}{
		{
			name:    "overlapping interval",
			m:       domain.Membership{OrganizationID: lab.ID, Since: date(2017), Status: domain.StatusPostdoc},
			wantErr: domain.ErrBusinessRule,
		},
		{
			name:  "overlapping interval forced",
			m:     domain.Membership{OrganizationID: lab.ID, Since: date(2017), To: date(2017), Status: domain.StatusVisitor},
			force: true,
		},
		{
			name: "after the previous one",
			m:    domain.Membership{OrganizationID: lab.ID, Since: date(2019), Status: domain.StatusResearcher},
		},
		{
			name: "other organization",
			m:    domain.Membership{OrganizationID: other.ID, Since: date(2016), Status: domain.StatusVisitor},
		},
		{
			name:    "unknown organization",
			m:       domain.Membership{OrganizationID: 999, Status: domain.StatusVisitor},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "invalid status",
			m:       domain.Membership{OrganizationID: lab.ID, Status: "dean"},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			m.PersonID = p.ID
			err := s.CreateMembership(ctx, &m, tt.force)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, m.ID)
		})
	}

	list, err := s.ListMemberships(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	require.NoError(t, s.DeleteMembership(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteMembership(ctx, first.ID), domain.ErrNotFound)

	_, err = s.ListMemberships(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
