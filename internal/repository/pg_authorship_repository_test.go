package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
)

func TestPgAuthorshipRepository_ListByPublication(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, person_id, publication_id, rank FROM authorships WHERE publication_id = \\$1 ORDER BY rank").
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "person_id", "publication_id", "rank"}).
			AddRow(int64(1), int64(5), int64(10), 0).
			AddRow(int64(2), int64(6), int64(10), 1))

	list, err := NewPgAuthorshipRepository(mock).ListByPublication(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(6), list[1].PersonID)
	assert.Equal(t, 1, list[1].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAuthorshipRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("INSERT INTO authorships").
			WithArgs(int64(5), int64(10), 2).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(33)))

		a := &domain.Authorship{PersonID: 5, PublicationID: 10, Rank: 2}
		require.NoError(t, NewPgAuthorshipRepository(mock).Create(ctx, a))
		assert.Equal(t, int64(33), a.ID)
	})

	t.Run("rejects negative rank", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		err = NewPgAuthorshipRepository(mock).Create(ctx, &domain.Authorship{PersonID: 5, PublicationID: 10, Rank: -1})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("duplicate author", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("INSERT INTO authorships").WithArgs(int64(5), int64(10), 0).WillReturnError(&pgconn.PgError{Code: "23505"})

		err = NewPgAuthorshipRepository(mock).Create(ctx, &domain.Authorship{PersonID: 5, PublicationID: 10})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})
}

func TestPgAuthorshipRepository_Mutations(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgAuthorshipRepository(mock)

	mock.ExpectExec("UPDATE authorships SET rank").WithArgs(-1, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE authorships SET person_id").WithArgs(int64(7), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM authorships").WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM authorships WHERE person_id").WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	require.NoError(t, repo.UpdateRank(ctx, 1, -1))
	require.NoError(t, repo.Reassign(ctx, 1, 7))
	assert.ErrorIs(t, repo.Delete(ctx, 1), domain.ErrNotFound)
	n, err := repo.CountByPerson(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
