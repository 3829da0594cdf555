package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/domain"
)

var _ VenueRepository = (*PgVenueRepository)(nil)

// PgVenueRepository is a PostgreSQL implementation of VenueRepository.
type PgVenueRepository struct {
	db DBTX
}

// NewPgVenueRepository creates a new PostgreSQL venue repository.
func NewPgVenueRepository(db DBTX) *PgVenueRepository {
	return &PgVenueRepository{db: db}
}

// FindJournal looks a journal up by ISSN, then by name.
func (r *PgVenueRepository) FindJournal(ctx context.Context, name, issn string) (*domain.Journal, error) {
	if issn = strings.TrimSpace(issn); issn != "" {
		j, err := r.scanJournal(r.db.QueryRow(ctx, `
			SELECT id, name, publisher, issn, open_access
			FROM journals WHERE issn = $1 ORDER BY id LIMIT 1`, issn))
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to find journal: %w", err)
		}
	}

	j, err := r.scanJournal(r.db.QueryRow(ctx, `
		SELECT id, name, publisher, issn, open_access
		FROM journals WHERE lower(name) = lower($1)`, strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("journal", name)
		}
		return nil, fmt.Errorf("failed to find journal: %w", err)
	}
	return j, nil
}

// CreateJournal inserts a journal.
func (r *PgVenueRepository) CreateJournal(ctx context.Context, j *domain.Journal) error {
	if j == nil || strings.TrimSpace(j.Name) == "" {
		return domain.NewValidationError("journal.name", "is required")
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO journals (name, publisher, issn, open_access)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		strings.TrimSpace(j.Name), nullString(j.Publisher), nullString(j.ISSN), j.OpenAccess,
	).Scan(&j.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("journal", j.Name)
		}
		return fmt.Errorf("failed to create journal: %w", err)
	}
	return nil
}

// GetJournal retrieves a journal by id.
func (r *PgVenueRepository) GetJournal(ctx context.Context, id int64) (*domain.Journal, error) {
	j, err := r.scanJournal(r.db.QueryRow(ctx, `
		SELECT id, name, publisher, issn, open_access
		FROM journals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("journal", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get journal: %w", err)
	}
	return j, nil
}

// FindConference looks a conference up by name.
func (r *PgVenueRepository) FindConference(ctx context.Context, name string) (*domain.Conference, error) {
	c, err := r.scanConference(r.db.QueryRow(ctx, `
		SELECT id, name, acronym, publisher, issn, isbn
		FROM conferences WHERE lower(name) = lower($1)`, strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("conference", name)
		}
		return nil, fmt.Errorf("failed to find conference: %w", err)
	}
	return c, nil
}

// CreateConference inserts a conference.
func (r *PgVenueRepository) CreateConference(ctx context.Context, c *domain.Conference) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return domain.NewValidationError("conference.name", "is required")
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO conferences (name, acronym, publisher, issn, isbn)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		strings.TrimSpace(c.Name), nullString(c.Acronym), nullString(c.Publisher), nullString(c.ISSN), nullString(c.ISBN),
	).Scan(&c.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("conference", c.Name)
		}
		return fmt.Errorf("failed to create conference: %w", err)
	}
	return nil
}

// GetConference retrieves a conference by id.
func (r *PgVenueRepository) GetConference(ctx context.Context, id int64) (*domain.Conference, error) {
	c, err := r.scanConference(r.db.QueryRow(ctx, `
		SELECT id, name, acronym, publisher, issn, isbn
		FROM conferences WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("conference", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get conference: %w", err)
	}
	return c, nil
}

func (r *PgVenueRepository) scanJournal(row pgx.Row) (*domain.Journal, error) {
	var j domain.Journal
	var publisher, issn *string
	if err := row.Scan(&j.ID, &j.Name, &publisher, &issn, &j.OpenAccess); err != nil {
		return nil, err
	}
	j.Publisher = derefString(publisher)
	j.ISSN = derefString(issn)
	return &j, nil
}

func (r *PgVenueRepository) scanConference(row pgx.Row) (*domain.Conference, error) {
	var c domain.Conference
	var acronym, publisher, issn, isbn *string
	if err := row.Scan(&c.ID, &c.Name, &acronym, &publisher, &issn, &isbn); err != nil {
		return nil, err
	}
	c.Acronym = derefString(acronym)
	c.Publisher = derefString(publisher)
	c.ISSN = derefString(issn)
	c.ISBN = derefString(isbn)
	return &c, nil
}
