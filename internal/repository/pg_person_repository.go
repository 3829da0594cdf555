package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/domain"
)

var _ PersonRepository = (*PgPersonRepository)(nil)

const personColumns = `id, first_name, last_name, email, orcid, scopus_id, google_scholar_id,
			wos_id, openalex_id, indicators, version, created_at, updated_at`

// PgPersonRepository is a PostgreSQL implementation of PersonRepository.
type PgPersonRepository struct {
	db DBTX
}

// NewPgPersonRepository creates a new PostgreSQL person repository.
func NewPgPersonRepository(db DBTX) *PgPersonRepository {
	return &PgPersonRepository{db: db}
}

// NextID reserves the next person id.
func (r *PgPersonRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, "SELECT nextval('persons_id_seq')").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to reserve person id: %w", err)
	}
	return id, nil
}

// Create inserts a new person.
func (r *PgPersonRepository) Create(ctx context.Context, p *domain.Person) error {
	if p == nil {
		return domain.NewValidationError("person", "person cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	indicators, err := marshalIndicators(p.Indicators)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO persons (
			id, first_name, last_name, name_key, last_name_key,
			email, orcid, scopus_id, google_scholar_id, wos_id, openalex_id, indicators
		) VALUES (
			COALESCE($1, nextval('persons_id_seq')), $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id, version, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		nullInt64(p.ID), p.FirstName, p.LastName, NameKey(p.FirstName, p.LastName), LastNameKey(p.LastName),
		nullString(p.Email), nullString(p.ORCID), nullString(p.ScopusID), nullString(p.GoogleScholarID),
		nullString(p.WosID), nullString(p.OpenAlexID), indicators,
	).Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("person", p.FullName())
		}
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// Get retrieves a person by id.
func (r *PgPersonRepository) Get(ctx context.Context, id int64) (*domain.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = $1`

	p, err := scanPerson(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("person", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// Update stores p when its version matches the stored one.
func (r *PgPersonRepository) Update(ctx context.Context, p *domain.Person) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE persons SET
			first_name = $1,
			last_name = $2,
			name_key = $3,
			last_name_key = $4,
			email = $5,
			orcid = $6,
			scopus_id = $7,
			google_scholar_id = $8,
			wos_id = $9,
			openalex_id = $10,
			version = version + 1,
			updated_at = now()
		WHERE id = $11 AND version = $12
		RETURNING version, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.FirstName, p.LastName, NameKey(p.FirstName, p.LastName), LastNameKey(p.LastName),
		nullString(p.Email), nullString(p.ORCID), nullString(p.ScopusID), nullString(p.GoogleScholarID),
		nullString(p.WosID), nullString(p.OpenAlexID),
		p.ID, p.Version,
	).Scan(&p.Version, &p.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("person", p.ORCID)
		}
		return fmt.Errorf("failed to update person: %w", err)
	}
	if _, getErr := r.Get(ctx, p.ID); getErr != nil {
		return getErr
	}
	return domain.NewConflictError("person", strconv.FormatInt(p.ID, 10), p.Version)
}

// Delete removes a person.
func (r *PgPersonRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return domain.NewBusinessRuleError("person_referenced",
				fmt.Sprintf("person %d is still referenced by other records", id))
		}
		return fmt.Errorf("failed to delete person: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("person", strconv.FormatInt(id, 10))
	}
	return nil
}

// List retrieves persons matching the filter.
func (r *PgPersonRepository) List(ctx context.Context, filter PersonFilter) ([]*domain.Person, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	whereClause := "TRUE"
	var args []interface{}
	if name := strings.TrimSpace(filter.Name); name != "" {
		whereClause = "(first_name ILIKE $1 OR last_name ILIKE $1)"
		args = append(args, "%"+name+"%")
	}

	var totalCount int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM persons WHERE %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count persons: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM persons
		WHERE %s
		ORDER BY last_name_key, name_key, id
		LIMIT $%d OFFSET $%d`,
		personColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list persons: %w", err)
	}
	persons, err := collectPersons(rows)
	if err != nil {
		return nil, 0, err
	}
	return persons, totalCount, nil
}

// FindByName returns persons with the same normalized full name.
func (r *PgPersonRepository) FindByName(ctx context.Context, first, last string) ([]*domain.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE name_key = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, NameKey(first, last))
	if err != nil {
		return nil, fmt.Errorf("failed to find persons by name: %w", err)
	}
	return collectPersons(rows)
}

// FindByLastName returns persons with the same normalized last name.
func (r *PgPersonRepository) FindByLastName(ctx context.Context, last string) ([]*domain.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE last_name_key = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, LastNameKey(last))
	if err != nil {
		return nil, fmt.Errorf("failed to find persons by last name: %w", err)
	}
	return collectPersons(rows)
}

// ListAll returns every person.
func (r *PgPersonRepository) ListAll(ctx context.Context) ([]domain.Person, error) {
	return r.listValues(ctx, `SELECT `+personColumns+` FROM persons ORDER BY id`)
}

// ListWithPlatformIDs returns persons known to at least one platform.
func (r *PgPersonRepository) ListWithPlatformIDs(ctx context.Context) ([]domain.Person, error) {
	return r.listValues(ctx, `
		SELECT `+personColumns+`
		FROM persons
		WHERE scopus_id IS NOT NULL OR openalex_id IS NOT NULL OR orcid IS NOT NULL
		ORDER BY id`)
}

func (r *PgPersonRepository) listValues(ctx context.Context, query string) ([]domain.Person, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	persons, err := collectPersons(rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Person, len(persons))
	for i, p := range persons {
		out[i] = *p
	}
	return out, nil
}

// UpdateIndicators replaces the stored indicators.
func (r *PgPersonRepository) UpdateIndicators(ctx context.Context, id int64, indicators domain.Indicators) error {
	data, err := marshalIndicators(indicators)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, `
		UPDATE persons SET indicators = $1, indicators_updated_at = now()
		WHERE id = $2`, data, id)
	if err != nil {
		return fmt.Errorf("failed to update indicators: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("person", strconv.FormatInt(id, 10))
	}
	return nil
}

func marshalIndicators(ind domain.Indicators) ([]byte, error) {
	if ind == nil {
		ind = domain.Indicators{}
	}
	data, err := json.Marshal(ind)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal indicators: %w", err)
	}
	return data, nil
}

// personScanDest holds the destination pointers for scanning a person row.
type personScanDest struct {
	person          domain.Person
	email           *string
	orcid           *string
	scopusID        *string
	googleScholarID *string
	wosID           *string
	openAlexID      *string
	indicators      []byte
}

func (d *personScanDest) destinations() []interface{} {
	return []interface{}{
		&d.person.ID, &d.person.FirstName, &d.person.LastName, &d.email, &d.orcid, &d.scopusID,
		&d.googleScholarID, &d.wosID, &d.openAlexID, &d.indicators,
		&d.person.Version, &d.person.CreatedAt, &d.person.UpdatedAt,
	}
}

func (d *personScanDest) finalize() (*domain.Person, error) {
	d.person.Email = derefString(d.email)
	d.person.ORCID = derefString(d.orcid)
	d.person.ScopusID = derefString(d.scopusID)
	d.person.GoogleScholarID = derefString(d.googleScholarID)
	d.person.WosID = derefString(d.wosID)
	d.person.OpenAlexID = derefString(d.openAlexID)

	if len(d.indicators) > 0 {
		if err := json.Unmarshal(d.indicators, &d.person.Indicators); err != nil {
			return nil, fmt.Errorf("failed to unmarshal indicators: %w", err)
		}
		if len(d.person.Indicators) == 0 {
			d.person.Indicators = nil
		}
	}
	return &d.person, nil
}

func scanPerson(row pgx.Row) (*domain.Person, error) {
	var dest personScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func collectPersons(rows pgx.Rows) ([]*domain.Person, error) {
	defer rows.Close()

	var persons []*domain.Person
	for rows.Next() {
		var dest personScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p, err := dest.finalize()
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating persons: %w", err)
	}
	return persons, nil
}
