package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/domain"
)

var _ PublicationRepository = (*PgPublicationRepository)(nil)

const publicationColumns = `id, kind, title, publication_date, publication_year, doi, hal_id,
			isbn, issn, abstract, keywords, url, language, file_path, details,
			version, created_at, updated_at`

// PgPublicationRepository is a PostgreSQL implementation of PublicationRepository.
type PgPublicationRepository struct {
	db DBTX
}

// NewPgPublicationRepository creates a new PostgreSQL publication repository.
func NewPgPublicationRepository(db DBTX) *PgPublicationRepository {
	return &PgPublicationRepository{db: db}
}

// Create inserts a new publication.
func (r *PgPublicationRepository) Create(ctx context.Context, p *domain.Publication) error {
	if p == nil {
		return domain.NewValidationError("publication", "publication cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	details, err := json.Marshal(p.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal %s details: %w", p.Kind, err)
	}

	query := `
		INSERT INTO publications (
			kind, title, title_key, publication_date, publication_year, doi, hal_id,
			isbn, issn, abstract, keywords, url, language, file_path, details,
			journal_id, conference_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17
		)
		RETURNING id, version, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		string(p.Kind), p.Title, dedup.NormalizeTitle(p.Title), p.PublicationDate, nullInt(p.PublicationYear),
		nullString(p.DOI), nullString(p.HalID), nullString(p.ISBN), nullString(p.ISSN),
		nullString(p.Abstract), keywordsOrEmpty(p.Keywords), nullString(p.URL), nullString(p.Language),
		nullString(p.FilePath), details, nullInt64(p.JournalID()), nullInt64(p.ConferenceID()),
	).Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return venueNotFound(p)
		}
		return fmt.Errorf("failed to create publication: %w", err)
	}
	return nil
}

// Get retrieves a publication by id.
func (r *PgPublicationRepository) Get(ctx context.Context, id int64) (*domain.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE id = $1`

	p, err := scanPublication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("publication", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get publication: %w", err)
	}
	return p, nil
}

// Update rewrites a publication when its version matches.
func (r *PgPublicationRepository) Update(ctx context.Context, p *domain.Publication) error {
	if err := p.Validate(); err != nil {
		return err
	}

	details, err := json.Marshal(p.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal %s details: %w", p.Kind, err)
	}

	query := `
		UPDATE publications SET
			kind = $1,
			title = $2,
			title_key = $3,
			publication_date = $4,
			publication_year = $5,
			doi = $6,
			hal_id = $7,
			isbn = $8,
			issn = $9,
			abstract = $10,
			keywords = $11,
			url = $12,
			language = $13,
			file_path = $14,
			details = $15,
			journal_id = $16,
			conference_id = $17,
			version = version + 1,
			updated_at = now()
		WHERE id = $18 AND version = $19
		RETURNING version, updated_at`

	err = r.db.QueryRow(ctx, query,
		string(p.Kind), p.Title, dedup.NormalizeTitle(p.Title), p.PublicationDate, nullInt(p.PublicationYear),
		nullString(p.DOI), nullString(p.HalID), nullString(p.ISBN), nullString(p.ISSN),
		nullString(p.Abstract), keywordsOrEmpty(p.Keywords), nullString(p.URL), nullString(p.Language),
		nullString(p.FilePath), details, nullInt64(p.JournalID()), nullInt64(p.ConferenceID()),
		p.ID, p.Version,
	).Scan(&p.Version, &p.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isPgForeignKeyViolation(err) {
			return venueNotFound(p)
		}
		return fmt.Errorf("failed to update publication: %w", err)
	}
	if _, getErr := r.Get(ctx, p.ID); getErr != nil {
		return getErr
	}
	return domain.NewConflictError("publication", strconv.FormatInt(p.ID, 10), p.Version)
}

// Delete removes a publication.
func (r *PgPublicationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM publications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete publication: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("publication", strconv.FormatInt(id, 10))
	}
	return nil
}

// List retrieves publications matching the filter, newest first.
func (r *PgPublicationRepository) List(ctx context.Context, filter PublicationFilter) ([]*domain.Publication, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := []string{"TRUE"}
	var args []interface{}
	argIndex := 1

	if filter.PersonID != 0 {
		conditions = append(conditions, fmt.Sprintf(
			"id IN (SELECT publication_id FROM authorships WHERE person_id = $%d)", argIndex))
		args = append(args, filter.PersonID)
		argIndex++
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("publication_year = $%d", argIndex))
		args = append(args, filter.Year)
		argIndex++
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIndex))
		args = append(args, string(filter.Kind))
		argIndex++
	}
	if len(filter.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", argIndex))
		args = append(args, filter.IDs)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	var totalCount int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM publications WHERE %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count publications: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM publications
		WHERE %s
		ORDER BY publication_year DESC NULLS LAST, title_key, id
		LIMIT $%d OFFSET $%d`,
		publicationColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list publications: %w", err)
	}
	pubs, err := collectPublications(rows)
	if err != nil {
		return nil, 0, err
	}
	return pubs, totalCount, nil
}

// FindByDOI looks a publication up by DOI.
func (r *PgPublicationRepository) FindByDOI(ctx context.Context, doi string) (*domain.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE lower(doi) = lower($1) LIMIT 1`

	p, err := scanPublication(r.db.QueryRow(ctx, query, doi))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("publication", doi)
		}
		return nil, fmt.Errorf("failed to find publication by DOI: %w", err)
	}
	return p, nil
}

// FindTitleCandidates returns possible duplicates of a title.
func (r *PgPublicationRepository) FindTitleCandidates(ctx context.Context, title string, year int) ([]*domain.Publication, error) {
	query := `
		SELECT ` + publicationColumns + `
		FROM publications
		WHERE title_key = $1 OR ($2::int <> 0 AND publication_year = $2)
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, dedup.NormalizeTitle(title), year)
	if err != nil {
		return nil, fmt.Errorf("failed to find title candidates: %w", err)
	}
	return collectPublications(rows)
}

func venueNotFound(p *domain.Publication) error {
	if id := p.JournalID(); id != 0 {
		return domain.NewNotFoundError("journal", strconv.FormatInt(id, 10))
	}
	if id := p.ConferenceID(); id != 0 {
		return domain.NewNotFoundError("conference", strconv.FormatInt(id, 10))
	}
	return fmt.Errorf("publication references a missing row: %w", domain.ErrNotFound)
}

func keywordsOrEmpty(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}

// publicationScanDest holds the destination pointers for scanning a publication row.
type publicationScanDest struct {
	pub      domain.Publication
	kind     string
	date     *time.Time
	year     *int
	doi      *string
	halID    *string
	isbn     *string
	issn     *string
	abstract *string
	url      *string
	language *string
	filePath *string
	details  []byte
}

func (d *publicationScanDest) destinations() []interface{} {
	return []interface{}{
		&d.pub.ID, &d.kind, &d.pub.Title, &d.date, &d.year, &d.doi, &d.halID,
		&d.isbn, &d.issn, &d.abstract, &d.pub.Keywords, &d.url, &d.language, &d.filePath, &d.details,
		&d.pub.Version, &d.pub.CreatedAt, &d.pub.UpdatedAt,
	}
}

func (d *publicationScanDest) finalize() (*domain.Publication, error) {
	d.pub.Kind = domain.PublicationType(d.kind)
	d.pub.PublicationDate = d.date
	if d.year != nil {
		d.pub.PublicationYear = *d.year
	}
	d.pub.DOI = derefString(d.doi)
	d.pub.HalID = derefString(d.halID)
	d.pub.ISBN = derefString(d.isbn)
	d.pub.ISSN = derefString(d.issn)
	d.pub.Abstract = derefString(d.abstract)
	d.pub.URL = derefString(d.url)
	d.pub.Language = derefString(d.language)
	d.pub.FilePath = derefString(d.filePath)
	if len(d.pub.Keywords) == 0 {
		d.pub.Keywords = nil
	}

	details, err := domain.DecodePayload(d.pub.Kind, d.details)
	if err != nil {
		return nil, err
	}
	d.pub.Details = details
	return &d.pub, nil
}

func scanPublication(row pgx.Row) (*domain.Publication, error) {
	var dest publicationScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func collectPublications(rows pgx.Rows) ([]*domain.Publication, error) {
	defer rows.Close()

	var pubs []*domain.Publication
	for rows.Next() {
		var dest publicationScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		p, err := dest.finalize()
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating publications: %w", err)
	}
	return pubs, nil
}
