package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/helixir/research-registry-service/internal/domain"
)

// Relation names a person-bearing column outside the authorship table.
type Relation struct {
	// Name labels the relation in merge reports and metrics.
	Name   string
	Table  string
	Column string
}

// PersonRelations lists every column a merge must repoint besides
// authorships. Relation arguments are checked against this list before they
// reach SQL.
var PersonRelations = []Relation{
	{Name: "memberships", Table: "memberships", Column: "person_id"},
	{Name: "jury_members", Table: "jury_memberships", Column: "member_id"},
	{Name: "jury_candidates", Table: "jury_memberships", Column: "candidate_id"},
	{Name: "jury_promoters", Table: "jury_memberships", Column: "promoter_id"},
	{Name: "supervisors", Table: "supervisions", Column: "supervisor_id"},
	{Name: "supervised", Table: "supervisions", Column: "supervised_id"},
	{Name: "invitation_guests", Table: "invitations", Column: "guest_id"},
	{Name: "invitation_inviters", Table: "invitations", Column: "inviter_id"},
	{Name: "project_members", Table: "project_members", Column: "person_id"},
	{Name: "structure_holders", Table: "structure_holders", Column: "person_id"},
}

func knownRelation(rel Relation) bool {
	for _, r := range PersonRelations {
		if r == rel {
			return true
		}
	}
	return false
}

// RelationRepository moves and counts the rows of a Relation.
type RelationRepository interface {
	// Reassign points every row of rel referencing from at to, and returns
	// the number of rows changed.
	Reassign(ctx context.Context, rel Relation, from, to int64) (int, error)

	// Count returns how many rows of rel reference personID.
	Count(ctx context.Context, rel Relation, personID int64) (int, error)
}

var _ RelationRepository = (*PgRelationRepository)(nil)

// PgRelationRepository is a PostgreSQL implementation of RelationRepository.
type PgRelationRepository struct {
	db DBTX
}

// NewPgRelationRepository creates a new PostgreSQL relation repository.
func NewPgRelationRepository(db DBTX) *PgRelationRepository {
	return &PgRelationRepository{db: db}
}

// Reassign repoints the rows of rel from one person to another.
func (r *PgRelationRepository) Reassign(ctx context.Context, rel Relation, from, to int64) (int, error) {
	if !knownRelation(rel) {
		return 0, domain.NewValidationError("relation", fmt.Sprintf("unknown relation %s.%s", rel.Table, rel.Column))
	}

	column := pq.QuoteIdentifier(rel.Column)
	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, pq.QuoteIdentifier(rel.Table), column, column)

	result, err := r.db.Exec(ctx, query, to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign %s: %w", rel.Name, err)
	}
	return int(result.RowsAffected()), nil
}

// Count counts the rows of rel referencing a person.
func (r *PgRelationRepository) Count(ctx context.Context, rel Relation, personID int64) (int, error) {
	if !knownRelation(rel) {
		return 0, domain.NewValidationError("relation", fmt.Sprintf("unknown relation %s.%s", rel.Table, rel.Column))
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(rel.Table), pq.QuoteIdentifier(rel.Column))

	var n int
	if err := r.db.QueryRow(ctx, query, personID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", rel.Name, err)
	}
	return n, nil
}
