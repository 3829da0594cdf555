// Package repository provides data access interfaces and their PostgreSQL
// implementations for the research registry.
//
// # Overview
//
// Entities live in flat tables keyed by integer ids. Relationships are stored
// as explicit id pairs (authorships, memberships, organization edges) and
// never as mutual object references.
//
// # Repository Interfaces
//
//   - PersonRepository: persons, name lookups, id reservation
//   - PublicationRepository: publication variants and duplicate candidates
//   - AuthorshipRepository: ranked person/publication links
//   - MembershipRepository: organization memberships
//   - OrganizationRepository: research organizations and hierarchy edges
//   - VenueRepository: journals and conferences
//   - RelationRepository: the remaining person-bearing tables, used by merges
//
// # Transactions
//
// Every implementation accepts DBTX so the same code runs on the pool or
// inside a transaction. Store bundles them and offers WithTx:
//
//	err := store.WithTx(ctx, func(r repository.Repos) error {
//	    if err := r.Persons.Create(ctx, person); err != nil {
//	        return err
//	    }
//	    return r.Authorships.Create(ctx, &domain.Authorship{...})
//	})
//
// # Error Handling
//
// Methods return the typed errors of the domain package:
//
//   - domain.ErrNotFound: the row does not exist
//   - domain.ErrAlreadyExists: unique constraint violation
//   - domain.ErrConflict: optimistic version check failed
//   - domain.ErrInvalidInput: invalid parameters
package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/dedup"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// applyPaginationDefaults clamps limit to [1, maxFilterLimit] and offset to >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isPgUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isPgForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}

// NameKey is the normalized full name persons are matched on exactly.
func NameKey(first, last string) string {
	return dedup.NormalizeName(first + " " + last)
}

// LastNameKey narrows similarity scans. It is the last token of the
// normalized last name, the token the name comparator matches on, so
// "van Beethoven" and "Beethoven" share a key.
func LastNameKey(last string) string {
	parts := strings.Fields(dedup.NormalizeName(last))
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
