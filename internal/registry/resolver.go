package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
)

// Resolution kinds, used as metric labels.
const (
	MatchByID      = "id"
	MatchExact     = "exact"
	MatchSimilar   = "similar"
	MatchByCreated = "created"
)

// ResolveOptions controls how free-text author tokens are matched.
type ResolveOptions struct {
	// Similarity enables comparator matching after the exact lookup fails.
	Similarity bool
	// FullScan widens the similarity lookup from persons sharing the last
	// name to every person.
	FullScan bool
	// PreassignID reserves an id for persons that are not found.
	PreassignID bool
}

// Resolution is the outcome of resolving one author token.
type Resolution struct {
	Person  *domain.Person
	Created bool
	Match   string
}

// Resolver turns author tokens into persons. It never writes: a person that
// is not found comes back unsaved with Created set.
type Resolver struct {
	comparator dedup.Comparator
	metrics    *observability.Metrics
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(c dedup.Comparator, metrics *observability.Metrics) *Resolver {
	return &Resolver{comparator: c, metrics: metrics}
}

// Resolve resolves token against persons.
//
// A purely numeric token is a person id and must exist. Any other token is
// split into first and last name and looked up exactly, then by similarity
// when enabled. When nothing matches a new unsaved person is returned.
func (r *Resolver) Resolve(ctx context.Context, persons repository.PersonRepository, token string, opts ResolveOptions) (*Resolution, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.NewValidationError("author", "author name is empty")
	}

	if isNumeric(token) {
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, domain.NewValidationError("author", fmt.Sprintf("invalid person id %q", token))
		}
		p, err := persons.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return r.done(&Resolution{Person: p, Match: MatchByID}), nil
	}

	first, last := dedup.SplitName(token)
	if last == "" {
		return nil, domain.NewValidationError("author", fmt.Sprintf("cannot extract a last name from %q", token))
	}

	exact, err := persons.FindByName(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("find person %q: %w", token, err)
	}
	if len(exact) > 0 {
		return r.done(&Resolution{Person: exact[0], Match: MatchExact}), nil
	}

	if opts.Similarity {
		p, err := r.findSimilar(ctx, persons, domain.Person{FirstName: first, LastName: last}, opts.FullScan)
		if err != nil {
			return nil, fmt.Errorf("find similar person %q: %w", token, err)
		}
		if p != nil {
			return r.done(&Resolution{Person: p, Match: MatchSimilar}), nil
		}
	}

	p := &domain.Person{FirstName: first, LastName: last}
	if opts.PreassignID {
		id, err := persons.NextID(ctx)
		if err != nil {
			return nil, fmt.Errorf("reserve person id: %w", err)
		}
		p.ID = id
	}
	return r.done(&Resolution{Person: p, Created: true, Match: MatchByCreated}), nil
}

func (r *Resolver) findSimilar(ctx context.Context, persons repository.PersonRepository, wanted domain.Person, fullScan bool) (*domain.Person, error) {
	candidates, err := persons.FindByLastName(ctx, wanted.LastName)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if r.comparator.IsSimilarPerson(wanted, *c) {
			return c, nil
		}
	}
	if !fullScan {
		return nil, nil
	}

	all, err := persons.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if r.comparator.IsSimilarPerson(wanted, all[i]) {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *Resolver) done(res *Resolution) *Resolution {
	if r.metrics != nil {
		r.metrics.RecordAuthorResolution(res.Match)
	}
	return res
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// ResolveAuthors resolves tokens in order and saves the persons that were
// not found, so that the same unknown name appearing twice maps to one
// person. It returns the person ids in token order.
func (r *Resolver) ResolveAuthors(ctx context.Context, repos repository.Repos, tokens []string, opts ResolveOptions) ([]int64, error) {
	ids := make([]int64, 0, len(tokens))
	for _, token := range tokens {
		res, err := r.Resolve(ctx, repos.Persons, token, opts)
		if err != nil {
			return nil, err
		}
		if res.Created {
			if err := repos.Persons.Create(ctx, res.Person); err != nil {
				return nil, fmt.Errorf("create author %q: %w", token, err)
			}
		}
		ids = append(ids, res.Person.ID)
	}
	return ids, nil
}

// requireKnownMember fails unless at least one of the persons has a
// membership in a registered organization.
func requireKnownMember(ctx context.Context, repos repository.Repos, personIDs []int64) error {
	for _, id := range personIDs {
		memberships, err := repos.Memberships.ListByPerson(ctx, id)
		if err != nil {
			return fmt.Errorf("list memberships of person %d: %w", id, err)
		}
		for _, m := range memberships {
			if _, err := repos.Organizations.Get(ctx, m.OrganizationID); err == nil {
				return nil
			}
		}
	}
	return domain.NewBusinessRuleError("known_member",
		"at least one author must be a member of a registered research organization")
}
