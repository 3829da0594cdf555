package dedup

import (
	"slices"

	"github.com/helixir/research-registry-service/internal/domain"
)

// PersonMatcher reports whether two persons are likely the same researcher.
type PersonMatcher func(a, b domain.Person) bool

// ProgressFunc receives the number of persons consumed so far, the number of
// persons placed in a duplicate cluster so far, and the total.
type ProgressFunc func(index, duplicates, total int)

// FindDuplicateClusters groups persons that match, for manual merge review.
//
// Each remaining person in turn becomes the reference of a new cluster; every
// later person matching the reference joins it and is removed from further
// comparison. Clusters of one are dropped. Matching is not transitive, so the
// result depends on the input order: a person may land in a different cluster
// than someone it matches but never got compared with.
//
// Each cluster is sorted with order, or with domain.ComparePersons when order
// is nil. Clusters appear in the order of their reference person.
func FindDuplicateClusters(persons []domain.Person, match PersonMatcher, order func(a, b domain.Person) int, progress ProgressFunc) [][]domain.Person {
	if order == nil {
		order = domain.ComparePersons
	}

	total := len(persons)
	remaining := slices.Clone(persons)
	clusters := make([][]domain.Person, 0)
	duplicates := 0
	consumed := 0

	for len(remaining) > 0 {
		ref := remaining[0]
		cluster := []domain.Person{ref}
		rest := remaining[:0]
		for _, candidate := range remaining[1:] {
			if match(ref, candidate) {
				cluster = append(cluster, candidate)
			} else {
				rest = append(rest, candidate)
			}
		}
		remaining = rest
		consumed += len(cluster)

		if len(cluster) > 1 {
			slices.SortStableFunc(cluster, order)
			clusters = append(clusters, cluster)
			duplicates += len(cluster)
		}

		if progress != nil {
			progress(consumed, duplicates, total)
		}
	}

	return clusters
}
