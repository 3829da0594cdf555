package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/domain"
)

// FindDuplicates groups similar persons into clusters of two or more.
// progress may be nil.
func (s *Service) FindDuplicates(ctx context.Context, progress dedup.ProgressFunc) ([][]domain.Person, error) {
	start := time.Now()

	persons, err := s.store.Repos().Persons.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	clusters := dedup.FindDuplicateClusters(persons, s.comparator.IsSimilarPerson, domain.ComparePersons, progress)

	if s.metrics != nil {
		s.metrics.RecordDuplicateScan(len(clusters), time.Since(start))
	}
	logger := s.log(ctx)
	logger.Info().
		Int("persons", len(persons)).
		Int("clusters", len(clusters)).
		Dur("duration", time.Since(start)).
		Msg("duplicate scan completed")
	return clusters, nil
}
