package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/repository/repotest"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *repotest.Store) {
	t.Helper()
	store := repotest.NewStore()
	return NewService(store, zerolog.Nop(), opts...), store
}

func mustOrganization(t *testing.T, s *Service, name string) *domain.ResearchOrganization {
	t.Helper()
	o := &domain.ResearchOrganization{Name: name, Type: domain.OrgLaboratory}
	require.NoError(t, s.CreateOrganization(context.Background(), o))
	return o
}

func eventTypes(events []*domain.OutboxEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

// fakeFiles records file storage calls.
type fakeFiles struct {
	mu      sync.Mutex
	deleted []int64
	renamed [][2]int64
	err     error
}

func (f *fakeFiles) DeleteQuietly(_ context.Context, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeFiles) Rename(_ context.Context, oldID, newID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed = append(f.renamed, [2]int64{oldID, newID})
	return f.err
}
