package repository

import (
	"context"

	"github.com/helixir/research-registry-service/internal/domain"
)

// VenueRepository handles journals and conferences.
type VenueRepository interface {
	// FindJournal looks a journal up by ISSN when given, then by name,
	// case-insensitively. Returns domain.ErrNotFound when neither matches.
	FindJournal(ctx context.Context, name, issn string) (*domain.Journal, error)
	CreateJournal(ctx context.Context, j *domain.Journal) error
	GetJournal(ctx context.Context, id int64) (*domain.Journal, error)

	// FindConference looks a conference up by name, case-insensitively.
	FindConference(ctx context.Context, name string) (*domain.Conference, error)
	CreateConference(ctx context.Context, c *domain.Conference) error
	GetConference(ctx context.Context, id int64) (*domain.Conference, error)
}
