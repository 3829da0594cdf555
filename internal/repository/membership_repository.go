package repository

import (
	"context"

	"github.com/helixir/research-registry-service/internal/domain"
)

// MembershipRepository handles memberships of persons in organizations.
type MembershipRepository interface {
	// Create inserts a membership and sets its ID.
	Create(ctx context.Context, m *domain.Membership) error

	// Get returns domain.ErrNotFound if the membership does not exist.
	Get(ctx context.Context, id int64) (*domain.Membership, error)

	// Delete removes a membership.
	Delete(ctx context.Context, id int64) error

	// ListByPerson returns the memberships of a person, oldest first.
	ListByPerson(ctx context.Context, personID int64) ([]*domain.Membership, error)

	// ListByOrganization returns the memberships held in an organization.
	ListByOrganization(ctx context.Context, organizationID int64) ([]*domain.Membership, error)
}
