package repository

import (
	"context"

	"github.com/helixir/research-registry-service/internal/domain"
)

// OrganizationRepository handles research organizations and the edges of
// their hierarchy. Acyclicity is enforced by the caller, which must hold the
// hierarchy lock while checking and inserting an edge.
type OrganizationRepository interface {
	Create(ctx context.Context, o *domain.ResearchOrganization) error
	Get(ctx context.Context, id int64) (*domain.ResearchOrganization, error)
	List(ctx context.Context) ([]*domain.ResearchOrganization, error)

	// AddEdge records that sub belongs to super.
	// Returns domain.ErrAlreadyExists if the edge is present.
	AddEdge(ctx context.Context, superID, subID int64) error

	// RemoveEdge deletes an edge. Returns domain.ErrNotFound if absent.
	RemoveEdge(ctx context.Context, superID, subID int64) error

	// SuperIDs returns the direct parents of an organization.
	SuperIDs(ctx context.Context, id int64) ([]int64, error)

	// SubIDs returns the direct children of an organization.
	SubIDs(ctx context.Context, id int64) ([]int64, error)
}
