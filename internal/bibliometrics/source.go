// Package bibliometrics refreshes the citation indicators of registered
// persons from external platforms (Scopus, OpenAlex).
//
// Platform clients live in subpackages and implement Source. A Refresher
// queries every enabled source concurrently for one person; a failing
// platform is logged and counted but never fails the refresh. A Scheduler
// runs RefreshAll on a cron schedule.
package bibliometrics

import (
	"context"
	"errors"

	"github.com/helixir/research-registry-service/internal/domain"
)

// ErrNoIdentifier is returned by a Source when the person has no id on
// that platform. The platform is then skipped, not counted as failed.
var ErrNoIdentifier = errors.New("bibliometrics: person has no identifier on this platform")

// Source fetches the indicators of one person from one platform.
type Source interface {
	// Platform identifies the platform.
	Platform() domain.Platform

	// IsEnabled reports whether the source is configured for use.
	IsEnabled() bool

	// FetchIndicator returns the person's current figures.
	FetchIndicator(ctx context.Context, person domain.Person) (*domain.Indicator, error)
}
