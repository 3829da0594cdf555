package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/research-registry-service/internal/registry"
	jobs "github.com/helixir/research-registry-service/internal/temporal"
)

// heartbeatEvery is the number of persons scanned between two heartbeats.
const heartbeatEvery = 50

// DedupActivities runs person duplicate scans for DuplicateScanWorkflow.
type DedupActivities struct {
	registry *registry.Service
}

// NewDedupActivities creates DedupActivities over the registry service.
func NewDedupActivities(svc *registry.Service) *DedupActivities {
	return &DedupActivities{registry: svc}
}

// FindDuplicateClusters groups the registered persons that likely denote
// the same researcher. Persons that have no duplicate are not reported.
func (a *DedupActivities) FindDuplicateClusters(ctx context.Context, input jobs.DuplicateScanInput) (*FindDuplicateClustersOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("starting duplicate scan", "scanID", input.ScanID)

	var scanned int
	clusters, err := a.registry.FindDuplicates(ctx, func(index, duplicates, total int) {
		scanned = total
		if index > 0 && index%heartbeatEvery == 0 {
			activity.RecordHeartbeat(ctx, index)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}

	out := &FindDuplicateClustersOutput{
		Persons:  scanned,
		Clusters: make([][]jobs.ClusterMember, 0, len(clusters)),
	}
	for _, cluster := range clusters {
		members := make([]jobs.ClusterMember, len(cluster))
		for i, p := range cluster {
			members[i] = jobs.ClusterMember{ID: p.ID, FullName: p.FullName(), ORCID: p.ORCID}
		}
		out.Clusters = append(out.Clusters, members)
	}

	logger.Info("duplicate scan completed", "scanID", input.ScanID, "clusters", len(out.Clusters))
	return out, nil
}
