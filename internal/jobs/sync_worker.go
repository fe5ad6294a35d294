package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// maxConnectionsPerTick bounds how many connections one poll refreshes so a
// large fleet cannot starve the tick interval.
const maxConnectionsPerTick = 10

// SyncConnectionRepository lists the connections eligible for refresh.
type SyncConnectionRepository interface {
	ListAllActive(ctx context.Context) ([]*domain.Connection, error)
}

// CatalogSyncer refreshes the catalog for one connection. Entries still
// within the sync TTL are skipped inside Sync itself.
type CatalogSyncer interface {
	Sync(ctx context.Context, tenantID, connectionID string, tables []string, force bool) (*domain.SyncReport, error)
}

// SyncWorker keeps the metadata catalog fresh: each tick it walks the active
// connections and re-syncs entries whose TTL has lapsed.
type SyncWorker struct {
	connRepo SyncConnectionRepository
	catalog  CatalogSyncer
}

// NewSyncWorker creates a new SyncWorker instance
func NewSyncWorker(connRepo SyncConnectionRepository, catalog CatalogSyncer) *SyncWorker {
	return &SyncWorker{connRepo: connRepo, catalog: catalog}
}

// ProcessJobs implements the JobProcessor interface
func (w *SyncWorker) ProcessJobs(ctx context.Context) error {
	conns, err := w.connRepo.ListAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	if len(conns) > maxConnectionsPerTick {
		conns = conns[:maxConnectionsPerTick]
	}

	for _, conn := range conns {
		report, err := w.catalog.Sync(ctx, conn.TenantID, conn.ID, nil, false)
		if err != nil {
			log.Printf("catalog refresh failed for connection %s: %v", conn.ID, err)
			continue
		}
		if len(report.Failed) > 0 {
			log.Printf("catalog refresh for connection %s: %d synced, %d failed",
				conn.ID, len(report.Synced), len(report.Failed))
		}
	}
	return nil
}
