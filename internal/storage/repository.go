// Package storage defines the persistence contracts consumed by the import
// reconciler and the provenance recorder. Postgres implements them under
// storage/postgres; tests substitute in-memory fakes.
package storage

import (
	"context"
	"errors"

	"github.com/adscope/harvester/internal/domain/ads"
)

var ErrNotFound = errors.New("not found")

// UpsertOutcome distinguishes the insert path from the update path of an
// upsert-by-natural-key write.
type UpsertOutcome struct {
	AdID     string
	Inserted bool
}

type AdRepository interface {
	// Upsert writes the record keyed by (tenantID, record.ExternalID) as a
	// single atomic insert-or-update.
	Upsert(ctx context.Context, tenantID, advertiserID string, record ads.AdRecord) (UpsertOutcome, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*ads.Ad, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

type AdvertiserRepository interface {
	GetByPageID(ctx context.Context, tenantID, externalPageID string) (*ads.Advertiser, error)
	GetByName(ctx context.Context, tenantID, name string) (*ads.Advertiser, error)
	Create(ctx context.Context, advertiser ads.Advertiser) (*ads.Advertiser, error)
	IncrementTotalAds(ctx context.Context, advertiserID string, delta int) error
}

type TenantRepository interface {
	// Create inserts a tenant and returns it with its generated id.
	Create(ctx context.Context, name string) (*ads.Tenant, error)
	List(ctx context.Context) ([]ads.Tenant, error)
}

type JobRunRepository interface {
	// InsertRunning creates the audit row at run start and returns its id.
	InsertRunning(ctx context.Context, run ads.HarvestJobRun) (string, error)
	// Finish moves a run to a terminal status with final counts.
	Finish(ctx context.Context, runID string, run ads.HarvestJobRun) error
	// Record writes a complete row in one shot, for fire-and-forget paths
	// that synthesize the run at the end.
	Record(ctx context.Context, run ads.HarvestJobRun) error
	// DeleteOlderThan prunes terminal runs for retention; returns rows removed.
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

type Repository interface {
	Ads() AdRepository
	Advertisers() AdvertiserRepository
	Tenants() TenantRepository
	JobRuns() JobRunRepository
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
