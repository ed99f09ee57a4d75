package ads

import "time"

// MediaType classifies the creative attached to an ad.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaCarousel MediaType = "carousel"
)

// AdStatus is the delivery state reported by the source system.
type AdStatus string

const (
	StatusActive   AdStatus = "active"
	StatusInactive AdStatus = "inactive"
)

// AdRecord is the canonical post-normalization ad shape. It is a transient
// value object owned by the pipeline during a single run; persistence happens
// through the import reconciler only.
type AdRecord struct {
	ExternalID           string
	AdvertiserName       string
	AdvertiserExternalID string
	PrimaryText          string
	Headline             string
	CallToAction         string
	MediaURL             string
	MediaType            MediaType
	StartDate            *time.Time
	EndDate              *time.Time
	Countries            []string // ISO codes, sorted, never nil
	Status               AdStatus
	Platform             string
}

// Tenant owns every ad, advertiser, and job run written under its id. Rows
// are only ever created through the seeding command; the pipeline itself
// never creates tenants.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Advertiser is a store-owned entity, created lazily on first sight during
// import and never deleted by this pipeline.
type Advertiser struct {
	ID             string
	TenantID       string
	Name           string
	ExternalPageID string
	TotalAds       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ad is the persisted form of an AdRecord. Uniqueness is
// (TenantID, ExternalID), the dedup contract of the whole pipeline.
type Ad struct {
	ID           string
	TenantID     string
	AdvertiserID string // empty until resolved
	AdRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunStatus is the lifecycle state of a harvest/import job run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPartial   RunStatus = "partial"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state. A run is never
// retried automatically once failed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunPartial, RunCancelled:
		return true
	}
	return false
}

// HarvestJobRun is one audit row per harvest/import run.
type HarvestJobRun struct {
	ID           string
	TenantID     string
	JobName      string
	TaskType     string
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	AdsProcessed int
	ErrorsCount  int
	Metadata     map[string]any
}

// SourceFormat names the input shape a raw candidate came from.
type SourceFormat string

const (
	SourceScrape     SourceFormat = "scrape"
	SourceAPI        SourceFormat = "api"
	SourceUploadJSON SourceFormat = "upload_json"
	SourceUploadCSV  SourceFormat = "upload_csv"
	SourceWebhook    SourceFormat = "webhook"
)
