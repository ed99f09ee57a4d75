package postgres

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/storage"
)

var _ storage.AdRepository = (*AdRepository)(nil)

func (r *AdRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// Upsert writes the ad keyed by (tenant_id, external_id) in one atomic
// statement. xmax = 0 only holds for a freshly inserted row version, which
// distinguishes the insert path from the update path.
func (r *AdRepository) Upsert(ctx context.Context, tenantID, advertiserID string, record ads.AdRecord) (storage.UpsertOutcome, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	var advertiser *string
	if advertiserID != "" {
		advertiser = &advertiserID
	}

	countries := record.Countries
	if countries == nil {
		countries = []string{}
	}

	row := r.queryer().QueryRow(ctx, `
INSERT INTO ads (
    id, tenant_id, advertiser_id, external_id, advertiser_name,
    advertiser_page_id, primary_text, headline, call_to_action,
    media_url, media_type, start_date, end_date, countries, status, platform
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (tenant_id, external_id) DO UPDATE SET
    advertiser_id      = COALESCE(EXCLUDED.advertiser_id, ads.advertiser_id),
    advertiser_name    = EXCLUDED.advertiser_name,
    advertiser_page_id = EXCLUDED.advertiser_page_id,
    primary_text       = EXCLUDED.primary_text,
    headline           = EXCLUDED.headline,
    call_to_action     = EXCLUDED.call_to_action,
    media_url          = EXCLUDED.media_url,
    media_type         = EXCLUDED.media_type,
    start_date         = EXCLUDED.start_date,
    end_date           = EXCLUDED.end_date,
    countries          = EXCLUDED.countries,
    status             = EXCLUDED.status,
    platform           = EXCLUDED.platform,
    updated_at         = now()
RETURNING id, (xmax = 0) AS inserted
`,
		id, tenantID, advertiser, record.ExternalID, record.AdvertiserName,
		nullable(record.AdvertiserExternalID), nullable(record.PrimaryText),
		nullable(record.Headline), nullable(record.CallToAction),
		nullable(record.MediaURL), string(record.MediaType),
		record.StartDate, record.EndDate, countries,
		string(record.Status), nullable(record.Platform),
	)

	var outcome storage.UpsertOutcome
	if err := row.Scan(&outcome.AdID, &outcome.Inserted); err != nil {
		return storage.UpsertOutcome{}, fmt.Errorf("upsert ad %s: %w", record.ExternalID, err)
	}
	return outcome, nil
}

func (r *AdRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (*ads.Ad, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, tenant_id, advertiser_id, external_id, advertiser_name,
       advertiser_page_id, primary_text, headline, call_to_action,
       media_url, media_type, start_date, end_date, countries, status,
       platform, created_at, updated_at
  FROM ads
 WHERE tenant_id = $1 AND external_id = $2
`, tenantID, externalID)

	var (
		ad           ads.Ad
		advertiserID *string
		pageID       *string
		primaryText  *string
		headline     *string
		cta          *string
		mediaURL     *string
		platform     *string
		mediaType    string
		status       string
		startDate    pgtype.Date
		endDate      pgtype.Date
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&ad.ID, &ad.TenantID, &advertiserID, &ad.ExternalID, &ad.AdvertiserName,
		&pageID, &primaryText, &headline, &cta,
		&mediaURL, &mediaType, &startDate, &endDate, &ad.Countries, &status,
		&platform, &createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ad %s: %w", externalID, err)
	}

	ad.AdvertiserID = derefString(advertiserID)
	ad.AdvertiserExternalID = derefString(pageID)
	ad.PrimaryText = derefString(primaryText)
	ad.Headline = derefString(headline)
	ad.CallToAction = derefString(cta)
	ad.MediaURL = derefString(mediaURL)
	ad.Platform = derefString(platform)
	ad.MediaType = ads.MediaType(mediaType)
	ad.Status = ads.AdStatus(status)
	if startDate.Valid {
		t := startDate.Time
		ad.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		ad.EndDate = &t
	}
	if createdAt.Valid {
		ad.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		ad.UpdatedAt = updatedAt.Time
	}
	if ad.Countries == nil {
		ad.Countries = []string{}
	}
	return &ad, nil
}

func (r *AdRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.queryer().QueryRow(ctx,
		`SELECT count(*) FROM ads WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ads: %w", err)
	}
	return count, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
