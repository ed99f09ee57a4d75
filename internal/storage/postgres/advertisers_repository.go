package postgres

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/storage"
)

var _ storage.AdvertiserRepository = (*AdvertiserRepository)(nil)

func (r *AdvertiserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *AdvertiserRepository) GetByPageID(ctx context.Context, tenantID, externalPageID string) (*ads.Advertiser, error) {
	if strings.TrimSpace(externalPageID) == "" {
		return nil, storage.ErrNotFound
	}
	return r.scanOne(r.queryer().QueryRow(ctx, `
SELECT id, tenant_id, name, external_page_id, total_ads, created_at, updated_at
  FROM advertisers
 WHERE tenant_id = $1 AND external_page_id = $2
`, tenantID, externalPageID))
}

func (r *AdvertiserRepository) GetByName(ctx context.Context, tenantID, name string) (*ads.Advertiser, error) {
	if strings.TrimSpace(name) == "" {
		return nil, storage.ErrNotFound
	}
	return r.scanOne(r.queryer().QueryRow(ctx, `
SELECT id, tenant_id, name, external_page_id, total_ads, created_at, updated_at
  FROM advertisers
 WHERE tenant_id = $1 AND lower(name) = lower($2)
`, tenantID, name))
}

// Create inserts a new advertiser. A unique-violation race with a concurrent
// run is resolved by re-reading the winning row; the unique indexes are the
// backstop for the check-then-create pattern.
func (r *AdvertiserRepository) Create(ctx context.Context, advertiser ads.Advertiser) (*ads.Advertiser, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	row := r.queryer().QueryRow(ctx, `
INSERT INTO advertisers (id, tenant_id, name, external_page_id, total_ads)
VALUES ($1, $2, $3, $4, 0)
RETURNING id, tenant_id, name, external_page_id, total_ads, created_at, updated_at
`, id, advertiser.TenantID, advertiser.Name, nullable(advertiser.ExternalPageID))

	created, err := r.scanOne(row)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if advertiser.ExternalPageID != "" {
			if existing, lookupErr := r.GetByPageID(ctx, advertiser.TenantID, advertiser.ExternalPageID); lookupErr == nil {
				return existing, nil
			}
		}
		return r.GetByName(ctx, advertiser.TenantID, advertiser.Name)
	}
	return nil, fmt.Errorf("create advertiser %q: %w", advertiser.Name, err)
}

func (r *AdvertiserRepository) IncrementTotalAds(ctx context.Context, advertiserID string, delta int) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE advertisers SET total_ads = total_ads + $2, updated_at = now() WHERE id = $1
`, advertiserID, delta)
	if err != nil {
		return fmt.Errorf("increment total_ads for %s: %w", advertiserID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *AdvertiserRepository) scanOne(row pgx.Row) (*ads.Advertiser, error) {
	var (
		advertiser ads.Advertiser
		pageID     *string
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(&advertiser.ID, &advertiser.TenantID, &advertiser.Name,
		&pageID, &advertiser.TotalAds, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	advertiser.ExternalPageID = derefString(pageID)
	if createdAt.Valid {
		advertiser.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		advertiser.UpdatedAt = updatedAt.Time
	}
	return &advertiser, nil
}
