// Package importer reconciles normalized ad batches into the store and
// records per-run provenance. Per-record processing is independent and
// best-effort: a single record's failure never aborts its batch.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/metrics"
	"github.com/adscope/harvester/internal/storage"
)

// Result aggregates one ImportBatch call.
type Result struct {
	Imported     int      `json:"imported"`
	Updated      int      `json:"updated"`
	Errors       int      `json:"errors"`
	ErrorDetails []string `json:"errorDetails,omitempty"`
}

func (r Result) Processed() int { return r.Imported + r.Updated }

// Merge folds another batch result into this one.
func (r *Result) Merge(other Result) {
	r.Imported += other.Imported
	r.Updated += other.Updated
	r.Errors += other.Errors
	r.ErrorDetails = append(r.ErrorDetails, other.ErrorDetails...)
}

// Reconciler performs upsert-by-natural-key imports. Re-running the same
// harvest or replaying a webhook payload never duplicates ads, it only
// refreshes them.
type Reconciler struct {
	ads         storage.AdRepository
	advertisers storage.AdvertiserRepository
	logger      zerolog.Logger
}

func NewReconciler(adRepo storage.AdRepository, advertiserRepo storage.AdvertiserRepository, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		ads:         adRepo,
		advertisers: advertiserRepo,
		logger:      logger,
	}
}

// ImportBatch writes records under tenantID. Each record resolves its
// advertiser (by external page id, then by name, creating on first sight)
// and upserts the ad by (tenant, external id). Failures increment Errors
// with a human-readable detail line and processing continues.
func (rec *Reconciler) ImportBatch(ctx context.Context, records []ads.AdRecord, tenantID string) Result {
	var result Result
	// Advertisers repeat heavily within a batch; cache resolutions per run.
	resolved := make(map[string]string)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			remaining := len(records) - result.Processed() - result.Errors
			result.Errors += remaining
			result.ErrorDetails = append(result.ErrorDetails,
				fmt.Sprintf("batch aborted with %d records unprocessed: %v", remaining, err))
			break
		}

		advertiserID, err := rec.resolveAdvertiser(ctx, tenantID, record, resolved)
		if err != nil {
			rec.recordFailure(&result, record, fmt.Errorf("resolve advertiser: %w", err))
			continue
		}

		outcome, err := rec.ads.Upsert(ctx, tenantID, advertiserID, record)
		if err != nil {
			rec.recordFailure(&result, record, err)
			continue
		}

		if outcome.Inserted {
			result.Imported++
			metrics.AdsImported.WithLabelValues("imported").Inc()
			if advertiserID != "" {
				if err := rec.advertisers.IncrementTotalAds(ctx, advertiserID, 1); err != nil {
					rec.logger.Warn().Err(err).Str("advertiser_id", advertiserID).
						Msg("importer: failed to bump advertiser ad count")
				}
			}
		} else {
			result.Updated++
			metrics.AdsImported.WithLabelValues("updated").Inc()
		}
	}

	return result
}

// resolveAdvertiser looks up by (tenant, externalPageId) first, falls back
// to (tenant, name), and creates on first miss. Returns empty when the
// record carries no advertiser identity at all; the ad is stored with a
// null advertiser link until a later run supplies one.
func (rec *Reconciler) resolveAdvertiser(ctx context.Context, tenantID string, record ads.AdRecord, cache map[string]string) (string, error) {
	key := advertiserKey(record)
	if key == "" {
		return "", nil
	}
	if id, ok := cache[key]; ok {
		return id, nil
	}

	if record.AdvertiserExternalID != "" {
		advertiser, err := rec.advertisers.GetByPageID(ctx, tenantID, record.AdvertiserExternalID)
		if err == nil {
			cache[key] = advertiser.ID
			return advertiser.ID, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
	}

	if record.AdvertiserName != "" {
		advertiser, err := rec.advertisers.GetByName(ctx, tenantID, record.AdvertiserName)
		if err == nil {
			cache[key] = advertiser.ID
			return advertiser.ID, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
	}

	name := record.AdvertiserName
	if name == "" {
		name = "Unknown (" + record.AdvertiserExternalID + ")"
	}
	created, err := rec.advertisers.Create(ctx, ads.Advertiser{
		TenantID:       tenantID,
		Name:           name,
		ExternalPageID: record.AdvertiserExternalID,
	})
	if err != nil {
		return "", err
	}

	rec.logger.Debug().Str("advertiser", created.Name).Str("tenant_id", tenantID).
		Msg("importer: created advertiser on first sight")
	cache[key] = created.ID
	return created.ID, nil
}

func advertiserKey(record ads.AdRecord) string {
	if record.AdvertiserExternalID != "" {
		return "page:" + record.AdvertiserExternalID
	}
	if record.AdvertiserName != "" {
		return "name:" + strings.ToLower(record.AdvertiserName)
	}
	return ""
}

func (rec *Reconciler) recordFailure(result *Result, record ads.AdRecord, err error) {
	result.Errors++
	result.ErrorDetails = append(result.ErrorDetails,
		fmt.Sprintf("ad %s: %v", record.ExternalID, err))
	metrics.ImportErrors.Inc()
	rec.logger.Warn().Err(err).Str("external_id", record.ExternalID).
		Msg("importer: record failed, continuing batch")
}
