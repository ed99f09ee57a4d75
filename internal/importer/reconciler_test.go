package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/storage"
)

// fakeAdStore is an in-memory AdRepository keyed by (tenant, external id).
type fakeAdStore struct {
	ads     map[string]ads.AdRecord
	failIDs map[string]bool
	upserts int
}

func newFakeAdStore() *fakeAdStore {
	return &fakeAdStore{ads: map[string]ads.AdRecord{}, failIDs: map[string]bool{}}
}

func (s *fakeAdStore) key(tenantID, externalID string) string { return tenantID + "/" + externalID }

func (s *fakeAdStore) Upsert(_ context.Context, tenantID, _ string, record ads.AdRecord) (storage.UpsertOutcome, error) {
	s.upserts++
	if s.failIDs[record.ExternalID] {
		return storage.UpsertOutcome{}, errors.New("simulated write failure")
	}
	key := s.key(tenantID, record.ExternalID)
	_, existed := s.ads[key]
	s.ads[key] = record
	return storage.UpsertOutcome{AdID: key, Inserted: !existed}, nil
}

func (s *fakeAdStore) GetByExternalID(_ context.Context, tenantID, externalID string) (*ads.Ad, error) {
	record, ok := s.ads[s.key(tenantID, externalID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &ads.Ad{TenantID: tenantID, AdRecord: record}, nil
}

func (s *fakeAdStore) CountByTenant(_ context.Context, tenantID string) (int, error) {
	count := 0
	for key := range s.ads {
		if len(key) > len(tenantID) && key[:len(tenantID)] == tenantID {
			count++
		}
	}
	return count, nil
}

// fakeAdvertiserStore is an in-memory AdvertiserRepository.
type fakeAdvertiserStore struct {
	byPage  map[string]*ads.Advertiser
	byName  map[string]*ads.Advertiser
	creates int
	counts  map[string]int
	nextID  int
}

func newFakeAdvertiserStore() *fakeAdvertiserStore {
	return &fakeAdvertiserStore{
		byPage: map[string]*ads.Advertiser{},
		byName: map[string]*ads.Advertiser{},
		counts: map[string]int{},
	}
}

func (s *fakeAdvertiserStore) GetByPageID(_ context.Context, tenantID, pageID string) (*ads.Advertiser, error) {
	if a, ok := s.byPage[tenantID+"/"+pageID]; ok {
		return a, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeAdvertiserStore) GetByName(_ context.Context, tenantID, name string) (*ads.Advertiser, error) {
	if a, ok := s.byName[tenantID+"/"+name]; ok {
		return a, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeAdvertiserStore) Create(_ context.Context, advertiser ads.Advertiser) (*ads.Advertiser, error) {
	s.creates++
	s.nextID++
	advertiser.ID = "adv-" + strconv.Itoa(s.nextID)
	if advertiser.ExternalPageID != "" {
		s.byPage[advertiser.TenantID+"/"+advertiser.ExternalPageID] = &advertiser
	}
	s.byName[advertiser.TenantID+"/"+advertiser.Name] = &advertiser
	return &advertiser, nil
}

func (s *fakeAdvertiserStore) IncrementTotalAds(_ context.Context, advertiserID string, delta int) error {
	s.counts[advertiserID] += delta
	return nil
}

func record(id, pageName, pageID string) ads.AdRecord {
	return ads.AdRecord{
		ExternalID:           id,
		AdvertiserName:       pageName,
		AdvertiserExternalID: pageID,
		Countries:            []string{"US"},
		Status:               ads.StatusActive,
		MediaType:            ads.MediaImage,
		Platform:             "facebook",
	}
}

func newTestReconciler(adStore *fakeAdStore, advStore *fakeAdvertiserStore) *Reconciler {
	return NewReconciler(adStore, advStore, zerolog.Nop())
}

func TestImportBatchIsIdempotent(t *testing.T) {
	adStore := newFakeAdStore()
	advStore := newFakeAdvertiserStore()
	rec := newTestReconciler(adStore, advStore)

	batch := []ads.AdRecord{
		record("1", "Acme", "p1"),
		record("2", "Acme", "p1"),
	}

	first := rec.ImportBatch(context.Background(), batch, "tenant-a")
	assert.Equal(t, 2, first.Imported)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 0, first.Errors)

	second := rec.ImportBatch(context.Background(), batch, "tenant-a")
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 0, second.Errors)

	count, err := adStore.CountByTenant(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestImportBatchIsolatesPerRecordFailures(t *testing.T) {
	adStore := newFakeAdStore()
	adStore.failIDs["2"] = true
	advStore := newFakeAdvertiserStore()
	rec := newTestReconciler(adStore, advStore)

	result := rec.ImportBatch(context.Background(), []ads.AdRecord{
		record("1", "Acme", "p1"),
		record("2", "Acme", "p1"),
		record("3", "Acme", "p1"),
	}, "tenant-a")

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "ad 2")
	assert.Equal(t, 3, adStore.upserts, "the failing record must not abort the batch")
}

func TestImportBatchCreatesAdvertiserOnce(t *testing.T) {
	adStore := newFakeAdStore()
	advStore := newFakeAdvertiserStore()
	rec := newTestReconciler(adStore, advStore)

	var batch []ads.AdRecord
	for i := 1; i <= 5; i++ {
		batch = append(batch, record(fmt.Sprintf("%d", i), "Acme", "p1"))
	}

	result := rec.ImportBatch(context.Background(), batch, "tenant-a")
	assert.Equal(t, 5, result.Imported)
	assert.Equal(t, 1, advStore.creates, "same advertiser resolved from the batch cache")
	assert.Equal(t, 5, advStore.counts["adv-1"], "insert path bumps the advertiser ad count")
}

func TestImportBatchResolvesAdvertiserByNameWhenNoPageID(t *testing.T) {
	adStore := newFakeAdStore()
	advStore := newFakeAdvertiserStore()
	_, err := advStore.Create(context.Background(), ads.Advertiser{TenantID: "tenant-a", Name: "Globex"})
	require.NoError(t, err)
	rec := newTestReconciler(adStore, advStore)

	result := rec.ImportBatch(context.Background(), []ads.AdRecord{
		record("9", "Globex", ""),
	}, "tenant-a")

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, advStore.creates, "existing advertiser reused, not recreated")
}

func TestImportBatchWithoutAdvertiserIdentity(t *testing.T) {
	adStore := newFakeAdStore()
	advStore := newFakeAdvertiserStore()
	rec := newTestReconciler(adStore, advStore)

	result := rec.ImportBatch(context.Background(), []ads.AdRecord{
		record("anon-1", "", ""),
	}, "tenant-a")

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, advStore.creates, "no identity means no advertiser row")
}

func TestImportBatchScopesByTenant(t *testing.T) {
	adStore := newFakeAdStore()
	advStore := newFakeAdvertiserStore()
	rec := newTestReconciler(adStore, advStore)

	one := rec.ImportBatch(context.Background(), []ads.AdRecord{record("1", "Acme", "p1")}, "tenant-a")
	two := rec.ImportBatch(context.Background(), []ads.AdRecord{record("1", "Acme", "p1")}, "tenant-b")

	assert.Equal(t, 1, one.Imported)
	assert.Equal(t, 1, two.Imported, "same external id under another tenant is a distinct ad")
}

func TestImportBatchAbortsRemainingOnCancel(t *testing.T) {
	adStore := newFakeAdStore()
	advStore := newFakeAdvertiserStore()
	rec := newTestReconciler(adStore, advStore)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := rec.ImportBatch(ctx, []ads.AdRecord{
		record("1", "Acme", "p1"),
		record("2", "Acme", "p1"),
	}, "tenant-a")

	assert.Equal(t, 0, result.Processed())
	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, 0, adStore.upserts)
}

func TestResultMerge(t *testing.T) {
	var total Result
	total.Merge(Result{Imported: 2, Updated: 1, Errors: 1, ErrorDetails: []string{"a"}})
	total.Merge(Result{Imported: 1})

	assert.Equal(t, 3, total.Imported)
	assert.Equal(t, 1, total.Updated)
	assert.Equal(t, 1, total.Errors)
	assert.Equal(t, 4, total.Processed())
	assert.Equal(t, []string{"a"}, total.ErrorDetails)
}
