package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/retry"
)

// fakeSession replays scripted pagination steps.
type fakeSession struct {
	steps  []fakeStep
	cursor int
	closed bool
}

type fakeStep struct {
	payloads [][]byte
	more     bool
	err      error
}

func (s *fakeSession) LoadMore(context.Context) ([][]byte, bool, error) {
	if s.cursor >= len(s.steps) {
		return nil, false, nil
	}
	step := s.steps[s.cursor]
	s.cursor++
	return step.payloads, step.more, step.err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDriver struct {
	session  *fakeSession
	openErrs []error
	opens    int
}

func (d *fakeDriver) Open(context.Context, Target) (Session, error) {
	d.opens++
	if len(d.openErrs) > 0 {
		err := d.openErrs[0]
		d.openErrs = d.openErrs[1:]
		return nil, err
	}
	return d.session, nil
}

// idExtractor turns each payload into one candidate whose id is the payload
// text; the literal "reject" yields a keyless candidate.
type idExtractor struct{}

func (idExtractor) Extract(payload []byte) []ads.RawCandidate {
	if string(payload) == "reject" {
		return []ads.RawCandidate{{"page_name": "keyless"}}
	}
	return []ads.RawCandidate{{"id": string(payload)}}
}

type fakeImporter struct {
	batches [][]ads.AdRecord
	tenants []string
}

func (f *fakeImporter) ImportBatch(_ context.Context, records []ads.AdRecord, tenantID string) importer.Result {
	f.batches = append(f.batches, records)
	f.tenants = append(f.tenants, tenantID)
	return importer.Result{Imported: len(records)}
}

func payloads(ids ...string) [][]byte {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = []byte(id)
	}
	return out
}

func newTestController(driver Driver, batchSize int) (*Controller, *fakeImporter) {
	imp := &fakeImporter{}
	c := NewController(driver, idExtractor{}, imp, nil, batchSize, zerolog.Nop())
	c.policy = retry.Policy{MaxRetries: 2, Base: 0, Sleep: func(context.Context, time.Duration) error { return nil }}
	return c, imp
}

func TestControllerRunPaginatesAndBatches(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: payloads("1", "2", "3"), more: true},
		{payloads: payloads("4", "5"), more: false},
	}}
	driver := &fakeDriver{session: session}
	controller, imp := newTestController(driver, 2)

	result, err := controller.Run(context.Background(), Target{Name: "acme"}, "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, 5, result.Imported)
	require.Len(t, imp.batches, 3, "two full batches and a final flush")
	assert.Len(t, imp.batches[0], 2)
	assert.Len(t, imp.batches[1], 2)
	assert.Len(t, imp.batches[2], 1)
	assert.Equal(t, "tenant-a", imp.tenants[0])
	assert.True(t, session.closed)
}

func TestControllerRunHonorsTargetLimit(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: payloads("1", "2", "3", "4", "5"), more: true},
		{payloads: payloads("6", "7"), more: true},
	}}
	driver := &fakeDriver{session: session}
	controller, imp := newTestController(driver, 10)

	result, err := controller.Run(context.Background(), Target{Name: "acme", Limit: 3}, "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, session.cursor, "draining must not request further pages")
	require.Len(t, imp.batches, 1)
	assert.True(t, session.closed)
}

func TestControllerRunRejectsKeylessCandidates(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: [][]byte{[]byte("1"), []byte("reject"), []byte("2")}, more: false},
	}}
	driver := &fakeDriver{session: session}
	controller, _ := newTestController(driver, 10)

	result, err := controller.Run(context.Background(), Target{Name: "acme"}, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported, "keyless candidate is dropped, not imported")
}

func TestControllerRunFailsWhenSessionNeverOpens(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "credential rejected", err: retry.Classified(retry.ClassToken, errors.New("credential rejected"))},
		{name: "browser busy", err: retry.Classified(retry.ClassTransient, errors.New("browser busy"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &fakeDriver{openErrs: []error{tt.err}}
			controller, imp := newTestController(driver, 10)

			result, err := controller.Run(context.Background(), Target{Name: "acme"}, "tenant-a")
			require.Error(t, err)
			assert.Equal(t, 1, driver.opens, "open failure is fatal, never retried")
			assert.Equal(t, 0, result.Processed())
			assert.Empty(t, imp.batches)
		})
	}
}

func TestControllerRunRetriesTransientPagination(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: payloads("1", "2"), more: true},
		{err: retry.Classified(retry.ClassTransient, errors.New("network blip"))},
		{payloads: payloads("3"), more: false},
	}}
	driver := &fakeDriver{session: session}
	controller, _ := newTestController(driver, 10)

	result, err := controller.Run(context.Background(), Target{Name: "acme"}, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported, "the failed page load is retried and the run completes")
	assert.Equal(t, 3, session.cursor)
}

// fakeRunStore captures the audit rows the controller's recorder writes.
type fakeRunStore struct {
	finished map[string]ads.HarvestJobRun
	recorded []ads.HarvestJobRun
}

func (s *fakeRunStore) InsertRunning(context.Context, ads.HarvestJobRun) (string, error) {
	return "run-1", nil
}

func (s *fakeRunStore) Finish(_ context.Context, runID string, run ads.HarvestJobRun) error {
	if s.finished == nil {
		s.finished = make(map[string]ads.HarvestJobRun)
	}
	s.finished[runID] = run
	return nil
}

func (s *fakeRunStore) Record(_ context.Context, run ads.HarvestJobRun) error {
	s.recorded = append(s.recorded, run)
	return nil
}

func (s *fakeRunStore) DeleteOlderThan(context.Context, int) (int64, error) { return 0, nil }

func TestControllerRunAuditsFatalAfterProgressAsPartial(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: payloads("1", "2"), more: true},
		{err: retry.Classified(retry.ClassUnknown, errors.New("page layout changed"))},
	}}
	driver := &fakeDriver{session: session}
	store := &fakeRunStore{}

	imp := &fakeImporter{}
	controller := NewController(driver, idExtractor{}, imp, importer.NewRecorder(store, zerolog.Nop()), 10, zerolog.Nop())
	controller.policy = retry.Policy{MaxRetries: 0, Base: 0, Sleep: func(context.Context, time.Duration) error { return nil }}

	result, err := controller.Run(context.Background(), Target{Name: "acme"}, "tenant-a")
	require.Error(t, err)
	assert.Equal(t, 2, result.Imported)

	require.Contains(t, store.finished, "run-1")
	run := store.finished["run-1"]
	assert.Equal(t, ads.RunPartial, run.Status, "a fatal abort with salvaged records is not completed")
	assert.Equal(t, 2, run.AdsProcessed)
	assert.Contains(t, run.Metadata["fatal_error"], "page layout changed")
	assert.Empty(t, store.recorded)
}

func TestControllerRunSalvagesPartialProgress(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: payloads("1", "2"), more: true},
		{err: retry.Classified(retry.ClassUnknown, errors.New("page layout changed"))},
	}}
	driver := &fakeDriver{session: session}
	controller, imp := newTestController(driver, 10)

	result, err := controller.Run(context.Background(), Target{Name: "acme"}, "tenant-a")
	require.Error(t, err, "pagination failure surfaces even after partial progress")
	assert.Equal(t, 2, result.Imported, "records collected before the failure are imported")
	require.Len(t, imp.batches, 1)
	assert.True(t, session.closed)
}

func TestControllerRunAppliesTargetCountryDefault(t *testing.T) {
	session := &fakeSession{steps: []fakeStep{
		{payloads: payloads("1"), more: false},
	}}
	driver := &fakeDriver{session: session}
	controller, imp := newTestController(driver, 10)

	_, err := controller.Run(context.Background(), Target{Name: "acme", Country: "de"}, "tenant-a")
	require.NoError(t, err)
	require.Len(t, imp.batches, 1)
	require.Len(t, imp.batches[0], 1)
	assert.Equal(t, []string{"DE"}, imp.batches[0][0].Countries)
}

func TestStateMachineLabels(t *testing.T) {
	for _, state := range []State{StateIdle, StateSessionOpening, StatePaginating, StateDraining, StateFinalizing, StateCompleted, StateFailed} {
		assert.NotEmpty(t, string(state), fmt.Sprintf("%v", state))
	}
}
