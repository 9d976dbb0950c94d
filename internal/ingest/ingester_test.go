package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flit-data/flitpipe/internal/progress"
	"github.com/flit-data/flitpipe/internal/simtom"
	"github.com/flit-data/flitpipe/internal/warehouse"
)

type stubSource struct {
	recordsPerDay int
	failDays      map[string]error
	emptyDays     map[string]bool
	fetchCalls    int
}

func (s *stubSource) FetchDay(_ context.Context, day time.Time, _ int, _ int64) ([]simtom.Record, error) {
	s.fetchCalls++
	key := day.Format("2006-01-02")
	if err, ok := s.failDays[key]; ok {
		return nil, err
	}
	if s.emptyDays[key] {
		return nil, nil
	}
	records := make([]simtom.Record, 0, s.recordsPerDay)
	for i := 0; i < s.recordsPerDay; i++ {
		records = append(records, simtom.Record{
			"transaction_id": fmt.Sprintf("txn_%s_%d", key, i),
			"customer_id":    fmt.Sprintf("cust_%03d", i),
			"amount":         100.0,
			"currency":       "USD",
			"timestamp":      day.Format("2006-01-02") + "T12:00:00Z",
		})
	}
	return records, nil
}

func (s *stubSource) FetchRange(ctx context.Context, start, end time.Time, volume int, seed int64) ([]simtom.Record, error) {
	var all []simtom.Record
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := s.FetchDay(ctx, d, volume, seed)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

type stubLoader struct {
	loadCalls  int
	loadedRows int64
	failOnCall int // 1-based; 0 never fails
}

func (l *stubLoader) EnsureTable(context.Context, warehouse.TableSpec) error { return nil }

func (l *stubLoader) Load(_ context.Context, _ warehouse.TableSpec, docs []warehouse.Document) (warehouse.LoadResult, error) {
	l.loadCalls++
	if l.failOnCall != 0 && l.loadCalls == l.failOnCall {
		return warehouse.LoadResult{Errors: []string{"quota exceeded"}}, errors.New("load job failed: quota exceeded")
	}
	l.loadedRows += int64(len(docs))
	return warehouse.LoadResult{OutputRows: int64(len(docs))}, nil
}

func (l *stubLoader) CountRange(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return l.loadedRows, nil
}

func newTracker(t *testing.T) *progress.Tracker {
	t.Helper()
	tracker, err := progress.New(context.Background(), filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)
	return tracker
}

func testConfig(days, batchDays int) Config {
	return Config{
		StartDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2024, 1, days, 0, 0, 0, 0, time.UTC),
		BaseDailyVolume: 50,
		Seed:            42,
		BatchDays:       batchDays,
	}
}

func TestRunFourteenDaysInTwoBatches(t *testing.T) {
	t.Parallel()

	source := &stubSource{recordsPerDay: 50}
	loader := &stubLoader{}
	tracker := newTracker(t)

	summary, err := New(testConfig(14, 7), source, loader, tracker).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.SuccessfulBatches)
	assert.Equal(t, 0, summary.FailedBatches)
	assert.Equal(t, 700, summary.RecordsIngested)
	assert.Equal(t, int64(700), summary.CumulativeRecords)
	assert.Equal(t, 2, loader.loadCalls, "one load job per batch")

	for d := 1; d <= 14; d++ {
		assert.True(t, tracker.IsCompleted(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)))
	}
}

func TestRunNothingRemaining(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newTracker(t)
	for d := 1; d <= 3; d++ {
		tracker.MarkCompleted(ctx, time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC), 50)
	}

	loader := &stubLoader{}
	summary, err := New(testConfig(3, 3), &stubSource{recordsPerDay: 50}, loader, tracker).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, "all batches already completed", summary.Message)
	assert.Equal(t, int64(150), summary.CumulativeRecords)
	assert.Zero(t, loader.loadCalls)
}

func TestRunResumesAfterFailedSecondBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")

	tracker, err := progress.New(ctx, path)
	require.NoError(t, err)

	source := &stubSource{recordsPerDay: 50}
	failing := &stubLoader{failOnCall: 2}
	summary, err := New(testConfig(14, 7), source, failing, tracker).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, summary.Status)
	assert.Equal(t, 1, summary.SuccessfulBatches)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 350, summary.RecordsIngested)

	// Second run picks up only the failed batch.
	resumed, err := progress.New(ctx, path)
	require.NoError(t, err)
	batches := resumed.RemainingBatches(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), 7)
	require.Len(t, batches, 1)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), batches[0].Start)

	working := &stubLoader{}
	summary, err = New(testConfig(14, 7), source, working, resumed).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 350, summary.RecordsIngested)
	assert.Equal(t, int64(700), summary.CumulativeRecords)
	assert.Equal(t, 1, working.loadCalls)
}

func TestRunIsolatesFailedDateWithinBatch(t *testing.T) {
	t.Parallel()

	source := &stubSource{
		recordsPerDay: 50,
		failDays:      map[string]error{"2024-01-02": errors.New("service unavailable")},
	}
	loader := &stubLoader{}
	tracker := newTracker(t)

	summary, err := New(testConfig(3, 3), source, loader, tracker).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status, "a bad date does not fail its batch")
	assert.Equal(t, 100, summary.RecordsIngested)
	assert.True(t, tracker.IsCompleted(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, tracker.IsCompleted(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, tracker.IsCompleted(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	state := tracker.Snapshot()
	assert.Contains(t, state.FailedDates, "2024-01-02")
}

func TestRunMarksWholeBatchFailedWhenNothingCollected(t *testing.T) {
	t.Parallel()

	source := &stubSource{
		recordsPerDay: 50,
		failDays: map[string]error{
			"2024-01-01": errors.New("down"),
			"2024-01-02": errors.New("down"),
		},
	}
	loader := &stubLoader{}
	tracker := newTracker(t)

	summary, err := New(testConfig(2, 2), source, loader, tracker).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, summary.Status)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Zero(t, loader.loadCalls)

	state := tracker.Snapshot()
	assert.ElementsMatch(t, []string{"2024-01-01", "2024-01-02"}, state.FailedDates)
}

func TestRunMarksEmptyDateCompleted(t *testing.T) {
	t.Parallel()

	source := &stubSource{
		recordsPerDay: 50,
		emptyDays:     map[string]bool{"2024-01-02": true},
	}
	loader := &stubLoader{}
	tracker := newTracker(t)

	summary, err := New(testConfig(3, 3), source, loader, tracker).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 100, summary.RecordsIngested)
	for d := 1; d <= 3; d++ {
		assert.True(t, tracker.IsCompleted(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)))
	}
	assert.Empty(t, tracker.Snapshot().FailedDates)

	// A second run has nothing left to fetch.
	summary, err = New(testConfig(3, 3), source, loader, tracker).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "all batches already completed", summary.Message)
	assert.Equal(t, 3, source.fetchCalls)
}

func TestRunClampsNonPositiveBatchDays(t *testing.T) {
	t.Parallel()

	source := &stubSource{recordsPerDay: 10}
	loader := &stubLoader{}
	tracker := newTracker(t)

	summary, err := New(testConfig(3, 0), source, loader, tracker).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 30, summary.RecordsIngested)
	assert.Equal(t, 3, loader.loadCalls, "one date per batch when clamped")
}

func TestRunPerRangePolicy(t *testing.T) {
	t.Parallel()

	cfg := testConfig(4, 2)
	cfg.FetchPolicy = FetchPerRange

	source := &stubSource{recordsPerDay: 10}
	loader := &stubLoader{}
	tracker := newTracker(t)

	summary, err := New(cfg, source, loader, tracker).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 40, summary.RecordsIngested)
	assert.Equal(t, 2, loader.loadCalls)
	for d := 1; d <= 4; d++ {
		assert.True(t, tracker.IsCompleted(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)))
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &stubSource{recordsPerDay: 10}
	_, err := New(testConfig(4, 2), source, &stubLoader{}, newTracker(t)).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
