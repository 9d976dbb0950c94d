// Package progress persists ingestion progress so that multi-day backfills
// can resume after interruption.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
)

const (
	dateLayout      = "2006-01-02"
	filePermissions = 0600
	dirPermissions  = 0750
)

// State is the JSON-serializable progress document. Dates are ISO calendar
// dates; the tracker is the sole writer of the file.
type State struct {
	CompletedDates       []string   `json:"completed_dates"`
	FailedDates          []string   `json:"failed_dates"`
	TotalRecordsIngested int64      `json:"total_records_ingested"`
	LastUpdated          *time.Time `json:"last_updated"`
	IngestionStartTime   *time.Time `json:"ingestion_start_time"`
}

// Batch is a group of consecutive remaining dates loaded together in one
// warehouse load job.
type Batch struct {
	Start time.Time
	End   time.Time
	Dates []time.Time
}

// Tracker tracks per-date ingestion outcomes and a cumulative record count.
// State is persisted after every mutation; persistence failures are logged
// and the in-memory copy continues to drive the current run.
type Tracker struct {
	path string

	mu        sync.Mutex
	completed map[string]struct{}
	failed    map[string]struct{}
	total     int64
	startedAt *time.Time
	updatedAt *time.Time
}

// New creates a tracker backed by the given file. An existing file is
// loaded; a missing or unreadable file starts from empty state.
func New(ctx context.Context, path string) (*Tracker, error) {
	if path == "" {
		return nil, errors.New("progress: file path cannot be empty")
	}

	t := &Tracker{
		path:      path,
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(ctx, "Could not load progress file, starting fresh",
				tag.Path(path), tag.Error(err))
		}
		return t, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn(ctx, "Could not parse progress file, starting fresh",
			tag.Path(path), tag.Error(err))
		return t, nil
	}

	for _, d := range state.CompletedDates {
		t.completed[d] = struct{}{}
	}
	for _, d := range state.FailedDates {
		t.failed[d] = struct{}{}
	}
	t.total = state.TotalRecordsIngested
	t.startedAt = state.IngestionStartTime
	t.updatedAt = state.LastUpdated

	return t, nil
}

// StartRun records the run start timestamp. Only the first call ever has an
// effect; resumed runs keep the original start time.
func (t *Tracker) StartRun(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.startedAt != nil {
		return
	}
	now := time.Now().UTC()
	t.startedAt = &now
	t.persistLocked(ctx)
}

// MarkCompleted marks a date as successfully ingested with the given record
// count. Idempotent: a date already completed is not double-counted toward
// the cumulative total. A previously failed date is cleared from the failed
// set.
func (t *Tracker) MarkCompleted(ctx context.Context, date time.Time, records int64) {
	key := dateKey(date)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.completed[key]; !done {
		t.completed[key] = struct{}{}
		t.total += records
	}
	delete(t.failed, key)
	t.persistLocked(ctx)
}

// MarkFailed marks a date as failed. Idempotent; a later MarkCompleted
// clears the failure.
func (t *Tracker) MarkFailed(ctx context.Context, date time.Time) {
	key := dateKey(date)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.completed[key]; done {
		return
	}
	t.failed[key] = struct{}{}
	t.persistLocked(ctx)
}

// IsCompleted reports whether a date has been successfully ingested.
func (t *Tracker) IsCompleted(date time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.completed[dateKey(date)]
	return ok
}

// TotalRecords returns the cumulative record count across all runs.
func (t *Tracker) TotalRecords() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// RemainingDates returns every date in the inclusive range not yet marked
// completed, in ascending order.
func (t *Tracker) RemainingDates(start, end time.Time) []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dates []time.Time
	for d := midnight(start); !d.After(midnight(end)); d = d.AddDate(0, 0, 1) {
		if _, done := t.completed[dateKey(d)]; !done {
			dates = append(dates, d)
		}
	}
	return dates
}

// RemainingBatches partitions the remaining dates into consecutive groups of
// at most batchDays dates. The last partial group is emitted even if
// shorter. Every remaining date appears in exactly one batch.
func (t *Tracker) RemainingBatches(start, end time.Time, batchDays int) []Batch {
	remaining := t.RemainingDates(start, end)
	if len(remaining) == 0 {
		return nil
	}

	chunks := lo.Chunk(remaining, batchDays)
	batches := make([]Batch, 0, len(chunks))
	for _, dates := range chunks {
		batches = append(batches, Batch{
			Start: dates[0],
			End:   dates[len(dates)-1],
			Dates: dates,
		})
	}
	return batches
}

// Snapshot returns a copy of the current state in the persisted shape.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	state := State{
		CompletedDates:       sortedKeys(t.completed),
		FailedDates:          sortedKeys(t.failed),
		TotalRecordsIngested: t.total,
		LastUpdated:          t.updatedAt,
		IngestionStartTime:   t.startedAt,
	}
	return state
}

// persistLocked writes the state file. Failures are logged, not returned:
// re-running is idempotent at day granularity, so losing an increment only
// costs a repeat of the affected dates.
func (t *Tracker) persistLocked(ctx context.Context) {
	now := time.Now().UTC()
	t.updatedAt = &now
	state := t.stateLocked()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logger.Error(ctx, "Could not marshal progress state", tag.Error(err))
		return
	}

	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			logger.Error(ctx, "Could not create progress directory",
				tag.Path(dir), tag.Error(err))
			return
		}
	}

	if err := os.WriteFile(t.path, data, filePermissions); err != nil {
		logger.Error(ctx, "Could not save progress", tag.Path(t.path), tag.Error(err))
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dateKey(d time.Time) string {
	return d.Format(dateLayout)
}

func midnight(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD) into a UTC midnight
// time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}
