package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flit-data/flitpipe/internal/mlcache"
)

type stubCache struct {
	pingErr  error
	stats    mlcache.Stats
	statsErr error
}

func (s *stubCache) Ping(context.Context) error { return s.pingErr }

func (s *stubCache) Stats(context.Context) (mlcache.Stats, error) {
	return s.stats, s.statsErr
}

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s *stubCounter) CountRange(_ context.Context, table, _ string, _, _ time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[table], nil
}

func TestCheckCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Healthy", func(t *testing.T) {
		cache := &stubCache{stats: mlcache.Stats{
			TransactionKeys: 12,
			PredictionKeys:  8,
			UploadQueueSize: 20,
			MemoryUsed:      "1.21M",
		}}
		report := New(cache, &stubCounter{}, Config{}).CheckCache(ctx)

		assert.Equal(t, StatusHealthy, report.Status)
		assert.Empty(t, report.Alerts)
		assert.Equal(t, 12, report.Details["transaction_keys"])
	})

	t.Run("Down", func(t *testing.T) {
		cache := &stubCache{pingErr: errors.New("connection refused")}
		report := New(cache, &stubCounter{}, Config{}).CheckCache(ctx)

		assert.Equal(t, StatusDown, report.Status)
		assert.Contains(t, report.Details["error"], "connection refused")
	})

	t.Run("MemoryAlert", func(t *testing.T) {
		cache := &stubCache{stats: mlcache.Stats{MemoryUsed: "450.00M"}}
		report := New(cache, &stubCounter{}, Config{}).CheckCache(ctx)

		assert.Equal(t, StatusWarning, report.Status)
		require.Len(t, report.Alerts, 1)
		assert.Contains(t, report.Alerts[0], "high memory usage")
	})

	t.Run("QueueDepthAlert", func(t *testing.T) {
		cache := &stubCache{stats: mlcache.Stats{UploadQueueSize: 15000, MemoryUsed: "10M"}}
		report := New(cache, &stubCounter{}, Config{}).CheckCache(ctx)

		assert.Equal(t, StatusWarning, report.Status)
		require.Len(t, report.Alerts, 1)
		assert.Contains(t, report.Alerts[0], "large upload queue")
	})
}

func TestCheckUploads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("RecentActivity", func(t *testing.T) {
		counter := &stubCounter{counts: map[string]int64{
			"raw_bnpl_prediction_logs": 1200,
			"raw_bnpl_txs_json":        900,
		}}
		report := New(&stubCache{}, counter, Config{}).CheckUploads(ctx, now)

		assert.Equal(t, StatusHealthy, report.Status)
		assert.Equal(t, int64(1200), report.Details["prediction_uploads_24h"])
		assert.Equal(t, int64(900), report.Details["transaction_uploads_24h"])
	})

	t.Run("NoRecentUploads", func(t *testing.T) {
		report := New(&stubCache{}, &stubCounter{}, Config{}).CheckUploads(ctx, now)

		assert.Equal(t, StatusWarning, report.Status)
		require.Len(t, report.Alerts, 1)
		assert.Contains(t, report.Alerts[0], "no uploads")
	})

	t.Run("MissingTableCountsAsZero", func(t *testing.T) {
		counter := &stubCounter{err: errors.New("relation does not exist")}
		report := New(&stubCache{}, counter, Config{}).CheckUploads(ctx, now)

		assert.Equal(t, StatusWarning, report.Status)
	})
}

func TestGenerateReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("CriticalWhenCacheDown", func(t *testing.T) {
		cache := &stubCache{pingErr: errors.New("down")}
		counter := &stubCounter{counts: map[string]int64{"raw_bnpl_txs_json": 10}}
		report := New(cache, counter, Config{}).GenerateReport(ctx)

		assert.Equal(t, StatusCritical, report.OverallStatus)
		assert.Len(t, report.Services, 2)
	})

	t.Run("WarningPropagates", func(t *testing.T) {
		cache := &stubCache{stats: mlcache.Stats{MemoryUsed: "1M"}}
		report := New(cache, &stubCounter{}, Config{}).GenerateReport(ctx)

		assert.Equal(t, StatusWarning, report.OverallStatus)
	})

	t.Run("Healthy", func(t *testing.T) {
		cache := &stubCache{stats: mlcache.Stats{MemoryUsed: "1M"}}
		counter := &stubCounter{counts: map[string]int64{"raw_bnpl_prediction_logs": 5}}
		report := New(cache, counter, Config{}).GenerateReport(ctx)

		assert.Equal(t, StatusHealthy, report.OverallStatus)
	})
}

func TestParseMemoryMB(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		mb float64
		ok bool
	}{
		{"1.21M", 1.21, true},
		{"512K", 0.5, true},
		{"2G", 2048, true},
		{"unknown", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		mb, ok := parseMemoryMB(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.mb, mb, 0.01, tc.in)
		}
	}
}
