// Package monitor provides health reports for the ML caching
// infrastructure: Redis connectivity and capacity, and recent warehouse
// upload activity.
package monitor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
	"github.com/flit-data/flitpipe/internal/mlcache"
)

// Service statuses, ordered by severity.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusDown     = "down"
	StatusError    = "error"
	StatusCritical = "critical"
)

const (
	memoryAlertMB   = 400
	queueAlertDepth = 10000
	uploadWindow    = 24 * time.Hour
)

// CacheChecker is the cache surface the monitor inspects.
type CacheChecker interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (mlcache.Stats, error)
}

// UploadCounter counts recent warehouse rows.
type UploadCounter interface {
	CountRange(ctx context.Context, table, timeColumn string, start, end time.Time) (int64, error)
}

// ServiceReport is the health of one monitored service.
type ServiceReport struct {
	Service string
	Status  string
	Alerts  []string
	Details map[string]any
}

// Report aggregates all service checks.
type Report struct {
	Timestamp     time.Time
	OverallStatus string
	Services      []ServiceReport
}

// Config names the upload tables checked for recent activity.
type Config struct {
	PredictionsTable  string
	TransactionsTable string
}

// Monitor runs health checks against the cache and the warehouse.
type Monitor struct {
	cache   CacheChecker
	counter UploadCounter
	cfg     Config
}

func New(cache CacheChecker, counter UploadCounter, cfg Config) *Monitor {
	if cfg.PredictionsTable == "" {
		cfg.PredictionsTable = "raw_bnpl_prediction_logs"
	}
	if cfg.TransactionsTable == "" {
		cfg.TransactionsTable = "raw_bnpl_txs_json"
	}
	return &Monitor{cache: cache, counter: counter, cfg: cfg}
}

// CheckCache reports Redis connectivity, key counts and capacity alerts.
func (m *Monitor) CheckCache(ctx context.Context) ServiceReport {
	report := ServiceReport{Service: "redis", Details: map[string]any{}}

	if err := m.cache.Ping(ctx); err != nil {
		report.Status = StatusDown
		report.Details["error"] = err.Error()
		return report
	}

	stats, err := m.cache.Stats(ctx)
	if err != nil {
		report.Status = StatusError
		report.Details["error"] = err.Error()
		return report
	}

	report.Details["transaction_keys"] = stats.TransactionKeys
	report.Details["prediction_keys"] = stats.PredictionKeys
	report.Details["upload_queue_size"] = stats.UploadQueueSize
	report.Details["memory_used"] = stats.MemoryUsed

	if mb, ok := parseMemoryMB(stats.MemoryUsed); ok && mb > memoryAlertMB {
		report.Alerts = append(report.Alerts, "high memory usage: "+stats.MemoryUsed)
	}
	if stats.UploadQueueSize > queueAlertDepth {
		report.Alerts = append(report.Alerts,
			"large upload queue: "+strconv.FormatInt(stats.UploadQueueSize, 10)+" items")
	}

	report.Status = StatusHealthy
	if len(report.Alerts) > 0 {
		report.Status = StatusWarning
	}
	return report
}

// CheckUploads reports warehouse row counts over the trailing window. A
// count query failure is treated as zero rows since the table may not
// exist yet.
func (m *Monitor) CheckUploads(ctx context.Context, now time.Time) ServiceReport {
	report := ServiceReport{Service: "warehouse_uploads", Details: map[string]any{}}
	since := now.Add(-uploadWindow)

	predCount := m.countOrZero(ctx, m.cfg.PredictionsTable, since, now)
	txCount := m.countOrZero(ctx, m.cfg.TransactionsTable, since, now)

	report.Details["prediction_uploads_24h"] = predCount
	report.Details["transaction_uploads_24h"] = txCount

	report.Status = StatusHealthy
	if predCount == 0 && txCount == 0 {
		report.Alerts = append(report.Alerts, "no uploads in last 24 hours")
		report.Status = StatusWarning
	}
	return report
}

func (m *Monitor) countOrZero(ctx context.Context, table string, since, now time.Time) int64 {
	count, err := m.counter.CountRange(ctx, table, "_ingestion_timestamp", since, now)
	if err != nil {
		logger.Debug(ctx, "Upload count query failed", tag.Table(table), tag.Error(err))
		return 0
	}
	return count
}

// GenerateReport runs all checks and rolls up the overall status.
func (m *Monitor) GenerateReport(ctx context.Context) Report {
	report := Report{
		Timestamp: time.Now().UTC(),
		Services: []ServiceReport{
			m.CheckCache(ctx),
			m.CheckUploads(ctx, time.Now().UTC()),
		},
	}

	report.OverallStatus = StatusHealthy
	for _, svc := range report.Services {
		switch svc.Status {
		case StatusDown, StatusError:
			report.OverallStatus = StatusCritical
		case StatusWarning:
			if report.OverallStatus == StatusHealthy {
				report.OverallStatus = StatusWarning
			}
		}
	}
	return report
}

// parseMemoryMB parses INFO-style human sizes like "1.21M" or "2.05G".
func parseMemoryMB(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	unit := s[len(s)-1]
	value, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case 'K':
		return value / 1024, true
	case 'M':
		return value, true
	case 'G':
		return value * 1024, true
	default:
		return 0, false
	}
}
