// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming convention for consistency.
// Use these functions instead of raw strings to ensure consistent
// and type-safe log output across the codebase.
package tag

import (
	"log/slog"
	"time"
)

func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Date creates a tag for a single ingestion date.
func Date(d time.Time) slog.Attr {
	return slog.String("date", d.Format("2006-01-02"))
}

// DateRange creates a tag for a start/end date range.
func DateRange(start, end time.Time) slog.Attr {
	return slog.String("date-range", start.Format("2006-01-02")+".."+end.Format("2006-01-02"))
}

// Batch creates a tag for batch sequence numbers.
func Batch(n int) slog.Attr {
	return slog.Int("batch", n)
}

// Records creates a tag for record counts.
func Records(n int) slog.Attr {
	return slog.Int("records", n)
}

// Rows creates a tag for warehouse row counts.
func Rows(n int64) slog.Attr {
	return slog.Int64("rows", n)
}

// Table creates a tag for warehouse table names.
func Table(name string) slog.Attr {
	return slog.String("table", name)
}

// Experiment creates a tag for experiment names.
func Experiment(name string) slog.Attr {
	return slog.String("experiment", name)
}

// Variant creates a tag for experiment variant names.
func Variant(name string) slog.Attr {
	return slog.String("variant", name)
}

// Key creates a tag for cache keys.
func Key(key string) slog.Attr {
	return slog.String("key", key)
}

// Queue creates a tag for queue names.
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// Path creates a tag for file paths.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// URL creates a tag for request URLs.
func URL(url string) slog.Attr {
	return slog.String("url", url)
}

// Duration creates a tag for elapsed durations.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Status creates a tag for run status strings.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}
