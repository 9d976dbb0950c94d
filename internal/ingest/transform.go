package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/simtom"
	"github.com/flit-data/flitpipe/internal/warehouse"
)

// DataQualityError reports a record that failed validation during transform.
// Transform paths fail closed: one bad record rejects the whole slice so a
// partially valid day is never loaded.
type DataQualityError struct {
	TransactionID string
	Message       string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality error in record %q: %s", e.TransactionID, e.Message)
}

func dataQualityErrorf(record simtom.Record, format string, args ...any) error {
	id, _ := record["transaction_id"].(string)
	if id == "" {
		id = "unknown"
	}
	return &DataQualityError{TransactionID: id, Message: fmt.Sprintf(format, args...)}
}

var requiredFields = []string{"transaction_id", "timestamp", "customer_id", "amount"}

// validateSample fail-fast checks required fields on the leading records
// before any transform work is spent on a large batch.
func validateSample(records []simtom.Record) error {
	sample := records
	if len(sample) > 5 {
		sample = sample[:5]
	}
	for _, record := range sample {
		for _, field := range requiredFields {
			if isEmpty(record[field]) {
				return dataQualityErrorf(record, "missing required field %q", field)
			}
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

// Transform converts raw API records into warehouse documents using the
// hybrid shape: typed core columns plus the complete raw record as JSON.
func Transform(ctx context.Context, records []simtom.Record) ([]warehouse.Document, error) {
	if err := validateSample(records); err != nil {
		return nil, err
	}

	ingestionTime := time.Now().UTC()
	docs := make([]warehouse.Document, 0, len(records))

	for _, record := range records {
		for _, field := range requiredFields {
			if isEmpty(record[field]) {
				return nil, dataQualityErrorf(record, "missing required field %q", field)
			}
		}

		doc := warehouse.Document{
			"transaction_id": record["transaction_id"],
			"customer_id":    record["customer_id"],
			"amount":         record["amount"],
			"currency":       stringOrDefault(record["currency"], "USD"),

			"product_id":   record["product_id"],
			"status":       record["status"],
			"risk_score":   record["risk_score"],
			"risk_level":   record["risk_level"],
			"will_default": record["will_default"],

			"_record_id":           record["_record_id"],
			"_generator":           record["_generator"],
			"_ingestion_timestamp": ingestionTime,

			"raw_data": record,
		}

		// The transaction timestamp is required and must parse.
		txTime, err := parseTimestamp(record["timestamp"])
		if err != nil {
			return nil, dataQualityErrorf(record, "invalid or missing timestamp: %v", err)
		}

		// The generator's internal timestamp drives range scans; fall back
		// to the transaction timestamp when absent or unparseable.
		partitionTime := txTime
		if raw, ok := record["_timestamp"]; ok {
			if parsed, err := parseTimestamp(raw); err == nil {
				partitionTime = parsed
			} else {
				logger.Warnf(ctx, "Could not parse _timestamp %v, using transaction timestamp", raw)
			}
		}
		doc["_timestamp"] = partitionTime

		docs = append(docs, doc)
	}

	return docs, nil
}

func stringOrDefault(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("timestamp has unexpected type %T", v)
	}
}
