package ingest

import "github.com/flit-data/flitpipe/internal/warehouse"

// TransactionsTable is the explicit schema for raw BNPL transactions.
// Core fields are typed for analytics performance; the complete raw record
// is preserved in raw_data so upstream schema evolution never drops fields.
func TransactionsTable(name string) warehouse.TableSpec {
	return warehouse.TableSpec{
		Name: name,
		Columns: []warehouse.Column{
			{Name: "transaction_id", Type: "TEXT", Required: true},
			{Name: "customer_id", Type: "TEXT", Required: true},
			{Name: "product_id", Type: "TEXT"},

			// Transaction timestamp from the simtom API, used for range
			// scans and post-load verification.
			{Name: "_timestamp", Type: "TIMESTAMPTZ", Required: true},

			{Name: "amount", Type: "NUMERIC", Required: true},
			{Name: "currency", Type: "TEXT", Required: true},
			{Name: "status", Type: "TEXT"},

			{Name: "risk_score", Type: "DOUBLE PRECISION"},
			{Name: "risk_level", Type: "TEXT"},
			{Name: "will_default", Type: "BOOLEAN"},

			{Name: "raw_data", Type: "JSONB", Required: true},

			{Name: "_record_id", Type: "BIGINT"},
			{Name: "_generator", Type: "TEXT"},
			{Name: "_ingestion_timestamp", Type: "TIMESTAMPTZ", Required: true},
		},
		TimeColumn:     "_timestamp",
		ClusterColumns: []string{"customer_id", "risk_level", "status"},
	}
}
