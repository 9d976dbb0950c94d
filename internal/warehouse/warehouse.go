// Package warehouse provides the SQL data warehouse client used by the
// ingestion and generation pipelines. Tables are either explicitly typed
// (with time and clustering indexes) or autodetected, in which case whole
// documents are stored as a JSON payload column.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
)

// Document is one warehouse row in newline-delimited-JSON shape: column
// name to value.
type Document map[string]any

// Column describes one typed column of an explicit table schema.
type Column struct {
	Name     string
	Type     string
	Required bool
}

// TableSpec describes a destination table.
type TableSpec struct {
	Name string
	// Columns is the explicit schema. Ignored when Autodetect is set.
	Columns []Column
	// Autodetect stores whole documents as a JSONB payload instead of
	// typed columns, for tables whose schema follows the data.
	Autodetect bool
	// TimeColumn is the timestamp column used for range scans and
	// post-load verification counts.
	TimeColumn string
	// ClusterColumns get a combined index for common query patterns.
	ClusterColumns []string
}

// LoadResult reports the outcome of a load job.
type LoadResult struct {
	OutputRows int64
	Errors     []string
}

// Client is a warehouse connection scoped to one schema.
type Client struct {
	db     *sql.DB
	schema string
}

// Open connects to the warehouse and verifies connectivity.
func Open(ctx context.Context, dsn, schema string) (*Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}
	return &Client{db: db, schema: schema}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Schema returns the schema this client is scoped to.
func (c *Client) Schema() string {
	return c.schema
}

// EnsureSchema creates the schema if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdent(c.schema))); err != nil {
		return fmt.Errorf("failed to ensure schema %s: %w", c.schema, err)
	}
	return nil
}

// EnsureTable creates the table and its indexes if absent. Pre-existing
// tables are reused as-is.
func (c *Client) EnsureTable(ctx context.Context, spec TableSpec) error {
	for _, stmt := range ensureTableStatements(c.schema, spec) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure table %s.%s: %w", c.schema, spec.Name, err)
		}
	}
	logger.Debug(ctx, "Ensured warehouse table", tag.Table(spec.Name))
	return nil
}

// Load appends the documents to the table in a single transaction and
// reports the number of rows written. A failure rolls back the whole job.
func (c *Client) Load(ctx context.Context, spec TableSpec, docs []Document) (LoadResult, error) {
	if len(docs) == 0 {
		return LoadResult{}, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to begin load job: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var written int64
	for _, chunk := range chunkDocuments(docs, insertChunkSize) {
		stmt, args, err := insertStatement(c.schema, spec, chunk)
		if err != nil {
			return LoadResult{Errors: []string{err.Error()}}, err
		}
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			loadErr := fmt.Errorf("load job failed for table %s.%s: %w", c.schema, spec.Name, err)
			return LoadResult{Errors: []string{err.Error()}}, loadErr
		}
		n, _ := res.RowsAffected()
		written += n
	}

	if err := tx.Commit(); err != nil {
		return LoadResult{Errors: []string{err.Error()}}, fmt.Errorf("failed to commit load job: %w", err)
	}

	logger.Info(ctx, "Load job completed", tag.Table(spec.Name), tag.Rows(written))
	return LoadResult{OutputRows: written}, nil
}

// CountRange counts rows whose time column falls in [start, end).
func (c *Client) CountRange(ctx context.Context, table, timeColumn string, start, end time.Time) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s WHERE %s >= $1 AND %s < $2",
		quoteIdent(c.schema), quoteIdent(table), quoteIdent(timeColumn), quoteIdent(timeColumn))

	var count int64
	if err := c.db.QueryRowContext(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query failed for %s.%s: %w", c.schema, table, err)
	}
	return count, nil
}

// QueryDocuments runs a plain SQL query and returns the rows as documents
// keyed by column name.
func (c *Client) QueryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var docs []Document
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc := make(Document, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				doc[col] = string(b)
			} else {
				doc[col] = values[i]
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return docs, nil
}
