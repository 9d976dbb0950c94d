package warehouse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// insertChunkSize bounds the number of rows per INSERT statement so the
// placeholder count stays well under the protocol limit.
const insertChunkSize = 500

func chunkDocuments(docs []Document, size int) [][]Document {
	return lo.Chunk(docs, size)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// effectiveColumns resolves the columns a table is written with. Autodetect
// tables store the whole document as a payload plus the ingestion stamp.
func effectiveColumns(spec TableSpec) []Column {
	if !spec.Autodetect {
		return spec.Columns
	}
	return []Column{
		{Name: "payload", Type: "JSONB", Required: true},
		{Name: "_ingestion_timestamp", Type: "TIMESTAMPTZ", Required: true},
	}
}

// ensureTableStatements builds the CREATE TABLE and CREATE INDEX statements
// for a table spec. All statements are idempotent.
func ensureTableStatements(schema string, spec TableSpec) []string {
	columns := effectiveColumns(spec)
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		def := fmt.Sprintf("%s %s", quoteIdent(col.Name), col.Type)
		if col.Required {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	table := fmt.Sprintf("%s.%s", quoteIdent(schema), quoteIdent(spec.Name))
	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", ")),
	}

	if spec.TimeColumn != "" && !spec.Autodetect {
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent(indexName(spec.Name, spec.TimeColumn)), table, quoteIdent(spec.TimeColumn),
		))
	}
	if len(spec.ClusterColumns) > 0 {
		quoted := lo.Map(spec.ClusterColumns, func(col string, _ int) string {
			return quoteIdent(col)
		})
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent(indexName(spec.Name, "cluster")), table, strings.Join(quoted, ", "),
		))
	}
	return statements
}

func indexName(table, suffix string) string {
	return fmt.Sprintf("idx_%s_%s", table, suffix)
}

// insertStatement builds one multi-row INSERT for the chunk together with
// its flattened argument list.
func insertStatement(schema string, spec TableSpec, docs []Document) (string, []any, error) {
	columns := effectiveColumns(spec)
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, quoteIdent(col.Name))
	}

	var (
		rows []string
		args []any
	)
	for _, doc := range docs {
		values, err := rowValues(spec, columns, doc)
		if err != nil {
			return "", nil, err
		}
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+i+1)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, values...)
	}

	stmt := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES %s",
		quoteIdent(schema), quoteIdent(spec.Name), strings.Join(names, ", "), strings.Join(rows, ", "))
	return stmt, args, nil
}

// rowValues maps a document onto the column order of the table. Required
// columns must be present and non-nil.
func rowValues(spec TableSpec, columns []Column, doc Document) ([]any, error) {
	if spec.Autodetect {
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document payload: %w", err)
		}
		stamp := doc["_ingestion_timestamp"]
		if stamp == nil {
			stamp = time.Now().UTC()
		}
		return []any{payload, stamp}, nil
	}

	values := make([]any, 0, len(columns))
	for _, col := range columns {
		value, ok := doc[col.Name]
		if (!ok || value == nil) && col.Required {
			return nil, fmt.Errorf("document missing required column %q for table %s", col.Name, spec.Name)
		}
		converted, err := convertValue(col, value)
		if err != nil {
			return nil, err
		}
		values = append(values, converted)
	}
	return values, nil
}

func convertValue(col Column, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if strings.EqualFold(col.Type, "JSONB") {
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode column %q: %w", col.Name, err)
			}
			return encoded, nil
		}
	}
	return value, nil
}
