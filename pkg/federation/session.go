// Package federation merges per-database result sets into one answer table
// via a second LLM-generated SQL statement executed over an embedded
// analytical engine.
package federation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
)

// Session is one analytical-engine session scoped to a single query. Tables
// are registered under their db_id, introspected for metadata, queried once,
// and the whole session is torn down with the query.
type Session interface {
	// Register creates a named relation holding the given columns and rows.
	Register(ctx context.Context, name string, columns []string, rows []map[string]any) error

	// ColumnMetadata returns the engine's view of a registered relation as
	// ordered "name type" strings.
	ColumnMetadata(ctx context.Context, name string) ([]string, error)

	// Query executes one SQL statement against the session and materializes
	// the result.
	Query(ctx context.Context, sqlText string) ([]string, []map[string]any, error)

	// Close releases the session.
	Close() error
}

// duckSession implements Session over an in-memory DuckDB database.
type duckSession struct {
	db *sql.DB
}

// NewSession opens a fresh in-memory DuckDB session.
func NewSession() (Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &duckSession{db: db}, nil
}

func (s *duckSession) Register(ctx context.Context, name string, columns []string, rows []map[string]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("relation %q has no columns", name)
	}

	types := make([]string, len(columns))
	defs := make([]string, len(columns))
	for i, col := range columns {
		types[i] = duckTypeFor(col, rows)
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(col), types[i])
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create relation %q: %w", name, err)
	}

	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), strings.Join(placeholders, ", "))

	stmt, err := s.db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert for %q: %w", name, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = normalizeValue(row[col], types[i])
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert into %q: %w", name, err)
		}
	}
	return nil
}

// normalizeValue coerces driver-specific value types to something the
// engine's declared column type accepts. Unrecognized types land in VARCHAR
// columns via their string form.
func normalizeValue(v any, colType string) any {
	if v == nil {
		return nil
	}
	if colType == "VARCHAR" {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}

func (s *duckSession) ColumnMetadata(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", quoteLiteral(name)))
	if err != nil {
		return nil, fmt.Errorf("table_info for %q: %w", name, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   bool
			dfltValue sql.NullString
			pk        bool
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info row: %w", err)
		}
		cols = append(cols, colName+" "+colType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info rows: %w", err)
	}
	return cols, nil
}

func (s *duckSession) Query(ctx context.Context, sqlText string) ([]string, []map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read column names: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		out = append(out, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

func (s *duckSession) Close() error {
	return s.db.Close()
}

// duckTypeFor infers a column type from the first non-NULL value. Columns
// with no observed values register as VARCHAR.
func duckTypeFor(col string, rows []map[string]any) string {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case bool:
			return "BOOLEAN"
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		case time.Time:
			return "TIMESTAMP"
		default:
			return "VARCHAR"
		}
	}
	return "VARCHAR"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
