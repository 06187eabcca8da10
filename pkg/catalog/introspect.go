package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/logging"
)

// introspectColumnsSQL lists user columns in table and ordinal order.
const introspectColumnsSQL = `
	SELECT table_schema, table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
	ORDER BY table_schema, table_name, ordinal_position`

// Introspect builds a live catalog from the configured DSNs by reading each
// database's information_schema. A database that cannot be reached stays in
// the catalog with its error recorded and an empty table set, so a single
// bad DSN does not sink the whole catalog build.
func Introspect(ctx context.Context, dsns map[string]string, logger *zap.Logger) Catalog {
	log := logger.Named("introspect")
	cat := make(Catalog, len(dsns))

	for dbID, dsn := range dsns {
		db := &Database{ID: dbID, Tables: map[string]*Table{}}
		cat[dbID] = db

		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			db.Error = "introspection supports postgres DSNs only"
			log.Warn("skipping datasource",
				zap.String("db_id", dbID),
				zap.String("dsn", logging.SanitizeDSN(dsn)))
			continue
		}

		if err := introspectOne(ctx, dsn, db); err != nil {
			db.Error = logging.SanitizeError(err)
			log.Warn("introspection failed",
				zap.String("db_id", dbID),
				zap.String("error", db.Error))
			continue
		}

		log.Info("introspected datasource",
			zap.String("db_id", dbID),
			zap.Int("tables", len(db.Tables)))
	}

	return cat
}

func introspectOne(ctx context.Context, dsn string, db *Database) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, introspectColumnsSQL)
	if err != nil {
		return fmt.Errorf("query information_schema: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, column, dataType string
		if err := rows.Scan(&schema, &table, &column, &dataType); err != nil {
			return fmt.Errorf("scan column row: %w", err)
		}

		fq := schema + "." + table
		t, ok := db.Tables[fq]
		if !ok {
			t = &Table{Schema: schema, Name: table}
			db.Tables[fq] = t
		}
		t.Columns = append(t.Columns, Column{Name: column, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate column rows: %w", err)
	}
	return nil
}
