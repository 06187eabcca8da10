// Package executor runs a single SQL statement against one addressed data
// source. It is thin and stateless: a connection is opened per call,
// health-checked, used for exactly one statement, and closed. Every
// execution-layer failure is captured in the result's Error field — nothing
// escapes this boundary as a raised error.
package executor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/apperrors"
	"github.com/fedql/fedql/pkg/logging"
)

// Result holds the materialized output of one statement. A failed statement
// contributes no rows and carries the failure text in Error.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Error   string           `json:"error,omitempty"`
}

// Runner executes statements against DSN-addressed data sources, selecting
// the adapter from the DSN scheme.
type Runner struct {
	rowLimit int
	logger   *zap.Logger
}

// NewRunner creates a runner. rowLimit caps how many rows a single
// statement may materialize; 0 means unbounded.
func NewRunner(rowLimit int, logger *zap.Logger) *Runner {
	return &Runner{
		rowLimit: rowLimit,
		logger:   logger.Named("executor"),
	}
}

// Execute runs one statement against the data source addressed by dsn.
func (r *Runner) Execute(ctx context.Context, dsn, sql string) *Result {
	r.logger.Debug("executing statement",
		zap.String("dsn", logging.SanitizeDSN(dsn)),
		zap.String("sql", logging.SanitizeQuery(sql)))

	var (
		res *Result
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		res, err = executePostgres(ctx, dsn, sql, r.rowLimit)
	case strings.HasPrefix(dsn, "sqlserver://"):
		res, err = executeSQLServer(ctx, dsn, sql, r.rowLimit)
	default:
		err = apperrors.ErrUnsupportedDSN
	}

	if err != nil {
		r.logger.Warn("statement failed",
			zap.String("dsn", logging.SanitizeDSN(dsn)),
			zap.String("error", logging.SanitizeError(err)))
		return &Result{Columns: []string{}, Rows: []map[string]any{}, Error: logging.SanitizeError(err)}
	}
	return res
}
