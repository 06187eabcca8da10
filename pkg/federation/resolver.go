package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/apperrors"
	"github.com/fedql/fedql/pkg/executor"
	"github.com/fedql/fedql/pkg/llm"
	"github.com/fedql/fedql/pkg/logging"
	"github.com/fedql/fedql/pkg/sqlutil"
)

// defaultTemperature keeps merge-SQL generation near-deterministic when no
// override is configured.
const defaultTemperature = 0.1

// Result is the outcome of a federation: the finalizing SQL that was run
// (empty for the single-source short-circuit) and the resulting table.
type Result struct {
	SQL     string           `json:"sql"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// tableMetadata is the prompt-facing shape of one registered relation.
type tableMetadata struct {
	Columns []string `json:"columns"`
}

// Resolver merges per-database result sets by asking the LLM for one
// finalizing statement and executing it over an embedded analytical-engine
// session created fresh for each call.
type Resolver struct {
	client      llm.LLMClient
	temperature float64
	logger      *zap.Logger
	newSession  func() (Session, error)
}

// NewResolver creates a resolver backed by the given LLM client and an
// in-memory DuckDB session per call. A non-positive temperature selects the
// default.
func NewResolver(client llm.LLMClient, temperature float64, logger *zap.Logger) *Resolver {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &Resolver{
		client:      client,
		temperature: temperature,
		logger:      logger.Named("federation"),
		newSession:  NewSession,
	}
}

// Resolve merges the per-database tables into one answer table.
//
// Zero populated sources returns apperrors.ErrNothingToMerge without
// touching the LLM or the engine. Exactly one source short-circuits: that
// table is returned verbatim and no merge SQL is generated. With two or
// more sources the LLM sees column metadata only — never row-level data —
// and its statement runs inside the session holding the registered
// relations.
func (r *Resolver) Resolve(ctx context.Context, nlQuery string, tables map[string]*executor.Result) (*Result, error) {
	populated := make(map[string]*executor.Result, len(tables))
	for dbID, table := range tables {
		if table == nil || table.Error != "" {
			continue
		}
		populated[dbID] = table
	}

	switch len(populated) {
	case 0:
		return nil, apperrors.ErrNothingToMerge
	case 1:
		for dbID, table := range populated {
			r.logger.Info("single source, skipping merge", zap.String("db_id", dbID))
			return &Result{Columns: table.Columns, Rows: table.Rows}, nil
		}
	}

	session, err := r.newSession()
	if err != nil {
		return nil, fmt.Errorf("open analytical session: %w", err)
	}
	defer session.Close()

	dbIDs := make([]string, 0, len(populated))
	for dbID := range populated {
		dbIDs = append(dbIDs, dbID)
	}
	sort.Strings(dbIDs)

	metadata := make(map[string]tableMetadata, len(populated))
	for _, dbID := range dbIDs {
		table := populated[dbID]
		if err := session.Register(ctx, dbID, table.Columns, table.Rows); err != nil {
			return nil, fmt.Errorf("register %q: %w", dbID, err)
		}
		cols, err := session.ColumnMetadata(ctx, dbID)
		if err != nil || len(cols) == 0 {
			// Engine introspection gave no usable shape; fall back to the
			// result set's inferred value types.
			cols = inferredMetadata(table)
		}
		metadata[dbID] = tableMetadata{Columns: cols}
	}

	mergeSQL, err := r.generateMergeSQL(ctx, nlQuery, metadata)
	if err != nil {
		return nil, err
	}

	columns, rows, err := session.Query(ctx, mergeSQL)
	if err != nil {
		return nil, fmt.Errorf("merge SQL failed: %s (sql: %s)", logging.SanitizeError(err), mergeSQL)
	}

	if len(columns) == 0 {
		// A successful merge with no schema would strand downstream
		// consumers; rebuild a stable column set from the sources.
		columns = placeholderColumns(dbIDs, populated)
		rows = nil
		r.logger.Warn("merge returned zero columns, reconstructed placeholder schema",
			zap.Strings("columns", columns))
	}

	return &Result{SQL: mergeSQL, Columns: columns, Rows: rows}, nil
}

// generateMergeSQL issues the metadata-only completion request and cleans
// the returned statement.
func (r *Resolver) generateMergeSQL(ctx context.Context, nlQuery string, metadata map[string]tableMetadata) (string, error) {
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	raw, err := r.client.GenerateText(ctx, userPrompt(nlQuery, string(metadataJSON)), systemPrompt, r.temperature)
	if err != nil {
		return "", fmt.Errorf("merge SQL request failed: %w", err)
	}

	cleaned := sqlutil.ValidateAndNormalize(llm.StripSQLFences(raw))
	if cleaned.Error != nil {
		return "", fmt.Errorf("merge SQL rejected: %w", cleaned.Error)
	}
	if cleaned.NormalizedSQL == "" {
		return "", fmt.Errorf("merge SQL request returned an empty statement")
	}
	return cleaned.NormalizedSQL, nil
}

// inferredMetadata derives "name type" strings from a table's values when
// engine introspection is unavailable.
func inferredMetadata(table *executor.Result) []string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = col + " " + duckTypeFor(col, table.Rows)
	}
	return cols
}

// placeholderColumns rebuilds a schema for a zero-column merge result: the
// intersection of all source column sets, or their union when the
// intersection is empty. Intersection order follows the first source;
// union order follows first encounter across sources.
func placeholderColumns(dbIDs []string, tables map[string]*executor.Result) []string {
	if len(dbIDs) == 0 {
		return []string{}
	}

	common := make([]string, 0)
	for _, col := range tables[dbIDs[0]].Columns {
		inAll := true
		for _, dbID := range dbIDs[1:] {
			if !containsColumn(tables[dbID].Columns, col) {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, col)
		}
	}
	if len(common) > 0 {
		return common
	}

	union := make([]string, 0)
	for _, dbID := range dbIDs {
		for _, col := range tables[dbID].Columns {
			if !containsColumn(union, col) {
				union = append(union, col)
			}
		}
	}
	return union
}

func containsColumn(columns []string, col string) bool {
	for _, c := range columns {
		if c == col {
			return true
		}
	}
	return false
}
