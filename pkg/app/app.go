// Package app wires the query pipeline: plan, execute per database, mask,
// federate. One App serves many questions; each question gets its own ID
// and its own federation session.
package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/apperrors"
	"github.com/fedql/fedql/pkg/catalog"
	"github.com/fedql/fedql/pkg/config"
	"github.com/fedql/fedql/pkg/executor"
	"github.com/fedql/fedql/pkg/federation"
	"github.com/fedql/fedql/pkg/llm"
	"github.com/fedql/fedql/pkg/masking"
	"github.com/fedql/fedql/pkg/planner"
)

// SourceResult is one per-database leg of an answer.
type SourceResult struct {
	DBID    string
	SQL     string
	Purpose string
	Result  *executor.Result
	// Masked column name -> indicator, for display.
	MaskIndicators map[string]string
}

// Response is the full outcome of one question.
type Response struct {
	QueryID  string
	Question string

	Sources []SourceResult

	// Final merged table. Nil when nothing could be federated; the reason
	// is then in FederationError.
	Final           *federation.Result
	FinalIndicators map[string]string
	FederationError string

	// Display-only statement suggested by the planner. Never executed.
	SuggestedFinalSQL string
}

// App owns the live query path.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	planner  *planner.Planner
	runner   *executor.Runner
	resolver *federation.Resolver
	masker   *masking.Masker
	catalog  catalog.Catalog
	dsns     map[string]string
}

// New assembles the pipeline from its parts.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	client llm.LLMClient,
	cat catalog.Catalog,
	dsns map[string]string,
	policy *masking.Policy,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		planner:  planner.New(client, cfg.LLM.Temperature, logger),
		runner:   executor.NewRunner(cfg.RowLimit, logger),
		resolver: federation.NewResolver(client, cfg.LLM.Temperature, logger),
		masker:   masking.NewMasker(policy, cat, logger),
		catalog:  cat,
		dsns:     dsns,
	}
}

// Ask answers one natural-language question end to end.
//
// Planning failures abort the question. Per-database execution failures do
// not: the failing leg carries its error text and contributes nothing to
// federation. Masking happens before display and before nothing else — the
// federation engine works on unmasked data so joins on sensitive keys still
// line up, and the merged table is masked again on the way out.
func (a *App) Ask(ctx context.Context, question string) (*Response, error) {
	queryID := uuid.New().String()
	logger := a.logger.With(zap.String("query_id", queryID))
	logger.Info("question received", zap.Int("length", len(question)))

	plan, err := a.planner.Plan(ctx, question, a.catalog)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		QueryID:           queryID,
		Question:          question,
		SuggestedFinalSQL: plan.FinalSQL,
	}

	tables := make(map[string]*executor.Result, len(plan.Items))
	for _, item := range plan.Items {
		result := a.executeItem(ctx, logger, item)
		tables[item.DBID] = result

		masked, indicators := a.maskSource(item, result)
		resp.Sources = append(resp.Sources, SourceResult{
			DBID:           item.DBID,
			SQL:            item.SQL,
			Purpose:        item.Purpose,
			Result:         masked,
			MaskIndicators: indicators,
		})
	}

	final, err := a.resolver.Resolve(ctx, question, tables)
	if err != nil {
		resp.FederationError = err.Error()
		logger.Warn("federation failed", zap.String("error", resp.FederationError))
		return resp, nil
	}

	maskedRows, indicators := a.masker.Mask(a.cfg.Role, "", "", final.Columns, final.Rows)
	resp.Final = &federation.Result{SQL: final.SQL, Columns: final.Columns, Rows: maskedRows}
	resp.FinalIndicators = indicators
	return resp, nil
}

func (a *App) executeItem(ctx context.Context, logger *zap.Logger, item planner.PlanItem) *executor.Result {
	dsn, ok := a.dsns[strings.ToLower(item.DBID)]
	if !ok {
		logger.Warn("no DSN for planned database", zap.String("db_id", item.DBID))
		return &executor.Result{
			Columns: []string{},
			Rows:    []map[string]any{},
			Error:   apperrors.ErrMissingDSN.Error(),
		}
	}
	return a.runner.Execute(ctx, dsn, item.SQL)
}

// maskSource masks one per-database result for display. The raw result stays
// untouched for federation.
func (a *App) maskSource(item planner.PlanItem, result *executor.Result) (*executor.Result, map[string]string) {
	if result.Error != "" {
		return result, map[string]string{}
	}
	maskedRows, indicators := a.masker.Mask(a.cfg.Role, item.DBID, "", result.Columns, result.Rows)
	return &executor.Result{Columns: result.Columns, Rows: maskedRows}, indicators
}
