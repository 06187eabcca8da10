// Package planner turns a natural-language request and a catalog into a
// validated list of per-database SQL statements.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/apperrors"
	"github.com/fedql/fedql/pkg/catalog"
	"github.com/fedql/fedql/pkg/llm"
	"github.com/fedql/fedql/pkg/logging"
	"github.com/fedql/fedql/pkg/scope"
	"github.com/fedql/fedql/pkg/sqlutil"
)

// defaultTemperature keeps plan generation near-deterministic when no
// override is configured.
const defaultTemperature = 0.1

// Planner owns the planning LLM round-trip and the single-repair retry loop
// for scope violations.
type Planner struct {
	client      llm.LLMClient
	temperature float64
	logger      *zap.Logger
}

// New creates a planner backed by the given LLM client. A non-positive
// temperature selects the default.
func New(client llm.LLMClient, temperature float64, logger *zap.Logger) *Planner {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &Planner{
		client:      client,
		temperature: temperature,
		logger:      logger.Named("planner"),
	}
}

// Plan decomposes nlQuery into per-database statements against cat.
//
// Candidate items are processed in response order. An item is dropped when
// it is missing a db_id or SQL body, repeats an already-accepted db_id
// (first occurrence wins), names a database the catalog does not know, or
// still fails scope validation after the one repair round-trip. Dropped
// items never fail the whole plan; LLM transport failures and unrecoverable
// JSON do.
func (p *Planner) Plan(ctx context.Context, nlQuery string, cat catalog.Catalog) (*Plan, error) {
	slim := cat.Slim()
	slimJSON, err := json.Marshal(slim)
	if err != nil {
		return nil, fmt.Errorf("marshal slim catalog: %w", err)
	}

	raw, err := p.client.GenerateJSON(ctx, userPrompt(nlQuery, string(slimJSON)), systemPrompt, p.temperature)
	if err != nil {
		return nil, fmt.Errorf("planning request failed: %w", err)
	}

	resp, err := llm.ParseJSONResponse[planResponse](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPlan, err)
	}

	plan := &Plan{FinalSQL: resp.finalSQL()}
	seen := make(map[string]struct{})

	for _, candidate := range resp.PerDBSQL {
		item := candidate.item()
		if item.DBID == "" || item.SQL == "" {
			continue
		}
		if _, dup := seen[item.DBID]; dup {
			p.logger.Debug("dropping duplicate plan item", zap.String("db_id", item.DBID))
			continue
		}
		db, ok := cat.Get(item.DBID)
		if !ok {
			p.logger.Debug("dropping plan item for unknown database", zap.String("db_id", item.DBID))
			continue
		}

		accepted, ok := p.acceptItem(ctx, item, db, cat)
		if !ok {
			continue
		}
		plan.Items = append(plan.Items, accepted)
		seen[item.DBID] = struct{}{}
	}

	p.logger.Info("plan ready",
		zap.Int("items", len(plan.Items)),
		zap.Bool("has_final_sql", plan.FinalSQL != ""))

	return plan, nil
}

// acceptItem normalizes and scope-checks one candidate, issuing at most one
// repair round-trip on a scope violation.
func (p *Planner) acceptItem(ctx context.Context, item PlanItem, db *catalog.Database, cat catalog.Catalog) (PlanItem, bool) {
	normalized := sqlutil.ValidateAndNormalize(item.SQL)
	if normalized.Error != nil {
		p.logger.Warn("dropping plan item",
			zap.String("db_id", item.DBID),
			zap.Error(normalized.Error))
		return PlanItem{}, false
	}
	item.SQL = normalized.NormalizedSQL
	if item.SQL == "" {
		// A bare semicolon normalizes to nothing; there is no statement to
		// run or repair.
		p.logger.Debug("dropping plan item with empty statement", zap.String("db_id", item.DBID))
		return PlanItem{}, false
	}

	if scope.Validate(item.DBID, item.SQL, cat) {
		return item, true
	}

	repaired, ok := p.repairItem(ctx, item, db, cat)
	if !ok {
		// One repair attempt only; an unresolved violation drops the item
		// and the rest of the plan stands.
		p.logger.Warn("dropping plan item after failed scope repair",
			zap.String("db_id", item.DBID),
			zap.String("sql", logging.SanitizeQuery(item.SQL)))
		return PlanItem{}, false
	}
	return repaired, true
}

func (p *Planner) repairItem(ctx context.Context, item PlanItem, db *catalog.Database, cat catalog.Catalog) (PlanItem, bool) {
	p.logger.Info("scope violation, requesting repair", zap.String("db_id", item.DBID))

	raw, err := p.client.GenerateJSON(ctx,
		repairPrompt(item.DBID, db.TableNames(), item.SQL, item.Purpose),
		systemPrompt, p.temperature)
	if err != nil {
		p.logger.Warn("scope repair request failed",
			zap.String("db_id", item.DBID),
			zap.Error(err))
		return PlanItem{}, false
	}

	fixed, err := llm.ParseJSONResponse[planItemResponse](raw)
	if err != nil {
		return PlanItem{}, false
	}

	normalized := sqlutil.ValidateAndNormalize(fixed.item().SQL)
	if normalized.Error != nil || normalized.NormalizedSQL == "" {
		return PlanItem{}, false
	}
	if !scope.Validate(item.DBID, normalized.NormalizedSQL, cat) {
		return PlanItem{}, false
	}

	item.SQL = normalized.NormalizedSQL
	return item, true
}
