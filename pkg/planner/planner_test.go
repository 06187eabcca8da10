package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/apperrors"
	"github.com/fedql/fedql/pkg/catalog"
	"github.com/fedql/fedql/pkg/llm"
)

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		"sales": {
			ID: "sales",
			Tables: map[string]*catalog.Table{
				"public.clients":  {Schema: "public", Name: "clients", Columns: []catalog.Column{{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}}},
				"public.invoices": {Schema: "public", Name: "invoices", Columns: []catalog.Column{{Name: "client_id", Type: "integer"}, {Name: "total", Type: "numeric"}}},
			},
		},
		"hr": {
			ID: "hr",
			Tables: map[string]*catalog.Table{
				"public.employees": {Schema: "public", Name: "employees", Columns: []catalog.Column{{Name: "id", Type: "integer"}}},
			},
		},
	}
}

func staticJSON(response string) *llm.MockLLMClient {
	mock := llm.NewMockLLMClient()
	mock.GenerateJSONFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return response, nil
	}
	return mock
}

func TestPlan_AcceptsValidItems(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [
			{"db_id": "sales", "sql": "SELECT * FROM clients;", "purpose": "client list"},
			{"db_id": "hr", "sql": "SELECT id FROM employees"}
		],
		"final_sql": "SELECT 1"
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "list clients and employees", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 2)
	assert.Equal(t, "sales", plan.Items[0].DBID)
	assert.Equal(t, "SELECT * FROM clients", plan.Items[0].SQL, "trailing semicolon is stripped")
	assert.Equal(t, "client list", plan.Items[0].Purpose)
	assert.Equal(t, "hr", plan.Items[1].DBID)
	assert.Equal(t, "query", plan.Items[1].Purpose, "missing purpose defaults")
	assert.Equal(t, "SELECT 1", plan.FinalSQL)
	assert.Equal(t, 1, mock.GenerateJSONCalls)
}

func TestPlan_FirstOccurrenceWinsOnDuplicateDBID(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [
			{"db_id": "sales", "sql": "SELECT * FROM clients"},
			{"db_id": "sales", "sql": "SELECT * FROM invoices"}
		]
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "SELECT * FROM clients", plan.Items[0].SQL)
}

func TestPlan_SkipsUnknownDatabase(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [
			{"db_id": "warehouse", "sql": "SELECT * FROM stock"},
			{"db_id": "sales", "sql": "SELECT * FROM clients"}
		]
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients and stock", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "sales", plan.Items[0].DBID)
	assert.Equal(t, 1, mock.GenerateJSONCalls, "unknown databases are dropped without repair")
}

func TestPlan_SkipsEmptyItems(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [
			{"db_id": "", "sql": "SELECT 1"},
			{"db_id": "sales", "sql": ""},
			{"db_id": "sales", "sql": "SELECT * FROM clients"}
		]
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "SELECT * FROM clients", plan.Items[0].SQL)
}

func TestPlan_MalformedResponseFails(t *testing.T) {
	mock := staticJSON(`the model refused to answer`)

	p := New(mock, 0, zap.NewNop())
	_, err := p.Plan(context.Background(), "clients", testCatalog())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMalformedPlan))
}

func TestPlan_TransportErrorFails(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateJSONFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return "", fmt.Errorf("connection refused")
	}

	p := New(mock, 0, zap.NewNop())
	_, err := p.Plan(context.Background(), "clients", testCatalog())
	require.Error(t, err)
}

func TestPlan_RecoverableJSONWithProse(t *testing.T) {
	mock := staticJSON(`Sure, here is the plan:
{"per_db_sql": [{"db_id": "sales", "sql": "SELECT * FROM clients"}], "final_sql": ""}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
}

func TestPlan_FinalSQLDefaultsToEmpty(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "absent",
			response: `{"per_db_sql": [{"db_id": "sales", "sql": "SELECT * FROM clients"}]}`,
		},
		{
			name:     "null",
			response: `{"per_db_sql": [{"db_id": "sales", "sql": "SELECT * FROM clients"}], "final_sql": null}`,
		},
		{
			name:     "not a string",
			response: `{"per_db_sql": [{"db_id": "sales", "sql": "SELECT * FROM clients"}], "final_sql": 42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(staticJSON(tt.response), 0, zap.NewNop())
			plan, err := p.Plan(context.Background(), "clients", testCatalog())
			require.NoError(t, err)
			assert.Equal(t, "", plan.FinalSQL)
		})
	}
}

func TestPlan_NumericFieldsCoerced(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [{"db_id": "sales", "sql": "SELECT * FROM clients", "purpose": 7}]
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, "7", plan.Items[0].Purpose)
}

func TestPlan_ScopeRepairSucceeds(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateJSONFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		if mock.GenerateJSONCalls == 1 {
			return `{"per_db_sql": [{"db_id": "sales", "sql": "SELECT * FROM employees"}]}`, nil
		}
		return `{"db_id": "sales", "sql": "SELECT * FROM public.clients", "purpose": "query"}`, nil
	}

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "SELECT * FROM public.clients", plan.Items[0].SQL)
	assert.Equal(t, 2, mock.GenerateJSONCalls)
}

func TestPlan_FailedRepairDropsItemOnly(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateJSONFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		if mock.GenerateJSONCalls == 1 {
			return `{"per_db_sql": [
				{"db_id": "sales", "sql": "SELECT * FROM employees"},
				{"db_id": "hr", "sql": "SELECT id FROM employees"}
			]}`, nil
		}
		// The repair still references the out-of-scope table.
		return `{"db_id": "sales", "sql": "SELECT * FROM employees"}`, nil
	}

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "everything", testCatalog())
	require.NoError(t, err, "a dropped item never fails the plan")

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "hr", plan.Items[0].DBID)
	assert.Equal(t, 2, mock.GenerateJSONCalls, "exactly one repair round-trip")
}

func TestPlan_MultiStatementItemDropped(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [
			{"db_id": "sales", "sql": "SELECT 1; DROP TABLE clients"},
			{"db_id": "hr", "sql": "SELECT id FROM employees"}
		]
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "hr", plan.Items[0].DBID)
	assert.Equal(t, 1, mock.GenerateJSONCalls, "normalization failures are not repaired")
}

func TestPlan_SemicolonOnlySQLDropped(t *testing.T) {
	mock := staticJSON(`{
		"per_db_sql": [
			{"db_id": "sales", "sql": ";"},
			{"db_id": "hr", "sql": "SELECT id FROM employees"}
		]
	}`)

	p := New(mock, 0, zap.NewNop())
	plan, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "hr", plan.Items[0].DBID)
	assert.Equal(t, 1, mock.GenerateJSONCalls, "an empty statement is dropped, not repaired")
}

func TestPlan_UsesConfiguredTemperature(t *testing.T) {
	var seen float64
	mock := llm.NewMockLLMClient()
	mock.GenerateJSONFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		seen = temperature
		return `{"per_db_sql": []}`, nil
	}

	p := New(mock, 0.7, zap.NewNop())
	_, err := p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, seen, 0.001)

	p = New(mock, 0, zap.NewNop())
	_, err = p.Plan(context.Background(), "clients", testCatalog())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, seen, 0.001, "non-positive temperature falls back to the default")
}
