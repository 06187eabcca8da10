package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/apperrors"
	"github.com/fedql/fedql/pkg/executor"
	"github.com/fedql/fedql/pkg/llm"
)

// fakeSession stands in for the embedded engine so resolver behavior can be
// tested without a real database.
type fakeSession struct {
	registered   []string
	queriedSQL   string
	queryColumns []string
	queryRows    []map[string]any
	queryErr     error
	closed       bool
}

func (f *fakeSession) Register(ctx context.Context, name string, columns []string, rows []map[string]any) error {
	f.registered = append(f.registered, name)
	return nil
}

func (f *fakeSession) ColumnMetadata(ctx context.Context, name string) ([]string, error) {
	return nil, fmt.Errorf("no metadata in fake")
}

func (f *fakeSession) Query(ctx context.Context, sqlText string) ([]string, []map[string]any, error) {
	f.queriedSQL = sqlText
	return f.queryColumns, f.queryRows, f.queryErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newTestResolver(mock *llm.MockLLMClient, session *fakeSession) *Resolver {
	r := NewResolver(mock, 0, zap.NewNop())
	r.newSession = func() (Session, error) { return session, nil }
	return r
}

func staticText(response string) *llm.MockLLMClient {
	mock := llm.NewMockLLMClient()
	mock.GenerateTextFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return response, nil
	}
	return mock
}

func TestResolve_NoSources(t *testing.T) {
	mock := llm.NewMockLLMClient()
	r := newTestResolver(mock, &fakeSession{})

	_, err := r.Resolve(context.Background(), "anything", map[string]*executor.Result{})
	assert.True(t, errors.Is(err, apperrors.ErrNothingToMerge))
	assert.Equal(t, 0, mock.GenerateTextCalls)
}

func TestResolve_FailedSourcesDoNotCount(t *testing.T) {
	mock := llm.NewMockLLMClient()
	r := newTestResolver(mock, &fakeSession{})

	tables := map[string]*executor.Result{
		"sales": {Error: "connection refused"},
		"hr":    nil,
	}
	_, err := r.Resolve(context.Background(), "anything", tables)
	assert.True(t, errors.Is(err, apperrors.ErrNothingToMerge))
}

func TestResolve_SingleSourceShortCircuits(t *testing.T) {
	mock := llm.NewMockLLMClient()
	session := &fakeSession{}
	r := newTestResolver(mock, session)

	tables := map[string]*executor.Result{
		"sales": {
			Columns: []string{"name", "total"},
			Rows:    []map[string]any{{"name": "acme", "total": 12}},
		},
		"hr": {Error: "timeout"},
	}

	result, err := r.Resolve(context.Background(), "totals", tables)
	require.NoError(t, err)

	assert.Equal(t, "", result.SQL, "no merge statement for a single source")
	assert.Equal(t, []string{"name", "total"}, result.Columns)
	assert.Len(t, result.Rows, 1)
	assert.Equal(t, 0, mock.GenerateTextCalls, "short circuit never consults the model")
	assert.Empty(t, session.registered, "short circuit never opens the engine")
}

func TestResolve_MergesTwoSources(t *testing.T) {
	session := &fakeSession{
		queryColumns: []string{"name", "combined"},
		queryRows:    []map[string]any{{"name": "acme", "combined": 30}},
	}
	mock := staticText("```sql\nSELECT s.name, s.total + h.total AS combined FROM sales s JOIN hr h ON h.name = s.name;\n```")
	r := newTestResolver(mock, session)

	tables := map[string]*executor.Result{
		"sales": {Columns: []string{"name", "total"}, Rows: []map[string]any{{"name": "acme", "total": 12}}},
		"hr":    {Columns: []string{"name", "total"}, Rows: []map[string]any{{"name": "acme", "total": 18}}},
	}

	result, err := r.Resolve(context.Background(), "combine totals", tables)
	require.NoError(t, err)

	assert.Equal(t, []string{"hr", "sales"}, session.registered, "relations registered in sorted order")
	assert.False(t, strings.Contains(session.queriedSQL, "```"), "fences are stripped before execution")
	assert.False(t, strings.HasSuffix(session.queriedSQL, ";"), "trailing semicolon is stripped")
	assert.Equal(t, session.queriedSQL, result.SQL)
	assert.Equal(t, []string{"name", "combined"}, result.Columns)
	assert.True(t, session.closed)
}

func TestResolve_PromptCarriesMetadataOnly(t *testing.T) {
	session := &fakeSession{queryColumns: []string{"name"}}
	mock := staticText("SELECT name FROM sales")
	r := newTestResolver(mock, session)

	tables := map[string]*executor.Result{
		"sales": {Columns: []string{"name"}, Rows: []map[string]any{{"name": "SECRET-ROW-VALUE"}}},
		"hr":    {Columns: []string{"name"}, Rows: []map[string]any{{"name": "ANOTHER-SECRET"}}},
	}

	_, err := r.Resolve(context.Background(), "names", tables)
	require.NoError(t, err)

	require.Len(t, mock.Prompts, 1)
	prompt := mock.Prompts[0]
	assert.Contains(t, prompt, "name", "column names are shared")
	assert.NotContains(t, prompt, "SECRET-ROW-VALUE", "row data never reaches the model")
	assert.NotContains(t, prompt, "ANOTHER-SECRET")
}

func TestResolve_ZeroColumnResultRebuildsSchema(t *testing.T) {
	tests := []struct {
		name     string
		tables   map[string]*executor.Result
		expected []string
	}{
		{
			name: "intersection when sources overlap",
			tables: map[string]*executor.Result{
				"a": {Columns: []string{"id", "name", "total"}, Rows: []map[string]any{{"id": 1}}},
				"b": {Columns: []string{"name", "id"}, Rows: []map[string]any{{"id": 2}}},
			},
			expected: []string{"id", "name"},
		},
		{
			name: "union when nothing overlaps",
			tables: map[string]*executor.Result{
				"a": {Columns: []string{"id"}, Rows: []map[string]any{{"id": 1}}},
				"b": {Columns: []string{"name"}, Rows: []map[string]any{{"name": "x"}}},
			},
			expected: []string{"id", "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{queryColumns: []string{}}
			r := newTestResolver(staticText("SELECT 1"), session)

			result, err := r.Resolve(context.Background(), "merge", tt.tables)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Columns)
			assert.Empty(t, result.Rows)
		})
	}
}

func TestResolve_MergeQueryFailureCarriesSQL(t *testing.T) {
	session := &fakeSession{queryErr: fmt.Errorf("Binder Error: column nope not found")}
	r := newTestResolver(staticText("SELECT nope FROM sales"), session)

	tables := map[string]*executor.Result{
		"sales": {Columns: []string{"name"}, Rows: []map[string]any{{"name": "a"}}},
		"hr":    {Columns: []string{"name"}, Rows: []map[string]any{{"name": "b"}}},
	}

	_, err := r.Resolve(context.Background(), "merge", tables)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SELECT nope FROM sales")
}

func TestResolve_ModelErrorIsFatal(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateTextFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return "", fmt.Errorf("connection refused")
	}
	r := newTestResolver(mock, &fakeSession{})

	tables := map[string]*executor.Result{
		"sales": {Columns: []string{"name"}},
		"hr":    {Columns: []string{"name"}},
	}

	_, err := r.Resolve(context.Background(), "merge", tables)
	require.Error(t, err)
}

func TestResolve_MultiStatementMergeRejected(t *testing.T) {
	session := &fakeSession{}
	r := newTestResolver(staticText("SELECT 1; DROP TABLE sales"), session)

	tables := map[string]*executor.Result{
		"sales": {Columns: []string{"name"}},
		"hr":    {Columns: []string{"name"}},
	}

	_, err := r.Resolve(context.Background(), "merge", tables)
	require.Error(t, err)
	assert.Equal(t, "", session.queriedSQL, "rejected statements never execute")
}

// End-to-end over the real engine: typed registration, introspected
// metadata in the prompt, and the merge statement executed in-session.
func TestResolve_RealEngineTopClientsByInvoiceTotal(t *testing.T) {
	mock := staticText(`SELECT c.name, b.total
FROM "crm" c
JOIN "billing" b ON b.client_id = c.client_id
ORDER BY b.total DESC
LIMIT 3`)
	r := NewResolver(mock, 0, zap.NewNop())

	tables := map[string]*executor.Result{
		"crm": {
			Columns: []string{"client_id", "name"},
			Rows: []map[string]any{
				{"client_id": int64(1), "name": "acme"},
				{"client_id": int64(2), "name": "globex"},
				{"client_id": int64(3), "name": "initech"},
				{"client_id": int64(4), "name": "umbrella"},
			},
		},
		"billing": {
			Columns: []string{"client_id", "total"},
			Rows: []map[string]any{
				{"client_id": int64(1), "total": 120.0},
				{"client_id": int64(2), "total": 340.5},
				{"client_id": int64(3), "total": 75.25},
				{"client_id": int64(4), "total": 210.0},
			},
		},
	}

	result, err := r.Resolve(context.Background(), "top 3 clients by total invoice amount", tables)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "total"}, result.Columns)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, "globex", result.Rows[0]["name"])
	assert.Equal(t, "umbrella", result.Rows[1]["name"])
	assert.Equal(t, "acme", result.Rows[2]["name"])

	// Metadata reached the model from engine introspection, with types.
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "client_id BIGINT")
	assert.Contains(t, mock.Prompts[0], "total DOUBLE")
}

func TestResolve_UsesConfiguredTemperature(t *testing.T) {
	var seen float64
	mock := llm.NewMockLLMClient()
	mock.GenerateTextFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		seen = temperature
		return "SELECT name FROM sales", nil
	}
	session := &fakeSession{queryColumns: []string{"name"}}
	r := NewResolver(mock, 0.5, zap.NewNop())
	r.newSession = func() (Session, error) { return session, nil }

	tables := map[string]*executor.Result{
		"sales": {Columns: []string{"name"}},
		"hr":    {Columns: []string{"name"}},
	}
	_, err := r.Resolve(context.Background(), "names", tables)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, seen, 0.001)
}
