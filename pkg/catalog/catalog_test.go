package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_GetCaseInsensitive(t *testing.T) {
	cat := Catalog{
		"Sales": {ID: "Sales", Tables: map[string]*Table{}},
	}

	for _, id := range []string{"Sales", "sales", "SALES"} {
		db, ok := cat.Get(id)
		require.True(t, ok, "lookup %q", id)
		assert.Equal(t, "Sales", db.ID)
	}

	_, ok := cat.Get("warehouse")
	assert.False(t, ok)
	assert.False(t, cat.Has("warehouse"))
	assert.True(t, cat.Has("sAlEs"))
}

func TestCatalog_DatabaseIDsSorted(t *testing.T) {
	cat := Catalog{
		"zeta":  {ID: "zeta"},
		"alpha": {ID: "alpha"},
		"mid":   {ID: "mid"},
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, cat.DatabaseIDs())
}

func TestDatabase_TableNamesSorted(t *testing.T) {
	db := &Database{
		ID: "sales",
		Tables: map[string]*Table{
			"public.invoices": {},
			"crm.leads":       {},
			"public.clients":  {},
		},
	}
	assert.Equal(t, []string{"crm.leads", "public.clients", "public.invoices"}, db.TableNames())
}

func TestSlim_CapsTablesAndColumns(t *testing.T) {
	db := &Database{ID: "big", Tables: map[string]*Table{}}
	for i := 0; i < MaxTablesPerDatabase+10; i++ {
		columns := make([]Column, MaxColumnsPerTable+15)
		for j := range columns {
			columns[j] = Column{Name: fmt.Sprintf("col_%03d", j), Type: "text"}
		}
		name := fmt.Sprintf("public.t_%03d", i)
		db.Tables[name] = &Table{Schema: "public", Name: fmt.Sprintf("t_%03d", i), Columns: columns}
	}
	cat := Catalog{"big": db}

	slim := cat.Slim()
	require.Contains(t, slim, "big")
	assert.Len(t, slim["big"].Tables, MaxTablesPerDatabase)

	for _, table := range slim["big"].Tables {
		assert.Len(t, table.Columns, MaxColumnsPerTable)
	}

	// Sorted name order means the lowest-numbered tables survive the cap.
	assert.Contains(t, slim["big"].Tables, "public.t_000")
	assert.NotContains(t, slim["big"].Tables, fmt.Sprintf("public.t_%03d", MaxTablesPerDatabase+5))
}

func TestSlim_DropsDescriptionsAndTags(t *testing.T) {
	cat := Catalog{
		"sales": {
			ID: "sales",
			Tables: map[string]*Table{
				"public.clients": {
					Schema: "public",
					Name:   "clients",
					Columns: []Column{
						{Name: "email", Type: "text", Description: "contact email", Tags: []string{"pii"}},
					},
				},
			},
		},
	}

	slim := cat.Slim()
	cols := slim["sales"].Tables["public.clients"].Columns
	require.Len(t, cols, 1)
	assert.Equal(t, SlimColumn{Name: "email", Type: "text"}, cols[0])
}
