package catalog

// Caps applied when projecting a catalog for a planning prompt. The slim
// catalog exists only to bound prompt size; it is rebuilt per planning call
// and never persisted.
const (
	MaxTablesPerDatabase = 150
	MaxColumnsPerTable   = 80
)

// SlimColumn is the prompt-facing view of a column: name and type only.
type SlimColumn struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// SlimTable is the prompt-facing view of a table.
type SlimTable struct {
	Columns []SlimColumn `json:"columns"`
}

// SlimDatabase is the prompt-facing view of a database.
type SlimDatabase struct {
	Tables map[string]SlimTable `json:"tables"`
}

// SlimCatalog is a size-bounded projection of a Catalog.
type SlimCatalog map[string]SlimDatabase

// Slim builds a size-bounded projection of the catalog, capping tables per
// database and columns per table. Tables are taken in sorted name order so
// the projection is deterministic.
func (c Catalog) Slim() SlimCatalog {
	slim := make(SlimCatalog, len(c))
	for id, db := range c {
		tables := make(map[string]SlimTable)
		for i, fq := range db.TableNames() {
			if i >= MaxTablesPerDatabase {
				break
			}
			t := db.Tables[fq]
			cols := t.Columns
			if len(cols) > MaxColumnsPerTable {
				cols = cols[:MaxColumnsPerTable]
			}
			skinny := make([]SlimColumn, len(cols))
			for j, col := range cols {
				skinny[j] = SlimColumn{Name: col.Name, Type: col.Type}
			}
			tables[fq] = SlimTable{Columns: skinny}
		}
		slim[id] = SlimDatabase{Tables: tables}
	}
	return slim
}
