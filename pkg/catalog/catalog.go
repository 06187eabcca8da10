// Package catalog holds the static description of the databases, tables and
// columns available to the planner. A catalog is loaded once per session and
// is read-only on the query path.
package catalog

import (
	"sort"
	"strings"
)

// Column describes a single column of a catalog table.
type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Table describes a catalog table. Keyed in Database.Tables by its
// fully-qualified "schema.name" form.
type Table struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Database is one catalog entry: every table known for a single database.
// Error records an introspection failure; such databases stay in the catalog
// with an empty table set.
type Database struct {
	ID     string            `json:"db_id"`
	Tables map[string]*Table `json:"tables"`
	Error  string            `json:"error,omitempty"`
}

// Catalog maps database identifiers to their table sets. Table and column
// names are case-sensitive as stored; database identifier lookups are
// case-insensitive.
type Catalog map[string]*Database

// Get returns the database for id, matching case-insensitively.
func (c Catalog) Get(id string) (*Database, bool) {
	if db, ok := c[id]; ok {
		return db, true
	}
	for key, db := range c {
		if strings.EqualFold(key, id) {
			return db, true
		}
	}
	return nil, false
}

// Has reports whether id names a known database, case-insensitively.
func (c Catalog) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// DatabaseIDs returns the catalog's database identifiers in sorted order.
func (c Catalog) DatabaseIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TableNames returns the fully-qualified table names of a database in sorted
// order.
func (d *Database) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
