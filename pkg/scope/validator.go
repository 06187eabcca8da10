// Package scope enforces that generated per-database SQL stays inside its
// assigned database's catalog slice. It is the safety gate preventing the
// LLM from silently cross-referencing an unrelated database.
//
// Table references are recovered with a regex over FROM/JOIN clauses. That
// is a deliberate best-effort heuristic, not a SQL parser: subqueries in
// other positions, CTE names and dialect quirks are out of reach. Callers
// depend only on Validate, so the extraction can be swapped for a real
// parser without touching them.
package scope

import (
	"regexp"
	"strings"

	"github.com/fedql/fedql/pkg/catalog"
)

// DefaultSchema qualifies unqualified table references before membership
// checks, matching how catalogs store fully-qualified names.
const DefaultSchema = "public"

// tableRefPattern captures the identifier following a FROM or JOIN keyword,
// including optional schema qualification and quoting.
var tableRefPattern = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z0-9_."]+)`)

// Validate reports whether every table referenced by sql is a member of the
// identified database's catalog slice. Membership is case-insensitive and
// unqualified names are normalized to the default schema. Unknown databases
// never validate.
func Validate(dbID string, sql string, cat catalog.Catalog) bool {
	db, ok := cat.Get(dbID)
	if !ok {
		return false
	}

	known := make(map[string]struct{}, len(db.Tables))
	for fq := range db.Tables {
		known[strings.ToLower(fq)] = struct{}{}
	}

	for _, ref := range TableRefs(sql) {
		if _, ok := known[ref]; !ok {
			return false
		}
	}
	return true
}

// TableRefs extracts the normalized (lower-cased, schema-qualified,
// unquoted) table references following FROM and JOIN keywords.
func TableRefs(sql string) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, m := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		ref := normalize(m[1])
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

func normalize(ref string) string {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, `"`, ""))
	if ref == "" {
		return ""
	}
	if !strings.Contains(ref, ".") {
		ref = DefaultSchema + "." + ref
	}
	return strings.ToLower(ref)
}
