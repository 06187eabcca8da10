package masking

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/catalog"
)

// longTextMask replaces free-text values whose length would otherwise leak.
const longTextMask = "****"

var phonePattern = regexp.MustCompile(`^[\d\s\-\(\)\+\.]+$`)

// Masker applies a policy to result tables, resolving field tags through
// the catalog.
type Masker struct {
	policy  *Policy
	catalog catalog.Catalog
	logger  *zap.Logger
}

// NewMasker creates a masker over the given policy and catalog.
func NewMasker(policy *Policy, cat catalog.Catalog, logger *zap.Logger) *Masker {
	return &Masker{
		policy:  policy,
		catalog: cat,
		logger:  logger.Named("masking"),
	}
}

// Mask star-masks sensitive values in a result table for the given role and
// returns the masked rows plus per-column indicators ("Masked"). All columns
// stay visible. The admin role sees everything in the clear.
//
// tableName may be empty; in that case the table (and, if dbID is also
// empty, the database) is inferred from column-name overlap against the
// catalog. The input rows are not modified.
func (m *Masker) Mask(role, dbID, tableName string, columns []string, rows []map[string]any) ([]map[string]any, map[string]string) {
	indicators := map[string]string{}
	if role == AdminRole || len(rows) == 0 {
		return rows, indicators
	}

	if tableName == "" {
		inferredDB, inferredTable := m.inferTable(columns)
		if inferredTable != "" {
			tableName = inferredTable
			if dbID == "" {
				dbID = inferredDB
			}
			m.logger.Debug("inferred table identity for masking",
				zap.String("db_id", dbID),
				zap.String("table", tableName))
		}
	}

	maskedColumns := make([]string, 0)
	for _, col := range columns {
		tags := m.fieldTags(dbID, tableName, col)
		if m.policy.ShouldMask(role, tags) {
			maskedColumns = append(maskedColumns, col)
			indicators[col] = "Masked"
		}
	}
	if len(maskedColumns) == 0 {
		return rows, indicators
	}

	masked := make([]map[string]any, len(rows))
	for i, row := range rows {
		copied := make(map[string]any, len(row))
		for col, value := range row {
			copied[col] = value
		}
		for _, col := range maskedColumns {
			copied[col] = StarMask(copied[col])
		}
		masked[i] = copied
	}
	return masked, indicators
}

// StarMask replaces a value with stars. Length is preserved for emails,
// phone-like strings, numerics and short text; long free text collapses to
// a fixed-width mask so its length does not leak.
func StarMask(value any) any {
	if value == nil {
		return nil
	}

	str := strings.TrimSpace(fmt.Sprint(value))
	if str == "" {
		return value
	}

	switch {
	case strings.Contains(str, "@") && strings.Contains(str, "."):
		return strings.Repeat("*", len(str))
	case len(str) >= 7 && phonePattern.MatchString(str):
		return strings.Repeat("*", len(str))
	case isNumericString(str):
		return strings.Repeat("*", len(str))
	case len(str) <= 10:
		return strings.Repeat("*", len(str))
	default:
		return longTextMask
	}
}

func isNumericString(s string) bool {
	stripped := strings.NewReplacer(".", "", "-", "", ",", "").Replace(s)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// fieldTags resolves the sensitivity tags of one column via the catalog.
// Unknown databases, tables or columns carry no tags.
func (m *Masker) fieldTags(dbID, tableName, column string) []string {
	db, ok := m.catalog.Get(dbID)
	if !ok {
		return nil
	}

	table, ok := db.Tables[qualifyTable(tableName)]
	if !ok {
		return nil
	}

	for _, col := range table.Columns {
		if strings.EqualFold(col.Name, column) {
			return col.Tags
		}
	}
	return nil
}

// inferTable finds the catalog table whose column set overlaps the result
// columns the most. Useful for federated results, which carry no table
// identity of their own.
func (m *Masker) inferTable(columns []string) (dbID, tableName string) {
	columnSet := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		columnSet[strings.ToLower(col)] = struct{}{}
	}

	best := 0
	for _, id := range m.catalog.DatabaseIDs() {
		db, _ := m.catalog.Get(id)
		for _, name := range db.TableNames() {
			matches := 0
			for _, col := range db.Tables[name].Columns {
				if _, hit := columnSet[strings.ToLower(col.Name)]; hit {
					matches++
				}
			}
			if matches > best {
				best = matches
				dbID = id
				tableName = name
			}
		}
	}
	return dbID, tableName
}

func qualifyTable(name string) string {
	if name == "" {
		return name
	}
	if !strings.Contains(name, ".") {
		return "public." + name
	}
	return name
}
