package planner

import (
	"encoding/json"
	"strings"

	"github.com/fedql/fedql/pkg/jsonutil"
)

// PlanItem is one validated per-database statement of a plan.
type PlanItem struct {
	DBID    string `json:"db_id"`
	SQL     string `json:"sql"`
	Purpose string `json:"purpose"`
}

// Plan is the planner's output: the accepted per-database statements plus an
// illustrative combined statement. FinalSQL is display-only and is never
// executed against real data.
type Plan struct {
	Items    []PlanItem `json:"per_db_sql"`
	FinalSQL string     `json:"final_sql"`
}

// planResponse mirrors the JSON object the planning prompt requires. Fields
// are raw so malformed shapes can be coerced instead of failing the whole
// plan.
type planResponse struct {
	PerDBSQL []planItemResponse `json:"per_db_sql"`
	FinalSQL json.RawMessage    `json:"final_sql"`
}

type planItemResponse struct {
	DBID    json.RawMessage `json:"db_id"`
	SQL     json.RawMessage `json:"sql"`
	Purpose json.RawMessage `json:"purpose"`
}

func (r planItemResponse) item() PlanItem {
	purpose := strings.TrimSpace(jsonutil.FlexibleStringValue(r.Purpose))
	if purpose == "" {
		purpose = "query"
	}
	return PlanItem{
		DBID:    strings.TrimSpace(jsonutil.FlexibleStringValue(r.DBID)),
		SQL:     strings.TrimSpace(jsonutil.FlexibleStringValue(r.SQL)),
		Purpose: purpose,
	}
}

// finalSQL returns the display-only combined statement, defaulting to an
// empty string when the field is absent or not a string.
func (r planResponse) finalSQL() string {
	var s string
	if err := json.Unmarshal(r.FinalSQL, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
