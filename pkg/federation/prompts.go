package federation

import (
	"fmt"
)

// systemPrompt is the merge-SQL contract. Type awareness matters here: the
// model sees declared column types only, and any cast it emits must be
// guarded so non-numeric text cannot fail the statement.
const systemPrompt = `You are a SQL assistant that MUST be type-aware. You will receive only table metadata (no row-level data).

Before generating SQL, perform the following steps:
1) Scan the provided metadata for every referenced table and column. Use the declared column types (name and type) to decide how to reference or convert columns.
2) NEVER emit blind casts that assume textual values can be cast to numeric types. Instead use guarded patterns:
   - Prefer TRY_CAST(col AS BIGINT) if available, otherwise
   - Use CASE/regex guard: CASE WHEN col ~ '^\d+$' THEN col::BIGINT ELSE NULL END
   - Use NULLIF(col, '') to protect against empty strings before casting.
3) If a join requires equating a textual key to a numeric key, prefer one of:
   - Prefer textual equality if both sides are textual.
   - Use a guarded cast on the textual side with regex guard.
   - Use LEFT JOIN and preserve rows even when cast fails.
4) When you do include any cast, include a short inline SQL comment explaining why and how it is safe (e.g. -- SAFE CAST: regex-guarded numeric conversion).

Output rules:
- Use only the table names and column names given in metadata. Do not invent columns.
- Use DuckDB/Postgres-compatible SQL constructs. Avoid vendor-specific functions beyond standard Postgres/DuckDB.
- Return only the SQL string as the assistant response (no surrounding markdown or explanation). If you must explain a casting decision, include a single inline SQL comment near the cast.
- If a required mapping is ambiguous or unsafe, return a short SQL snippet that raises no errors (e.g., SELECT NULL WHERE FALSE) and include a one-line JSON-style error in a comment, or prefer to return an explicit JSON-error object instead of SQL.

-- Column inclusion guarantee:
- ALWAYS ensure the final SELECT explicitly includes every column the user requested in the natural-language request. If the requested column name is a natural-language phrase, map it to the exact column from the provided metadata and include it. If the column may not exist or is optional, project an explicit typed NULL (for example, CAST(NULL AS numeric) AS amount) so the output schema still contains the requested column name. Do not silently omit requested columns.
`

// userPrompt renders the merge request. The metadata JSON carries column
// names and declared types only — never row-level data.
func userPrompt(nlQuery, metadataJSON string) string {
	return fmt.Sprintf(`
Natural language request:
%s

Available tables and columns (metadata only):
%s

Instructions to the model:
- Consider every column's declared type.
- Prefer guarded casts (TRY_CAST or regex-guarded CASE) where conversions may be needed.
- Preserve NULLs; do not fabricate rows.

Column-inclusion requirement:
- The generated SQL MUST explicitly SELECT all columns that the user requested in the natural-language request. Do not omit any requested column even if it may be NULL for some rows.
- If the user referenced a column by a natural-language phrase, map it to the exact column name from the provided metadata and include that column in the SELECT list.
- If you must compute or rename a column to satisfy the user's requested label, alias the expression exactly to the requested label, e.g. "some_expr AS \"some_new_col_name\"" so the output column name matches the user's expectation.
- If one or more requested columns are not present in the provided metadata/catalog, do NOT invent columns. Instead project an explicit typed NULL aliased to the requested name; only when no safe SQL can be produced at all, return a short JSON-like error object (as plain text) listing the missing column names and an explanation of why they are missing.

Intersection semantics (default — common rows):
- By default, when combining per-source results, RETURN ONLY rows that appear in every provided per-db table (the intersection of results). Treat intersection as the default merge behavior unless the user explicitly asks for "all rows", "union", "concat", "union all", or equivalent phrasing that requests rows from any source.
- Prefer expressing the intersection via INNER JOINs on natural join keys (columns with identical names/meaning across sources) or, when schemas are identical, via INTERSECT of the per-source SELECTs. Do not use UNION/UNION ALL/LEFT JOIN if intersection is intended.

Return a single SQL statement that answers the request using only the provided tables and columns. Return ONLY the SQL string; if you include any casts add a short inline comment explaining the cast. If you cannot safely produce SQL, return an explicit JSON-like error object (as plain text) explaining the type mismatch or missing columns.
`, nlQuery, metadataJSON)
}
