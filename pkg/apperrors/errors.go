package apperrors

import "errors"

var (
	ErrUnknownDatabase = errors.New("database not present in catalog")
	ErrMissingDSN      = errors.New("no DSN configured for database")
	ErrNothingToMerge  = errors.New("no per-database results to federate")
	ErrMalformedPlan   = errors.New("planner response is not valid JSON")
	ErrUnknownRole     = errors.New("role not present in masking policy")
	ErrUnsupportedDSN  = errors.New("unsupported DSN scheme")
)
