package models

import "time"

type CheckOutcome string

const (
	OutcomeMatchFound  CheckOutcome = "match_found"
	OutcomeNoMatch     CheckOutcome = "no_match"
	OutcomeFetchFailed CheckOutcome = "fetch_failed"
	OutcomeParseFailed CheckOutcome = "parse_failed"
)

// CheckResult is the immutable record of one check attempt.
// Exactly one is produced per executor run; rows are append-only.
type CheckResult struct {
	ID          string       `json:"id"`
	MonitorID   string       `json:"monitor_id"`
	ExecutedAt  time.Time    `json:"executed_at"`
	Outcome     CheckOutcome `json:"outcome"`
	HTTPStatus  *int         `json:"http_status"`
	MatchCount  int          `json:"match_count"`
	DurationMs  int64        `json:"duration_ms"`
	PageTitle   string       `json:"page_title,omitempty"`
	PageExcerpt string       `json:"page_excerpt,omitempty"`
	ErrorDetail string       `json:"error_detail,omitempty"`
}
