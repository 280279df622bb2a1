package domain

import "time"

// ProgressRecord is the ephemeral per-job progress row. It is upserted
// repeatedly while a job runs and overwritten on each transition; it is not
// an audit log.
type ProgressRecord struct {
	JobID      string
	Stage      string
	Percentage int
	Message    string
	UpdatedAt  time.Time
}
