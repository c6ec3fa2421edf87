package models

import "time"

// JobKind names the ingestion path that triggered a rollup.
type JobKind string

const (
	JobSingleEvent JobKind = "single_event"
	JobBulkEvents  JobKind = "bulk_events"
	JobPurchase    JobKind = "purchase"
	JobScheduled   JobKind = "scheduled"
)

// RollupJob is a queue message asking the aggregation worker to recompute
// today's daily stats. Delivery is at-least-once; the rollup itself is
// idempotent, so duplicates and retries are safe.
type RollupJob struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	Reference  string    `json:"reference,omitempty"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
