package db

import (
	"time"

	"github.com/google/uuid"
)

// Run status values mirror the pipeline's terminal statuses
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusExhausted = "exhausted"
	RunStatusFailed    = "failed"
)

// Run represents a pipeline run record
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Query       string     `json:"user_query"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Artifact represents an artifact record
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Step      string    `json:"step"`
	Category  string    `json:"category"`
	Content   any       `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactSummary is a lightweight view of an artifact for listing
type ArtifactSummary struct {
	ID        uuid.UUID `json:"id"`
	Step      string    `json:"step"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	Status string
	Limit  int
}

// DefaultRunLimit is the page size when RunFilters.Limit is unset
const DefaultRunLimit = 50

// validRunStatus reports whether a status can be stored on a run
func validRunStatus(status string) bool {
	switch status {
	case RunStatusRunning, RunStatusSucceeded, RunStatusExhausted, RunStatusFailed:
		return true
	}
	return false
}
