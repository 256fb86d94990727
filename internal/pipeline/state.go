package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// Phase is the orchestrator's position in the stage graph
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseQuerying   Phase = "querying"
	PhaseValidating Phase = "validating"
	PhaseOutputting Phase = "outputting"
	PhaseDone       Phase = "done"
)

// Status is the outcome of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	// StatusExhausted means every allowed planner re-entry ended in a not valid verdict
	StatusExhausted Status = "exhausted"
	// StatusFailed means the output stage could not run or the run was cancelled
	StatusFailed Status = "failed"
)

// Input is what a caller supplies to start a run
type Input struct {
	Query    string
	Metadata types.Metadata
	Source   *types.Table
}

// StageTiming records how long one stage invocation took
type StageTiming struct {
	Step     string        `json:"step"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration_ns"`
}

// State is the record threaded through one run. Only the orchestrator
// writes it; stages receive read-only inputs and return deltas.
type State struct {
	RunID    uuid.UUID      `json:"run_id"`
	Query    string         `json:"user_query"`
	Metadata types.Metadata `json:"metadata"`
	Source   *types.Table   `json:"-"`

	Plan           *types.Plan    `json:"plan"`
	GeneratedQuery string         `json:"generated_query"`
	Table          *types.Table   `json:"result_table"`
	Verdict        *types.Verdict `json:"validation_verdict"`
	Route          *types.Route   `json:"route_signal"`
	Output         *types.Output  `json:"output"`

	Logs     []string      `json:"logs"`
	Attempts int           `json:"attempts"`
	Phase    Phase         `json:"phase"`
	Status   Status        `json:"status"`
	Timings  []StageTiming `json:"timings"`
}

func newState(in Input) *State {
	return &State{
		RunID:    uuid.New(),
		Query:    in.Query,
		Metadata: in.Metadata,
		Source:   in.Source,
		Logs:     []string{},
		Phase:    PhasePlanning,
		Status:   StatusRunning,
		Timings:  []StageTiming{},
	}
}

func (s *State) appendLogs(lines ...string) {
	s.Logs = append(s.Logs, lines...)
}

// resetPass drops every artifact derived from the previous plan
func (s *State) resetPass() {
	s.Plan = nil
	s.GeneratedQuery = ""
	s.Table = nil
	s.Verdict = nil
	s.Route = nil
}

// Succeeded reports whether the run ended on the output path
func (s *State) Succeeded() bool {
	return s.Status == StatusSucceeded
}
