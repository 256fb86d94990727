package querying

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/store"
	"github.com/jonathan/insight-pipeline/internal/types"
)

// TableName is the table compiled queries read from
const TableName = store.TableName

// DefaultSampleSize is the number of source rows shown to the SQL delegate
const DefaultSampleSize = 5

// Strategy selects how the plan becomes SQL
type Strategy string

const (
	// StrategyTemplate compiles the plan deterministically
	StrategyTemplate Strategy = "template"
	// StrategyDelegate asks the language model to write the SQL
	StrategyDelegate Strategy = "delegate"
)

// ParseStrategy maps a config value to a Strategy; empty means template
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyTemplate:
		return StrategyTemplate, nil
	case StrategyDelegate:
		return StrategyDelegate, nil
	default:
		return "", fmt.Errorf("unknown query strategy %q", name)
	}
}

// Config configures a Stage
type Config struct {
	Engine     store.Engine
	Strategy   Strategy
	Client     llm.Client // Required for StrategyDelegate
	SampleSize int
	Logger     *slog.Logger
}

// Input is the read-only view of pipeline state the stage needs
type Input struct {
	Plan   *types.Plan
	Source *types.Table
}

// Result is the stage's contribution to pipeline state.
// Table is nil whenever Err is set.
type Result struct {
	Query string
	Table *types.Table
	Logs  []string
	Err   error
}

// Stage compiles or generates SQL for a plan and executes it against a
// store that lives only for the duration of one Run call.
type Stage struct {
	cfg Config
}

// NewStage creates a query stage
func NewStage(cfg Config) (*Stage, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyTemplate
	}
	if cfg.Strategy == StrategyDelegate && cfg.Client == nil {
		return nil, fmt.Errorf("delegate query strategy requires an LLM client")
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stage{cfg: cfg}, nil
}

// Run executes the stage. It never panics or returns an error directly;
// failures are reported through Result.Err with a nil Table.
func (s *Stage) Run(ctx context.Context, in Input) Result {
	if in.Source.Empty() {
		return s.fail(&types.PreconditionError{Stage: stageName, Field: "source_table"}, "")
	}
	if in.Plan == nil {
		return s.fail(&types.PreconditionError{Stage: stageName, Field: "plan"}, "")
	}

	db, err := store.Open(ctx, s.cfg.Engine)
	if err != nil {
		return s.fail(&types.ExecutionError{Cause: err}, "")
	}
	defer func() {
		if err := db.Close(); err != nil {
			s.cfg.Logger.Warn("failed to close store", "error", err)
		}
	}()

	var logs []string
	if err := db.Materialize(ctx, in.Source); err != nil {
		return s.fail(&types.ExecutionError{Cause: err}, "")
	}
	logs = append(logs, fmt.Sprintf("SQL Agent: dataset loaded into in-memory %s store as table %s (%d rows)",
		db.Dialect(), TableName, in.Source.Len()))

	query, err := s.buildQuery(ctx, in, db.Dialect())
	if err != nil {
		var formatErr *types.DelegateFormatError
		if !errors.As(err, &formatErr) {
			err = &types.ExecutionError{Cause: err}
		}
		res := s.fail(err, "")
		res.Logs = append(logs, res.Logs...)
		return res
	}
	logs = append(logs, "SQL Agent: Generated SQL query:\n"+query)

	table, err := db.Query(ctx, query)
	if err != nil {
		res := s.fail(&types.ExecutionError{Query: query, Cause: err}, query)
		res.Logs = append(logs, res.Logs...)
		return res
	}

	logs = append(logs, fmt.Sprintf("SQL Agent: Query executed successfully. Retrieved %d rows.", table.Len()))
	s.cfg.Logger.Debug("query executed", "rows", table.Len(), "strategy", s.cfg.Strategy)
	return Result{Query: query, Table: table, Logs: logs}
}

func (s *Stage) buildQuery(ctx context.Context, in Input, dialect string) (string, error) {
	switch s.cfg.Strategy {
	case StrategyDelegate:
		return GenerateSQL(ctx, s.cfg.Client, in.Plan, in.Source, dialect, s.cfg.SampleSize)
	default:
		return Compile(in.Plan, TableName)
	}
}

func (s *Stage) fail(err error, query string) Result {
	s.cfg.Logger.Warn("query stage failed", "error", err)
	return Result{
		Query: query,
		Logs:  []string{fmt.Sprintf("SQL Agent Error: %v", err)},
		Err:   err,
	}
}
