// Package executor runs action and view steps against a target.
// SQL steps go to the target database and SSH steps to the target host;
// each kind is handled by its own StepRunner.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"pgsentry/internal/domain"
	"pgsentry/internal/metrics"
)

// Mode selects how SQL steps are executed.
type Mode int

const (
	// ModeWrite runs statements in a committed transaction and discards results.
	ModeWrite Mode = iota
	// ModeRead runs a query and returns its rows.
	ModeRead
)

func (m Mode) String() string {
	if m == ModeRead {
		return "read"
	}
	return "write"
}

// Paging arguments. In read mode they are bound when the statement
// references them and applied to the fetched rows otherwise.
const (
	ArgLimit  = "limit"
	ArgOffset = "offset"
)

// Row is one normalized result row keyed by column name.
type Row map[string]any

// StepRunner executes a single step of one kind.
// Remote failures are returned as *domain.StepError; any other error is fatal.
type StepRunner interface {
	Kind() domain.StepKind
	Run(ctx context.Context, step domain.Step, args map[string]any, target *domain.Target, mode Mode) ([]Row, error)
}

// StepFailure records a failed non-required step.
type StepFailure struct {
	Step domain.Step
	Err  *domain.StepError
}

// Outcome is the result of executing a step sequence.
type Outcome struct {
	Success  bool
	Detail   string
	Rows     []Row
	Failures []StepFailure
}

// Executor dispatches steps to the runner registered for their kind.
type Executor struct {
	runners map[domain.StepKind]StepRunner
	logger  *slog.Logger
}

// New creates an Executor with the given runners.
func New(logger *slog.Logger, runners ...StepRunner) *Executor {
	e := &Executor{
		runners: make(map[domain.StepKind]StepRunner, len(runners)),
		logger:  logger,
	}
	for _, r := range runners {
		e.runners[r.Kind()] = r
	}
	return e
}

// Execute runs steps sequentially. A required step failing stops execution
// with Success=false. Failures of non-required steps are recorded and
// execution continues. Rows holds the rows of the last successful step.
func (e *Executor) Execute(ctx context.Context, steps []domain.Step, args map[string]any, target *domain.Target, mode Mode) (*Outcome, error) {
	outcome := &Outcome{Success: true}

	for i, step := range steps {
		runner, ok := e.runners[step.Kind]
		if !ok {
			return nil, fmt.Errorf("no runner for step kind %q", step.Kind)
		}

		rows, err := runner.Run(ctx, step, args, target, mode)
		if err == nil {
			outcome.Rows = rows
			continue
		}

		var stepErr *domain.StepError
		if !errors.As(err, &stepErr) {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		metrics.StepFailuresTotal.WithLabelValues(string(step.Kind), strconv.FormatBool(step.Required)).Inc()
		e.logger.Warn("step failed",
			"target", target.Alias,
			"step", i,
			"kind", step.Kind,
			"required", step.Required,
			"error", stepErr,
		)

		if step.Required {
			return &Outcome{
				Success:  false,
				Detail:   failureLine(step, stepErr),
				Failures: append(outcome.Failures, StepFailure{Step: step, Err: stepErr}),
			}, nil
		}
		outcome.Failures = append(outcome.Failures, StepFailure{Step: step, Err: stepErr})
	}

	if len(outcome.Failures) > 0 {
		lines := make([]string, len(outcome.Failures))
		for i, f := range outcome.Failures {
			lines[i] = failureLine(f.Step, f.Err)
		}
		outcome.Detail = strings.Join(lines, "\n")
	}
	return outcome, nil
}

func failureLine(step domain.Step, err *domain.StepError) string {
	return fmt.Sprintf("%s: %s", step.Query, err.Error())
}
