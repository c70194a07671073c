package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pgsentry/internal/arguments"
	"pgsentry/internal/domain"
	"pgsentry/internal/executor"
	"pgsentry/internal/metrics"
)

// ActionCatalog provides action definitions.
type ActionCatalog interface {
	Action(alias string) *domain.Action
	Actions() []*domain.Action
}

// ActionEngine runs actions from the catalog.
type ActionEngine struct {
	catalog    ActionCatalog
	targets    Targets
	executor   StepExecutor
	validators map[string]*arguments.Validator
	logger     *slog.Logger
}

// NewActionEngine creates an action engine. Argument validators for every
// catalog action are built here, once.
func NewActionEngine(catalog ActionCatalog, targets Targets, exec StepExecutor, logger *slog.Logger) *ActionEngine {
	specs := make(map[string]map[string]domain.ArgumentSpec)
	for _, a := range catalog.Actions() {
		specs[a.Alias] = a.Arguments
	}
	return &ActionEngine{
		catalog:    catalog,
		targets:    targets,
		executor:   exec,
		validators: buildValidators(specs),
		logger:     logger,
	}
}

// Actions lists all actions sorted by alias.
func (e *ActionEngine) Actions() []*domain.Action {
	return e.catalog.Actions()
}

// Action returns the action with the given alias.
func (e *ActionEngine) Action(alias string) (*domain.Action, error) {
	a := e.catalog.Action(alias)
	if a == nil {
		return nil, &domain.ActionNotFoundError{Alias: alias}
	}
	return a, nil
}

// Run executes an action on a target. Step failures are reported in the
// result; the returned error covers lookup, permission and argument
// problems and unexpected executor failures.
func (e *ActionEngine) Run(ctx context.Context, alias string, input map[string]any, targetAlias string, identity domain.Identity) (*domain.ActionResult, error) {
	target, err := authorizedTarget(e.targets, targetAlias, identity)
	if err != nil {
		return nil, err
	}
	action, err := e.Action(alias)
	if err != nil {
		return nil, err
	}
	args, err := e.validators[alias].Bind(input)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	logger := e.logger.With("execution_id", executionID, "action", alias, "target", target.Alias)
	logger.LogAttrs(ctx, slog.LevelInfo, "running action", identityAttr(identity), slog.Int("steps", len(action.Steps)))

	start := time.Now()
	outcome, err := e.executor.Execute(ctx, action.Steps, args, target, executor.ModeWrite)
	metrics.ActionLatency.WithLabelValues(alias).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ActionExecutionsTotal.WithLabelValues(alias, target.Alias, "error").Inc()
		logger.Error("action failed", "error", err)
		return nil, err
	}

	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	metrics.ActionExecutionsTotal.WithLabelValues(alias, target.Alias, result).Inc()
	logger.Info("action finished", "success", outcome.Success, "failed_steps", len(outcome.Failures))

	return &domain.ActionResult{Success: outcome.Success, Detail: outcome.Detail}, nil
}
