package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"pgsentry/internal/arguments"
	"pgsentry/internal/domain"
	"pgsentry/internal/executor"
	"pgsentry/internal/metrics"
)

// DefaultPageLimit is the page size used when the caller gives none.
const DefaultPageLimit = 20

// Page selects a window of view rows.
type Page struct {
	Limit  int64
	Offset int64
}

// DefaultPage returns the first page of DefaultPageLimit rows.
func DefaultPage() Page {
	return Page{Limit: DefaultPageLimit}
}

// ViewCatalog provides view definitions.
type ViewCatalog interface {
	View(alias string) *domain.View
	Views() []*domain.View
}

// ViewEngine runs read-only views from the catalog.
type ViewEngine struct {
	catalog    ViewCatalog
	targets    Targets
	executor   StepExecutor
	validators map[string]*arguments.Validator
	logger     *slog.Logger
}

// NewViewEngine creates a view engine with validators built for every view.
func NewViewEngine(catalog ViewCatalog, targets Targets, exec StepExecutor, logger *slog.Logger) *ViewEngine {
	specs := make(map[string]map[string]domain.ArgumentSpec)
	for _, v := range catalog.Views() {
		specs[v.Alias] = v.Arguments
	}
	return &ViewEngine{
		catalog:    catalog,
		targets:    targets,
		executor:   exec,
		validators: buildValidators(specs),
		logger:     logger,
	}
}

// Views lists all views sorted by alias.
func (e *ViewEngine) Views() []*domain.View {
	return e.catalog.Views()
}

// View returns the view with the given alias.
func (e *ViewEngine) View(alias string) (*domain.View, error) {
	v := e.catalog.View(alias)
	if v == nil {
		return nil, &domain.ViewNotFoundError{Alias: alias}
	}
	return v, nil
}

// Run executes a view on a target and returns one page of normalized rows.
// A failing query is returned as *domain.StepError.
func (e *ViewEngine) Run(ctx context.Context, alias string, input map[string]any, targetAlias string, identity domain.Identity, page Page) ([]executor.Row, error) {
	if page.Limit < 0 {
		return nil, &domain.WrongArgumentTypeError{Name: executor.ArgLimit, Type: domain.ArgInt}
	}
	if page.Offset < 0 {
		return nil, &domain.WrongArgumentTypeError{Name: executor.ArgOffset, Type: domain.ArgInt}
	}

	target, err := authorizedTarget(e.targets, targetAlias, identity)
	if err != nil {
		return nil, err
	}
	view, err := e.View(alias)
	if err != nil {
		return nil, err
	}
	args, err := e.validators[alias].Bind(input)
	if err != nil {
		return nil, err
	}
	args[executor.ArgLimit] = page.Limit
	args[executor.ArgOffset] = page.Offset

	executionID := uuid.NewString()
	logger := e.logger.With("execution_id", executionID, "view", alias, "target", target.Alias)
	logger.LogAttrs(ctx, slog.LevelDebug, "running view", identityAttr(identity),
		slog.Int64("limit", page.Limit), slog.Int64("offset", page.Offset))

	steps := []domain.Step{{Kind: domain.StepSQL, Query: view.SQL, Required: true}}
	outcome, err := e.executor.Execute(ctx, steps, args, target, executor.ModeRead)
	if err != nil {
		metrics.ViewExecutionsTotal.WithLabelValues(alias, target.Alias, "error").Inc()
		logger.Error("view failed", "error", err)
		return nil, err
	}
	if !outcome.Success {
		metrics.ViewExecutionsTotal.WithLabelValues(alias, target.Alias, "failure").Inc()
		return nil, outcome.Failures[len(outcome.Failures)-1].Err
	}

	rows := make([]executor.Row, 0, len(outcome.Rows))
	for _, row := range outcome.Rows {
		rows = append(rows, executor.NormalizeRow(row))
	}
	metrics.ViewExecutionsTotal.WithLabelValues(alias, target.Alias, "success").Inc()
	metrics.ViewRowsReturned.Observe(float64(len(rows)))
	return rows, nil
}
