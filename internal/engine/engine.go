// Package engine runs catalog actions and views against targets on behalf
// of an authenticated caller.
package engine

import (
	"context"
	"log/slog"

	"pgsentry/internal/arguments"
	"pgsentry/internal/domain"
	"pgsentry/internal/executor"
)

// Targets resolves target aliases and checks caller permissions.
type Targets interface {
	Resolve(alias string) (*domain.Target, error)
	Authorize(identity domain.Identity, t *domain.Target) error
}

// StepExecutor runs a sequence of steps against a target.
type StepExecutor interface {
	Execute(ctx context.Context, steps []domain.Step, args map[string]any, target *domain.Target, mode executor.Mode) (*executor.Outcome, error)
}

// authorizedTarget resolves a target and checks the identity against it.
func authorizedTarget(targets Targets, alias string, identity domain.Identity) (*domain.Target, error) {
	t, err := targets.Resolve(alias)
	if err != nil {
		return nil, err
	}
	if err := targets.Authorize(identity, t); err != nil {
		return nil, err
	}
	return t, nil
}

func buildValidators(specs map[string]map[string]domain.ArgumentSpec) map[string]*arguments.Validator {
	validators := make(map[string]*arguments.Validator, len(specs))
	for alias, args := range specs {
		validators[alias] = arguments.Build(args)
	}
	return validators
}

func identityAttr(identity domain.Identity) slog.Attr {
	if identity.IsHuman() {
		return slog.Int64("user_id", *identity.UserID)
	}
	return slog.String("user_id", "service")
}
