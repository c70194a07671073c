package domain

import (
	"errors"
	"fmt"
)

// Authentication and authorization errors.
var (
	// ErrNoCredentials is returned when a request carries no credentials.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrIncorrectCredentials is returned when credentials cannot be validated.
	ErrIncorrectCredentials = errors.New("could not validate credentials")

	// ErrNotEnoughPermissions is returned when the caller may not act on a target.
	ErrNotEnoughPermissions = errors.New("not enough permissions")
)

// Lookup errors.
var (
	// ErrTargetNotFound is returned when a target alias is not configured.
	ErrTargetNotFound = errors.New("target not found")

	// ErrAlertNotFound is returned when an alert event cannot be found.
	ErrAlertNotFound = errors.New("alert not found")
)

// ActionNotFoundError is returned when no action is configured under an alias.
type ActionNotFoundError struct {
	Alias string
}

func (e *ActionNotFoundError) Error() string {
	return fmt.Sprintf("action with alias `%s` not found", e.Alias)
}

// ViewNotFoundError is returned when no view is configured under an alias.
type ViewNotFoundError struct {
	Alias string
}

func (e *ViewNotFoundError) Error() string {
	return fmt.Sprintf("view with alias `%s` not found", e.Alias)
}

// ArgumentRequiredError is returned when a required argument is missing
// from caller input.
type ArgumentRequiredError struct {
	Name string
}

func (e *ArgumentRequiredError) Error() string {
	return fmt.Sprintf("argument `%s` is required", e.Name)
}

// WrongArgumentTypeError is returned when an argument value cannot be
// coerced to its declared type.
type WrongArgumentTypeError struct {
	Name string
	Type ArgType
}

func (e *WrongArgumentTypeError) Error() string {
	return fmt.Sprintf("argument `%s` must be of type %s", e.Name, e.Type)
}

// StepErrorKind names the class of a remote execution failure.
type StepErrorKind string

const (
	// SQLQueryError marks a failure reported by a target database.
	SQLQueryError StepErrorKind = "SQLQueryError"
	// SSHQueryError marks a failure while connecting to or running a command on a target host.
	SSHQueryError StepErrorKind = "SSHQueryError"
)

// StepError is a remote execution failure of a single step. It is the only
// error class the executor recovers from; anything else is fatal.
type StepError struct {
	Kind    StepErrorKind
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewSQLError creates a StepError of kind SQLQueryError.
func NewSQLError(format string, args ...any) *StepError {
	return &StepError{Kind: SQLQueryError, Message: fmt.Sprintf(format, args...)}
}

// NewSSHError creates a StepError of kind SSHQueryError.
func NewSSHError(format string, args ...any) *StepError {
	return &StepError{Kind: SSHQueryError, Message: fmt.Sprintf(format, args...)}
}

// ConfigLoadError is returned when settings or the catalog cannot be loaded.
// It is fatal at startup.
type ConfigLoadError struct {
	Source string
	Err    error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}
