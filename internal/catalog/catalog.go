// Package catalog loads the declarative alert, action and view definitions.
// The catalog is validated once at load and is read-only afterwards.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pgsentry/internal/arguments"
	"pgsentry/internal/domain"
)

// Paths locates the catalog files. ViewsPath may be empty.
type Paths struct {
	AlertsPath  string
	ActionsPath string
	ViewsPath   string
}

// Catalog holds the loaded definitions keyed by alias.
type Catalog struct {
	alerts  map[string]*domain.AlertDefinition
	actions map[string]*domain.Action
	views   map[string]*domain.View
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("readonlysql", validateReadOnlySQL)
}

type alertsFile struct {
	Alerts map[string]alertEntry `yaml:"alerts" validate:"dive"`
}

type alertEntry struct {
	Title            string    `yaml:"title" validate:"required"`
	Description      string    `yaml:"description"`
	Severity         string    `yaml:"severity"`
	Rule             ruleEntry `yaml:"rule"`
	SuggestedActions []string  `yaml:"suggested_actions"`
	RelatedViews     []string  `yaml:"related_views"`
}

type ruleEntry struct {
	Expr        string         `yaml:"expr"`
	For         string         `yaml:"for"`
	Annotations map[string]any `yaml:"annotations"`
}

type actionsFile struct {
	Actions map[string]actionEntry `yaml:"actions" validate:"dive"`
}

type actionEntry struct {
	Title       string                   `yaml:"title" validate:"required"`
	Description string                   `yaml:"description"`
	Arguments   map[string]argumentEntry `yaml:"arguments" validate:"dive"`
	Steps       []stepEntry              `yaml:"steps" validate:"required,min=1,dive"`
}

type stepEntry struct {
	Type     string `yaml:"type" validate:"required,oneof=sql ssh"`
	Query    string `yaml:"query" validate:"required"`
	Required *bool  `yaml:"required"`
}

type argumentEntry struct {
	Type        string `yaml:"type" validate:"required,oneof=string int float bool"`
	Description string `yaml:"description"`
	Required    *bool  `yaml:"required"`
	Default     any    `yaml:"default"`
}

type viewsFile struct {
	Views map[string]viewEntry `yaml:"views" validate:"dive"`
}

type viewEntry struct {
	Title       string                   `yaml:"title" validate:"required"`
	Description string                   `yaml:"description"`
	SQL         string                   `yaml:"sql" validate:"required,readonlysql"`
	Arguments   map[string]argumentEntry `yaml:"arguments" validate:"dive"`
}

// Load reads and validates the catalog files. Every failure is returned as
// a *domain.ConfigLoadError.
func Load(paths Paths) (*Catalog, error) {
	alertsData, err := readFile(paths.AlertsPath)
	if err != nil {
		return nil, err
	}
	actionsData, err := readFile(paths.ActionsPath)
	if err != nil {
		return nil, err
	}
	var viewsData []byte
	if paths.ViewsPath != "" {
		if viewsData, err = readFile(paths.ViewsPath); err != nil {
			return nil, err
		}
	}
	return Parse(alertsData, actionsData, viewsData)
}

func readFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, &domain.ConfigLoadError{Source: cleanPath, Err: err}
	}
	return data, nil
}

// Parse builds a catalog from the raw YAML documents. viewsData may be empty.
func Parse(alertsData, actionsData, viewsData []byte) (*Catalog, error) {
	var af alertsFile
	if err := decode("alerts", alertsData, &af); err != nil {
		return nil, err
	}
	var acf actionsFile
	if err := decode("actions", actionsData, &acf); err != nil {
		return nil, err
	}
	var vf viewsFile
	if len(viewsData) > 0 {
		if err := decode("views", viewsData, &vf); err != nil {
			return nil, err
		}
	}

	c := &Catalog{
		alerts:  make(map[string]*domain.AlertDefinition, len(af.Alerts)),
		actions: make(map[string]*domain.Action, len(acf.Actions)),
		views:   make(map[string]*domain.View, len(vf.Views)),
	}

	var errs []error
	for alias, e := range acf.Actions {
		action, err := buildAction(alias, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.actions[alias] = action
	}
	for alias, e := range vf.Views {
		view, err := buildView(alias, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.views[alias] = view
	}
	for alias, e := range af.Alerts {
		def, err := c.buildAlert(alias, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.alerts[alias] = def
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, &domain.ConfigLoadError{Source: "catalog", Err: errors.Join(errs...)}
	}
	return c, nil
}

func decode(source string, data []byte, out any) error {
	if err := yaml.Unmarshal(data, out); err != nil {
		return &domain.ConfigLoadError{Source: source, Err: err}
	}
	if err := validate.Struct(out); err != nil {
		return &domain.ConfigLoadError{Source: source, Err: describeValidation(err)}
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func buildAction(alias string, e actionEntry) (*domain.Action, error) {
	args, err := buildArguments("actions."+alias, e.Arguments)
	if err != nil {
		return nil, err
	}

	steps := make([]domain.Step, len(e.Steps))
	for i, s := range e.Steps {
		steps[i] = domain.Step{
			Kind:     domain.StepKind(s.Type),
			Query:    s.Query,
			Required: s.Required == nil || *s.Required,
		}
	}

	return &domain.Action{
		Alias:       alias,
		Title:       e.Title,
		Description: e.Description,
		Arguments:   args,
		Steps:       steps,
	}, nil
}

func buildView(alias string, e viewEntry) (*domain.View, error) {
	for _, reserved := range []string{"limit", "offset"} {
		if _, ok := e.Arguments[reserved]; ok {
			return nil, fmt.Errorf("views.%s: argument %q is reserved", alias, reserved)
		}
	}

	args, err := buildArguments("views."+alias, e.Arguments)
	if err != nil {
		return nil, err
	}

	return &domain.View{
		Alias:       alias,
		Title:       e.Title,
		Description: e.Description,
		SQL:         e.SQL,
		Arguments:   args,
	}, nil
}

// reservedArgPrefix is used by the target variables of SSH command templates.
const reservedArgPrefix = "target_"

func buildArguments(prefix string, entries map[string]argumentEntry) (map[string]domain.ArgumentSpec, error) {
	specs := make(map[string]domain.ArgumentSpec, len(entries))
	for name, e := range entries {
		if strings.HasPrefix(name, reservedArgPrefix) {
			return nil, fmt.Errorf("%s.arguments.%s: names starting with %q are reserved for target variables", prefix, name, reservedArgPrefix)
		}
		spec := domain.ArgumentSpec{
			Name:        name,
			Type:        domain.ArgType(e.Type),
			Description: e.Description,
			Default:     e.Default,
			HasDefault:  e.Default != nil,
		}
		spec.Required = !spec.HasDefault
		if e.Required != nil {
			spec.Required = *e.Required
		}
		if spec.HasDefault {
			v, ok := arguments.Coerce(spec.Type, e.Default)
			if !ok {
				return nil, fmt.Errorf("%s.arguments.%s: default %v is not of type %s", prefix, name, e.Default, spec.Type)
			}
			spec.Default = v
		}
		specs[name] = spec
	}
	return specs, nil
}

func (c *Catalog) buildAlert(alias string, e alertEntry) (*domain.AlertDefinition, error) {
	for _, a := range e.SuggestedActions {
		if _, ok := c.actions[a]; !ok {
			return nil, fmt.Errorf("alerts.%s: suggested action %q is not defined", alias, a)
		}
	}
	for _, v := range e.RelatedViews {
		if _, ok := c.views[v]; !ok {
			return nil, fmt.Errorf("alerts.%s: related view %q is not defined", alias, v)
		}
	}

	return &domain.AlertDefinition{
		Alias:            alias,
		Title:            e.Title,
		Description:      e.Description,
		Severity:         e.Severity,
		SuggestedActions: nonNil(e.SuggestedActions),
		RelatedViews:     nonNil(e.RelatedViews),
		Rule: domain.AlertRule{
			Expr:        e.Rule.Expr,
			For:         e.Rule.For,
			Annotations: e.Rule.Annotations,
		},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Action returns the action with the given alias, or nil.
func (c *Catalog) Action(alias string) *domain.Action {
	return c.actions[alias]
}

// View returns the view with the given alias, or nil.
func (c *Catalog) View(alias string) *domain.View {
	return c.views[alias]
}

// AlertDefinition returns the alert definition with the given alias, or nil.
func (c *Catalog) AlertDefinition(alias string) *domain.AlertDefinition {
	return c.alerts[alias]
}

// Actions returns all actions sorted by alias.
func (c *Catalog) Actions() []*domain.Action {
	return sortedValues(c.actions)
}

// Views returns all views sorted by alias.
func (c *Catalog) Views() []*domain.View {
	return sortedValues(c.views)
}

// AlertDefinitions returns all alert definitions sorted by alias.
func (c *Catalog) AlertDefinitions() []*domain.AlertDefinition {
	return sortedValues(c.alerts)
}

func sortedValues[T any](m map[string]*T) []*T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*T, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
