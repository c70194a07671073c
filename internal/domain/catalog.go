package domain

// ArgType is the primitive type of an action or view argument.
type ArgType string

const (
	ArgString ArgType = "string"
	ArgInt    ArgType = "int"
	ArgFloat  ArgType = "float"
	ArgBool   ArgType = "bool"
)

// IsValid returns true if the type is one of the supported primitives.
func (t ArgType) IsValid() bool {
	switch t {
	case ArgString, ArgInt, ArgFloat, ArgBool:
		return true
	default:
		return false
	}
}

// ArgumentSpec declares one argument of an action or view.
type ArgumentSpec struct {
	Name        string  `json:"name"`
	Type        ArgType `json:"type"`
	Required    bool    `json:"required"`
	Default     any     `json:"default,omitempty"`
	HasDefault  bool    `json:"-"`
	Description string  `json:"description"`
}

// StepKind selects how a step is executed.
type StepKind string

const (
	// StepSQL runs the step query against the target database.
	StepSQL StepKind = "sql"
	// StepSSH runs the step query as a shell command on the target host.
	StepSSH StepKind = "ssh"
)

// IsValid returns true if the kind is known.
func (k StepKind) IsValid() bool {
	return k == StepSQL || k == StepSSH
}

// Step is one unit of work within an action.
type Step struct {
	Kind  StepKind `json:"type"`
	Query string   `json:"query"`

	// Required steps abort the action on failure; optional ones are recorded
	// and execution continues.
	Required bool `json:"required"`
}

// Action is a named, parameterized, ordered sequence of steps.
type Action struct {
	Alias       string                  `json:"alias"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Arguments   map[string]ArgumentSpec `json:"arguments"`
	Steps       []Step                  `json:"steps"`
}

// View is a named, parameterized read-only query.
type View struct {
	Alias       string                  `json:"alias"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	SQL         string                  `json:"sql"`
	Arguments   map[string]ArgumentSpec `json:"arguments"`
}

// AlertRule is the Prometheus rule an alert definition is evaluated from.
type AlertRule struct {
	Expr        string         `json:"expr"`
	For         string         `json:"for,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty"`
}

// AlertDefinition holds operator-facing metadata for an alert name.
type AlertDefinition struct {
	Alias            string    `json:"alias"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Severity         string    `json:"severity"`
	SuggestedActions []string  `json:"suggested_actions"`
	RelatedViews     []string  `json:"related_views"`
	Rule             AlertRule `json:"rule"`
}

// ActionResult is the user-facing outcome of an action run.
type ActionResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}
