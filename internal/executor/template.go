package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"pgsentry/internal/domain"
)

// shorthandVar matches "{{ name }}" and "{{ name | fn }}" so that templates
// may omit the leading dot on variables.
var shorthandVar = regexp.MustCompile(`\{\{(-?\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*(?:\|[^{}]*)?-?)\}\}`)

var templateKeywords = map[string]bool{
	"if": true, "else": true, "end": true, "range": true, "with": true,
	"break": true, "continue": true, "define": true, "template": true,
	"block": true, "nil": true, "true": true, "false": true,
}

var templateFuncs = template.FuncMap{
	"quote": shellQuote,
}

// CommandRenderer renders SSH command templates.
type CommandRenderer struct {
	vars          map[string]string
	exposeSecrets bool
}

// NewCommandRenderer creates a renderer with operator-defined variables.
// Target secrets are only visible to templates when exposeSecrets is set.
func NewCommandRenderer(vars map[string]string, exposeSecrets bool) *CommandRenderer {
	return &CommandRenderer{vars: vars, exposeSecrets: exposeSecrets}
}

// Render executes the command template. Referencing an unknown variable
// is an error.
func (c *CommandRenderer) Render(command string, args map[string]any, target *domain.Target) (string, error) {
	tmpl, err := template.New("command").
		Funcs(templateFuncs).
		Option("missingkey=error").
		Parse(expandShorthand(command))
	if err != nil {
		return "", fmt.Errorf("parse command template: %w", err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, c.data(args, target)); err != nil {
		return "", fmt.Errorf("render command template: %w", err)
	}
	return b.String(), nil
}

// data merges the template variables. Operator variables win over
// arguments; target variables win over both. The catalog rejects arguments
// named like target variables.
func (c *CommandRenderer) data(args map[string]any, target *domain.Target) map[string]any {
	data := make(map[string]any, len(args)+len(c.vars)+6)
	for k, v := range args {
		data[k] = v
	}
	for k, v := range c.vars {
		data[k] = v
	}
	data["target_alias"] = target.Alias
	data["target_ssh_host"] = target.SSHHost
	data["target_ssh_port"] = target.SSHPort
	data["target_ssh_username"] = target.SSHUsername
	if c.exposeSecrets {
		data["target_db_url"] = target.DBURL
		data["target_ssh_password"] = target.SSHPassword
	}
	return data
}

func expandShorthand(command string) string {
	return shorthandVar.ReplaceAllStringFunc(command, func(m string) string {
		parts := shorthandVar.FindStringSubmatch(m)
		name := parts[2]
		if templateKeywords[name] || templateFuncs[name] != nil {
			return m
		}
		return "{{" + parts[1] + "." + name + parts[3] + "}}"
	})
}

// shellQuote quotes a value for POSIX shells.
func shellQuote(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
