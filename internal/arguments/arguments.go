// Package arguments turns declared argument specs into validators that bind
// caller input to typed values.
package arguments

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"pgsentry/internal/domain"
)

type field struct {
	name       string
	spec       domain.ArgumentSpec
	def        any
	hasDefault bool
}

// Validator binds caller input against a fixed set of argument specs.
// It is immutable and safe for concurrent use.
type Validator struct {
	fields []field
}

// Build creates a Validator for the given specs. Defaults are coerced once
// here; an uncoercible default is kept as declared.
func Build(specs map[string]domain.ArgumentSpec) *Validator {
	fields := make([]field, 0, len(specs))
	for name, spec := range specs {
		f := field{name: name, spec: spec, hasDefault: spec.HasDefault}
		if spec.HasDefault {
			f.def = spec.Default
			if v, ok := Coerce(spec.Type, spec.Default); ok {
				f.def = v
			}
		}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
	return &Validator{fields: fields}
}

// Bind validates input and returns the typed argument map. Undeclared keys
// are dropped. A nil value counts as absent. Optional arguments without a
// default are omitted from the result when absent.
func (v *Validator) Bind(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(v.fields))
	for _, f := range v.fields {
		raw, ok := input[f.name]
		if !ok || raw == nil {
			switch {
			case f.hasDefault:
				out[f.name] = f.def
			case f.spec.Required:
				return nil, &domain.ArgumentRequiredError{Name: f.name}
			}
			continue
		}

		value, ok := Coerce(f.spec.Type, raw)
		if !ok {
			return nil, &domain.WrongArgumentTypeError{Name: f.name, Type: f.spec.Type}
		}
		out[f.name] = value
	}
	return out, nil
}

// Coerce converts v to the Go representation of t: string, int64, float64
// or bool. It reports false when v is not acceptable for t.
func Coerce(t domain.ArgType, v any) (any, bool) {
	switch t {
	case domain.ArgString:
		s, ok := v.(string)
		return s, ok
	case domain.ArgInt:
		return toInt(v)
	case domain.ArgFloat:
		return toFloat(v)
	case domain.ArgBool:
		return toBool(v)
	default:
		return nil, false
	}
}

func toInt(v any) (any, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return integralFloat(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	case bool:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		return integralFloat(rv.Float())
	default:
		return nil, false
	}
}

func integralFloat(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, false
	}
	return int64(f), true
}

func toFloat(v any) (any, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case bool:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return nil, false
	}
}

func toBool(v any) (any, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
		return nil, false
	}

	// 0 and 1 of any numeric kind.
	n, ok := toInt(v)
	if !ok {
		return nil, false
	}
	switch n.(int64) {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		return nil, false
	}
}
