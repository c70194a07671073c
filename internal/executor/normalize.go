package executor

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// NormalizeRow converts driver values into JSON-friendly values.
func NormalizeRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue maps a single driver value. nil, bool and string pass
// through; integers become int64 and floats float64; []byte becomes a
// string and time.Time an RFC 3339 string. Anything else is stringified.
// Values JSON cannot carry exactly (non-finite floats, unsigned integers
// above MaxInt64) become strings.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64:
		return x
	case float64:
		return normalizeFloat(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return strconv.FormatUint(u, 10)
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	default:
		return fmt.Sprint(v)
	}
}

func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
