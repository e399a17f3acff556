package skill

import (
	"fmt"
	"strconv"
	"strings"
)

// EvalCondition evaluates a guard or branch condition against the
// accumulated outputs. The grammar is a single comparison:
//
//	<field> <op> <value>   with op one of == != > < >= <= contains
//	<field> exists
//	<field>                truthiness of the field value
//
// Unknown fields compare as absent: "exists" is false and comparisons
// fail. An empty condition is true.
func EvalCondition(cond string, outputs map[string]any) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true
	}

	fields := strings.Fields(cond)
	switch len(fields) {
	case 1:
		return truthy(outputs[fields[0]])
	case 2:
		if fields[1] == "exists" {
			_, ok := outputs[fields[0]]
			return ok
		}
		return false
	}

	field, op := fields[0], fields[1]
	rhs := strings.Join(fields[2:], " ")
	val, ok := outputs[field]
	if !ok {
		return false
	}

	switch op {
	case "==":
		return equal(val, rhs)
	case "!=":
		return !equal(val, rhs)
	case ">", "<", ">=", "<=":
		lhs, lok := toFloat(val)
		want, wok := toFloat(rhs)
		if !lok || !wok {
			return false
		}
		switch op {
		case ">":
			return lhs > want
		case "<":
			return lhs < want
		case ">=":
			return lhs >= want
		default:
			return lhs <= want
		}
	case "contains":
		return strings.Contains(asString(val), strings.Trim(rhs, `"'`))
	default:
		return false
	}
}

// truthy reports whether a value counts as true: non-false booleans,
// non-zero numbers, non-empty strings and collections.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// equal compares a value against a raw right-hand-side literal.
func equal(val any, rhs string) bool {
	rhs = strings.Trim(rhs, `"'`)
	if f, ok := toFloat(val); ok {
		if want, err := strconv.ParseFloat(rhs, 64); err == nil {
			return f == want
		}
	}
	if b, ok := val.(bool); ok {
		if want, err := strconv.ParseBool(rhs); err == nil {
			return b == want
		}
	}
	return asString(val) == rhs
}

// toFloat converts numeric values and numeric strings to float64.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asString renders a value for string comparison.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
