package query

import (
	"fmt"
	"strconv"
	"time"
)

// ParamType is the declared type of a catalogued query parameter.
type ParamType string

const (
	ParamString  ParamType = "STRING"
	ParamInteger ParamType = "INTEGER"
	ParamDecimal ParamType = "DECIMAL"
	ParamDate    ParamType = "DATE"
	ParamEnum    ParamType = "ENUM"
)

const defaultDateLayout = "2006-01-02"

// ParamSpec declares the type, format and value constraints of one bind
// parameter. Malformed values are rejected here, before any database
// contact, instead of surfacing as driver errors.
type ParamSpec struct {
	Type     ParamType
	Required bool
	Format   string   // date layout; defaults to 2006-01-02
	Min      *float64 // numeric lower bound, inclusive
	Max      *float64 // numeric upper bound, inclusive
	MaxLen   int      // max string length; 0 = unlimited
	Enum     []string // allowed values for ENUM
}

// check validates a supplied value against the spec, returning every
// violation as a human-readable reason.
func (s ParamSpec) check(name string, value any) []string {
	var reasons []string
	switch s.Type {
	case ParamString, "":
		str, ok := value.(string)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("parameter %s: expected string, got %T", name, value))
			break
		}
		if s.MaxLen > 0 && len(str) > s.MaxLen {
			reasons = append(reasons, fmt.Sprintf("parameter %s: exceeds max length %d", name, s.MaxLen))
		}
	case ParamInteger:
		n, ok := asInt(value)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("parameter %s: expected integer, got %v", name, value))
			break
		}
		reasons = append(reasons, s.checkRange(name, float64(n))...)
	case ParamDecimal:
		f, ok := asFloat(value)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("parameter %s: expected number, got %v", name, value))
			break
		}
		reasons = append(reasons, s.checkRange(name, f)...)
	case ParamDate:
		str, ok := value.(string)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("parameter %s: expected date string, got %T", name, value))
			break
		}
		layout := s.Format
		if layout == "" {
			layout = defaultDateLayout
		}
		if _, err := time.Parse(layout, str); err != nil {
			reasons = append(reasons, fmt.Sprintf("parameter %s: not a valid date in format %s", name, layout))
		}
	case ParamEnum:
		str := fmt.Sprintf("%v", value)
		allowed := false
		for _, e := range s.Enum {
			if e == str {
				allowed = true
				break
			}
		}
		if !allowed {
			reasons = append(reasons, fmt.Sprintf("parameter %s: value %q not in allowed set", name, str))
		}
	default:
		reasons = append(reasons, fmt.Sprintf("parameter %s: unknown declared type %s", name, s.Type))
	}
	return reasons
}

func (s ParamSpec) checkRange(name string, v float64) []string {
	var reasons []string
	if s.Min != nil && v < *s.Min {
		reasons = append(reasons, fmt.Sprintf("parameter %s: below minimum %v", name, *s.Min))
	}
	if s.Max != nil && v > *s.Max {
		reasons = append(reasons, fmt.Sprintf("parameter %s: above maximum %v", name, *s.Max))
	}
	return reasons
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
