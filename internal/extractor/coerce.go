// internal/extractor/coerce.go
package extractor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"intent-gateway/internal/template"
)

// Coerce converts a raw extracted value into the parameter's declared type.
// Coercion is strict: a value that does not cleanly convert is an error, it
// is never guessed into shape.
func Coerce(raw interface{}, p *template.Parameter) (interface{}, error) {
	switch p.Type {
	case template.TypeString:
		return coerceString(raw)
	case template.TypeInteger:
		return coerceInteger(raw)
	case template.TypeFloat:
		return coerceFloat(raw)
	case template.TypeBoolean:
		return coerceBoolean(raw)
	case template.TypeDate:
		return coerceDate(raw)
	case template.TypeEnum:
		return coerceEnum(raw, p.AllowedValues)
	default:
		return nil, fmt.Errorf("unknown parameter type %q", p.Type)
	}
}

func coerceString(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, fmt.Errorf("empty string")
		}
		return s, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to string", raw)
	}
}

func coerceInteger(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", raw)
	}
}

func coerceFloat(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to float", raw)
	}
}

func coerceBoolean(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", v)
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", raw)
	}
}

// coerceDate accepts ISO dates only. Relative expressions like "last week"
// are a model output problem, not something to interpret here.
func coerceDate(raw interface{}) (interface{}, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to date", raw)
	}
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return nil, fmt.Errorf("%q is not a date in YYYY-MM-DD form", s)
	}
	return s, nil
}

// coerceEnum matches against allowed values, case-insensitively, and returns
// the canonical casing. Anything else fails; no closest-match guessing.
func coerceEnum(raw interface{}, allowed []string) (interface{}, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to enum value", raw)
	}
	s = strings.TrimSpace(s)
	for _, a := range allowed {
		if strings.EqualFold(s, a) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%q is not one of the allowed values", s)
}
