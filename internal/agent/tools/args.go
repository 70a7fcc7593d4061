package tools

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Arguments arrive as decoded JSON, so numbers are float64 and lists []any.

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func requiredString(args map[string]any, key string) (string, error) {
	s := stringArg(args, key)
	if s == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return s, nil
}

func floatArg(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}

func intArg(args map[string]any, key string) (int, error) {
	f, err := floatArg(args, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
	// also rejects ±Inf, which Trunc leaves unchanged
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("argument %q is out of range", key)
	}
	return int(f), nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a list of strings", key)
	}
}

func uuidArg(args map[string]any, key string) (uuid.UUID, error) {
	s, err := requiredString(args, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("argument %q is not a valid id", key)
	}
	return id, nil
}

// limitArg reads an optional result limit clamped to [1, upper].
func limitArg(args map[string]any, def, upper int) (int, error) {
	n, err := intArg(args, "limit")
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return def, nil
	}
	return min(n, upper), nil
}
