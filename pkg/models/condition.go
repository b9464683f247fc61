// Package models defines the core domain models for security-operations
// workflow orchestration and notification delivery.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison operator used by guard conditions, rule triggers,
// escalation triggers and suppression rules.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorExists      Operator = "exists"
)

// ParseOperator converts a raw string into an Operator, failing on unknown
// values rather than defaulting.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OperatorEquals, OperatorNotEquals, OperatorGreaterThan,
		OperatorLessThan, OperatorContains, OperatorExists:
		return Operator(s), nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Condition is a single predicate over a dotted field path in a data map.
type Condition struct {
	Field    string   `json:"field"           yaml:"field"           validate:"required"`
	Operator Operator `json:"operator"        yaml:"operator"        validate:"required"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Evaluate resolves the condition's field path against data and applies the
// operator. A missing field satisfies only the negated forms (not_equals) and
// fails exists/equals/ordering checks.
func (c Condition) Evaluate(data map[string]any) (bool, error) {
	value, found := LookupPath(data, c.Field)

	switch c.Operator {
	case OperatorExists:
		return found, nil
	case OperatorEquals:
		if !found {
			return false, nil
		}

		return looseEqual(value, c.Value), nil
	case OperatorNotEquals:
		if !found {
			return true, nil
		}

		return !looseEqual(value, c.Value), nil
	case OperatorGreaterThan, OperatorLessThan:
		if !found {
			return false, nil
		}

		left, err := toFloat(value)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", c.Field, err)
		}

		right, err := toFloat(c.Value)
		if err != nil {
			return false, fmt.Errorf("condition value for %q: %w", c.Field, err)
		}

		if c.Operator == OperatorGreaterThan {
			return left > right, nil
		}

		return left < right, nil
	case OperatorContains:
		if !found {
			return false, nil
		}

		return strings.Contains(
			fmt.Sprintf("%v", value),
			fmt.Sprintf("%v", c.Value),
		), nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}
}

// AllMatch reports whether every condition holds against data (logical AND).
// An empty condition list matches.
func AllMatch(conditions []Condition, data map[string]any) (bool, error) {
	for _, cond := range conditions {
		ok, err := cond.Evaluate(data)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// LookupPath resolves a dotted path ("ioc.value") through nested maps.
func LookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = data

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func looseEqual(left, right any) bool {
	if left == right {
		return true
	}

	// JSON round-trips turn ints into float64; compare numerically when both
	// sides are numbers.
	lf, lerr := toFloat(left)
	rf, rerr := toFloat(right)

	if lerr == nil && rerr == nil {
		return lf == rf
	}

	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number: %w", v, err)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}
