package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Attributes holds the applicant- or incident-specific values criteria are
// evaluated against. Values are JSON scalars (number, string, bool) or lists
// of them.
type Attributes map[string]any

// Operator is the comparison a Predicate applies.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNe      Operator = "ne"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpIn      Operator = "in"
	OpPresent Operator = "present"
)

// Predicate is a declarative rule over one case attribute, e.g.
// {Attribute: "income", Op: OpLte, Value: 706}.
type Predicate struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Op        Operator `json:"op" yaml:"op"`
	Value     any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Validate checks the predicate is well-formed. It does not look at any case.
func (p Predicate) Validate() error {
	if p.Attribute == "" {
		return fmt.Errorf("attribute is empty")
	}
	switch p.Op {
	case OpPresent:
		return nil
	case OpLt, OpLte, OpGt, OpGte:
		if _, ok := toNumber(p.Value); !ok {
			return fmt.Errorf("operator %q needs a numeric value, got %v", p.Op, p.Value)
		}
	case OpEq, OpNe:
		if p.Value == nil {
			return fmt.Errorf("operator %q needs a value", p.Op)
		}
	case OpIn:
		if _, ok := p.Value.([]any); !ok {
			return fmt.Errorf("operator %q needs a list value", p.Op)
		}
	default:
		return fmt.Errorf("unknown operator %q", p.Op)
	}
	return nil
}

// Eval reports whether attrs satisfy the predicate. A missing attribute never
// satisfies a comparison.
func (p Predicate) Eval(attrs Attributes) bool {
	got, ok := attrs[p.Attribute]
	if !ok || got == nil {
		return false
	}

	switch p.Op {
	case OpPresent:
		return true
	case OpEq:
		return equal(got, p.Value)
	case OpNe:
		return !equal(got, p.Value)
	case OpIn:
		list, _ := p.Value.([]any)
		for _, v := range list {
			if equal(got, v) {
				return true
			}
		}
		return false
	}

	a, okA := toNumber(got)
	b, okB := toNumber(p.Value)
	if !okA || !okB {
		return false
	}
	switch p.Op {
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	}
	return false
}

func equal(a, b any) bool {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// toNumber normalizes the numeric shapes that arrive from JSON, YAML and Go
// callers. Numeric strings count as numbers, since form inputs often send them.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Int64 returns the attribute as a whole number. Fractions, NaN, infinities
// and values outside the int64 range are not whole numbers.
func (a Attributes) Int64(key string) (int64, bool) {
	f, ok := toNumber(a[key])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
