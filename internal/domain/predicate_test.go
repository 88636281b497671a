package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/neomorfeo/caseflow/internal/domain"
)

func TestPredicate_Eval(t *testing.T) {
	cases := []struct {
		name  string
		pred  domain.Predicate
		attrs domain.Attributes
		want  bool
	}{
		{"lte int", domain.Predicate{Attribute: "income", Op: domain.OpLte, Value: 706}, domain.Attributes{"income": 500}, true},
		{"lte boundary", domain.Predicate{Attribute: "income", Op: domain.OpLte, Value: 706}, domain.Attributes{"income": 706.0}, true},
		{"lte above", domain.Predicate{Attribute: "income", Op: domain.OpLte, Value: 706}, domain.Attributes{"income": 707}, false},
		{"gte json number", domain.Predicate{Attribute: "familySize", Op: domain.OpGte, Value: 3}, domain.Attributes{"familySize": json.Number("3")}, true},
		{"gt numeric string", domain.Predicate{Attribute: "area", Op: domain.OpGt, Value: 100.5}, domain.Attributes{"area": "120"}, true},
		{"lt non numeric", domain.Predicate{Attribute: "area", Op: domain.OpLt, Value: 10}, domain.Attributes{"area": "big"}, false},
		{"eq bool", domain.Predicate{Attribute: "resident", Op: domain.OpEq, Value: true}, domain.Attributes{"resident": true}, true},
		{"eq string", domain.Predicate{Attribute: "zone", Op: domain.OpEq, Value: "rural"}, domain.Attributes{"zone": "urban"}, false},
		{"ne", domain.Predicate{Attribute: "zone", Op: domain.OpNe, Value: "rural"}, domain.Attributes{"zone": "urban"}, true},
		{"in", domain.Predicate{Attribute: "zone", Op: domain.OpIn, Value: []any{"rural", "urban"}}, domain.Attributes{"zone": "urban"}, true},
		{"in numbers", domain.Predicate{Attribute: "code", Op: domain.OpIn, Value: []any{1, 2}}, domain.Attributes{"code": 2.0}, true},
		{"present", domain.Predicate{Attribute: "cpf", Op: domain.OpPresent}, domain.Attributes{"cpf": "123"}, true},
		{"missing attribute", domain.Predicate{Attribute: "cpf", Op: domain.OpNe, Value: "x"}, domain.Attributes{}, false},
		{"nil attribute", domain.Predicate{Attribute: "cpf", Op: domain.OpPresent}, domain.Attributes{"cpf": nil}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pred.Eval(tc.attrs); got != tc.want {
				t.Errorf("Eval(%v) = %v, want %v", tc.attrs, got, tc.want)
			}
		})
	}
}

func TestPredicate_Validate(t *testing.T) {
	invalid := []domain.Predicate{
		{Op: domain.OpPresent},
		{Attribute: "x", Op: domain.OpLt, Value: "abc"},
		{Attribute: "x", Op: domain.OpEq},
		{Attribute: "x", Op: domain.OpIn, Value: "a"},
		{Attribute: "x", Op: "matches", Value: "a"},
	}
	for _, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", p)
		}
	}

	if err := (domain.Predicate{Attribute: "x", Op: domain.OpGte, Value: "3"}).Validate(); err != nil {
		t.Errorf("numeric string value should validate: %v", err)
	}
}

func TestAttributes_Int64(t *testing.T) {
	attrs := domain.Attributes{"requestedAmount": 1000.0, "name": "x"}
	if v, ok := attrs.Int64("requestedAmount"); !ok || v != 1000 {
		t.Errorf("Int64(requestedAmount) = %d, %v", v, ok)
	}
	if _, ok := attrs.Int64("name"); ok {
		t.Error("Int64(name) should not be numeric")
	}
}

func TestAttributes_Int64_RejectsNonWholeValues(t *testing.T) {
	attrs := domain.Attributes{
		"fraction": 10.5,
		"nan":      math.NaN(),
		"nanText":  "NaN",
		"inf":      math.Inf(1),
		"huge":     1e19,
		"tiny":     -1e19,
		"edge":     float64(math.MaxInt64),
	}
	for key := range attrs {
		if v, ok := attrs.Int64(key); ok {
			t.Errorf("Int64(%s) = %d, want rejection", key, v)
		}
	}

	attrs = domain.Attributes{"whole": 42.0, "negative": -7, "text": "120"}
	for key, want := range map[string]int64{"whole": 42, "negative": -7, "text": 120} {
		if v, ok := attrs.Int64(key); !ok || v != want {
			t.Errorf("Int64(%s) = %d, %v; want %d", key, v, ok, want)
		}
	}
}
