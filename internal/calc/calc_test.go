// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package calc

import (
	"errors"
	"math"
	"testing"

	"github.com/pdiddy/food-resolver/pkg/types"
)

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"42", 42},
		{"  7.5 ", 7.5},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"10 - 4 - 3", 3},
		{"-3 + 5", 2},
		{"2 * -3", -6},
		{"((2))", 2},
		{".5 * 4", 2},
		{"4 * 28.35 / 15", 7.56},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr)
			if err != nil {
				t.Fatalf("Eval(%q): %v", tt.expr, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_Rejects(t *testing.T) {
	tests := []string{
		"",
		"2 +",
		"(1 + 2",
		"1 + 2)",
		"1..2",
		"1 / 0",
		"1 / (2 - 2)",
		"3 4",
		"2 ** 3",
		// Letters, underscores and anything outside the grammar are never
		// evaluated.
		"Math.max(1, 2)",
		"x + 1",
		"1_000",
		"1e3",
		"process.exit()",
		"2 % 3",
		"1, 2",
		"\"4\"",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Eval(expr)
			var ee *EvaluationError
			if !errors.As(err, &ee) {
				t.Fatalf("Eval(%q) error = %v, want *EvaluationError", expr, err)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	if !Allowed("(4 * 28.35) / 15 - 1 + 2") {
		t.Error("plain arithmetic rejected")
	}
	for _, s := range []string{"a", "_", "1e5", "$", "[1]", "π"} {
		if Allowed(s) {
			t.Errorf("Allowed(%q) = true", s)
		}
	}
}

func TestEval_DeepNestingRejected(t *testing.T) {
	expr := ""
	for range maxDepth + 2 {
		expr += "("
	}
	expr += "1"
	for range maxDepth + 2 {
		expr += ")"
	}
	if _, err := Eval(expr); err == nil {
		t.Error("deeply nested expression accepted")
	}
}

func TestResolve(t *testing.T) {
	v, ok, err := Resolve(types.Num(12))
	if err != nil || !ok || v != 12 {
		t.Errorf("Resolve(Num) = %v, %v, %v", v, ok, err)
	}

	v, ok, err = Resolve(types.Expr("3 * 4"))
	if err != nil || !ok || v != 12 {
		t.Errorf("Resolve(Expr) = %v, %v, %v", v, ok, err)
	}

	_, ok, err = Resolve(types.Quantity{})
	if err != nil || ok {
		t.Errorf("Resolve(null) = %v, %v", ok, err)
	}

	_, ok, err = Resolve(types.Expr("alert(1)"))
	if err == nil || ok {
		t.Errorf("Resolve(bad) = %v, %v", ok, err)
	}
}
