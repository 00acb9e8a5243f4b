// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package calc evaluates the arithmetic expressions a language model may
// return in place of a number, such as "4 * 28.35 / 15". The grammar has
// numbers, parentheses, unary minus and the four basic operators. Any other
// character rejects the whole expression before parsing starts.
package calc

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// maxLen bounds the accepted expression length.
const maxLen = 256

// maxDepth bounds parenthesis nesting.
const maxDepth = 32

// EvaluationError reports an expression that was rejected or could not be
// evaluated.
type EvaluationError struct {
	Expr   string
	Reason string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %q: %s", e.Expr, e.Reason)
}

// Allowed reports whether expr uses only digits, '.', whitespace,
// parentheses and + - * /.
func Allowed(expr string) bool {
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c >= '0' && c <= '9':
		case c == '.', c == '(', c == ')', c == '+', c == '-', c == '*', c == '/':
		case c == ' ', c == '\t', c == '\n', c == '\r':
		default:
			return false
		}
	}
	return true
}

// Eval evaluates expr. The result is always finite.
func Eval(expr string) (float64, error) {
	if len(expr) > maxLen {
		return 0, &EvaluationError{Expr: expr, Reason: "expression too long"}
	}
	if !Allowed(expr) {
		return 0, &EvaluationError{Expr: expr, Reason: "disallowed character"}
	}

	p := &parser{src: expr}
	v, err := p.expr(0)
	if err != nil {
		return 0, &EvaluationError{Expr: expr, Reason: err.Error()}
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, &EvaluationError{Expr: expr, Reason: fmt.Sprintf("unexpected %q at offset %d", p.src[p.pos], p.pos)}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &EvaluationError{Expr: expr, Reason: "result is not finite"}
	}
	return v, nil
}

// Resolve returns the value of q: its literal number, or its evaluated
// expression. A null quantity reports ok false with no error.
func Resolve(q types.Quantity) (v float64, ok bool, err error) {
	if q.Number != nil {
		return *q.Number, true, nil
	}
	if q.Expr == "" {
		return 0, false, nil
	}
	v, err = Eval(q.Expr)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// parser is a recursive-descent evaluator:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = "-" unary | "+" unary | factor
//	factor = number | "(" expr ")"
type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expr(depth int) (float64, error) {
	v, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			r, err := p.term(depth)
			if err != nil {
				return 0, err
			}
			v += r
		case '-':
			p.pos++
			r, err := p.term(depth)
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (p *parser) term(depth int) (float64, error) {
	v, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			r, err := p.unary(depth)
			if err != nil {
				return 0, err
			}
			v *= r
		case '/':
			p.pos++
			r, err := p.unary(depth)
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= r
		default:
			return v, nil
		}
	}
}

func (p *parser) unary(depth int) (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary(depth + 1)
		return -v, err
	case '+':
		p.pos++
		return p.unary(depth + 1)
	}
	return p.factor(depth)
}

func (p *parser) factor(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("nesting too deep")
	}
	c := p.peek()
	if c == '(' {
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if start == p.pos {
		if p.pos >= len(p.src) {
			return 0, fmt.Errorf("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
	}
	if dots > 1 {
		return 0, fmt.Errorf("malformed number %q", p.src[start:p.pos])
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", p.src[start:p.pos])
	}
	return v, nil
}
