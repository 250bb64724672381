package builtin

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/tool"
)

// CalculatorName is the tool name models use to request arithmetic.
const CalculatorName = "calculator"

// NewCalculator returns a tool evaluating arithmetic expressions with
// + - * / % ^, parentheses, unary minus and the functions sqrt, abs, floor,
// ceil and round. The result is rendered as the shortest decimal string.
func NewCalculator() tool.Tool {
	return tool.NewFunctionTool(
		CalculatorName,
		"Evaluate an arithmetic expression such as \"(2+3)*4\" and return the result.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expr": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression to evaluate",
				},
			},
			"required": []string{"expr"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			expr, _ := args["expr"].(string)

			v, err := Evaluate(expr)
			if err != nil {
				return nil, err
			}

			return strconv.FormatFloat(v, 'f', -1, 64), nil
		},
	)
}

// Evaluate parses and evaluates an arithmetic expression.
func Evaluate(expr string) (float64, error) {
	p := &exprParser{src: expr}

	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}

	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}

	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("expression %q has no finite result", expr)
	}

	return v, nil
}

// exprParser is a recursive descent parser over the grammar
//
//	expr   = term { ("+" | "-") term }
//	term   = power { ("*" | "/" | "%") power }
//	power  = unary [ "^" power ]
//	unary  = [ "-" | "+" ] unary | call
//	call   = ident "(" expr ")" | primary
//	primary = number | "(" expr ")"
type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}

	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++

		right, err := p.parsePower()
		if err != nil {
			return 0, err
		}

		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	if p.peek() != '^' {
		return base, nil
	}
	p.pos++

	exp, err := p.parsePower()
	if err != nil {
		return 0, err
	}

	return math.Pow(base, exp), nil
}

func (p *exprParser) parseUnary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	case '+':
		p.pos++
		return p.parseUnary()
	}

	return p.parseCall()
}

var calcFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
}

func (p *exprParser) parseCall() (float64, error) {
	p.skipSpace()

	start := p.pos
	for p.pos < len(p.src) && unicode.IsLetter(rune(p.src[p.pos])) {
		p.pos++
	}

	if start == p.pos {
		return p.parsePrimary()
	}

	name := strings.ToLower(p.src[start:p.pos])
	fn, ok := calcFuncs[name]
	if !ok {
		return 0, fmt.Errorf("unknown function %q", name)
	}

	if p.peek() != '(' {
		return 0, fmt.Errorf("expected '(' after %s", name)
	}

	v, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}

	return fn(v), nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	c := p.peek()

	if c == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.src) && (unicode.IsDigit(rune(p.src[p.pos])) || p.src[p.pos] == '.') {
		p.pos++
	}

	if start == p.pos {
		if c == 0 {
			return 0, fmt.Errorf("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected %q at position %d", c, start)
	}

	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.src[start:p.pos])
	}

	return v, nil
}
