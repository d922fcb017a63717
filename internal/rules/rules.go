// Package rules compiles and evaluates the restricted expression language used by
// alert rules and derived-metric definitions. Expressions are parsed into an AST at
// configuration-load time, every identifier is checked against an allowed set, and
// the only callable functions are abs, min, and max. Evaluation exposes no other
// capability: no member access, no indexing, no arbitrary calls.
package rules

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
)

// ErrMissingVar marks a reference to a variable that is absent from the evaluation
// context. Callers treat this as "not triggered" rather than as a hard failure.
var ErrMissingVar = errors.New("variable not in context")

var builtins = map[string]struct {
	minArgs int
	maxArgs int
}{
	"abs": {1, 1},
	"min": {2, -1},
	"max": {2, -1},
}

// Program is a compiled, validated expression.
type Program struct {
	src  string
	root ast.Expr
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.src
}

// Compile parses src and validates it against the allowed identifier set. Unknown
// identifiers, calls outside the abs/min/max whitelist, and any construct beyond
// arithmetic, comparison, logical operators, and parentheses are rejected here, not
// at evaluation time.
func Compile(src string, identifiers []string) (*Program, error) {
	root, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", src, err)
	}

	allowed := make(map[string]bool, len(identifiers))
	for _, ident := range identifiers {
		allowed[ident] = true
	}

	if err := validate(root, allowed); err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, err)
	}

	return &Program{src: src, root: root}, nil
}

func validate(node ast.Expr, allowed map[string]bool) error {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return validate(n.X, allowed)
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return fmt.Errorf("literal %s not permitted", n.Value)
		}
		return nil
	case *ast.Ident:
		if n.Name == "true" || n.Name == "false" {
			return nil
		}
		if !allowed[n.Name] {
			return fmt.Errorf("unknown identifier %q", n.Name)
		}
		return nil
	case *ast.UnaryExpr:
		if n.Op != token.SUB && n.Op != token.NOT {
			return fmt.Errorf("operator %s not permitted", n.Op)
		}
		return validate(n.X, allowed)
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO,
			token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ,
			token.LAND, token.LOR:
		default:
			return fmt.Errorf("operator %s not permitted", n.Op)
		}
		if err := validate(n.X, allowed); err != nil {
			return err
		}
		return validate(n.Y, allowed)
	case *ast.CallExpr:
		ident, ok := n.Fun.(*ast.Ident)
		if !ok {
			return errors.New("only abs, min, and max may be called")
		}
		sig, ok := builtins[ident.Name]
		if !ok {
			return fmt.Errorf("function %q not permitted", ident.Name)
		}
		if len(n.Args) < sig.minArgs || (sig.maxArgs > 0 && len(n.Args) > sig.maxArgs) {
			return fmt.Errorf("wrong number of arguments to %s", ident.Name)
		}
		for _, arg := range n.Args {
			if err := validate(arg, allowed); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("construct %T not permitted", node)
	}
}

// value carries either a number or a boolean through evaluation.
type value struct {
	num    float64
	b      bool
	isBool bool
}

func numberVal(f float64) value { return value{num: f} }
func boolVal(b bool) value      { return value{b: b, isBool: true} }

// Eval evaluates the program against vars and returns a numeric result. A boolean
// result is an error; use EvalBool for rule expressions.
func (p *Program) Eval(vars map[string]float64) (float64, error) {
	v, err := eval(p.root, vars)
	if err != nil {
		return 0, err
	}
	if v.isBool {
		return 0, fmt.Errorf("expression %q yields a boolean, expected a number", p.src)
	}
	return v.num, nil
}

// EvalBool evaluates the program as a rule. Numeric results follow truthiness: any
// non-zero value triggers.
func (p *Program) EvalBool(vars map[string]float64) (bool, error) {
	v, err := eval(p.root, vars)
	if err != nil {
		return false, err
	}
	if v.isBool {
		return v.b, nil
	}
	return v.num != 0 && !math.IsNaN(v.num), nil
}

func eval(node ast.Expr, vars map[string]float64) (value, error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return eval(n.X, vars)
	case *ast.BasicLit:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return value{}, fmt.Errorf("bad literal %s: %w", n.Value, err)
		}
		return numberVal(f), nil
	case *ast.Ident:
		switch n.Name {
		case "true":
			return boolVal(true), nil
		case "false":
			return boolVal(false), nil
		}
		f, ok := vars[n.Name]
		if !ok {
			return value{}, fmt.Errorf("%w: %s", ErrMissingVar, n.Name)
		}
		return numberVal(f), nil
	case *ast.UnaryExpr:
		operand, err := eval(n.X, vars)
		if err != nil {
			return value{}, err
		}
		switch n.Op {
		case token.SUB:
			if operand.isBool {
				return value{}, errors.New("cannot negate a boolean")
			}
			return numberVal(-operand.num), nil
		case token.NOT:
			if !operand.isBool {
				return value{}, errors.New("cannot apply ! to a number")
			}
			return boolVal(!operand.b), nil
		}
		return value{}, fmt.Errorf("operator %s not permitted", n.Op)
	case *ast.BinaryExpr:
		return evalBinary(n, vars)
	case *ast.CallExpr:
		return evalCall(n, vars)
	}
	return value{}, fmt.Errorf("construct %T not permitted", node)
}

func evalBinary(n *ast.BinaryExpr, vars map[string]float64) (value, error) {
	// Logical operators short-circuit like Go.
	if n.Op == token.LAND || n.Op == token.LOR {
		left, err := evalBoolOperand(n.X, vars)
		if err != nil {
			return value{}, err
		}
		if n.Op == token.LAND && !left {
			return boolVal(false), nil
		}
		if n.Op == token.LOR && left {
			return boolVal(true), nil
		}
		right, err := evalBoolOperand(n.Y, vars)
		if err != nil {
			return value{}, err
		}
		return boolVal(right), nil
	}

	left, err := eval(n.X, vars)
	if err != nil {
		return value{}, err
	}
	right, err := eval(n.Y, vars)
	if err != nil {
		return value{}, err
	}

	if n.Op == token.EQL || n.Op == token.NEQ {
		if left.isBool != right.isBool {
			return value{}, errors.New("cannot compare boolean with number")
		}
		var equal bool
		if left.isBool {
			equal = left.b == right.b
		} else {
			equal = left.num == right.num
		}
		return boolVal(equal == (n.Op == token.EQL)), nil
	}

	if left.isBool || right.isBool {
		return value{}, fmt.Errorf("operator %s requires numeric operands", n.Op)
	}

	switch n.Op {
	case token.ADD:
		return numberVal(left.num + right.num), nil
	case token.SUB:
		return numberVal(left.num - right.num), nil
	case token.MUL:
		return numberVal(left.num * right.num), nil
	case token.QUO:
		if right.num == 0 {
			return value{}, errors.New("division by zero")
		}
		return numberVal(left.num / right.num), nil
	case token.LSS:
		return boolVal(left.num < right.num), nil
	case token.LEQ:
		return boolVal(left.num <= right.num), nil
	case token.GTR:
		return boolVal(left.num > right.num), nil
	case token.GEQ:
		return boolVal(left.num >= right.num), nil
	}
	return value{}, fmt.Errorf("operator %s not permitted", n.Op)
}

func evalBoolOperand(node ast.Expr, vars map[string]float64) (bool, error) {
	v, err := eval(node, vars)
	if err != nil {
		return false, err
	}
	if !v.isBool {
		return false, errors.New("logical operand must be boolean")
	}
	return v.b, nil
}

func evalCall(n *ast.CallExpr, vars map[string]float64) (value, error) {
	ident := n.Fun.(*ast.Ident)

	args := make([]float64, 0, len(n.Args))
	for _, argExpr := range n.Args {
		arg, err := eval(argExpr, vars)
		if err != nil {
			return value{}, err
		}
		if arg.isBool {
			return value{}, fmt.Errorf("%s requires numeric arguments", ident.Name)
		}
		args = append(args, arg.num)
	}

	switch ident.Name {
	case "abs":
		return numberVal(math.Abs(args[0])), nil
	case "min":
		out := args[0]
		for _, a := range args[1:] {
			out = math.Min(out, a)
		}
		return numberVal(out), nil
	case "max":
		out := args[0]
		for _, a := range args[1:] {
			out = math.Max(out, a)
		}
		return numberVal(out), nil
	}
	return value{}, fmt.Errorf("function %q not permitted", ident.Name)
}
