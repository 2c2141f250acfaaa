// Package eval implements the pure expression evaluator: a function of an
// AST expression and an immutable context, with plugin calls delegated to a
// Dispatcher under the caller's control. The evaluator performs no I/O and
// keeps no hidden state.
package eval

import (
	"context"
	"math"

	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// Arg is one evaluated call argument handed to a Dispatcher.
type Arg struct {
	Name string // empty for positional
	Val  value.Value
}

// Dispatcher resolves extension-alias method calls. The plugin registry
// implements it; tests substitute fakes.
type Dispatcher interface {
	Call(ctx context.Context, alias, method string, args []Arg) (value.Value, error)
}

// Evaluator evaluates expressions against an Env. The zero value is not
// usable; construct with New.
type Evaluator struct {
	plugins Dispatcher
}

// New returns an evaluator dispatching plugin calls to d. A nil d makes any
// extension call fail with UnknownExtension.
func New(d Dispatcher) *Evaluator {
	return &Evaluator{plugins: d}
}

// Eval evaluates e in env. It returns a *diag.Error on failure, always
// carrying the failing node's span.
func (ev *Evaluator) Eval(ctx context.Context, e spec.Expr, env *Env) (value.Value, error) {
	switch n := e.(type) {
	case *spec.Lit:
		return n.Val, nil

	case *spec.Ident:
		v, ok := env.Lookup(n.Name)
		if !ok {
			return value.Null(), &diag.Error{
				Kind: diag.UnknownIdentifier, Message: "unknown identifier \"" + n.Name + "\"",
				Span: spanOf(n), Field: n.Name,
			}
		}
		return v, nil

	case *spec.Property:
		x, err := ev.Eval(ctx, n.X, env)
		if err != nil {
			return value.Null(), err
		}
		obj, ok := x.AsObject()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
				"property access needs an object, got %s", x.Kind())
		}
		v, _ := obj.Get(n.Name) // missing fields read as null
		return v, nil

	case *spec.Index:
		return ev.evalIndex(ctx, n, env)

	case *spec.Binary:
		return ev.evalBinary(ctx, n, env)

	case *spec.Unary:
		x, err := ev.Eval(ctx, n.X, env)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(!x.Truthy()), nil

	case *spec.Conditional:
		cond, err := ev.Eval(ctx, n.Cond, env)
		if err != nil {
			return value.Null(), err
		}
		if cond.Truthy() {
			return ev.Eval(ctx, n.Then, env)
		}
		return ev.Eval(ctx, n.Else, env)

	case *spec.Template:
		return ev.evalTemplate(ctx, n, env)

	case *spec.Call:
		return ev.evalCall(ctx, n, env)
	}
	return value.Null(), diag.Errorf(diag.TypeMismatch, nil, "unsupported expression node %T", e)
}

func spanOf(e spec.Expr) *diag.Span {
	s := e.Span()
	return &s
}

func (ev *Evaluator) evalIndex(ctx context.Context, n *spec.Index, env *Env) (value.Value, error) {
	x, err := ev.Eval(ctx, n.X, env)
	if err != nil {
		return value.Null(), err
	}
	key, err := ev.Eval(ctx, n.Key, env)
	if err != nil {
		return value.Null(), err
	}

	if arr, ok := x.AsArray(); ok {
		idx, ok := key.AsNumber()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
				"array index must be a number, got %s", key.Kind())
		}
		i := int(math.Floor(idx))
		if i < 0 {
			return value.Null(), diag.Errorf(diag.IndexOutOfRange, spanOf(n),
				"negative array index %d", i)
		}
		if i >= len(arr) {
			return value.Null(), nil
		}
		return arr[i], nil
	}
	if obj, ok := x.AsObject(); ok {
		k, ok := key.AsString()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
				"object index must be a string, got %s", key.Kind())
		}
		v, _ := obj.Get(k)
		return v, nil
	}
	return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
		"cannot index %s", x.Kind())
}

func (ev *Evaluator) evalBinary(ctx context.Context, n *spec.Binary, env *Env) (value.Value, error) {
	// Logical operators short-circuit: the right side is only evaluated when
	// the left side does not decide the result.
	switch n.Op {
	case spec.OpAnd:
		l, err := ev.Eval(ctx, n.L, env)
		if err != nil {
			return value.Null(), err
		}
		if !l.Truthy() {
			return value.Bool(false), nil
		}
		r, err := ev.Eval(ctx, n.R, env)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(r.Truthy()), nil
	case spec.OpOr:
		l, err := ev.Eval(ctx, n.L, env)
		if err != nil {
			return value.Null(), err
		}
		if l.Truthy() {
			return value.Bool(true), nil
		}
		r, err := ev.Eval(ctx, n.R, env)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(r.Truthy()), nil
	}

	l, err := ev.Eval(ctx, n.L, env)
	if err != nil {
		return value.Null(), err
	}
	r, err := ev.Eval(ctx, n.R, env)
	if err != nil {
		return value.Null(), err
	}

	switch n.Op {
	case spec.OpEq:
		return value.Bool(l.Equal(r)), nil
	case spec.OpNe:
		return value.Bool(!l.Equal(r)), nil
	case spec.OpAdd:
		return addValues(l, r, n)
	case spec.OpSub, spec.OpMul, spec.OpDiv, spec.OpMod:
		return arithmetic(n.Op, l, r, n)
	case spec.OpLt, spec.OpLe, spec.OpGt, spec.OpGe:
		return compare(n.Op, l, r, n)
	}
	return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n), "unknown operator %s", n.Op)
}

// addValues implements +: numeric sum, string concatenation when either side
// is a string, and array concatenation.
func addValues(l, r value.Value, n *spec.Binary) (value.Value, error) {
	if ln, ok := l.AsNumber(); ok {
		if rn, ok := r.AsNumber(); ok {
			return value.Number(ln + rn), nil
		}
	}
	if l.Kind() == value.KindString || r.Kind() == value.KindString {
		return value.String(l.Format() + r.Format()), nil
	}
	if la, ok := l.AsArray(); ok {
		if ra, ok := r.AsArray(); ok {
			out := make([]value.Value, 0, len(la)+len(ra))
			out = append(out, la...)
			out = append(out, ra...)
			return value.Array(out...), nil
		}
	}
	return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
		"cannot add %s and %s", l.Kind(), r.Kind())
}

func arithmetic(op spec.BinOp, l, r value.Value, n *spec.Binary) (value.Value, error) {
	ln, lok := l.AsNumber()
	rn, rok := r.AsNumber()
	if !lok || !rok {
		return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
			"operator %s needs numbers, got %s and %s", op, l.Kind(), r.Kind())
	}
	switch op {
	case spec.OpSub:
		return value.Number(ln - rn), nil
	case spec.OpMul:
		return value.Number(ln * rn), nil
	case spec.OpDiv:
		if rn == 0 {
			return value.Null(), diag.Errorf(diag.DivByZero, spanOf(n), "division by zero")
		}
		return value.Number(ln / rn), nil
	case spec.OpMod:
		if rn == 0 {
			return value.Null(), diag.Errorf(diag.DivByZero, spanOf(n), "modulo by zero")
		}
		return value.Number(math.Mod(ln, rn)), nil
	}
	return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n), "unknown operator %s", op)
}

// compare implements ordering: numbers numerically, strings by Unicode code
// point. Any other combination is a type error.
func compare(op spec.BinOp, l, r value.Value, n *spec.Binary) (value.Value, error) {
	if ln, ok := l.AsNumber(); ok {
		if rn, ok := r.AsNumber(); ok {
			return value.Bool(applyOrder(op, compareFloats(ln, rn))), nil
		}
	}
	if ls, ok := l.AsString(); ok {
		if rs, ok := r.AsString(); ok {
			return value.Bool(applyOrder(op, compareStrings(ls, rs))), nil
		}
	}
	return value.Null(), diag.Errorf(diag.TypeMismatch, spanOf(n),
		"cannot order %s and %s", l.Kind(), r.Kind())
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(op spec.BinOp, cmp int) bool {
	switch op {
	case spec.OpLt:
		return cmp < 0
	case spec.OpLe:
		return cmp <= 0
	case spec.OpGt:
		return cmp > 0
	case spec.OpGe:
		return cmp >= 0
	}
	return false
}

// evalTemplate concatenates parts, stringifying interpolation results. A
// failing interpolation fails the whole template with the underlying error.
func (ev *Evaluator) evalTemplate(ctx context.Context, n *spec.Template, env *Env) (value.Value, error) {
	var out []byte
	for _, part := range n.Parts {
		if part.Expr == nil {
			out = append(out, part.Text...)
			continue
		}
		v, err := ev.Eval(ctx, part.Expr, env)
		if err != nil {
			return value.Null(), err
		}
		out = append(out, v.Format()...)
	}
	return value.String(string(out)), nil
}

func (ev *Evaluator) evalCall(ctx context.Context, n *spec.Call, env *Env) (value.Value, error) {
	args := make([]Arg, len(n.Args))
	for i, a := range n.Args {
		v, err := ev.Eval(ctx, a.Val, env)
		if err != nil {
			return value.Null(), err
		}
		args[i] = Arg{Name: a.Name, Val: v}
	}

	if n.Object == spec.BuiltinObject {
		return callBuiltin(n, args)
	}

	if ev.plugins == nil {
		return value.Null(), diag.Errorf(diag.UnknownExtension, spanOf(n),
			"no plugin registry configured for extension %q", n.Object)
	}
	v, err := ev.plugins.Call(ctx, n.Object, n.Method, args)
	if err != nil {
		de := diag.AsError(err, diag.Plugin)
		if de.Span == nil {
			de.Span = spanOf(n)
		}
		return value.Null(), de
	}
	return v, nil
}
