package spec

import (
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// BuiltinObject is the reserved call object for builtin functions.
const BuiltinObject = "@builtin"

// Expr is an expression AST node. Every node carries its source span.
type Expr interface {
	Span() diag.Span
	exprNode()
}

// Lit is a literal: string, number, boolean, or null.
type Lit struct {
	Val value.Value // kind is null, bool, number, or string
	S   diag.Span
}

// Ident resolves a name in the evaluation context.
type Ident struct {
	Name string
	S    diag.Span
}

// Property accesses a named field of an object expression.
type Property struct {
	X    Expr
	Name string
	S    diag.Span
}

// Index accesses an array element or object field by computed key.
type Index struct {
	X   Expr
	Key Expr
	S   diag.Span
}

// BinOp enumerates binary operators.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpMod BinOp = "%"
	OpEq  BinOp = "=="
	OpNe  BinOp = "!="
	OpLt  BinOp = "<"
	OpLe  BinOp = "<="
	OpGt  BinOp = ">"
	OpGe  BinOp = ">="
	OpAnd BinOp = "&&"
	OpOr  BinOp = "||"
)

// Binary applies a binary operator.
type Binary struct {
	Op   BinOp
	L, R Expr
	S    diag.Span
}

// Unary applies logical negation.
type Unary struct {
	X Expr
	S diag.Span
}

// Conditional is cond ? then : else, right-associative.
type Conditional struct {
	Cond, Then, Else Expr
	S                diag.Span
}

// TemplatePart is one segment of a string template: either literal text or
// an interpolated expression (exactly one of the two is set).
type TemplatePart struct {
	Text string
	Expr Expr
	S    diag.Span
}

// Template is a string template: the concatenation of its parts.
type Template struct {
	Parts []TemplatePart
	S     diag.Span
}

// Argument is a call argument, positional (Name empty) or named.
type Argument struct {
	Name string
	Val  Expr
	S    diag.Span
}

// Call invokes a builtin (Object == BuiltinObject) or a plugin method on a
// declared extension alias.
type Call struct {
	Object string
	Method string
	Args   []Argument
	S      diag.Span
}

func (e *Lit) Span() diag.Span         { return e.S }
func (e *Ident) Span() diag.Span       { return e.S }
func (e *Property) Span() diag.Span    { return e.S }
func (e *Index) Span() diag.Span       { return e.S }
func (e *Binary) Span() diag.Span      { return e.S }
func (e *Unary) Span() diag.Span       { return e.S }
func (e *Conditional) Span() diag.Span { return e.S }
func (e *Template) Span() diag.Span    { return e.S }
func (e *Call) Span() diag.Span        { return e.S }

func (*Lit) exprNode()         {}
func (*Ident) exprNode()       {}
func (*Property) exprNode()    {}
func (*Index) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Unary) exprNode()       {}
func (*Conditional) exprNode() {}
func (*Template) exprNode()    {}
func (*Call) exprNode()        {}

// Walk calls fn for e and every sub-expression, pre-order. Walking stops in a
// branch when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Property:
		Walk(n.X, fn)
	case *Index:
		Walk(n.X, fn)
		Walk(n.Key, fn)
	case *Binary:
		Walk(n.L, fn)
		Walk(n.R, fn)
	case *Unary:
		Walk(n.X, fn)
	case *Conditional:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Template:
		for _, p := range n.Parts {
			if p.Expr != nil {
				Walk(p.Expr, fn)
			}
		}
	case *Call:
		for _, a := range n.Args {
			Walk(a.Val, fn)
		}
	}
}

// Identifiers returns the set of identifier names referenced by e, in first
// occurrence order.
func Identifiers(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(e, func(x Expr) bool {
		if id, ok := x.(*Ident); ok && !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
		return true
	})
	return names
}

// EqualExpr reports structural equality of two expressions, ignoring spans.
func EqualExpr(a, b Expr) bool {
	switch x := a.(type) {
	case *Lit:
		y, ok := b.(*Lit)
		return ok && x.Val.Equal(y.Val)
	case *Ident:
		y, ok := b.(*Ident)
		return ok && x.Name == y.Name
	case *Property:
		y, ok := b.(*Property)
		return ok && x.Name == y.Name && EqualExpr(x.X, y.X)
	case *Index:
		y, ok := b.(*Index)
		return ok && EqualExpr(x.X, y.X) && EqualExpr(x.Key, y.Key)
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && EqualExpr(x.L, y.L) && EqualExpr(x.R, y.R)
	case *Unary:
		y, ok := b.(*Unary)
		return ok && EqualExpr(x.X, y.X)
	case *Conditional:
		y, ok := b.(*Conditional)
		return ok && EqualExpr(x.Cond, y.Cond) && EqualExpr(x.Then, y.Then) && EqualExpr(x.Else, y.Else)
	case *Template:
		y, ok := b.(*Template)
		if !ok || len(x.Parts) != len(y.Parts) {
			return false
		}
		for i := range x.Parts {
			xp, yp := x.Parts[i], y.Parts[i]
			if xp.Text != yp.Text {
				return false
			}
			if (xp.Expr == nil) != (yp.Expr == nil) {
				return false
			}
			if xp.Expr != nil && !EqualExpr(xp.Expr, yp.Expr) {
				return false
			}
		}
		return true
	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Object != y.Object || x.Method != y.Method || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if x.Args[i].Name != y.Args[i].Name || !EqualExpr(x.Args[i].Val, y.Args[i].Val) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return false
}
