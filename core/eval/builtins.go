package eval

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
)

type builtin struct {
	arity int
	fn    func(args []value.Value, span *diag.Span) (value.Value, error)
}

var builtins = map[string]builtin{
	"len": {1, func(args []value.Value, span *diag.Span) (value.Value, error) {
		switch args[0].Kind() {
		case value.KindString:
			s, _ := args[0].AsString()
			return value.Number(float64(len(s))), nil
		case value.KindArray:
			a, _ := args[0].AsArray()
			return value.Number(float64(len(a))), nil
		case value.KindObject:
			o, _ := args[0].AsObject()
			return value.Number(float64(o.Len())), nil
		}
		return value.Null(), diag.Errorf(diag.TypeMismatch, span,
			"len takes a string, array, or object, got %s", args[0].Kind())
	}},
	"upper": {1, stringFn("upper", strings.ToUpper)},
	"lower": {1, stringFn("lower", strings.ToLower)},
	"trim":  {1, stringFn("trim", strings.TrimSpace)},
	"abs": {1, func(args []value.Value, span *diag.Span) (value.Value, error) {
		n, ok := args[0].AsNumber()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, span,
				"abs takes a number, got %s", args[0].Kind())
		}
		if n < 0 {
			return value.Number(-n), nil
		}
		return value.Number(n), nil
	}},
	"string": {1, func(args []value.Value, _ *diag.Span) (value.Value, error) {
		return value.String(args[0].Format()), nil
	}},
	"number": {1, func(args []value.Value, span *diag.Span) (value.Value, error) {
		s, ok := args[0].AsString()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, span,
				"number takes a string, got %s", args[0].Kind())
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return value.Null(), diag.Errorf(diag.NumberParse, span,
				"cannot parse %q as a number", s)
		}
		return value.Number(n), nil
	}},
	"boolean": {1, func(args []value.Value, _ *diag.Span) (value.Value, error) {
		return value.Bool(args[0].Truthy()), nil
	}},
	"hash": {1, func(args []value.Value, span *diag.Span) (value.Value, error) {
		s, ok := args[0].AsString()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, span,
				"hash takes a string, got %s", args[0].Kind())
		}
		sum := make([]byte, 16)
		sha3.ShakeSum128(sum, []byte(s))
		return value.String(hex.EncodeToString(sum)), nil
	}},
}

func stringFn(name string, fn func(string) string) func([]value.Value, *diag.Span) (value.Value, error) {
	return func(args []value.Value, span *diag.Span) (value.Value, error) {
		s, ok := args[0].AsString()
		if !ok {
			return value.Null(), diag.Errorf(diag.TypeMismatch, span,
				"%s takes a string, got %s", name, args[0].Kind())
		}
		return value.String(fn(s)), nil
	}
}

func callBuiltin(n *spec.Call, args []Arg) (value.Value, error) {
	b, ok := builtins[n.Method]
	if !ok {
		return value.Null(), diag.Errorf(diag.BadArity, spanOf(n),
			"unknown builtin function %q", n.Method)
	}
	vals := make([]value.Value, len(args))
	for i, a := range args {
		if a.Name != "" {
			return value.Null(), diag.Errorf(diag.BadArity, spanOf(n),
				"builtin %s takes positional arguments only", n.Method)
		}
		vals[i] = a.Val
	}
	if len(vals) != b.arity {
		return value.Null(), diag.Errorf(diag.BadArity, spanOf(n),
			"%s takes %d argument(s), got %d", n.Method, b.arity, len(vals))
	}
	return b.fn(vals, spanOf(n))
}
