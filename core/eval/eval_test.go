package eval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sigmos-lang/sigmos/core/eval"
	"github.com/sigmos-lang/sigmos/core/parser"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// fakeDispatcher records calls and returns a scripted value or error.
type fakeDispatcher struct {
	calls  []string
	result value.Value
	err    error
}

func (f *fakeDispatcher) Call(_ context.Context, alias, method string, args []eval.Arg) (value.Value, error) {
	f.calls = append(f.calls, alias+"."+method)
	if f.err != nil {
		return value.Null(), f.err
	}
	if len(args) > 0 {
		return args[0].Val, nil
	}
	return f.result, nil
}

func run(t *testing.T, src string, vars map[string]value.Value) (value.Value, error) {
	t.Helper()
	e, ds := parser.ParseExpr(src)
	if ds != nil {
		t.Fatalf("parse %q: %v", src, ds)
	}
	obj := value.NewObject()
	for k, v := range vars {
		obj.Set(k, v)
	}
	ev := eval.New(&fakeDispatcher{})
	return ev.Eval(context.Background(), e, eval.NewEnv(obj))
}

func mustNum(t *testing.T, src string, vars map[string]value.Value, want float64) {
	t.Helper()
	v, err := run(t, src, vars)
	if err != nil {
		t.Fatalf("%q: %v", src, err)
	}
	n, ok := v.AsNumber()
	if !ok || n != want {
		t.Errorf("%q = %v, want %v", src, v, want)
	}
}

func mustStr(t *testing.T, src string, vars map[string]value.Value, want string) {
	t.Helper()
	v, err := run(t, src, vars)
	if err != nil {
		t.Fatalf("%q: %v", src, err)
	}
	s, ok := v.AsString()
	if !ok || s != want {
		t.Errorf("%q = %v, want %q", src, v, want)
	}
}

func mustBool(t *testing.T, src string, vars map[string]value.Value, want bool) {
	t.Helper()
	v, err := run(t, src, vars)
	if err != nil {
		t.Fatalf("%q: %v", src, err)
	}
	b, ok := v.AsBool()
	if !ok || b != want {
		t.Errorf("%q = %v, want %v", src, v, want)
	}
}

func mustFail(t *testing.T, src string, vars map[string]value.Value, kind diag.Kind) {
	t.Helper()
	_, err := run(t, src, vars)
	if err == nil {
		t.Fatalf("%q: expected %s error", src, kind)
	}
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("%q: error type %T", src, err)
	}
	if de.Kind != kind {
		t.Errorf("%q: kind = %s, want %s", src, de.Kind, kind)
	}
	if de.Span == nil {
		t.Errorf("%q: error has no span", src)
	}
}

func TestEval_ArithmeticPrecedence(t *testing.T) {
	mustNum(t, "2 + 3 * 4 - 1", nil, 13)
	mustNum(t, "(2 + 3) * 4", nil, 20)
	mustNum(t, "17 % 5", nil, 2)
	mustNum(t, "-3 + 1", nil, -2)
}

func TestEval_AddCoercion(t *testing.T) {
	mustStr(t, `"n=" + 4`, nil, "n=4")
	mustStr(t, `1.5 + "x"`, nil, "1.5x")
	v, err := run(t, "a + b", map[string]value.Value{
		"a": value.Array(value.Number(1)),
		"b": value.Array(value.Number(2)),
	})
	if err != nil {
		t.Fatalf("array concat: %v", err)
	}
	arr, _ := v.AsArray()
	if len(arr) != 2 {
		t.Errorf("concat = %v", v)
	}
	mustFail(t, "true + 1", nil, diag.TypeMismatch)
}

func TestEval_DivByZero(t *testing.T) {
	mustFail(t, "10 / d", map[string]value.Value{"d": value.Number(0)}, diag.DivByZero)
	mustFail(t, "10 % 0", nil, diag.DivByZero)
}

func TestEval_Comparison(t *testing.T) {
	mustBool(t, "1 < 2", nil, true)
	mustBool(t, `"a" < "b"`, nil, true)
	mustBool(t, `"b" <= "a"`, nil, false)
	mustBool(t, `1 == "1"`, nil, false) // cross-kind equality is false, not an error
	mustBool(t, `1 != "1"`, nil, true)
	mustFail(t, `1 < "2"`, nil, diag.TypeMismatch)
}

func TestEval_ShortCircuit(t *testing.T) {
	// The right side would fail; short-circuit must prevent evaluation.
	mustBool(t, "false && (1 / 0 > 0)", nil, false)
	mustBool(t, "true || (1 / 0 > 0)", nil, true)
	mustNum(t, "true ? 1 : 1 / 0", nil, 1)
	mustNum(t, "false ? 1 / 0 : 2", nil, 2)
}

func TestEval_Truthiness(t *testing.T) {
	mustBool(t, `!""`, nil, true)
	mustBool(t, "!0", nil, true)
	mustBool(t, "!1", nil, false)
	mustBool(t, `"" || "fallback" == "fallback"`, nil, true)
}

func TestEval_PropertyAndIndex(t *testing.T) {
	profile := value.NewObject()
	profile.Set("name", value.String("Ada"))
	vars := map[string]value.Value{
		"user": value.Obj(profile),
		"xs":   value.Array(value.Number(10), value.Number(20)),
	}
	mustStr(t, "user.name", vars, "Ada")
	v, err := run(t, "user.missing", vars)
	if err != nil || !v.IsNull() {
		t.Errorf("missing property = %v, %v; want null", v, err)
	}
	mustNum(t, "xs[1]", vars, 20)
	mustNum(t, "xs[1.9]", vars, 20) // floor
	v, err = run(t, "xs[5]", vars)
	if err != nil || !v.IsNull() {
		t.Errorf("out of range = %v, %v; want null", v, err)
	}
	mustFail(t, "xs[0 - 1]", vars, diag.IndexOutOfRange)
	mustFail(t, "user.name.x", vars, diag.TypeMismatch)
	mustNum(t, `user["name"] == "Ada" ? 1 : 0`, vars, 1)
}

func TestEval_TemplateMissingIdentifier(t *testing.T) {
	mustFail(t, "`Hello, ${who}!`", nil, diag.UnknownIdentifier)
}

func TestEval_TemplateStringification(t *testing.T) {
	vars := map[string]value.Value{
		"n":  value.Number(4),
		"b":  value.Bool(true),
		"nl": value.Null(),
		"xs": value.Array(value.Number(1), value.Number(2)),
	}
	mustStr(t, "`${n} ${b} ${nl} ${xs}`", vars, "4 true null [1, 2]")
}

func TestEval_Builtins(t *testing.T) {
	mustNum(t, `len("hello")`, nil, 5)
	mustStr(t, `upper("ab")`, nil, "AB")
	mustStr(t, `lower("AB")`, nil, "ab")
	mustStr(t, `trim("  x  ")`, nil, "x")
	mustNum(t, "abs(0 - 5.5)", nil, 5.5)
	mustStr(t, "string(12)", nil, "12")
	mustNum(t, `number("3.5")`, nil, 3.5)
	mustBool(t, `boolean("x")`, nil, true)
	mustFail(t, `number("nope")`, nil, diag.NumberParse)
	mustFail(t, `len(1)`, nil, diag.TypeMismatch)
	mustFail(t, `len("a", "b")`, nil, diag.BadArity)
	mustFail(t, `nosuch(1)`, nil, diag.BadArity)
}

func TestEval_HashDeterministic(t *testing.T) {
	a, err := run(t, `hash("abc")`, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := run(t, `hash("abc")`, nil)
	c, _ := run(t, `hash("abd")`, nil)
	if !a.Equal(b) {
		t.Errorf("hash not deterministic: %v vs %v", a, b)
	}
	if a.Equal(c) {
		t.Errorf("distinct inputs should hash differently")
	}
	if s, _ := a.AsString(); len(s) != 32 {
		t.Errorf("hash length = %d", len(s))
	}
}

func TestEval_PluginDispatch(t *testing.T) {
	e, ds := parser.ParseExpr(`mcp.echo(text: "hi")`)
	if ds != nil {
		t.Fatal(ds)
	}
	d := &fakeDispatcher{}
	ev := eval.New(d)
	v, err := ev.Eval(context.Background(), e, eval.NewEnv(nil))
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if s, _ := v.AsString(); s != "hi" {
		t.Errorf("result = %v", v)
	}
	if len(d.calls) != 1 || d.calls[0] != "mcp.echo" {
		t.Errorf("calls = %v", d.calls)
	}
}

func TestEval_PluginErrorPropagates(t *testing.T) {
	e, _ := parser.ParseExpr(`mcp.echo(text: "hi")`)
	d := &fakeDispatcher{err: &diag.Error{Kind: diag.Plugin, Message: "Timeout"}}
	ev := eval.New(d)
	_, err := ev.Eval(context.Background(), e, eval.NewEnv(nil))
	var de *diag.Error
	if !errors.As(err, &de) || de.Kind != diag.Plugin {
		t.Fatalf("err = %v", err)
	}
	if de.Span == nil {
		t.Errorf("plugin error should carry the call span")
	}
}

func TestEnv_Shadowing(t *testing.T) {
	base := value.NewObject()
	base.Set("x", value.Number(1))
	env := eval.NewEnv(base)
	child := env.Extend("x", value.Number(2))

	if v, _ := child.Lookup("x"); !v.Equal(value.Number(2)) {
		t.Errorf("child x = %v", v)
	}
	if v, _ := env.Lookup("x"); !v.Equal(value.Number(1)) {
		t.Errorf("parent x = %v", v)
	}
}
