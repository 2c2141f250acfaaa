package spec_test

import (
	"testing"

	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
)

func num(n float64) *spec.Lit    { return &spec.Lit{Val: value.Number(n)} }
func ident(n string) *spec.Ident { return &spec.Ident{Name: n} }

func computed(name string, e spec.Expr) spec.ComputedField {
	return spec.ComputedField{Name: name, Type: spec.Primitive(spec.PrimFloat), Expr: e}
}

func input(name string) spec.FieldDef {
	return spec.FieldDef{Name: name, Type: spec.Primitive(spec.PrimFloat), Modifiers: spec.Modifiers{Required: true}}
}

func TestTopoOrder_DeclarationOrderTieBreak(t *testing.T) {
	s := &spec.Spec{
		Name:   "t",
		Inputs: []spec.FieldDef{input("a")},
		Computed: []spec.ComputedField{
			computed("c", &spec.Binary{Op: spec.OpAdd, L: ident("b"), R: num(1)}),
			computed("b", &spec.Binary{Op: spec.OpMul, L: ident("a"), R: num(10)}),
			computed("d", num(7)),
		},
	}
	order, cycle := s.TopoOrder()
	if cycle != nil {
		t.Fatalf("unexpected cycle %v", cycle)
	}
	got := make([]string, len(order))
	for i, c := range order {
		got[i] = c.Name
	}
	// b must precede c. Each step takes the first ready field in declaration
	// order, so c (declared before d) follows b as soon as b is done.
	want := []string{"b", "c", "d"}
	if len(got) != 3 {
		t.Fatalf("order = %v", got)
	}
	bi, ci := indexOf(got, "b"), indexOf(got, "c")
	if bi > ci {
		t.Errorf("b must come before c: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
			break
		}
	}
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}

func TestTopoOrder_CycleNamesMembers(t *testing.T) {
	s := &spec.Spec{
		Name: "t",
		Computed: []spec.ComputedField{
			computed("x", ident("y")),
			computed("y", ident("x")),
			computed("z", ident("x")), // downstream of the cycle, not on it
		},
	}
	order, cycle := s.TopoOrder()
	if order != nil {
		t.Fatalf("expected cycle, got order %v", order)
	}
	if indexOf(cycle, "x") == -1 || indexOf(cycle, "y") == -1 {
		t.Errorf("cycle members = %v, want x and y", cycle)
	}
	if indexOf(cycle, "z") != -1 {
		t.Errorf("z is not on a cycle but was reported: %v", cycle)
	}
}

func TestValidate_DuplicateField(t *testing.T) {
	s := &spec.Spec{
		Name:     "t",
		Inputs:   []spec.FieldDef{input("a"), input("a")},
		Computed: []spec.ComputedField{computed("a", num(1))},
	}
	ds := spec.Validate(s)
	if countKind(ds, diag.DuplicateField) != 2 {
		t.Errorf("want 2 DuplicateField diagnostics, got %v", ds)
	}
}

func TestValidate_UnknownIdentifier(t *testing.T) {
	s := &spec.Spec{
		Name:     "t",
		Computed: []spec.ComputedField{computed("c", ident("missing"))},
	}
	ds := spec.Validate(s)
	if countKind(ds, diag.UnknownIdentifier) != 1 {
		t.Errorf("want UnknownIdentifier, got %v", ds)
	}
}

func TestValidate_HandlerParamResolves(t *testing.T) {
	s := &spec.Spec{
		Name: "t",
		Events: []spec.EventDef{{
			Kind:  spec.OnCreate,
			Param: "self",
			Body:  &spec.Property{X: ident("self"), Name: "a"},
		}},
	}
	if ds := spec.Validate(s); ds != nil {
		t.Errorf("handler parameter should resolve: %v", ds)
	}
}

func TestValidate_UnknownExtension(t *testing.T) {
	s := &spec.Spec{
		Name: "t",
		Computed: []spec.ComputedField{computed("c", &spec.Call{
			Object: "mcp", Method: "echo",
		})},
	}
	ds := spec.Validate(s)
	if countKind(ds, diag.UnknownExtension) != 1 {
		t.Errorf("want UnknownExtension, got %v", ds)
	}

	s.Extensions = []spec.ExtensionDef{{Alias: "mcp", Name: "mcp", Ver: "1.0"}}
	if ds := spec.Validate(s); ds != nil {
		t.Errorf("declared extension should validate: %v", ds)
	}
}

func TestValidate_BuiltinCallNeedsNoExtension(t *testing.T) {
	s := &spec.Spec{
		Name: "t",
		Computed: []spec.ComputedField{computed("c", &spec.Call{
			Object: spec.BuiltinObject, Method: "len",
			Args: []spec.Argument{{Val: &spec.Lit{Val: value.String("x")}}},
		})},
	}
	if ds := spec.Validate(s); ds != nil {
		t.Errorf("builtin call should validate: %v", ds)
	}
}

func TestValidate_BadModifiers(t *testing.T) {
	min, max := 10.0, 2.0
	f := input("a")
	f.Modifiers.Min = &min
	f.Modifiers.Max = &max
	g := input("b")
	g.Modifiers.Pattern = "["
	s := &spec.Spec{Name: "t", Inputs: []spec.FieldDef{f, g}}
	ds := spec.Validate(s)
	if countKind(ds, diag.BadModifier) != 2 {
		t.Errorf("want 2 BadModifier diagnostics, got %v", ds)
	}
}

func TestValidate_SecretSelfTemplateDefault(t *testing.T) {
	f := input("token")
	f.Modifiers.Secret = true
	f.Default = &spec.Template{Parts: []spec.TemplatePart{
		{Text: "prefix-"},
		{Expr: ident("token")},
	}}
	s := &spec.Spec{Name: "t", Inputs: []spec.FieldDef{f}}
	ds := spec.Validate(s)
	if countKind(ds, diag.BadModifier) != 1 {
		t.Errorf("want BadModifier for self-referencing secret default, got %v", ds)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	s := &spec.Spec{
		Name:     "t",
		Inputs:   []spec.FieldDef{input("a")},
		Computed: []spec.ComputedField{computed("c", ident("a"))},
	}
	first := spec.Validate(s)
	second := spec.Validate(s)
	if len(first) != len(second) {
		t.Errorf("validation not idempotent: %v vs %v", first, second)
	}
}

func countKind(ds diag.Diagnostics, k diag.Kind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == k {
			n++
		}
	}
	return n
}
