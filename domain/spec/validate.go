package spec

import (
	"fmt"
	"regexp"

	"github.com/sigmos-lang/sigmos/domain/diag"
)

// Validate performs structural validation of a parsed spec: field-name
// uniqueness, modifier legality, identifier resolution, extension binding,
// and computed-dependency acyclicity. It returns nil when the spec is valid.
// Validate never mutates the spec; running it twice is equivalent to once.
func Validate(s *Spec) diag.Diagnostics {
	var ds diag.Diagnostics

	if s.Name == "" {
		ds = append(ds, diag.Diagnostic{
			Kind: diag.Syntax, Message: "spec name must be a non-empty string", Span: s.Span,
		})
	}

	ds = append(ds, checkFieldNames(s)...)
	ds = append(ds, checkModifiers(s)...)
	ds = append(ds, checkTypeForms(s)...)
	ds = append(ds, checkIdentifiers(s)...)
	ds = append(ds, checkExtensions(s)...)

	if _, cycle := s.TopoOrder(); len(cycle) > 0 {
		ds = append(ds, diag.Diagnostic{
			Kind:    diag.CycleDetected,
			Message: fmt.Sprintf("computed fields form a dependency cycle: %v", cycle),
			Span:    s.Span,
		})
	}

	if len(ds) == 0 {
		return nil
	}
	return ds
}

// checkFieldNames enforces global uniqueness across inputs and computeds.
func checkFieldNames(s *Spec) diag.Diagnostics {
	var ds diag.Diagnostics
	seen := make(map[string]diag.Span)
	report := func(name string, span diag.Span) {
		if _, dup := seen[name]; dup {
			ds = append(ds, diag.Diagnostic{
				Kind:    diag.DuplicateField,
				Message: fmt.Sprintf("field %q is declared more than once", name),
				Span:    span,
			})
			return
		}
		seen[name] = span
	}
	for _, f := range s.Inputs {
		report(f.Name, f.Span)
	}
	for _, c := range s.Computed {
		report(c.Name, c.Span)
	}
	return ds
}

func checkModifiers(s *Spec) diag.Diagnostics {
	var ds diag.Diagnostics
	for _, f := range s.Inputs {
		m := f.Modifiers
		if m.Optional && m.RequiredSet && m.Required {
			ds = append(ds, diag.Diagnostic{
				Kind:    diag.BadModifier,
				Message: fmt.Sprintf("field %q cannot be both optional and required", f.Name),
				Span:    f.Span,
			})
		}
		if m.Pattern != "" {
			if _, err := regexp.Compile(m.Pattern); err != nil {
				ds = append(ds, diag.Diagnostic{
					Kind:    diag.BadModifier,
					Message: fmt.Sprintf("field %q has an invalid pattern: %v", f.Name, err),
					Span:    f.Span,
				})
			}
		}
		if m.Min != nil && m.Max != nil && *m.Min > *m.Max {
			ds = append(ds, diag.Diagnostic{
				Kind:    diag.BadModifier,
				Message: fmt.Sprintf("field %q has min greater than max", f.Name),
				Span:    f.Span,
			})
		}
		if m.MinLength != nil && m.MaxLength != nil && *m.MinLength > *m.MaxLength {
			ds = append(ds, diag.Diagnostic{
				Kind:    diag.BadModifier,
				Message: fmt.Sprintf("field %q has min_length greater than max_length", f.Name),
				Span:    f.Span,
			})
		}
		// A secret field must not default to a template that interpolates the
		// field itself; the default would render the secret before binding.
		if m.Secret && f.Default != nil {
			if tpl, ok := f.Default.(*Template); ok {
				for _, name := range Identifiers(tpl) {
					if name == f.Name {
						ds = append(ds, diag.Diagnostic{
							Kind:    diag.BadModifier,
							Message: fmt.Sprintf("secret field %q cannot default to a template mentioning itself", f.Name),
							Span:    f.Span,
						})
					}
				}
			}
		}
	}
	return ds
}

// checkTypeForms validates parse-level type shape: generic arity and enum
// contents. The parser already rejects most malformed annotations; this
// guards programmatically built specs.
func checkTypeForms(s *Spec) diag.Diagnostics {
	var ds diag.Diagnostics
	var check func(t TypeExpr, span diag.Span)
	check = func(t TypeExpr, span diag.Span) {
		switch t.Kind {
		case TypeList:
			if len(t.Args) != 1 {
				ds = append(ds, diag.Diagnostic{
					Kind: diag.Syntax, Message: "list takes exactly one type argument", Span: span,
				})
			}
		case TypeMap:
			if len(t.Args) != 2 {
				ds = append(ds, diag.Diagnostic{
					Kind: diag.Syntax, Message: "map takes exactly two type arguments", Span: span,
				})
			}
		case TypeEnum:
			if len(t.Values) == 0 {
				ds = append(ds, diag.Diagnostic{
					Kind: diag.Syntax, Message: "enum needs at least one value", Span: span,
				})
			}
		case TypeUnion:
			if len(t.Args) < 2 {
				ds = append(ds, diag.Diagnostic{
					Kind: diag.Syntax, Message: "union needs at least two type arguments", Span: span,
				})
			}
		}
		for _, a := range t.Args {
			check(a, span)
		}
		for _, f := range t.Fields {
			check(f.Type, span)
		}
	}
	for _, f := range s.Inputs {
		check(f.Type, f.Span)
	}
	for _, c := range s.Computed {
		check(c.Type, c.Span)
	}
	for _, td := range s.Types {
		check(td.Type, td.Span)
	}
	return ds
}

// checkIdentifiers resolves every identifier reference. Computed expressions
// may reference inputs and computeds; handler bodies additionally see their
// bound parameter; constraints see inputs and computeds.
func checkIdentifiers(s *Spec) diag.Diagnostics {
	var ds diag.Diagnostics
	fields := s.fieldSet()

	resolve := func(e Expr, extra string, where string) {
		Walk(e, func(x Expr) bool {
			id, ok := x.(*Ident)
			if !ok {
				return true
			}
			if fields[id.Name] || (extra != "" && id.Name == extra) {
				return true
			}
			ds = append(ds, diag.Diagnostic{
				Kind:    diag.UnknownIdentifier,
				Message: fmt.Sprintf("unknown identifier %q in %s", id.Name, where),
				Span:    id.S,
			})
			return true
		})
	}

	for _, c := range s.Computed {
		resolve(c.Expr, "", fmt.Sprintf("computed field %q", c.Name))
	}
	for _, f := range s.Inputs {
		if f.Default != nil {
			resolve(f.Default, "", fmt.Sprintf("default of input %q", f.Name))
		}
	}
	for _, ev := range s.Events {
		resolve(ev.Body, ev.Param, fmt.Sprintf("%s handler", ev.Kind))
	}
	for _, c := range s.Constraints {
		resolve(c.Predicate, "", fmt.Sprintf("%s constraint", c.Kind))
	}
	for _, lc := range s.Lifecycle {
		resolve(lc.Body, "", fmt.Sprintf("lifecycle %s hook", lc.Phase))
	}
	return ds
}

// checkExtensions requires that every non-builtin call object names a
// declared extension alias.
func checkExtensions(s *Spec) diag.Diagnostics {
	var ds diag.Diagnostics
	aliases := make(map[string]bool, len(s.Extensions))
	for _, e := range s.Extensions {
		aliases[e.Alias] = true
	}

	verify := func(e Expr) {
		Walk(e, func(x Expr) bool {
			call, ok := x.(*Call)
			if !ok || call.Object == BuiltinObject {
				return true
			}
			if !aliases[call.Object] {
				ds = append(ds, diag.Diagnostic{
					Kind:    diag.UnknownExtension,
					Message: fmt.Sprintf("call target %q is not a declared extension", call.Object),
					Span:    call.S,
				})
			}
			return true
		})
	}

	for _, c := range s.Computed {
		verify(c.Expr)
	}
	for _, f := range s.Inputs {
		if f.Default != nil {
			verify(f.Default)
		}
	}
	for _, ev := range s.Events {
		verify(ev.Body)
	}
	for _, c := range s.Constraints {
		verify(c.Predicate)
	}
	for _, lc := range s.Lifecycle {
		verify(lc.Body)
	}
	return ds
}

// Equal reports structural equality of two specs, ignoring spans. Used by
// the formatter round-trip tests.
func Equal(a, b *Spec) bool {
	if a.Name != b.Name || a.Version != b.Version || a.Description != b.Description {
		return false
	}
	if len(a.Inputs) != len(b.Inputs) || len(a.Computed) != len(b.Computed) ||
		len(a.Events) != len(b.Events) || len(a.Constraints) != len(b.Constraints) ||
		len(a.Lifecycle) != len(b.Lifecycle) || len(a.Extensions) != len(b.Extensions) ||
		len(a.Types) != len(b.Types) {
		return false
	}
	for i := range a.Inputs {
		x, y := a.Inputs[i], b.Inputs[i]
		if x.Name != y.Name || !EqualType(x.Type, y.Type) || !EqualExpr(x.Default, y.Default) {
			return false
		}
		if !equalModifiers(x.Modifiers, y.Modifiers) {
			return false
		}
	}
	for i := range a.Computed {
		x, y := a.Computed[i], b.Computed[i]
		if x.Name != y.Name || !EqualType(x.Type, y.Type) || !EqualExpr(x.Expr, y.Expr) {
			return false
		}
	}
	for i := range a.Events {
		x, y := a.Events[i], b.Events[i]
		if x.Kind != y.Kind || x.Param != y.Param || !EqualExpr(x.Body, y.Body) {
			return false
		}
	}
	for i := range a.Constraints {
		x, y := a.Constraints[i], b.Constraints[i]
		if x.Kind != y.Kind || x.Message != y.Message || !EqualExpr(x.Predicate, y.Predicate) {
			return false
		}
	}
	for i := range a.Lifecycle {
		x, y := a.Lifecycle[i], b.Lifecycle[i]
		if x.Phase != y.Phase || !EqualExpr(x.Body, y.Body) {
			return false
		}
	}
	for i := range a.Extensions {
		x, y := a.Extensions[i], b.Extensions[i]
		if x.Alias != y.Alias || x.Name != y.Name || x.Ver != y.Ver {
			return false
		}
	}
	for i := range a.Types {
		x, y := a.Types[i], b.Types[i]
		if x.Name != y.Name || !EqualType(x.Type, y.Type) {
			return false
		}
	}
	return true
}

func equalModifiers(a, b Modifiers) bool {
	if a.Required != b.Required || a.Optional != b.Optional || a.Readonly != b.Readonly ||
		a.Secret != b.Secret || a.Generate != b.Generate || a.Pattern != b.Pattern ||
		a.Description != b.Description {
		return false
	}
	eqF := func(x, y *float64) bool {
		if (x == nil) != (y == nil) {
			return false
		}
		return x == nil || *x == *y
	}
	eqI := func(x, y *int) bool {
		if (x == nil) != (y == nil) {
			return false
		}
		return x == nil || *x == *y
	}
	return eqF(a.Min, b.Min) && eqF(a.Max, b.Max) && eqI(a.MinLength, b.MinLength) && eqI(a.MaxLength, b.MaxLength)
}
