// Package formatter renders a parsed spec back to canonical .sigmos source.
// Formatting then reparsing yields a structurally equal AST, which is the
// contract the round-trip tests pin down.
package formatter

import (
	"fmt"
	"strings"

	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// Format renders s as canonical SIGMOS source.
func Format(s *spec.Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "spec %s v%d.%d.%d {\n", quote(s.Name), s.Version.Major, s.Version.Minor, s.Version.Patch)

	if s.Description != "" {
		fmt.Fprintf(&b, "  description: %s\n", quote(s.Description))
	}

	if len(s.Inputs) > 0 {
		b.WriteString("\n  inputs: {\n")
		for _, f := range s.Inputs {
			writeInput(&b, f)
		}
		b.WriteString("  }\n")
	}

	if len(s.Computed) > 0 {
		b.WriteString("\n  computed: {\n")
		for _, c := range s.Computed {
			fmt.Fprintf(&b, "    %s: %s = %s\n", c.Name, c.Type.String(), FormatExpr(c.Expr))
		}
		b.WriteString("  }\n")
	}

	if len(s.Events) > 0 {
		b.WriteString("\n  events: {\n")
		for _, ev := range s.Events {
			fmt.Fprintf(&b, "    %s(%s) -> %s\n", ev.Kind, ev.Param, FormatExpr(ev.Body))
		}
		b.WriteString("  }\n")
	}

	if len(s.Constraints) > 0 {
		b.WriteString("\n  constraints: {\n")
		for _, c := range s.Constraints {
			fmt.Fprintf(&b, "    %s %s", c.Kind, FormatExpr(c.Predicate))
			if c.Message != "" {
				fmt.Fprintf(&b, " : %s", quote(c.Message))
			}
			b.WriteByte('\n')
		}
		b.WriteString("  }\n")
	}

	if len(s.Lifecycle) > 0 {
		b.WriteString("\n  lifecycle: {\n")
		for _, lc := range s.Lifecycle {
			fmt.Fprintf(&b, "    %s -> %s\n", lc.Phase, FormatExpr(lc.Body))
		}
		b.WriteString("  }\n")
	}

	if len(s.Extensions) > 0 {
		b.WriteString("\n  extensions: {\n")
		for _, e := range s.Extensions {
			fmt.Fprintf(&b, "    %s: %s\n", e.Alias, quote(e.Ref()))
		}
		b.WriteString("  }\n")
	}

	if len(s.Types) > 0 {
		b.WriteString("\n  types: {\n")
		for _, td := range s.Types {
			fmt.Fprintf(&b, "    %s: %s\n", td.Name, td.Type.String())
		}
		b.WriteString("  }\n")
	}

	b.WriteString("}\n")
	return b.String()
}

func writeInput(b *strings.Builder, f spec.FieldDef) {
	fmt.Fprintf(b, "    %s: %s", f.Name, f.Type.String())
	if f.Default != nil {
		fmt.Fprintf(b, " = %s", FormatExpr(f.Default))
	}
	if mods := formatModifiers(f.Modifiers); len(mods) > 0 {
		fmt.Fprintf(b, " { %s }", strings.Join(mods, ", "))
	}
	b.WriteByte('\n')
}

func formatModifiers(m spec.Modifiers) []string {
	var out []string
	if m.Optional {
		out = append(out, "optional")
	} else if !m.Required {
		out = append(out, "required: false")
	}
	if m.Readonly {
		out = append(out, "readonly")
	}
	if m.Secret {
		out = append(out, "secret")
	}
	if m.Generate {
		out = append(out, "generate")
	}
	if m.Pattern != "" {
		out = append(out, "pattern: "+quote(m.Pattern))
	}
	if m.Min != nil {
		out = append(out, "min: "+value.FormatNumber(*m.Min))
	}
	if m.Max != nil {
		out = append(out, "max: "+value.FormatNumber(*m.Max))
	}
	if m.MinLength != nil {
		out = append(out, fmt.Sprintf("min_length: %d", *m.MinLength))
	}
	if m.MaxLength != nil {
		out = append(out, fmt.Sprintf("max_length: %d", *m.MaxLength))
	}
	if m.Description != "" {
		out = append(out, "description: "+quote(m.Description))
	}
	return out
}

// Operator precedence levels, loosest to tightest, used to decide where
// parentheses are required.
const (
	precConditional = iota + 1
	precOr
	precAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
	precPrimary
)

func opPrec(op spec.BinOp) int {
	switch op {
	case spec.OpOr:
		return precOr
	case spec.OpAnd:
		return precAnd
	case spec.OpEq, spec.OpNe:
		return precEquality
	case spec.OpLt, spec.OpLe, spec.OpGt, spec.OpGe:
		return precComparison
	case spec.OpAdd, spec.OpSub:
		return precAdditive
	default:
		return precMultiplicative
	}
}

// FormatExpr renders an expression in source syntax with minimal
// parenthesization.
func FormatExpr(e spec.Expr) string {
	var b strings.Builder
	writeExpr(&b, e, 0)
	return b.String()
}

func writeExpr(b *strings.Builder, e spec.Expr, parent int) {
	switch n := e.(type) {
	case *spec.Lit:
		writeLit(b, n.Val)
	case *spec.Ident:
		b.WriteString(n.Name)
	case *spec.Property:
		writeExpr(b, n.X, precPostfix)
		b.WriteByte('.')
		b.WriteString(n.Name)
	case *spec.Index:
		writeExpr(b, n.X, precPostfix)
		b.WriteByte('[')
		writeExpr(b, n.Key, 0)
		b.WriteByte(']')
	case *spec.Binary:
		prec := opPrec(n.Op)
		if prec < parent {
			b.WriteByte('(')
		}
		// Left-associative: the right operand needs one level more.
		writeExpr(b, n.L, prec)
		fmt.Fprintf(b, " %s ", n.Op)
		writeExpr(b, n.R, prec+1)
		if prec < parent {
			b.WriteByte(')')
		}
	case *spec.Unary:
		if precUnary < parent {
			b.WriteByte('(')
		}
		b.WriteByte('!')
		writeExpr(b, n.X, precUnary)
		if precUnary < parent {
			b.WriteByte(')')
		}
	case *spec.Conditional:
		if precConditional < parent {
			b.WriteByte('(')
		}
		writeExpr(b, n.Cond, precOr)
		b.WriteString(" ? ")
		writeExpr(b, n.Then, 0)
		b.WriteString(" : ")
		writeExpr(b, n.Else, precConditional)
		if precConditional < parent {
			b.WriteByte(')')
		}
	case *spec.Template:
		writeTemplate(b, n)
	case *spec.Call:
		if n.Object != spec.BuiltinObject {
			b.WriteString(n.Object)
			b.WriteByte('.')
		}
		b.WriteString(n.Method)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			if a.Name != "" {
				b.WriteString(a.Name)
				b.WriteString(": ")
			}
			writeExpr(b, a.Val, 0)
		}
		b.WriteByte(')')
	}
}

func writeLit(b *strings.Builder, v value.Value) {
	if s, ok := v.AsString(); ok {
		b.WriteString(quote(s))
		return
	}
	b.WriteString(v.Format())
}

func writeTemplate(b *strings.Builder, t *spec.Template) {
	b.WriteByte('`')
	for _, p := range t.Parts {
		if p.Expr != nil {
			b.WriteString("${")
			writeExpr(b, p.Expr, 0)
			b.WriteByte('}')
			continue
		}
		b.WriteString(escapeTemplateText(p.Text))
	}
	b.WriteByte('`')
}

func escapeTemplateText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '`':
			b.WriteString("\\`")
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			b.WriteString(`\$`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			b.WriteString(`\$`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
