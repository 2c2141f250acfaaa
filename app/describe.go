package app

import (
	"fmt"
	"strings"

	"github.com/sigmos-lang/sigmos/core/formatter"
	"github.com/sigmos-lang/sigmos/domain/spec"
)

// Describe renders a human-readable summary of a spec's shape: fields,
// events, constraints, lifecycle hooks, and extension bindings.
func Describe(s *spec.Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s\n", s.Name, s.Version)
	if s.Description != "" {
		fmt.Fprintf(&b, "  %s\n", s.Description)
	}

	if len(s.Inputs) > 0 {
		b.WriteString("\nInputs:\n")
		for _, f := range s.Inputs {
			flags := describeModifiers(f.Modifiers)
			fmt.Fprintf(&b, "  %-20s %s%s\n", f.Name, f.Type.String(), flags)
			if f.Modifiers.Description != "" {
				fmt.Fprintf(&b, "  %-20s   %s\n", "", f.Modifiers.Description)
			}
		}
	}

	if len(s.Computed) > 0 {
		b.WriteString("\nComputed:\n")
		for _, c := range s.Computed {
			fmt.Fprintf(&b, "  %-20s %s = %s\n", c.Name, c.Type.String(), formatter.FormatExpr(c.Expr))
		}
	}

	if len(s.Events) > 0 {
		b.WriteString("\nEvents:\n")
		for _, ev := range s.Events {
			kind := string(ev.Kind)
			if !ev.Kind.Builtin() {
				kind = fmt.Sprintf("custom(%s)", ev.Kind)
			}
			fmt.Fprintf(&b, "  %s(%s)\n", kind, ev.Param)
		}
	}

	if len(s.Constraints) > 0 {
		b.WriteString("\nConstraints:\n")
		for _, c := range s.Constraints {
			fmt.Fprintf(&b, "  %s %s", c.Kind, formatter.FormatExpr(c.Predicate))
			if c.Message != "" {
				fmt.Fprintf(&b, "  -- %s", c.Message)
			}
			b.WriteByte('\n')
		}
	}

	if len(s.Lifecycle) > 0 {
		b.WriteString("\nLifecycle:\n")
		for _, lc := range s.Lifecycle {
			fmt.Fprintf(&b, "  %s\n", lc.Phase)
		}
	}

	if len(s.Extensions) > 0 {
		b.WriteString("\nExtensions:\n")
		for _, e := range s.Extensions {
			fmt.Fprintf(&b, "  %-12s -> %s\n", e.Alias, e.Ref())
		}
	}

	return b.String()
}

func describeModifiers(m spec.Modifiers) string {
	var flags []string
	if !m.Required {
		flags = append(flags, "optional")
	}
	if m.Secret {
		flags = append(flags, "secret")
	}
	if m.Readonly {
		flags = append(flags, "readonly")
	}
	if m.Generate {
		flags = append(flags, "generate")
	}
	if len(flags) == 0 {
		return ""
	}
	return "  (" + strings.Join(flags, ", ") + ")"
}
