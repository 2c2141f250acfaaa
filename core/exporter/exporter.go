// Package exporter serializes a parsed spec to interchange formats: JSON,
// YAML, and TOML. Expression nodes serialize in tagged form with a "kind"
// discriminator plus their structural children.
package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// Format is a supported output format.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// ParseFormat validates a CLI-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case JSON, YAML, TOML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format %q (want json, yaml, or toml)", s)
}

// Document is the serialized shape of a spec.
type Document struct {
	Spec        string            `json:"spec" yaml:"spec" toml:"spec"`
	Version     VersionDoc        `json:"version" yaml:"version" toml:"version"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Inputs      []InputDoc        `json:"inputs" yaml:"inputs" toml:"inputs"`
	Computed    []ComputedDoc     `json:"computed" yaml:"computed" toml:"computed"`
	Events      []EventDoc        `json:"events" yaml:"events" toml:"events"`
	Constraints []ConstraintDoc   `json:"constraints" yaml:"constraints" toml:"constraints"`
	Lifecycle   []LifecycleDoc    `json:"lifecycle" yaml:"lifecycle" toml:"lifecycle"`
	Extensions  map[string]string `json:"extensions" yaml:"extensions" toml:"extensions"`
	Types       []TypeDoc         `json:"types,omitempty" yaml:"types,omitempty" toml:"types,omitempty"`
}

// VersionDoc serializes the version triple.
type VersionDoc struct {
	Major int `json:"major" yaml:"major" toml:"major"`
	Minor int `json:"minor" yaml:"minor" toml:"minor"`
	Patch int `json:"patch" yaml:"patch" toml:"patch"`
}

// InputDoc serializes an input field.
type InputDoc struct {
	Name      string         `json:"name" yaml:"name" toml:"name"`
	Type      string         `json:"type" yaml:"type" toml:"type"`
	Modifiers map[string]any `json:"modifiers" yaml:"modifiers" toml:"modifiers"`
	Default   map[string]any `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
}

// ComputedDoc serializes a computed field with its expression AST.
type ComputedDoc struct {
	Name       string         `json:"name" yaml:"name" toml:"name"`
	Type       string         `json:"type" yaml:"type" toml:"type"`
	Expression map[string]any `json:"expression" yaml:"expression" toml:"expression"`
}

// EventDoc serializes an event handler.
type EventDoc struct {
	Kind  string         `json:"kind" yaml:"kind" toml:"kind"`
	Param string         `json:"param" yaml:"param" toml:"param"`
	Body  map[string]any `json:"body" yaml:"body" toml:"body"`
}

// ConstraintDoc serializes a constraint.
type ConstraintDoc struct {
	Kind      string         `json:"kind" yaml:"kind" toml:"kind"`
	Predicate map[string]any `json:"predicate" yaml:"predicate" toml:"predicate"`
	Message   string         `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
}

// LifecycleDoc serializes a lifecycle hook.
type LifecycleDoc struct {
	Phase string         `json:"phase" yaml:"phase" toml:"phase"`
	Body  map[string]any `json:"body" yaml:"body" toml:"body"`
}

// TypeDoc serializes a named type definition.
type TypeDoc struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	Type string `json:"type" yaml:"type" toml:"type"`
}

// Build converts a spec into its serialized document form.
func Build(s *spec.Spec) Document {
	doc := Document{
		Spec:        s.Name,
		Version:     VersionDoc{s.Version.Major, s.Version.Minor, s.Version.Patch},
		Description: s.Description,
		Inputs:      []InputDoc{},
		Computed:    []ComputedDoc{},
		Events:      []EventDoc{},
		Constraints: []ConstraintDoc{},
		Lifecycle:   []LifecycleDoc{},
		Extensions:  map[string]string{},
	}
	for _, f := range s.Inputs {
		in := InputDoc{Name: f.Name, Type: f.Type.String(), Modifiers: modifiersDoc(f.Modifiers)}
		if f.Default != nil {
			in.Default = ExprDoc(f.Default)
		}
		doc.Inputs = append(doc.Inputs, in)
	}
	for _, c := range s.Computed {
		doc.Computed = append(doc.Computed, ComputedDoc{
			Name: c.Name, Type: c.Type.String(), Expression: ExprDoc(c.Expr),
		})
	}
	for _, ev := range s.Events {
		doc.Events = append(doc.Events, EventDoc{
			Kind: string(ev.Kind), Param: ev.Param, Body: ExprDoc(ev.Body),
		})
	}
	for _, c := range s.Constraints {
		doc.Constraints = append(doc.Constraints, ConstraintDoc{
			Kind: string(c.Kind), Predicate: ExprDoc(c.Predicate), Message: c.Message,
		})
	}
	for _, lc := range s.Lifecycle {
		doc.Lifecycle = append(doc.Lifecycle, LifecycleDoc{
			Phase: string(lc.Phase), Body: ExprDoc(lc.Body),
		})
	}
	for _, e := range s.Extensions {
		doc.Extensions[e.Alias] = e.Ref()
	}
	for _, td := range s.Types {
		doc.Types = append(doc.Types, TypeDoc{Name: td.Name, Type: td.Type.String()})
	}
	return doc
}

// Export serializes s in the requested format.
func Export(s *spec.Spec, format Format) ([]byte, error) {
	doc := Build(s)
	switch format {
	case JSON:
		return json.MarshalIndent(doc, "", "  ")
	case YAML:
		return yaml.Marshal(doc)
	case TOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("toml encode: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func modifiersDoc(m spec.Modifiers) map[string]any {
	out := map[string]any{"required": m.Required}
	if m.Optional {
		out["optional"] = true
	}
	if m.Readonly {
		out["readonly"] = true
	}
	if m.Secret {
		out["secret"] = true
	}
	if m.Generate {
		out["generate"] = true
	}
	if m.Pattern != "" {
		out["pattern"] = m.Pattern
	}
	if m.Min != nil {
		out["min"] = *m.Min
	}
	if m.Max != nil {
		out["max"] = *m.Max
	}
	if m.MinLength != nil {
		out["min_length"] = *m.MinLength
	}
	if m.MaxLength != nil {
		out["max_length"] = *m.MaxLength
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	return out
}

// ExprDoc converts an expression to its tagged serialized form.
func ExprDoc(e spec.Expr) map[string]any {
	switch n := e.(type) {
	case *spec.Lit:
		return map[string]any{"kind": "literal", "value": litValue(n.Val)}
	case *spec.Ident:
		return map[string]any{"kind": "identifier", "name": n.Name}
	case *spec.Property:
		return map[string]any{"kind": "property", "object": ExprDoc(n.X), "name": n.Name}
	case *spec.Index:
		return map[string]any{"kind": "index", "object": ExprDoc(n.X), "key": ExprDoc(n.Key)}
	case *spec.Binary:
		return map[string]any{"kind": "binary", "op": string(n.Op), "left": ExprDoc(n.L), "right": ExprDoc(n.R)}
	case *spec.Unary:
		return map[string]any{"kind": "unary", "op": "!", "operand": ExprDoc(n.X)}
	case *spec.Conditional:
		return map[string]any{
			"kind": "conditional", "cond": ExprDoc(n.Cond),
			"then": ExprDoc(n.Then), "else": ExprDoc(n.Else),
		}
	case *spec.Template:
		parts := make([]map[string]any, 0, len(n.Parts))
		for _, p := range n.Parts {
			if p.Expr != nil {
				parts = append(parts, map[string]any{"kind": "interpolation", "expr": ExprDoc(p.Expr)})
			} else {
				parts = append(parts, map[string]any{"kind": "text", "text": p.Text})
			}
		}
		return map[string]any{"kind": "template", "parts": parts}
	case *spec.Call:
		args := make([]map[string]any, 0, len(n.Args))
		for _, a := range n.Args {
			arg := map[string]any{"value": ExprDoc(a.Val)}
			if a.Name != "" {
				arg["name"] = a.Name
			}
			args = append(args, arg)
		}
		return map[string]any{"kind": "call", "object": n.Object, "method": n.Method, "args": args}
	}
	return map[string]any{"kind": "unknown"}
}

func litValue(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n
	default:
		s, _ := v.AsString()
		return s
	}
}
