// Package spec defines the typed abstract syntax tree for SIGMOS
// specification documents, plus pure structural validation and
// dependency-ordering logic over it. Values here are immutable once the
// parser constructs them.
package spec

import (
	"fmt"

	"github.com/sigmos-lang/sigmos/domain/diag"
)

// Version is a SemVer triple. Patch defaults to 0 when the source omits it.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Spec is a parsed specification document.
type Spec struct {
	Name        string
	Version     Version
	Description string

	Inputs      []FieldDef
	Computed    []ComputedField
	Events      []EventDef
	Constraints []ConstraintDef
	Lifecycle   []LifecycleDef
	Extensions  []ExtensionDef
	Types       []TypeDef

	Span diag.Span
}

// Extension returns the extension bound to alias, if declared.
func (s *Spec) Extension(alias string) (ExtensionDef, bool) {
	for _, e := range s.Extensions {
		if e.Alias == alias {
			return e, true
		}
	}
	return ExtensionDef{}, false
}

// Input returns the input field named name, if declared.
func (s *Spec) Input(name string) (FieldDef, bool) {
	for _, f := range s.Inputs {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// FieldDef is an input field declaration.
type FieldDef struct {
	Name      string
	Type      TypeExpr
	Default   Expr // nil when absent
	Modifiers Modifiers
	Span      diag.Span
}

// Modifiers is the closed set of input-field modifiers.
// Required defaults to true; the parser records whether the source set it
// explicitly so `optional` and `required` can be reconciled.
type Modifiers struct {
	Required    bool
	RequiredSet bool
	Optional    bool
	Readonly    bool
	Secret      bool
	Generate    bool
	Pattern     string
	Min         *float64
	Max         *float64
	MinLength   *int
	MaxLength   *int
	Description string
}

// ComputedField is a derived field with a defining expression.
type ComputedField struct {
	Name string
	Type TypeExpr
	Expr Expr
	Span diag.Span
}

// EventKind names a lifecycle or custom signal.
type EventKind string

const (
	OnCreate EventKind = "onCreate"
	OnChange EventKind = "onChange"
	OnUpdate EventKind = "onUpdate"
	OnDelete EventKind = "onDelete"
	OnError  EventKind = "onError"
)

// Builtin reports whether k is one of the reserved lifecycle event kinds.
func (k EventKind) Builtin() bool {
	switch k {
	case OnCreate, OnChange, OnUpdate, OnDelete, OnError:
		return true
	}
	return false
}

// EventDef is an event handler: kind, bound parameter name, and a body
// expression evaluated when the event fires.
type EventDef struct {
	Kind  EventKind
	Param string
	Body  Expr
	Span  diag.Span
}

// ConstraintKind distinguishes assert (pre) from ensure (post) semantics.
type ConstraintKind string

const (
	Assert ConstraintKind = "assert"
	Ensure ConstraintKind = "ensure"
)

// ConstraintDef is a boolean predicate with an optional diagnostic message.
type ConstraintDef struct {
	Kind      ConstraintKind
	Predicate Expr
	Message   string
	Span      diag.Span
}

// LifecyclePhase is one of the fixed hooks around the main evaluation.
type LifecyclePhase string

const (
	Before  LifecyclePhase = "before"
	After   LifecyclePhase = "after"
	Finally LifecyclePhase = "finally"
)

// LifecycleDef is a hook body bound to a phase.
type LifecycleDef struct {
	Phase LifecyclePhase
	Body  Expr
	Span  diag.Span
}

// ExtensionDef binds a local alias to an external plugin reference.
type ExtensionDef struct {
	Alias string
	Name  string // capability name
	Ver   string // requested version, "" when unversioned
	Span  diag.Span
}

// Ref renders the external reference as name@version.
func (e ExtensionDef) Ref() string {
	if e.Ver == "" {
		return e.Name
	}
	return e.Name + "@" + e.Ver
}

// TypeDef is a named user-defined type constructor.
type TypeDef struct {
	Name string
	Type TypeExpr
	Span diag.Span
}
