package spec

import "strings"

// TypeKind discriminates type expression variants.
type TypeKind string

const (
	TypePrimitive TypeKind = "primitive"
	TypeList      TypeKind = "list"
	TypeMap       TypeKind = "map"
	TypeEnum      TypeKind = "enum"
	TypeUnion     TypeKind = "union"
	TypeStruct    TypeKind = "struct"
	TypeRef       TypeKind = "ref"
	// AI-native sentinels.
	TypePrompt       TypeKind = "prompt"
	TypeTextGenerate TypeKind = "text.generate"
)

// PrimType enumerates the primitive types.
type PrimType string

const (
	PrimString PrimType = "string"
	PrimInt    PrimType = "int"
	PrimFloat  PrimType = "float"
	PrimBool   PrimType = "bool"
	PrimNull   PrimType = "null"
)

// StructField is a field of an anonymous struct type.
type StructField struct {
	Name string
	Type TypeExpr
}

// TypeExpr is a tagged type annotation. Exactly the fields relevant to Kind
// are populated.
type TypeExpr struct {
	Kind TypeKind

	Prim   PrimType      // TypePrimitive
	Args   []TypeExpr    // TypeList (1), TypeMap (2), TypeUnion (2+)
	Values []string      // TypeEnum literal values
	Fields []StructField // TypeStruct
	Path   string        // TypeRef dotted path or named type
}

// Primitive constructs a primitive type expression.
func Primitive(p PrimType) TypeExpr { return TypeExpr{Kind: TypePrimitive, Prim: p} }

// String renders the annotation in source syntax.
func (t TypeExpr) String() string {
	switch t.Kind {
	case TypePrimitive:
		return string(t.Prim)
	case TypeList:
		return "list<" + t.Args[0].String() + ">"
	case TypeMap:
		return "map<" + t.Args[0].String() + ", " + t.Args[1].String() + ">"
	case TypeEnum:
		quoted := make([]string, len(t.Values))
		for i, v := range t.Values {
			quoted[i] = `"` + v + `"`
		}
		return "enum(" + strings.Join(quoted, ", ") + ")"
	case TypeUnion:
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = a.String()
		}
		return "union(" + strings.Join(parts, ", ") + ")"
	case TypeStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "struct{" + strings.Join(parts, ", ") + "}"
	case TypeRef:
		return t.Path
	case TypePrompt:
		return "prompt"
	case TypeTextGenerate:
		return "text.generate"
	}
	return "unknown"
}

// EqualType reports structural equality of two type expressions.
func EqualType(a, b TypeExpr) bool {
	if a.Kind != b.Kind || a.Prim != b.Prim || a.Path != b.Path {
		return false
	}
	if len(a.Args) != len(b.Args) || len(a.Values) != len(b.Values) || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Args {
		if !EqualType(a.Args[i], b.Args[i]) {
			return false
		}
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || !EqualType(a.Fields[i].Type, b.Fields[i].Type) {
			return false
		}
	}
	return true
}
