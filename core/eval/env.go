package eval

import "github.com/sigmos-lang/sigmos/domain/value"

// Env is an immutable evaluation context. Child frames shadow their parent
// via a persistent overlay, so deriving a handler scope never copies the
// whole binding set.
type Env struct {
	parent *Env
	vars   *value.Object
}

// NewEnv returns an environment over the given bindings. A nil object yields
// an empty environment.
func NewEnv(vars *value.Object) *Env {
	if vars == nil {
		vars = value.NewObject()
	}
	return &Env{vars: vars}
}

// Lookup resolves name, innermost frame first.
func (e *Env) Lookup(name string) (value.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars.Get(name); ok {
			return v, true
		}
	}
	return value.Null(), false
}

// Extend derives a child environment with one additional binding.
func (e *Env) Extend(name string, v value.Value) *Env {
	overlay := value.NewObject()
	overlay.Set(name, v)
	return &Env{parent: e, vars: overlay}
}
