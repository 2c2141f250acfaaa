// Package registry maps extension aliases to plugin instances and mediates
// every plugin call: argument binding, integer narrowing, per-call
// deadlines, and error normalization. The map is read-only while executions
// are in progress; registration happens only at startup.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sigmos-lang/sigmos/core/eval"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// Registry implements eval.Dispatcher over a set of named plugins. It is
// safe for concurrent reads.
type Registry struct {
	mu          sync.RWMutex
	plugins     map[string]ports.Plugin
	methods     map[string]map[string]ports.MethodDesc
	callTimeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithCallTimeout sets the per-call deadline applied to every plugin
// invocation. Zero means no deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Registry) { r.callTimeout = d }
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		plugins: make(map[string]ports.Plugin),
		methods: make(map[string]map[string]ports.MethodDesc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds alias to a plugin instance and caches its method
// descriptors. Registering a taken alias is an error.
func (r *Registry) Register(alias string, p ports.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[alias]; exists {
		return fmt.Errorf("extension alias %q is already registered", alias)
	}
	descs := make(map[string]ports.MethodDesc)
	for _, m := range p.DescribeMethods() {
		descs[m.Name] = m
	}
	r.plugins[alias] = p
	r.methods[alias] = descs
	return nil
}

// Aliases returns the registered aliases, sorted.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for a := range r.plugins {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Call binds arguments against the method's declared parameters and invokes
// the plugin under the configured deadline.
func (r *Registry) Call(ctx context.Context, alias, method string, args []eval.Arg) (value.Value, error) {
	r.mu.RLock()
	p, ok := r.plugins[alias]
	descs := r.methods[alias]
	r.mu.RUnlock()
	if !ok {
		return value.Null(), diag.Errorf(diag.UnknownExtension, nil,
			"extension %q is not registered", alias)
	}
	desc, ok := descs[method]
	if !ok {
		return value.Null(), &diag.Error{
			Kind:    diag.Plugin,
			Message: fmt.Sprintf("plugin %q has no method %q", alias, method),
		}
	}

	named, err := bindArgs(desc, args)
	if err != nil {
		return value.Null(), err
	}

	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	v, err := p.Invoke(ctx, method, named)
	if err != nil {
		return value.Null(), normalizeError(alias, method, err)
	}
	return v, nil
}

// bindArgs normalizes a positional-then-named argument list into the named
// form plugins consume. Positional arguments bind to declared parameters in
// order; named arguments override. Unknown named arguments and missing
// required parameters are errors. The only coercion is Number -> integer
// narrowing for parameters declared "int".
func bindArgs(desc ports.MethodDesc, args []eval.Arg) (*value.Object, error) {
	named := value.NewObject()
	pos := 0
	for _, a := range args {
		if a.Name == "" {
			if pos >= len(desc.Params) {
				return nil, diag.Errorf(diag.BadArity, nil,
					"method %s takes %d parameter(s), got extra positional argument", desc.Name, len(desc.Params))
			}
			named.Set(desc.Params[pos].Name, a.Val)
			pos++
			continue
		}
		param, ok := findParam(desc, a.Name)
		if !ok {
			return nil, diag.Errorf(diag.BadArity, nil,
				"method %s has no parameter %q", desc.Name, a.Name)
		}
		named.Set(param.Name, a.Val)
	}

	for _, param := range desc.Params {
		v, present := named.Get(param.Name)
		if !present {
			if param.Required {
				return nil, diag.Errorf(diag.BadArity, nil,
					"method %s is missing required argument %q", desc.Name, param.Name)
			}
			continue
		}
		coerced, err := coerceParam(desc.Name, param, v)
		if err != nil {
			return nil, err
		}
		named.Set(param.Name, coerced)
	}
	return named, nil
}

func findParam(desc ports.MethodDesc, name string) (ports.ParamDesc, bool) {
	for _, p := range desc.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ports.ParamDesc{}, false
}

func coerceParam(method string, param ports.ParamDesc, v value.Value) (value.Value, error) {
	mismatch := func(want string) error {
		return diag.Errorf(diag.TypeMismatch, nil,
			"method %s argument %q must be %s, got %s", method, param.Name, want, v.Kind())
	}
	switch param.Type {
	case "", "any":
		return v, nil
	case "string":
		if v.Kind() != value.KindString {
			return v, mismatch("a string")
		}
	case "number":
		if v.Kind() != value.KindNumber {
			return v, mismatch("a number")
		}
	case "int":
		n, ok := v.AsNumber()
		if !ok {
			return v, mismatch("an integer")
		}
		if n != math.Trunc(n) {
			return v, diag.Errorf(diag.TypeMismatch, nil,
				"method %s argument %q must be an integer, got %s", method, param.Name, value.FormatNumber(n))
		}
		return value.Number(math.Trunc(n)), nil
	case "bool":
		if v.Kind() != value.KindBool {
			return v, mismatch("a boolean")
		}
	case "array":
		if v.Kind() != value.KindArray {
			return v, mismatch("an array")
		}
	case "object":
		if v.Kind() != value.KindObject {
			return v, mismatch("an object")
		}
	}
	return v, nil
}

// normalizeError maps plugin failures onto the Plugin error kind, folding
// deadline expiry into kind "Timeout".
func normalizeError(alias, method string, err error) *diag.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &diag.Error{
			Kind:    diag.Plugin,
			Message: fmt.Sprintf("%s.%s timed out", alias, method),
			Field:   "Timeout",
			Cause:   err,
		}
	}
	var pe *ports.PluginError
	if errors.As(err, &pe) {
		return &diag.Error{
			Kind:      diag.Plugin,
			Message:   pe.Message,
			Field:     pe.Kind,
			Retryable: pe.Retryable,
			Cause:     err,
		}
	}
	var de *diag.Error
	if errors.As(err, &de) {
		return de
	}
	return &diag.Error{
		Kind:    diag.Plugin,
		Message: fmt.Sprintf("%s.%s: %v", alias, method, err),
		Cause:   err,
	}
}
