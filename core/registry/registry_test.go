package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sigmos-lang/sigmos/core/eval"
	"github.com/sigmos-lang/sigmos/core/registry"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// echoPlugin returns the bound arguments it receives, for binding assertions.
type echoPlugin struct {
	delay time.Duration
	err   error
	last  *value.Object
}

func (p *echoPlugin) DescribeMethods() []ports.MethodDesc {
	return []ports.MethodDesc{
		{
			Name: "echo",
			Params: []ports.ParamDesc{
				{Name: "text", Type: "string", Required: true},
				{Name: "count", Type: "int", Required: false},
			},
		},
	}
}

func (p *echoPlugin) Invoke(ctx context.Context, method string, args *value.Object) (value.Value, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return value.Null(), ctx.Err()
		}
	}
	if p.err != nil {
		return value.Null(), p.err
	}
	p.last = args
	v, _ := args.Get("text")
	return v, nil
}

func newRegistry(t *testing.T, p ports.Plugin, opts ...registry.Option) *registry.Registry {
	t.Helper()
	r := registry.New(opts...)
	if err := r.Register("mcp", p); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func TestCall_PositionalThenNamed(t *testing.T) {
	p := &echoPlugin{}
	r := newRegistry(t, p)
	v, err := r.Call(context.Background(), "mcp", "echo", []eval.Arg{
		{Val: value.String("hi")},
		{Name: "count", Val: value.Number(3)},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if s, _ := v.AsString(); s != "hi" {
		t.Errorf("result = %v", v)
	}
	if c, _ := p.last.Get("count"); !c.Equal(value.Number(3)) {
		t.Errorf("count = %v", c)
	}
}

func TestCall_NamedOverridesPositional(t *testing.T) {
	p := &echoPlugin{}
	r := newRegistry(t, p)
	v, err := r.Call(context.Background(), "mcp", "echo", []eval.Arg{
		{Val: value.String("positional")},
		{Name: "text", Val: value.String("named")},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if s, _ := v.AsString(); s != "named" {
		t.Errorf("result = %v", v)
	}
}

func TestCall_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []eval.Arg
		kind diag.Kind
	}{
		{"missing required", nil, diag.BadArity},
		{"unknown named", []eval.Arg{{Name: "nope", Val: value.Null()}}, diag.BadArity},
		{"too many positional", []eval.Arg{
			{Val: value.String("a")}, {Val: value.Number(1)}, {Val: value.Number(2)},
		}, diag.BadArity},
		{"wrong kind", []eval.Arg{{Name: "text", Val: value.Number(1)}}, diag.TypeMismatch},
		{"fractional int", []eval.Arg{
			{Name: "text", Val: value.String("x")}, {Name: "count", Val: value.Number(1.5)},
		}, diag.TypeMismatch},
	}
	r := newRegistry(t, &echoPlugin{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(context.Background(), "mcp", "echo", tt.args)
			var de *diag.Error
			if !errors.As(err, &de) || de.Kind != tt.kind {
				t.Errorf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestCall_UnknownAliasAndMethod(t *testing.T) {
	r := newRegistry(t, &echoPlugin{})
	_, err := r.Call(context.Background(), "nope", "echo", nil)
	var de *diag.Error
	if !errors.As(err, &de) || de.Kind != diag.UnknownExtension {
		t.Errorf("unknown alias err = %v", err)
	}
	_, err = r.Call(context.Background(), "mcp", "nope", nil)
	if !errors.As(err, &de) || de.Kind != diag.Plugin {
		t.Errorf("unknown method err = %v", err)
	}
}

func TestCall_PluginErrorShape(t *testing.T) {
	p := &echoPlugin{err: &ports.PluginError{Kind: "Upstream", Message: "boom", Retryable: true}}
	r := newRegistry(t, p)
	_, err := r.Call(context.Background(), "mcp", "echo", []eval.Arg{{Name: "text", Val: value.String("x")}})
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v", err)
	}
	if de.Kind != diag.Plugin || de.Field != "Upstream" || !de.Retryable {
		t.Errorf("error = %+v", de)
	}
}

func TestCall_DeadlineBecomesTimeout(t *testing.T) {
	p := &echoPlugin{delay: 200 * time.Millisecond}
	r := newRegistry(t, p, registry.WithCallTimeout(10*time.Millisecond))
	_, err := r.Call(context.Background(), "mcp", "echo", []eval.Arg{{Name: "text", Val: value.String("x")}})
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v", err)
	}
	if de.Kind != diag.Plugin || de.Field != "Timeout" {
		t.Errorf("error = %+v", de)
	}
}

func TestRegister_DuplicateAlias(t *testing.T) {
	r := registry.New()
	if err := r.Register("mcp", &echoPlugin{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("mcp", &echoPlugin{}); err == nil {
		t.Errorf("duplicate alias should fail")
	}
}
