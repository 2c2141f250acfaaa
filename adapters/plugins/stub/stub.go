// Package stub provides a scripted in-process plugin. It backs engine tests
// and transcript replay: recorded responses play back in order, making
// executions byte-for-byte reproducible without live capabilities.
package stub

import (
	"context"
	"sync"

	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// Call is one recorded invocation.
type Call struct {
	Method string
	Args   *value.Object
}

// Handler computes a scripted response.
type Handler func(method string, args *value.Object) (value.Value, error)

// Plugin is a scripted ports.Plugin.
type Plugin struct {
	mu      sync.Mutex
	methods []ports.MethodDesc
	handler Handler
	replay  []value.Value
	next    int
	calls   []Call
}

// New returns a stub exposing the given methods, answering with handler.
func New(methods []ports.MethodDesc, handler Handler) *Plugin {
	return &Plugin{methods: methods, handler: handler}
}

// NewReplay returns a stub that answers successive calls with the recorded
// responses, in order, regardless of method. Calls beyond the transcript
// return null.
func NewReplay(methods []ports.MethodDesc, responses []value.Value) *Plugin {
	return &Plugin{methods: methods, replay: responses}
}

// Echo returns a stub with a single method echo(text) that returns its
// argument.
func Echo() *Plugin {
	methods := []ports.MethodDesc{{
		Name:   "echo",
		Params: []ports.ParamDesc{{Name: "text", Type: "string", Required: true}},
	}}
	return New(methods, func(_ string, args *value.Object) (value.Value, error) {
		v, _ := args.Get("text")
		return v, nil
	})
}

// Failing returns a stub whose every call fails with the given plugin error.
func Failing(methods []ports.MethodDesc, err *ports.PluginError) *Plugin {
	return New(methods, func(string, *value.Object) (value.Value, error) {
		return value.Null(), err
	})
}

// DescribeMethods implements ports.Plugin.
func (p *Plugin) DescribeMethods() []ports.MethodDesc {
	return p.methods
}

// Invoke implements ports.Plugin.
func (p *Plugin) Invoke(_ context.Context, method string, args *value.Object) (value.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Method: method, Args: args})

	if p.handler != nil {
		return p.handler(method, args)
	}
	if p.next < len(p.replay) {
		v := p.replay[p.next]
		p.next++
		return v, nil
	}
	return value.Null(), nil
}

// Calls returns the recorded invocations in order.
func (p *Plugin) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

var _ ports.Plugin = (*Plugin)(nil)
