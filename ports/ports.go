// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/sigmos-lang/sigmos/domain/value"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Plugin Ports
// -----------------------------------------------------------------------------

// ParamDesc describes one declared plugin-method parameter.
type ParamDesc struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "string", "number", "int", "bool", "array", "object", "any"
	Required bool   `json:"required"`
}

// MethodDesc describes one invocable plugin method.
type MethodDesc struct {
	Name   string      `json:"name"`
	Params []ParamDesc `json:"params"`
}

// Plugin is the single dynamic-dispatch boundary between the evaluator and
// host capabilities. Implementations must be safe for concurrent invocation.
type Plugin interface {
	// DescribeMethods returns the plugin's method descriptors. The registry
	// uses them to bind positional and named call arguments.
	DescribeMethods() []MethodDesc

	// Invoke runs a method with named arguments bound by the registry.
	// Failures should be returned as *PluginError so the evaluator can
	// surface kind and retryability.
	Invoke(ctx context.Context, method string, args *value.Object) (value.Value, error)
}

// PluginError is the failure shape plugins report: a short kind tag, a human
// message, and whether the host may retry. The evaluator never retries.
type PluginError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *PluginError) Error() string {
	return e.Kind + ": " + e.Message
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ExecutionStatus is the terminal state of one engine execution.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ExecutionRecord is the persisted summary of one execution. Inputs are
// stored with secret fields already redacted.
type ExecutionRecord struct {
	ID          string
	SpecName    string
	SpecVersion string
	Status      ExecutionStatus
	ErrorKind   string
	Inputs      *value.Object
	StartedAt   time.Time
	FinishedAt  time.Time
}

// StateStore persists execution state across runs. It is what makes
// onChange/onUpdate meaningful: the engine compares the current inputs
// against the last persisted snapshot for the same spec name.
type StateStore interface {
	// LastInputs returns the most recent input snapshot for a spec, with
	// ok=false when the spec has never run.
	LastInputs(ctx context.Context, specName string) (inputs *value.Object, ok bool, err error)

	// SaveExecution records an execution and replaces the spec's last-input
	// snapshot.
	SaveExecution(ctx context.Context, rec ExecutionRecord) error

	// History returns the most recent executions for a spec, newest first.
	History(ctx context.Context, specName string, limit int) ([]ExecutionRecord, error)
}
