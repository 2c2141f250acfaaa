// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigmos-lang/sigmos/adapters/metrics"
	"github.com/sigmos-lang/sigmos/core/eval"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// Engine drives single executions of a spec: input binding, lifecycle
// hooks, dependency-ordered computed evaluation, constraints, and events.
// One Engine serves many concurrent executions; each execution owns its
// private context.
type Engine struct {
	log     zerolog.Logger
	plugins eval.Dispatcher
	state   ports.StateStore
	clock   ports.Clock
	ids     ports.IDGenerator
	metrics *metrics.Collector
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDispatcher routes extension calls to d (usually the plugin registry).
func WithDispatcher(d eval.Dispatcher) EngineOption {
	return func(e *Engine) { e.plugins = d }
}

// WithStateStore enables cross-execution state: onChange/onUpdate detection
// and execution history.
func WithStateStore(s ports.StateStore) EngineOption {
	return func(e *Engine) { e.state = s }
}

// WithClock substitutes the time source.
func WithClock(c ports.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator substitutes the execution ID source.
func WithIDGenerator(g ports.IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Collector) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine.
func NewEngine(logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		log:   logger,
		clock: systemClock{},
		ids:   timestampIDs{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type timestampIDs struct{}

func (timestampIDs) New() string {
	return fmt.Sprintf("exec-%d", time.Now().UnixNano())
}

// EventRecord is one fired event handler, in firing order.
type EventRecord struct {
	Kind   spec.EventKind
	Result value.Value
}

// Result is the outcome of a successful execution.
type Result struct {
	ExecutionID string
	Inputs      *value.Object
	Computed    *value.Object
	Events      []EventRecord
}

// execution is the per-run private state.
type execution struct {
	engine   *Engine
	spec     *spec.Spec
	ev       *eval.Evaluator
	id       string
	inputs   *value.Object
	computed *value.Object
	events   []EventRecord
	redactor *diag.Redactor
	started  time.Time
}

// Execute runs sp against the provided inputs. On failure the returned error
// is a *diag.Error (or diag.Diagnostics for an invalid spec) with secrets
// redacted; lifecycle finally hooks have already run.
func (e *Engine) Execute(ctx context.Context, sp *spec.Spec, provided map[string]value.Value) (*Result, error) {
	if ds := spec.Validate(sp); ds != nil {
		return nil, ds
	}

	x := &execution{
		engine:   e,
		spec:     sp,
		ev:       eval.New(e.instrumented()),
		id:       e.ids.New(),
		inputs:   value.NewObject(),
		computed: value.NewObject(),
		started:  e.clock.Now(),
	}

	if e.metrics != nil {
		e.metrics.ExecutionsInFlight.Inc()
		defer e.metrics.ExecutionsInFlight.Dec()
	}
	e.log.Debug().Str("spec", sp.Name).Str("execution", x.id).Msg("execution started")

	err := x.run(ctx, provided)

	// finally hooks run unconditionally, their failures appended as
	// secondary diagnostics.
	if ferr := x.runLifecycle(context.WithoutCancel(ctx), spec.Finally); ferr != nil {
		if err != nil {
			err.AddSecondary(diag.AsError(ferr, diag.Plugin))
		} else {
			err = diag.AsError(ferr, diag.Plugin)
		}
	}

	status := ports.ExecutionSucceeded
	if err != nil {
		switch err.Kind {
		case diag.Cancelled:
			status = ports.ExecutionCancelled
		default:
			status = ports.ExecutionFailed
		}
	}
	x.persist(ctx, status, err)
	x.observe(status)

	if err != nil {
		x.redactor.RedactError(err)
		e.log.Warn().Str("spec", sp.Name).Str("execution", x.id).
			Str("kind", string(err.Kind)).Msg("execution failed")
		return nil, err
	}

	e.log.Info().Str("spec", sp.Name).Str("execution", x.id).
		Dur("took", e.clock.Now().Sub(x.started)).Msg("execution finished")
	return &Result{
		ExecutionID: x.id,
		Inputs:      x.inputs,
		Computed:    x.computed,
		Events:      x.events,
	}, nil
}

// run drives the main sequence. Any returned error still needs finally
// hooks, persistence, and redaction, handled by Execute.
func (x *execution) run(ctx context.Context, provided map[string]value.Value) *diag.Error {
	err := x.mainSequence(ctx, provided)
	if err == nil {
		return nil
	}
	// onError handlers observe the failure before it surfaces. Their own
	// failures are reported alongside the original, never replacing it.
	for _, ev := range x.spec.Events {
		if ev.Kind != spec.OnError {
			continue
		}
		env := eval.NewEnv(nil).Extend(ev.Param, x.errorValue(err))
		if _, herr := x.ev.Eval(context.WithoutCancel(ctx), ev.Body, env); herr != nil {
			err.AddSecondary(diag.AsError(herr, diag.Plugin))
		}
	}
	return err
}

func (x *execution) mainSequence(ctx context.Context, provided map[string]value.Value) *diag.Error {
	// 1. Input binding and validation.
	if err := x.bindInputs(ctx, provided); err != nil {
		return err
	}
	x.redactor = diag.NewRedactor(x.secretValues())

	if err := x.checkCancelled(ctx); err != nil {
		return err
	}

	// 2. Asserts that reference only inputs run before anything else fires.
	if err := x.runConstraints(ctx, true); err != nil {
		return err
	}

	// 3. Creation and change events.
	if err := x.fireEvents(ctx, spec.OnCreate); err != nil {
		return err
	}
	if err := x.fireChangeEvents(ctx); err != nil {
		return err
	}

	// 4. Lifecycle before.
	if err := x.checkCancelled(ctx); err != nil {
		return err
	}
	if err := x.runLifecycle(ctx, spec.Before); err != nil {
		return err
	}

	// 5. Computed fields in dependency order.
	if err := x.evalComputed(ctx); err != nil {
		return err
	}

	// 6. Remaining constraints.
	if err := x.runConstraints(ctx, false); err != nil {
		return err
	}

	// 7. Lifecycle after runs only on success.
	if err := x.checkCancelled(ctx); err != nil {
		return err
	}
	if err := x.runLifecycle(ctx, spec.After); err != nil {
		return err
	}
	return nil
}

func (x *execution) checkCancelled(ctx context.Context) *diag.Error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return diag.Errorf(diag.Timeout, nil, "execution deadline exceeded")
	default:
		return diag.Errorf(diag.Cancelled, nil, "execution cancelled")
	}
}

// bindInputs looks up each declared input, applies defaults, and validates
// the bound value against the declared type and modifier constraints.
// Defaults evaluate in a context containing only previously bound inputs.
func (x *execution) bindInputs(ctx context.Context, provided map[string]value.Value) *diag.Error {
	for _, f := range x.spec.Inputs {
		v, ok := provided[f.Name]
		switch {
		case ok:
		case f.Default != nil:
			dv, err := x.ev.Eval(ctx, f.Default, eval.NewEnv(x.inputs))
			if err != nil {
				de := diag.AsError(err, diag.TypeMismatch)
				de.Field = f.Name
				return de
			}
			v = dv
		case f.Modifiers.Generate:
			v = generateValue(f.Type)
		case f.Modifiers.Required:
			return &diag.Error{
				Kind:    diag.MissingInput,
				Message: fmt.Sprintf("required input %q was not provided", f.Name),
				Span:    &f.Span,
				Field:   f.Name,
			}
		default:
			v = value.Null()
		}

		if err := validateInput(f, v); err != nil {
			return err
		}
		x.inputs.Set(f.Name, v)
	}

	// Reject inputs that are not declared.
	for name := range provided {
		if _, declared := x.spec.Input(name); !declared {
			return diag.Errorf(diag.UnknownIdentifier, nil, "input %q is not declared", name)
		}
	}
	return nil
}

func (x *execution) secretValues() []string {
	var out []string
	for _, f := range x.spec.Inputs {
		if !f.Modifiers.Secret {
			continue
		}
		if v, ok := x.inputs.Get(f.Name); ok && !v.IsNull() {
			out = append(out, v.Format())
		}
	}
	return out
}

// env returns the evaluation environment over everything bound so far.
func (x *execution) env() *eval.Env {
	merged := x.inputs.Clone()
	for _, k := range x.computed.Keys() {
		v, _ := x.computed.Get(k)
		merged.Set(k, v)
	}
	return eval.NewEnv(merged)
}

// root builds the spec root object handlers receive as their parameter.
func (x *execution) root() value.Value {
	merged := x.inputs.Clone()
	for _, k := range x.computed.Keys() {
		v, _ := x.computed.Get(k)
		merged.Set(k, v)
	}
	return value.Obj(merged)
}

func (x *execution) errorValue(err *diag.Error) value.Value {
	obj := value.NewObject()
	obj.Set("kind", value.String(string(err.Kind)))
	obj.Set("message", value.String(x.safeRedact(err.Message)))
	if err.Span != nil {
		span := value.NewObject()
		span.Set("start", value.Number(float64(err.Span.Start)))
		span.Set("end", value.Number(float64(err.Span.End)))
		obj.Set("span", value.Obj(span))
	}
	return value.Obj(obj)
}

func (x *execution) safeRedact(s string) string {
	if x.redactor == nil {
		return s
	}
	return x.redactor.Redact(s)
}

// fireEvents runs all handlers of one kind in declaration order,
// sequentially.
func (x *execution) fireEvents(ctx context.Context, kind spec.EventKind) *diag.Error {
	for _, ev := range x.spec.Events {
		if ev.Kind != kind {
			continue
		}
		env := eval.NewEnv(nil).Extend(ev.Param, x.root())
		v, err := x.ev.Eval(ctx, ev.Body, env)
		if err != nil {
			de := diag.AsError(err, diag.Plugin)
			if de.Span == nil {
				de.Span = &ev.Span
			}
			return de
		}
		x.events = append(x.events, EventRecord{Kind: kind, Result: v})
	}
	return nil
}

// fireChangeEvents compares the bound inputs against the last persisted
// snapshot for this spec. With no prior state (a one-shot run) neither
// onChange nor onUpdate fires.
func (x *execution) fireChangeEvents(ctx context.Context) *diag.Error {
	if x.engine.state == nil {
		return nil
	}
	prior, ok, err := x.engine.state.LastInputs(ctx, x.spec.Name)
	if err != nil {
		x.engine.log.Warn().Err(err).Str("spec", x.spec.Name).Msg("cannot read prior state")
		return nil
	}
	if !ok || value.Obj(prior).Equal(value.Obj(x.redactedInputs())) {
		return nil
	}
	if err := x.fireEvents(ctx, spec.OnChange); err != nil {
		return err
	}
	return x.fireEvents(ctx, spec.OnUpdate)
}

// runConstraints evaluates constraints in declaration order. When
// inputsOnly is true it runs asserts whose predicates reference only input
// fields; otherwise it runs everything else (remaining asserts, then-phase
// included, and all ensures).
func (x *execution) runConstraints(ctx context.Context, inputsOnly bool) *diag.Error {
	for _, c := range x.spec.Constraints {
		if x.constraintIsInputOnly(c) != inputsOnly {
			continue
		}
		if err := x.checkCancelled(ctx); err != nil {
			return err
		}
		v, err := x.ev.Eval(ctx, c.Predicate, x.env())
		if err != nil {
			return x.constraintError(c, diag.AsError(err, diag.TypeMismatch))
		}
		b, isBool := v.AsBool()
		if !isBool {
			return x.constraintError(c, diag.Errorf(diag.TypeMismatch, &c.Span,
				"constraint predicate evaluated to %s, not a boolean", v.Kind()))
		}
		if !b {
			return x.constraintError(c, nil)
		}
	}
	return nil
}

func (x *execution) constraintIsInputOnly(c spec.ConstraintDef) bool {
	if c.Kind != spec.Assert {
		return false
	}
	inputs := make(map[string]bool, len(x.spec.Inputs))
	for _, f := range x.spec.Inputs {
		inputs[f.Name] = true
	}
	for _, name := range spec.Identifiers(c.Predicate) {
		if !inputs[name] {
			return false
		}
	}
	return true
}

func (x *execution) constraintError(c spec.ConstraintDef, cause *diag.Error) *diag.Error {
	if x.engine.metrics != nil {
		x.engine.metrics.ConstraintFailures.WithLabelValues(x.spec.Name, string(c.Kind)).Inc()
	}
	msg := c.Message
	if msg == "" {
		msg = fmt.Sprintf("%s constraint failed", c.Kind)
	}
	err := &diag.Error{
		Kind:    diag.ConstraintViolated,
		Message: msg,
		Span:    &c.Span,
	}
	if cause != nil {
		err.Cause = cause
	}
	return err
}

func (x *execution) runLifecycle(ctx context.Context, phase spec.LifecyclePhase) *diag.Error {
	for _, lc := range x.spec.Lifecycle {
		if lc.Phase != phase {
			continue
		}
		if _, err := x.ev.Eval(ctx, lc.Body, x.env()); err != nil {
			de := diag.AsError(err, diag.Plugin)
			if de.Span == nil {
				de.Span = &lc.Span
			}
			return de
		}
	}
	return nil
}

// evalComputed evaluates computed fields in topological order, extending the
// context monotonically field by field.
func (x *execution) evalComputed(ctx context.Context) *diag.Error {
	order, cycle := x.spec.TopoOrder()
	if len(cycle) > 0 {
		return &diag.Error{
			Kind:    diag.CycleDetected,
			Message: fmt.Sprintf("computed fields form a dependency cycle: %v", cycle),
			Names:   cycle,
		}
	}
	for _, c := range order {
		if err := x.checkCancelled(ctx); err != nil {
			return err
		}
		v, err := x.ev.Eval(ctx, c.Expr, x.env())
		if err != nil {
			de := diag.AsError(err, diag.TypeMismatch)
			// A plugin failure keeps the plugin's error kind in Field.
			if de.Kind != diag.Plugin || de.Field == "" {
				de.Field = c.Name
			}
			if de.Span == nil {
				de.Span = &c.Span
			}
			return de
		}
		if x.engine.metrics != nil {
			x.engine.metrics.ComputedEvaluations.WithLabelValues(x.spec.Name).Inc()
		}
		x.computed.Set(c.Name, v)
	}
	return nil
}

// redactedInputs replaces secret field values with the redaction sentinel,
// the only form that ever leaves the execution.
func (x *execution) redactedInputs() *value.Object {
	out := value.NewObject()
	for _, f := range x.spec.Inputs {
		v, ok := x.inputs.Get(f.Name)
		if !ok {
			continue
		}
		if f.Modifiers.Secret {
			out.Set(f.Name, value.String(diag.Sentinel))
			continue
		}
		out.Set(f.Name, v)
	}
	return out
}

func (x *execution) persist(ctx context.Context, status ports.ExecutionStatus, execErr *diag.Error) {
	if x.engine.state == nil {
		return
	}
	kind := ""
	if execErr != nil {
		kind = string(execErr.Kind)
	}
	rec := ports.ExecutionRecord{
		ID:          x.id,
		SpecName:    x.spec.Name,
		SpecVersion: x.spec.Version.String(),
		Status:      status,
		ErrorKind:   kind,
		Inputs:      x.redactedInputs(),
		StartedAt:   x.started,
		FinishedAt:  x.engine.clock.Now(),
	}
	if err := x.engine.state.SaveExecution(context.WithoutCancel(ctx), rec); err != nil {
		x.engine.log.Warn().Err(err).Str("spec", x.spec.Name).Msg("cannot persist execution")
	}
}

func (x *execution) observe(status ports.ExecutionStatus) {
	m := x.engine.metrics
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(x.spec.Name, string(status)).Inc()
	m.ExecutionDuration.WithLabelValues(x.spec.Name).
		Observe(x.engine.clock.Now().Sub(x.started).Seconds())
}

// instrumented wraps the dispatcher with plugin-call metrics.
func (e *Engine) instrumented() eval.Dispatcher {
	if e.plugins == nil || e.metrics == nil {
		return e.plugins
	}
	return &meteredDispatcher{next: e.plugins, metrics: e.metrics, clock: e.clock}
}

type meteredDispatcher struct {
	next    eval.Dispatcher
	metrics *metrics.Collector
	clock   ports.Clock
}

func (d *meteredDispatcher) Call(ctx context.Context, alias, method string, args []eval.Arg) (value.Value, error) {
	start := d.clock.Now()
	v, err := d.next.Call(ctx, alias, method, args)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.metrics.PluginCalls.WithLabelValues(alias, method, outcome).Inc()
	d.metrics.PluginDuration.WithLabelValues(alias, method).
		Observe(d.clock.Now().Sub(start).Seconds())
	return v, err
}

// ---------------------------------------------------------------------------
// Input validation
// ---------------------------------------------------------------------------

func validateInput(f spec.FieldDef, v value.Value) *diag.Error {
	if v.IsNull() && !f.Modifiers.Required {
		return nil
	}
	if err := checkType(f.Name, f.Type, v, &f.Span); err != nil {
		return err
	}
	m := f.Modifiers

	if m.Pattern != "" {
		s, ok := v.AsString()
		if ok {
			re, err := regexp.Compile(m.Pattern)
			if err == nil && !re.MatchString(s) {
				return &diag.Error{
					Kind:    diag.RegexMismatch,
					Message: fmt.Sprintf("input %q does not match pattern %q", f.Name, m.Pattern),
					Span:    &f.Span,
					Field:   f.Name,
				}
			}
		}
	}
	if n, ok := v.AsNumber(); ok {
		if m.Min != nil && n < *m.Min {
			return boundError(f, "below minimum %s", value.FormatNumber(*m.Min))
		}
		if m.Max != nil && n > *m.Max {
			return boundError(f, "above maximum %s", value.FormatNumber(*m.Max))
		}
	}
	length := -1
	if s, ok := v.AsString(); ok {
		length = len(s)
	} else if arr, ok := v.AsArray(); ok {
		length = len(arr)
	}
	if length >= 0 {
		if m.MinLength != nil && length < *m.MinLength {
			return boundError(f, "shorter than min_length %d", *m.MinLength)
		}
		if m.MaxLength != nil && length > *m.MaxLength {
			return boundError(f, "longer than max_length %d", *m.MaxLength)
		}
	}
	return nil
}

func boundError(f spec.FieldDef, format string, arg any) *diag.Error {
	return &diag.Error{
		Kind:    diag.TypeMismatch,
		Message: fmt.Sprintf("input %q is "+format, f.Name, arg),
		Span:    &f.Span,
		Field:   f.Name,
	}
}

// checkType validates a bound value against a declared type annotation.
// int and float share the number domain at runtime; int additionally
// requires an integral value.
func checkType(field string, t spec.TypeExpr, v value.Value, span *diag.Span) *diag.Error {
	fail := func(want string) *diag.Error {
		return &diag.Error{
			Kind:    diag.TypeMismatch,
			Message: fmt.Sprintf("input %q must be %s, got %s", field, want, v.Kind()),
			Span:    span,
			Field:   field,
		}
	}
	switch t.Kind {
	case spec.TypePrimitive:
		switch t.Prim {
		case spec.PrimString:
			if v.Kind() != value.KindString {
				return fail("a string")
			}
		case spec.PrimInt:
			n, ok := v.AsNumber()
			if !ok {
				return fail("an integer")
			}
			if n != float64(int64(n)) {
				return &diag.Error{
					Kind:    diag.TypeMismatch,
					Message: fmt.Sprintf("input %q must be an integer, got %s", field, value.FormatNumber(n)),
					Span:    span,
					Field:   field,
				}
			}
		case spec.PrimFloat:
			if v.Kind() != value.KindNumber {
				return fail("a number")
			}
		case spec.PrimBool:
			if v.Kind() != value.KindBool {
				return fail("a boolean")
			}
		case spec.PrimNull:
			if !v.IsNull() {
				return fail("null")
			}
		}
	case spec.TypeList:
		arr, ok := v.AsArray()
		if !ok {
			return fail("a list")
		}
		for _, elem := range arr {
			if err := checkType(field, t.Args[0], elem, span); err != nil {
				return err
			}
		}
	case spec.TypeMap:
		obj, ok := v.AsObject()
		if !ok {
			return fail("a map")
		}
		for _, k := range obj.Keys() {
			elem, _ := obj.Get(k)
			if err := checkType(field, t.Args[1], elem, span); err != nil {
				return err
			}
		}
	case spec.TypeEnum:
		s, ok := v.AsString()
		if !ok {
			return fail("an enum string")
		}
		for _, allowed := range t.Values {
			if s == allowed {
				return nil
			}
		}
		return &diag.Error{
			Kind:    diag.TypeMismatch,
			Message: fmt.Sprintf("input %q must be one of %v, got %q", field, t.Values, s),
			Span:    span,
			Field:   field,
		}
	case spec.TypeUnion:
		for _, alt := range t.Args {
			if checkType(field, alt, v, span) == nil {
				return nil
			}
		}
		return fail(t.String())
	case spec.TypeStruct:
		obj, ok := v.AsObject()
		if !ok {
			return fail("a struct object")
		}
		for _, sf := range t.Fields {
			fv, present := obj.Get(sf.Name)
			if !present {
				return &diag.Error{
					Kind:    diag.TypeMismatch,
					Message: fmt.Sprintf("input %q is missing struct field %q", field, sf.Name),
					Span:    span,
					Field:   field,
				}
			}
			if err := checkType(field, sf.Type, fv, span); err != nil {
				return err
			}
		}
	case spec.TypePrompt, spec.TypeTextGenerate:
		if v.Kind() != value.KindString {
			return fail("a string")
		}
	case spec.TypeRef:
		// Named and cross-field references are not checked at binding time.
	}
	return nil
}

// generateValue produces the placeholder value for generate-marked inputs
// with no provided value.
func generateValue(t spec.TypeExpr) value.Value {
	switch t.Kind {
	case spec.TypePrimitive:
		switch t.Prim {
		case spec.PrimString:
			return value.String("generated")
		case spec.PrimInt, spec.PrimFloat:
			return value.Number(0)
		case spec.PrimBool:
			return value.Bool(false)
		}
		return value.Null()
	case spec.TypeList:
		return value.Array()
	case spec.TypeMap, spec.TypeStruct:
		return value.Obj(value.NewObject())
	case spec.TypeEnum:
		if len(t.Values) > 0 {
			return value.String(t.Values[0])
		}
		return value.Null()
	case spec.TypePrompt, spec.TypeTextGenerate:
		return value.String("generated")
	}
	return value.Null()
}
