package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ruleName is the rule every classification policy defines.
const ruleName = "category"

// Engine evaluates classification policies. It implements classify.Resolver
// so it can be plugged into a registry with AddResolver.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	loader   *Loader
	logger   zerolog.Logger
	metrics  *telemetry.Metrics

	// decisions memoizes Resolve answers by qualified type name.
	decisions sync.Map
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// decision is a memoized Resolve answer.
type decision struct {
	category classify.Category
	ok       bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLoader makes the engine read policy files through l. Engines built one
// after another for configuration reloads share l and its cache.
func WithLoader(l *Loader) EngineOption {
	return func(e *Engine) {
		e.loader = l
	}
}

// NewEngine creates a new policy engine with the built-in policies loaded.
// metrics may be nil.
func NewEngine(logger zerolog.Logger, metrics *telemetry.Metrics, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = NewLoader(logger)
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Resolve implements classify.Resolver. Only "ignored" and "safe" answers
// are reported. Answers are memoized until the policy set changes.
func (e *Engine) Resolve(info classify.TypeInfo) (classify.Category, bool) {
	if cached, ok := e.decisions.Load(info.Qualified); ok {
		d := cached.(decision)
		return d.category, d.ok
	}

	// Hold the read lock until the answer is stored so a concurrent policy
	// change cannot be overwritten by a stale decision.
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := e.evaluate(context.Background(), info)

	d := decision{}
	if result.Category != "" {
		if c, err := classify.ParseCategory(result.Category); err == nil && (c == classify.Ignored || c == classify.SafeShare) {
			d = decision{category: c, ok: true}
		}
	}
	if len(result.Errors) == 0 {
		e.decisions.Store(info.Qualified, d)
	}
	return d.category, d.ok
}

// Evaluate runs every enabled policy against info.
func (e *Engine) Evaluate(ctx context.Context, info classify.TypeInfo) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := e.evaluate(ctx, info)
	if len(result.EvaluatedPolicies) > 0 && len(result.Errors) == len(result.EvaluatedPolicies) {
		return result, fmt.Errorf("all %d policies failed for %s", len(result.Errors), info.Qualified)
	}
	return result, nil
}

// evaluate runs the enabled policies. The caller holds a lock.
func (e *Engine) evaluate(ctx context.Context, info classify.TypeInfo) *Result {
	startTime := time.Now()
	result := &Result{
		Type:              info,
		EvaluatedPolicies: make([]string, 0, len(e.policies)),
		EvaluatedAt:       startTime,
	}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		answer, err := e.evaluatePolicy(ctx, cp, info)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("type", info.Qualified).
				Msg("Policy evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}
		if answer == "" {
			continue
		}

		if _, err := classify.ParseCategory(answer); err != nil {
			e.logger.Warn().
				Str("policy", name).
				Str("answer", answer).
				Msg("Policy returned an unknown category")
			continue
		}

		result.Decisions = append(result.Decisions, Decision{Policy: name, Category: answer})
		switch {
		case answer == classify.Ignored.String():
			result.Category = answer
		case result.Category == "":
			result.Category = answer
		}
	}

	result.Duration = time.Since(startTime)
	e.logger.Debug().
		Str("type", info.Qualified).
		Str("category", result.Category).
		Dur("duration", result.Duration).
		Msg("Type policy evaluation completed")

	return result
}

// evaluatePolicy evaluates a single compiled policy and returns its answer,
// or "" when the rule is undefined for info.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, info classify.TypeInfo) (answer string, err error) {
	startTime := time.Now()
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil && tel.Tracer != nil {
		var span trace.Span
		ctx, span = tel.Tracer.StartPolicySpan(ctx, cp.policy.Name, info.Qualified)
		defer func() {
			span.SetAttributes(telemetry.AttrPolicyResult.String(answer))
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}
	defer func() {
		e.metrics.RecordPolicyEvaluation(cp.policy.Name, answer, time.Since(startTime))
	}()

	results, err := cp.query.Eval(ctx, rego.EvalInput(info))
	if err != nil {
		return "", fmt.Errorf("policy evaluation error: %w", err)
	}

	for _, r := range results {
		if len(r.Expressions) == 0 {
			continue
		}
		switch v := r.Expressions[0].Value.(type) {
		case string:
			return v, nil
		default:
			return "", fmt.Errorf("rule %s must be a string, got %T", ruleName, v)
		}
	}

	return "", nil
}

// LoadPolicies loads policy files and compiles them into the engine.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	e.forget()

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// AddPolicy compiles a single policy, replacing any policy of the same name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.compileAndStorePolicy(ctx, &policy); err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", policy.Name, err)
	}
	e.forget()
	return nil
}

// queryFor returns the query for the category rule of module's package.
func queryFor(module *ast.Module) string {
	return module.Package.Path.String() + "." + ruleName
}

// compileAndStorePolicy compiles a policy and stores it. The caller holds
// the write lock.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	if policy.Name == "" {
		return fmt.Errorf("policy name is required")
	}

	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(queryFor(module)),
	)

	// Prepare the query for reuse
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("query", queryFor(module)).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads fresh copies of the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		builtins[i].Metadata = map[string]interface{}{"builtin": true}
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

// forget drops memoized decisions after the policy set changed.
func (e *Engine) forget() {
	e.decisions.Clear()
}

// sortedNames returns policy names in a stable order. The caller holds a lock.
func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.forget()

	if enabled {
		e.logger.Info().Str("policy", name).Msg("Policy enabled")
	} else {
		e.logger.Info().Str("policy", name).Msg("Policy disabled")
	}

	return nil
}
