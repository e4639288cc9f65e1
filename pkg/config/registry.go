package config

import (
	"context"
	"fmt"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/policy"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/rs/zerolog"
)

// BuildOptions carries what BuildRegistry needs besides the configuration.
type BuildOptions struct {
	// Base is the registry the configuration is layered on. Nil means
	// classify.DefaultRegistry().
	Base *classify.Registry

	// Logger is used by the policy engine.
	Logger zerolog.Logger

	// Metrics records policy evaluations. May be nil.
	Metrics *telemetry.Metrics

	// Loader reads policy files. Sharing one across rebuilds keeps its
	// cache of parsed files. Nil means a fresh loader per build.
	Loader *policy.Loader
}

// BuildRegistry derives a registry from cfg. The base registry is never
// modified. The returned policy engine is already installed as a resolver on
// the registry.
func BuildRegistry(ctx context.Context, cfg *Config, opts BuildOptions) (*classify.Registry, *policy.Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var registry *classify.Registry
	if opts.Base != nil {
		registry = opts.Base.Clone()
	} else {
		registry = classify.DefaultRegistry()
	}

	registry.IgnoreName(cfg.Ignore...)
	registry.ShareName(cfg.Share...)
	if cfg.EventConvention != nil {
		registry.SetEventConvention(*cfg.EventConvention)
	}

	var engineOpts []policy.EngineOption
	if opts.Loader != nil {
		engineOpts = append(engineOpts, policy.WithLoader(opts.Loader))
	}
	engine, err := policy.NewEngine(opts.Logger, opts.Metrics, engineOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	for _, name := range cfg.EnablePolicies {
		if err := engine.EnablePolicy(name); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range cfg.DisablePolicies {
		if err := engine.DisablePolicy(name); err != nil {
			return nil, nil, err
		}
	}
	if len(cfg.Policies) > 0 {
		if err := engine.LoadPolicies(ctx, cfg.Policies); err != nil {
			return nil, nil, err
		}
	}
	registry.AddResolver(engine)

	return registry, engine, nil
}

// TelemetryConfig layers the telemetry overrides of cfg on the profile of
// its environment. "production" and "development" pick the matching
// telemetry profile; any other environment starts from the defaults.
func (c *Config) TelemetryConfig() *telemetry.Config {
	t := c.Telemetry

	var out *telemetry.Config
	switch t.Environment {
	case "production":
		out = telemetry.ProductionConfig()
	case "development":
		out = telemetry.DevelopmentConfig()
	default:
		out = telemetry.DefaultConfig()
		if t.Environment != "" {
			out.Environment = t.Environment
		}
	}

	if t.ServiceName != "" {
		out.ServiceName = t.ServiceName
	}
	if t.LogLevel != "" {
		out.Logging.Level = t.LogLevel
	}
	if t.LogFormat != "" {
		out.Logging.Format = t.LogFormat
	}
	if t.TraceExporter != "" {
		out.Tracing.Enabled = true
		out.Tracing.Exporter = t.TraceExporter
	}
	if t.TraceEndpoint != "" {
		out.Tracing.Endpoint = t.TraceEndpoint
	}
	if t.SamplingRate != nil {
		out.Tracing.SamplingRate = *t.SamplingRate
	}
	if t.MetricsEnabled != nil {
		out.Metrics.Enabled = *t.MetricsEnabled
	}
	if t.MetricsAddress != "" {
		out.Metrics.ListenAddress = t.MetricsAddress
	}

	// The production profile exports over OTLP; without a collector address
	// there is nowhere to send spans.
	if out.Tracing.Exporter == "otlp" && out.Tracing.Endpoint == "" {
		out.Tracing.Enabled = false
	}

	return out
}
