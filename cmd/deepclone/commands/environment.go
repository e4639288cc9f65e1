package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/clone"
	"github.com/openfroyo/deepclone/pkg/config"
	"github.com/openfroyo/deepclone/pkg/policy"
	"github.com/openfroyo/deepclone/pkg/telemetry"
)

// environment is what every command runs with: the loaded configuration,
// telemetry, and a cloner built from both.
type environment struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	registry *classify.Registry
	policies *policy.Engine
	cloner   *clone.Cloner
}

// loadEnvironment reads --config, if any, and wires telemetry and the
// cloner. adjust may tweak the telemetry configuration before use.
func loadEnvironment(ctx context.Context, adjust func(*telemetry.Config)) (*environment, error) {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(ctx, configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
		cfg = loaded
	}

	tcfg := cfg.TelemetryConfig()
	tcfg.ServiceVersion = buildVersion
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if adjust != nil {
		adjust(tcfg)
	}

	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	registry, engine, err := config.BuildRegistry(ctx, cfg, config.BuildOptions{
		Logger:  tel.Logger.Zerolog(),
		Metrics: tel.Metrics,
	})
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	cloner := clone.New(
		clone.WithRegistry(registry),
		clone.WithLogger(tel.Logger.Zerolog()),
		clone.WithMetrics(tel.Metrics),
	)

	return &environment{
		cfg:      cfg,
		tel:      tel,
		registry: registry,
		policies: engine,
		cloner:   cloner,
	}, nil
}

// close flushes telemetry.
func (e *environment) close(ctx context.Context) {
	if err := e.tel.Shutdown(ctx); err != nil {
		e.tel.Logger.WithError(err).Warn("Failed to shut down telemetry")
	}
}
