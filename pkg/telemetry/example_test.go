package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/deepclone/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_metricsCollection demonstrates recording clone metrics.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		panic(err)
	}

	metrics.CloneStarted()
	metrics.RecordClone("reference", 42, 150*time.Microsecond)
	metrics.RecordStrategyCompiled("value", 1)
	metrics.RecordCopyInto("deep", "ok")
	metrics.RecordError("invalid_argument", "NIL_SOURCE")

	families, _ := metrics.Gatherer().Gather()
	fmt.Println(len(families) > 0)
	// Output: true
}

// Example_instrumentedOperation demonstrates the StartOperation helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "none"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "clone.verify",
		attribute.String("document", "config.yaml"),
	)
	var err error
	defer func() { ic.End(err) }()

	ic.Logger.Debug("Verifying copy")

	// Output can vary, so we don't specify output for this example
}

// Example_runContext demonstrates wrapping a CLI command in a run span.
func Example_runContext() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := telemetry.WithRunContext(tel.WithContext(context.Background()), "run-123", "bench")
	defer telemetry.EndRunContext(ctx, nil)

	telemetry.FromContext(ctx).Info("Benchmark started")

	// Output can vary, so we don't specify output for this example
}
