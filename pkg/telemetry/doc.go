// Package telemetry provides the observability stack shared by the clone
// engine and the deepclone CLI.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one Telemetry value.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	cloner := clone.New(
//	    clone.WithLogger(tel.Logger.Zerolog()),
//	    clone.WithMetrics(tel.Metrics),
//	)
//
// # Metrics
//
// Metrics live in a private registry served by Metrics.Handler:
//
//   - deepclone_clones_total{category}
//   - deepclone_clone_duration_seconds{category}
//   - deepclone_objects_copied_total
//   - deepclone_objects_per_clone
//   - deepclone_active_clones
//   - deepclone_copy_into_total{mode,status}
//   - deepclone_strategies_compiled_total{category}
//   - deepclone_strategy_cache_size
//   - deepclone_policy_evaluations_total{policy,result}
//   - deepclone_config_reloads_total{status}
//   - deepclone_errors_by_class_total{class}
//
// Every Record method is a no-op on a nil or disabled Metrics.
//
// # Tracing
//
// Supported exporters are "stdout" for development, "otlp" (gRPC) for
// collectors, and "none" to generate spans without exporting them.
package telemetry
