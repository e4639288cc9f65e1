package commands

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/deepclone/pkg/config"
	"github.com/openfroyo/deepclone/pkg/stores"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// benchResult is the outcome of one benchmark run.
type benchResult struct {
	RunID           string        `json:"run_id"`
	Iterations      int           `json:"iterations"`
	Workers         int           `json:"workers"`
	Duration        time.Duration `json:"duration"`
	OpsPerSecond    float64       `json:"ops_per_second"`
	ObjectsPerClone float64       `json:"objects_per_clone"`
	StrategiesCache int           `json:"strategy_cache_size"`
}

func newBenchCommand() *cobra.Command {
	var (
		iterations  int
		workers     int
		metricsAddr string
		watch       bool
		record      string
	)

	cmd := &cobra.Command{
		Use:   "bench FILE",
		Short: "Clone a document repeatedly from concurrent workers",
		Long: `Clone a YAML or JSON document many times from concurrent workers sharing one
cloner, and report throughput.

With --metrics-addr the Prometheus metrics are served while the benchmark
runs. With --watch the --config file is reloaded on change and the new
classification is applied to the running benchmark.`,
		Example: `  # 100k clones on 8 workers
  deepclone bench --iterations 100000 --workers 8 ./values.yaml

  # Expose metrics and follow config changes
  deepclone bench -c deepclone.yaml --watch --metrics-addr :9090 ./values.yaml

  # Keep a history of runs
  deepclone bench --record bench.db ./values.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (runErr error) {
			if iterations < 1 {
				return fmt.Errorf("--iterations must be at least 1")
			}
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1")
			}
			if watch && configPath == "" {
				return fmt.Errorf("--watch requires --config")
			}

			ctx := cmd.Context()

			env, err := loadEnvironment(ctx, func(c *telemetry.Config) {
				if metricsAddr != "" {
					c.Metrics.Enabled = true
					c.Metrics.ListenAddress = metricsAddr
				}
			})
			if err != nil {
				return err
			}
			defer env.close(ctx)

			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			ctx = telemetry.WithRunContext(env.tel.WithContext(ctx), runID, "bench")
			defer func() { telemetry.EndRunContext(ctx, runErr) }()
			logger := telemetry.FromContext(ctx)

			var result benchResult
			if record != "" {
				history, err := openHistory(ctx, record)
				if err != nil {
					return err
				}
				defer history.Close()

				run := &stores.Run{ID: runID, Document: args[0], Iterations: iterations, Workers: workers}
				if err := history.CreateRun(ctx, run); err != nil {
					return err
				}
				defer func() {
					if err := recordRun(ctx, history, run, result, env.cloner.Strategies(), runErr); err != nil {
						logger.WithError(err).Warn("Failed to record run")
						if runErr == nil {
							runErr = err
						}
					}
				}()
			}

			if metricsAddr != "" {
				if err := env.tel.StartMetricsServer(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				logger.Infof("Serving metrics on %s", metricsAddr)
			}

			if watch {
				w := config.NewWatcher([]string{configPath}, config.BuildOptions{
					Logger:  env.tel.Logger.Zerolog(),
					Metrics: env.tel.Metrics,
				}, func(r config.Reload) {
					env.cloner.SetRegistry(r.Registry)
				})
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Close()
			}

			// One verified copy before timing.
			first, _ := env.cloner.CloneStats(doc)
			dup, ok := first.(*yaml.Node)
			if !ok {
				return fmt.Errorf("clone returned %T", first)
			}
			if _, err := verifyCopy(doc, dup); err != nil {
				return fmt.Errorf("copy verification failed: %w", err)
			}

			var objects atomic.Int64
			start := time.Now()

			g, gctx := errgroup.WithContext(ctx)
			per, extra := iterations/workers, iterations%workers
			for worker := 0; worker < workers; worker++ {
				n := per
				if worker < extra {
					n++
				}
				g.Go(func() error {
					for i := 0; i < n; i++ {
						if err := gctx.Err(); err != nil {
							return err
						}
						out, stats := env.cloner.CloneStats(doc)
						if out == nil {
							return fmt.Errorf("clone returned nil")
						}
						objects.Add(int64(stats.Objects))
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("benchmark aborted: %w", err)
			}

			elapsed := time.Since(start)
			result = benchResult{
				RunID:           runID,
				Iterations:      iterations,
				Workers:         workers,
				Duration:        elapsed,
				OpsPerSecond:    float64(iterations) / elapsed.Seconds(),
				ObjectsPerClone: float64(objects.Load()) / float64(iterations),
				StrategiesCache: env.cloner.CacheSize(),
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintf(w, "Run:          %s\n", result.RunID)
			fmt.Fprintf(w, "Iterations:   %d on %d workers\n", result.Iterations, result.Workers)
			fmt.Fprintf(w, "Duration:     %s\n", result.Duration.Round(time.Microsecond))
			fmt.Fprintf(w, "Throughput:   %.0f clones/s\n", result.OpsPerSecond)
			fmt.Fprintf(w, "Objects/copy: %.1f\n", result.ObjectsPerClone)
			fmt.Fprintf(w, "Strategies:   %d cached\n", result.StrategiesCache)
			return nil
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10000, "number of clones")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of concurrent workers")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload --config on change")
	cmd.Flags().StringVar(&record, "record", "", "append the run to this history database")

	return cmd
}
