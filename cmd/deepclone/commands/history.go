package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/clone"
	"github.com/openfroyo/deepclone/pkg/stores"
	"github.com/spf13/cobra"
)

// runDetail is the JSON output of history for a single run.
type runDetail struct {
	Run        *stores.Run             `json:"run"`
	Strategies []stores.StrategyRecord `json:"strategies"`
}

func newHistoryCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recorded benchmark runs",
		Long: `List benchmark runs recorded with 'deepclone bench --record', newest first.
Given a run ID, show that run and the copy strategies it compiled.`,
		Example: `  # List the last runs
  deepclone history --db bench.db

  # Show the strategies of one run
  deepclone history --db bench.db 2b0c7b5e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				strategies, err := store.ListStrategies(ctx, run.ID)
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(runDetail{Run: run, Strategies: strategies})
				}

				fmt.Fprintf(w, "Run:        %s (%s)\n", run.ID, run.Status)
				fmt.Fprintf(w, "Document:   %s\n", run.Document)
				fmt.Fprintf(w, "Started:    %s\n", run.StartedAt.Format(time.RFC3339))
				if run.Error != nil {
					fmt.Fprintf(w, "Error:      %s\n", *run.Error)
				}
				t := newTable("TYPE", "CATEGORY", "DEEP", "WALKED", "CLEARED")
				for _, s := range strategies {
					t.Row(s.TypeName, s.Category, strconv.FormatBool(s.Deep), strings.Join(s.Walked, ", "), strings.Join(s.Cleared, ", "))
				}
				fmt.Fprintln(w, t.Render())
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			t := newTable("RUN", "DOCUMENT", "STATUS", "ITERATIONS", "WORKERS", "DURATION", "CLONES/S", "STARTED")
			for _, r := range runs {
				t.Row(
					r.ID,
					r.Document,
					string(r.Status),
					strconv.Itoa(r.Iterations),
					strconv.Itoa(r.Workers),
					r.Duration.Round(time.Microsecond).String(),
					strconv.FormatFloat(r.OpsPerSecond, 'f', 0, 64),
					r.StartedAt.Format(time.RFC3339),
				)
			}
			fmt.Fprintln(w, t.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run history database")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openHistory opens and migrates the run history at path.
func openHistory(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate history %s: %w", path, err)
	}
	return store, nil
}

// recordRun stores the outcome of a benchmark run and the strategies the
// cloner compiled during it.
func recordRun(ctx context.Context, store stores.Store, run *stores.Run, result benchResult, strategies []*clone.Strategy, runErr error) error {
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	} else {
		run.Duration = result.Duration
		run.OpsPerSecond = result.OpsPerSecond
		run.ObjectsPerClone = result.ObjectsPerClone
		run.StrategyCacheSize = result.StrategiesCache
	}

	if err := store.FinishRun(ctx, run); err != nil {
		return err
	}

	records := make([]stores.StrategyRecord, 0, len(strategies))
	for _, s := range strategies {
		records = append(records, stores.StrategyRecord{
			TypeName: classify.QualifiedName(s.Type),
			Category: s.Category.String(),
			Deep:     s.Deep,
			Walked:   s.Walked,
			Cleared:  s.Cleared,
		})
	}
	return store.SaveStrategies(ctx, run.ID, records)
}
