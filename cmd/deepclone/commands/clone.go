package commands

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/clone"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// cloneReport is the JSON output of the clone command.
type cloneReport struct {
	File  string      `json:"file"`
	Nodes int         `json:"nodes"`
	Stats clone.Stats `json:"stats"`
}

func newCloneCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "clone FILE",
		Short: "Deep clone a YAML or JSON document and verify the copy",
		Long: `Parse a YAML or JSON document into a node graph, deep clone it and check
that the copy is structurally equal, shares no node with the original, and
keeps anchors and aliases pointing at a single shared node.

The copy is printed as YAML unless --quiet or --json is given.`,
		Example: `  # Clone a document and print the copy
  deepclone clone ./values.yaml

  # Only report what was copied
  deepclone clone --json ./values.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := loadEnvironment(ctx, nil)
			if err != nil {
				return err
			}
			defer env.close(ctx)

			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			ctx = env.tel.WithContext(ctx)
			st := env.cloner.Strategy(reflect.TypeOf(doc))
			logger := telemetry.FromContext(ctx).NewComponentLogger("cli").
				WithType(classify.QualifiedName(st.Type)).
				WithCategory(st.Category.String())

			ctx, span := env.tel.Tracer.StartCloneSpan(ctx, classify.QualifiedName(st.Type), st.Category.String())
			defer span.End()

			out, stats := env.cloner.CloneStats(doc)
			telemetry.AddCloneEvent(span, stats.Objects, stats.WorkItems)

			dup, ok := out.(*yaml.Node)
			if !ok {
				err := fmt.Errorf("clone returned %T", out)
				telemetry.RecordError(span, err)
				return err
			}

			op := telemetry.StartOperation(ctx, "clone.verify", attribute.String("document", args[0]))
			nodes, err := verifyCopy(doc, dup)
			op.End(err)
			if err != nil {
				telemetry.RecordError(span, err)
				return fmt.Errorf("copy verification failed: %w", err)
			}
			telemetry.RecordSuccess(span)

			logger.WithField("nodes", nodes).
				WithField("objects", stats.Objects).
				WithField("verify_ms", op.Timer.Duration().Milliseconds()).
				Debug("Document cloned")

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(cloneReport{File: args[0], Nodes: nodes, Stats: stats})
			}

			if !quiet {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(dup); err != nil {
					return fmt.Errorf("failed to encode copy: %w", err)
				}
				if err := enc.Close(); err != nil {
					return fmt.Errorf("failed to encode copy: %w", err)
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Cloned %d nodes (%d objects, %d work items)\n", nodes, stats.Objects, stats.WorkItems)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the copy")

	return cmd
}
