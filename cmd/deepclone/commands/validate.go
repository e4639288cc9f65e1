package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/openfroyo/deepclone/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate CONFIG...",
		Short: "Validate configuration files",
		Long: `Validate YAML, JSON or CUE configuration files.

This command checks:
  - Syntax of every file
  - Conformance to the built-in #Config schema
  - Struct-level rules (type names, telemetry settings)
  - That referenced Rego policies load and compile

A single "-" reads the configuration from standard input in the format given
by --format.`,
		Example: `  # Validate a single file
  deepclone validate deepclone.yaml

  # Validate a directory of fragments
  deepclone validate ./conf.d

  # Validate generated configuration
  render-config | deepclone validate --format json -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Debug().
				Strs("paths", args).
				Msg("Validating configuration")

			parser := config.NewCUEParser()
			var parsed *config.ParsedConfig
			if len(args) == 1 && args[0] == "-" {
				content, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read standard input: %w", err)
				}
				parsed, err = parser.ParseInline(ctx, string(content), format)
				if err != nil {
					return err
				}
			} else {
				var err error
				parsed, err = parser.Parse(ctx, args)
				if err != nil {
					return err
				}
			}

			if parsed.Config != nil {
				if _, _, err := config.BuildRegistry(ctx, parsed.Config, config.BuildOptions{Logger: zerolog.Nop()}); err != nil {
					parsed.Errors = append(parsed.Errors, config.ValidationError{
						Path:     "policies",
						Message:  err.Error(),
						Severity: "error",
					})
					parsed.Config = nil
				}
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(parsed); err != nil {
					return err
				}
			} else {
				for _, e := range parsed.Errors {
					fmt.Fprintf(w, "%s: %s\n", e.Severity, e.Error())
				}
				if len(parsed.Errors) == 0 {
					fmt.Fprintf(w, "%d file(s) valid\n", len(parsed.SourceFiles))
				}
			}

			if len(parsed.Errors) > 0 {
				return fmt.Errorf("%d validation error(s)", len(parsed.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", config.FormatYAML, "format of configuration read from standard input (yaml, json or cue)")

	return cmd
}
