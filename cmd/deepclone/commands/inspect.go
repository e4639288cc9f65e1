package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/config"
	"github.com/openfroyo/deepclone/pkg/grid"
	"github.com/openfroyo/deepclone/pkg/policy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// sampleTypes are the types the inspect command reports on.
var sampleTypes = []reflect.Type{
	reflect.TypeFor[int](),
	reflect.TypeFor[string](),
	reflect.TypeFor[[]byte](),
	reflect.TypeFor[[4]int](),
	reflect.TypeFor[[]string](),
	reflect.TypeFor[map[string]any](),
	reflect.TypeFor[any](),
	reflect.TypeFor[func()](),
	reflect.TypeFor[chan int](),
	reflect.TypeFor[time.Time](),
	reflect.TypeFor[*time.Location](),
	reflect.TypeFor[uuid.UUID](),
	reflect.TypeFor[sync.Mutex](),
	reflect.TypeFor[sync.Map](),
	reflect.TypeFor[*sync.Map](),
	reflect.TypeFor[*os.File](),
	reflect.TypeFor[*net.TCPConn](),
	reflect.TypeFor[*sql.DB](),
	reflect.TypeFor[yaml.Node](),
	reflect.TypeFor[*yaml.Node](),
	reflect.TypeFor[*grid.Grid[float64]](),
	reflect.TypeFor[config.Config](),
	reflect.TypeFor[policy.Policy](),
}

// strategyRow is one line of the inspect output.
type strategyRow struct {
	Type     string   `json:"type"`
	Category string   `json:"category"`
	Deep     bool     `json:"deep"`
	Policy   string   `json:"policy,omitempty"`
	Walked   []string `json:"walked,omitempty"`
	Cleared  []string `json:"cleared,omitempty"`
}

func newInspectCommand() *cobra.Command {
	var listPolicies bool

	cmd := &cobra.Command{
		Use:   "inspect [FILTER...]",
		Short: "Show how types are classified and copied",
		Long: `Print the classification and the compiled copy strategy of a set of common
types under the current configuration. Filters select types whose qualified
name contains any of the given substrings.

POLICY names the classification policy that answered with the type's
category, if any. For structs, WALKED lists the fields that are deep-copied
and CLEARED the fields that are reset in the copy: ignored types, event
fields and fields tagged deepclone:"-".`,
		Example: `  # All sample types
  deepclone inspect

  # Only sync types, with a custom configuration
  deepclone inspect -c deepclone.yaml sync

  # List classification policies
  deepclone inspect --policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := loadEnvironment(ctx, nil)
			if err != nil {
				return err
			}
			defer env.close(ctx)

			if listPolicies {
				return printPolicies(cmd, env.policies.ListPolicies())
			}

			var rows []strategyRow
			for _, t := range sampleTypes {
				name := classify.QualifiedName(t)
				if !matchesAny(name, args) {
					continue
				}
				st := env.cloner.Strategy(t)
				rows = append(rows, strategyRow{
					Type:     name,
					Category: st.Category.String(),
					Deep:     st.Deep,
					Policy:   decidingPolicy(ctx, env.policies, t, st.Category),
					Walked:   st.Walked,
					Cleared:  st.Cleared,
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			t := newTable("TYPE", "CATEGORY", "DEEP", "POLICY", "WALKED", "CLEARED")
			for _, r := range rows {
				t.Row(r.Type, r.Category, strconv.FormatBool(r.Deep), r.Policy, strings.Join(r.Walked, ", "), strings.Join(r.Cleared, ", "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}

	cmd.Flags().BoolVar(&listPolicies, "policies", false, "list classification policies instead of types")

	return cmd
}

// decidingPolicy returns the first policy whose answer for t, or for the type
// t points to, is category.
func decidingPolicy(ctx context.Context, eng *policy.Engine, t reflect.Type, category classify.Category) string {
	if eng == nil || (category != classify.Ignored && category != classify.SafeShare) {
		return ""
	}
	types := []reflect.Type{t}
	if t.Kind() == reflect.Pointer {
		types = append(types, t.Elem())
	}
	for _, tt := range types {
		result, err := eng.Evaluate(ctx, classify.Describe(tt))
		if err != nil {
			continue
		}
		for _, d := range result.Decisions {
			if d.Category == category.String() {
				return d.Policy
			}
		}
	}
	return ""
}

func printPolicies(cmd *cobra.Command, policies []policy.Policy) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(policies)
	}

	t := newTable("NAME", "ENABLED", "DESCRIPTION")
	for _, p := range policies {
		t.Row(p.Name, strconv.FormatBool(p.Enabled), p.Description)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func newTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

func matchesAny(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
