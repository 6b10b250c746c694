package commands

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/core/compiler"
	"github.com/satishbabariya/cohortsql/internal/core/intent"
	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand(app *App) *cobra.Command {
	var part string

	cmd := &cobra.Command{
		Use:   "compile <spec.json>",
		Short: "Compile a cohort specification to SQL",
		Long:  "Compile a JSON cohort specification into cohort, count and diagnostic SQL. Use - to read stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			spec, err := loadSpec(args[0])
			if err != nil {
				return err
			}
			b, err := c.CohortService().Compile(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if app.JSON {
				return app.emitJSON(b)
			}
			return printBundle(b, part)
		},
	}

	cmd.Flags().StringVar(&part, "part", "all", "which statement to print: all, cohort, count or diagnostic")

	return cmd
}

func loadSpec(path string) (*intent.Spec, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	spec, err := intent.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return spec, nil
}

func printBundle(b *compiler.Bundle, part string) error {
	switch part {
	case "cohort":
		fmt.Fprintln(ui.Out, b.CohortSQL)
		return nil
	case "count":
		fmt.Fprintln(ui.Out, b.CountSQL)
		return nil
	case "diagnostic":
		fmt.Fprintln(ui.Out, b.DiagnosticSQL)
		return nil
	case "all":
	default:
		return fmt.Errorf("unknown part %q", part)
	}

	rows := make([][]string, len(b.Steps))
	for i, s := range b.Steps {
		rows[i] = []string{strconv.Itoa(s.Order), s.Label, s.CTE, s.JoinKey, yesNo(s.Exclusion), yesNo(s.Windowed)}
	}
	ui.PrintSection("Steps")
	if err := ui.PrintTable([]string{"#", "Step", "CTE", "Key", "Exclusion", "Windowed"}, rows); err != nil {
		return err
	}
	ui.PrintSQL("cohort", b.CohortSQL)
	ui.PrintSQL("count", b.CountSQL)
	ui.PrintSQL("diagnostic", b.DiagnosticSQL)
	for _, w := range b.Warnings {
		ui.PrintWarning("%s", w)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
