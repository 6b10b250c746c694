package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewCohortCommand creates the cohort command.
func NewCohortCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohort <spec.json>",
		Short: "Compile and run a cohort specification",
		Long:  "Compile a cohort specification, count the cohort and report the rows left after every step.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := c.Executor(cmd.Context()); err != nil {
				return err
			}
			spec, err := loadSpec(args[0])
			if err != nil {
				return err
			}
			run, err := c.CohortService().Run(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if app.JSON {
				return app.emitJSON(run)
			}

			rows := make([][]string, len(run.Steps))
			for i, s := range run.Steps {
				rows[i] = []string{strconv.Itoa(s.Order), s.Label, strconv.FormatInt(s.Rows, 10)}
			}
			ui.PrintSection("Attrition")
			if err := ui.PrintTable([]string{"#", "Step", "Rows"}, rows); err != nil {
				return err
			}
			ui.PrintSuccess("cohort size: %d", run.Size)
			for _, w := range run.Warnings {
				ui.PrintWarning("%s", w)
			}
			return nil
		},
	}
	return cmd
}
