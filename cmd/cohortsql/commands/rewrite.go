package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(app *App) *cobra.Command {
	var (
		question   string
		inline     string
		file       string
		aggressive bool
	)

	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Normalize SQL without executing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := sqlInput(inline, file)
			if err != nil {
				return err
			}
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			res := c.QueryService().Rewrite(question, sql, aggressive)
			if app.JSON {
				return app.emitJSON(res)
			}

			ui.PrintDiff(strings.TrimSpace(sql), strings.TrimSpace(res.SQL))
			if names := rewrite.Names(res.Applied); len(names) > 0 {
				ui.PrintInfo("applied (%s): %s", res.Profile, strings.Join(names, ", "))
			} else {
				ui.PrintInfo("no rule applied (%s)", res.Profile)
			}
			if res.Recommended != res.Profile {
				ui.PrintWarning("recommended profile is %s: %s", res.Recommended, strings.Join(res.RiskSignals, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "the question the statement answers")
	cmd.Flags().StringVar(&inline, "sql", "", "SQL statement")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the SQL statement (- for stdin)")
	cmd.Flags().BoolVar(&aggressive, "aggressive", false, "also run rules that rewrite semantics")

	return cmd
}
