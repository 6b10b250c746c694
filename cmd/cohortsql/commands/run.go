package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewRunCommand creates the run command.
func NewRunCommand(app *App) *cobra.Command {
	var (
		question string
		inline   string
		file     string
		report   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute SQL with bounded rewrite and repair",
		Long:  "Normalize, execute and, on failure or a suspicious empty result, repair a SQL statement written for a question.",
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
			if _, err := c.Executor(cmd.Context()); err != nil {
				return err
			}

			out, runErr := c.QueryService().Execute(cmd.Context(), question, sql)
			if out == nil {
				return runErr
			}
			if app.JSON {
				if err := app.emitJSON(out); err != nil {
					return err
				}
				return runErr
			}
			if report {
				if err := ui.PrintMarkdown(ui.RepairReport(out)); err != nil {
					return err
				}
			} else {
				ui.PrintSQL("final", out.FinalSQL)
			}
			if out.Status == orchestrator.StatusSuccess {
				headers, rows := ui.ResultRows(out.Result)
				if err := ui.PrintTable(headers, rows); err != nil {
					return err
				}
				ui.PrintSuccess("%d rows after %d executions", out.Result.RowCount, out.Executions)
				if out.Result.Truncated {
					ui.PrintWarning("output truncated to %d rows", len(out.Result.Rows))
				}
				return nil
			}
			if errors.Is(runErr, orchestrator.ErrExhausted) {
				ui.PrintError("gave up after %d executions", out.Executions)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "the question the statement answers")
	cmd.Flags().StringVar(&inline, "sql", "", "SQL statement")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the SQL statement (- for stdin)")
	cmd.Flags().BoolVar(&report, "report", false, "print a markdown report of every attempt")

	return cmd
}
