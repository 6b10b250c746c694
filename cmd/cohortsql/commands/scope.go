package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/service"
	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewScopeCommand creates the scope command.
func NewScopeCommand(app *App) *cobra.Command {
	var (
		question string
		execute  bool
	)

	cmd := &cobra.Command{
		Use:   "scope <query.sql> <cohort.sql>",
		Short: "Restrict a query to the entities of a cohort",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := readInput(args[0])
			if err != nil {
				return err
			}
			cohort, err := readInput(args[1])
			if err != nil {
				return err
			}
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			qs := c.QueryService()

			if !execute {
				scoped, ok := qs.Scope(string(base), string(cohort))
				if !ok {
					return service.ErrNoSharedKey
				}
				if app.JSON {
					return app.emitJSON(scoped)
				}
				ui.PrintSQL(string(scoped.Strategy)+" on "+scoped.JoinKey, scoped.SQL)
				return nil
			}

			if _, err := c.Executor(cmd.Context()); err != nil {
				return err
			}
			out, scoped, err := qs.ExecuteScoped(cmd.Context(), question, string(base), string(cohort))
			if out == nil {
				return err
			}
			if app.JSON {
				if jerr := app.emitJSON(out); jerr != nil {
					return jerr
				}
				return err
			}
			ui.PrintSQL(string(scoped.Strategy)+" on "+scoped.JoinKey, out.FinalSQL)
			if err != nil {
				return err
			}
			headers, rows := ui.ResultRows(out.Result)
			return ui.PrintTable(headers, rows)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "the question the query answers")
	cmd.Flags().BoolVar(&execute, "execute", false, "execute the scoped query")

	return cmd
}
