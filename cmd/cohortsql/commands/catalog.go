package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/debug"
	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate schema catalogs",
	}

	cmd.AddCommand(newCatalogValidateCommand())
	cmd.AddCommand(newCatalogShowCommand(app))
	cmd.AddCommand(newCatalogWatchCommand())
	cmd.AddCommand(newCatalogCheckCommand(app))

	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog.yaml>",
		Short: "Validate a catalog document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			cat, err := catalog.Parse(data)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			ui.PrintSuccess("catalog %s is valid (%d tables, dialect %s)", args[0], len(cat.Tables()), cat.Dialect())
			return nil
		},
	}
}

func newCatalogShowCommand(app *App) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configured catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			cat := c.Catalog()
			if table != "" {
				if !cat.HasTable(table) {
					return fmt.Errorf("unknown table %q", table)
				}
				ui.PrintList(cat.Columns(table))
				return nil
			}
			rows := make([][]string, 0, len(cat.Tables()))
			for _, t := range cat.Tables() {
				rows = append(rows, []string{t, strings.Join(cat.Columns(t), ", ")})
			}
			return ui.PrintTable([]string{"Table", "Columns"}, rows)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "print only this table's columns")

	return cmd
}

func newCatalogWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <catalog.yaml>",
		Short: "Validate a catalog document every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			cat, err := catalog.Parse(data)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			w, err := catalog.NewWatcher(args[0], catalog.NewHolder(cat),
				catalog.WithDebounce(debounce),
				catalog.WithWatchLogger(debug.Named("catalog")),
				catalog.WithReloadHook(func(c *catalog.Catalog, err error) {
					if err != nil {
						ui.PrintError("%v", err)
						return
					}
					ui.PrintSuccess("reloaded %d tables", len(c.Tables()))
				}),
			)
			if err != nil {
				return err
			}
			w.Start()
			ui.PrintInfo("watching %s (Ctrl-C to stop)", args[0])
			<-cmd.Context().Done()
			return w.Stop()
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", catalog.DefaultDebounce, "wait this long after the last change")

	return cmd
}

func newCatalogCheckCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the catalog with the live database",
		Long:  "Report catalog tables and columns the configured database does not have.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			live, err := c.Introspect(cmd.Context())
			if err != nil {
				return err
			}
			drift := c.Catalog().Diff(live)
			if app.JSON {
				return app.emitJSON(drift)
			}
			if len(drift) == 0 {
				ui.PrintSuccess("catalog matches the database (%d tables)", len(c.Catalog().Tables()))
				return nil
			}
			rows := make([][]string, len(drift))
			for i, m := range drift {
				col := m.Column
				if col == "" {
					col = "(table)"
				}
				rows[i] = []string{m.Table, col}
			}
			if err := ui.PrintTable([]string{"Table", "Missing"}, rows); err != nil {
				return err
			}
			return fmt.Errorf("%d catalog entries are missing from the database", len(drift))
		},
	}
}
