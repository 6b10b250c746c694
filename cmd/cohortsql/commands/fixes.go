package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/ui"
)

// NewFixesCommand creates the learned-fix command group.
func NewFixesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixes",
		Short: "Manage learned fixes",
	}

	cmd.AddCommand(newFixesListCommand(app))
	cmd.AddCommand(newFixesPurgeCommand(app))

	return cmd
}

func newFixesListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned fixes, most used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			fixes, err := c.LearnedFixes().List(cmd.Context())
			if err != nil {
				return err
			}
			if app.JSON {
				return app.emitJSON(fixes)
			}
			if len(fixes) == 0 {
				ui.PrintInfo("no learned fixes")
				return nil
			}
			rows := make([][]string, len(fixes))
			for i, f := range fixes {
				rows[i] = []string{short(f.Signature), f.Source, strconv.FormatInt(f.UseCount, 10), f.CreatedAt.Format(time.RFC3339)}
			}
			return ui.PrintTable([]string{"Signature", "Source", "Uses", "Created"}, rows)
		},
	}
}

func newFixesPurgeCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge [signature...]",
		Short: "Delete learned fixes",
		Long:  "Delete the named learned fixes, or every learned fix when none is named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container(cmd.Context())
			if err != nil {
				return err
			}
			store := c.LearnedFixes()
			targets := args
			if len(targets) == 0 {
				fixes, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, f := range fixes {
					targets = append(targets, f.Signature)
				}
			}
			if len(targets) == 0 {
				ui.PrintInfo("no learned fixes")
				return nil
			}
			if !yes {
				ok, err := ui.Confirm("Delete "+strconv.Itoa(len(targets))+" learned fixes?", false)
				if err != nil || !ok {
					return err
				}
			}
			for _, sig := range targets {
				if err := store.Delete(cmd.Context(), sig); err != nil {
					return err
				}
			}
			ui.PrintSuccess("deleted %d learned fixes", len(targets))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func short(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}
