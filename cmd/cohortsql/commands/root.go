// Package commands implements CLI commands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/config"
	"github.com/satishbabariya/cohortsql/internal/debug"
	"github.com/satishbabariya/cohortsql/internal/ui"
	"github.com/satishbabariya/cohortsql/internal/utils/container"
)

// App carries global flags and the lazily built container.
type App struct {
	ConfigFile string
	Debug      bool
	JSON       bool

	cfg       *config.Config
	container *container.Container
}

// NewApp creates an App.
func NewApp() *App { return &App{} }

// Config loads configuration once.
func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.ConfigFile)
	if err != nil {
		return nil, err
	}
	if a.Debug {
		cfg.Logging.Debug = true
	}
	if err := debug.Configure(cfg.Logging.Debug, cfg.Logging.JSON); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

// Container builds the dependency container once.
func (a *App) Container(ctx context.Context) (*container.Container, error) {
	if a.container != nil {
		return a.container, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	c, err := container.NewContainer(ctx, cfg, debug.L())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	a.container = c
	return c, nil
}

// Close releases the container.
func (a *App) Close(ctx context.Context) error {
	if a.container == nil {
		return nil
	}
	return a.container.Close(ctx)
}

// emitJSON writes v as indented JSON to stdout.
func (a *App) emitJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRootCommand creates the root command with every subcommand.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "cohortsql",
		Short:         "Compile, repair and scope clinical cohort SQL",
		Long:          "cohortsql compiles cohort specifications into SQL and executes free-form SQL with bounded rewrite and repair.",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&app.ConfigFile, "config", "", "config file (default is .cohortsql.yaml)")
	root.PersistentFlags().BoolVar(&app.Debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&app.JSON, "json", false, "print machine-readable JSON")

	root.AddCommand(NewCompileCommand(app))
	root.AddCommand(NewCohortCommand(app))
	root.AddCommand(NewRunCommand(app))
	root.AddCommand(NewRewriteCommand(app))
	root.AddCommand(NewScopeCommand(app))
	root.AddCommand(NewCatalogCommand(app))
	root.AddCommand(NewFixesCommand(app))
	root.AddCommand(NewVersionCommand(app))
	return root
}

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// sqlInput resolves a statement given either inline or as a file.
func sqlInput(inline, file string) (string, error) {
	switch {
	case inline != "" && file != "":
		return "", fmt.Errorf("use either --sql or --file, not both")
	case inline != "":
		return inline, nil
	case file != "":
		data, err := readInput(file)
		return string(data), err
	}
	return "", fmt.Errorf("a statement is required (--sql or --file)")
}
