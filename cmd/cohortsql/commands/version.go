package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cohortsql/internal/ui"
)

// Set through -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentBuild() BuildInfo {
	return BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentBuild()
			if app.JSON {
				return app.emitJSON(info)
			}
			ui.PrintSection("cohortsql version " + info.Version)
			return ui.PrintTable([]string{"Field", "Value"}, [][]string{
				{"Git Commit", info.GitCommit},
				{"Build Time", info.BuildTime},
				{"Go Version", info.GoVersion},
				{"OS/Arch", info.Platform},
			})
		},
	}
}
