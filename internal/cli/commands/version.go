package commands

import (
	"runtime"

	"github.com/leapstack-labs/leapmigrate/internal/cli/output"
	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// NewVersionCommand creates the version command. It does not open the state
// store, so it works without a project.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display leapmigrate version and build information.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if info.GoVersion == "" {
				info.GoVersion = runtime.Version()
			}

			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ParseMode(getConfig().OutputFormat))
			if r.Mode() == output.ModeJSON {
				return r.JSON(info)
			}

			r.Printf("leapmigrate v%s\n", info.Version)
			r.KeyValue("Commit", info.Commit)
			r.KeyValue("Built", info.BuildDate)
			r.KeyValue("Go", info.GoVersion)
			return nil
		},
	}
}
