package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	ProjectName    = "tpsl-guard"
	ProjectVersion = "0.3.0"
	ProjectRepo    = "github.com/ducminhle1904/tpsl-guard"
)

// Build information, set with -ldflags "-X .../cmd.BuildCommit=..."
var (
	BuildDate   = "unknown"
	BuildCommit = "dev"
)

// VersionInfo contains version and build information
type VersionInfo struct {
	ProjectName  string `json:"project_name"`
	Version      string `json:"version"`
	BuildDate    string `json:"build_date"`
	BuildCommit  string `json:"build_commit"`
	GoVersion    string `json:"go_version"`
	Architecture string `json:"architecture"`
	Repository   string `json:"repository"`
}

// GetVersionInfo returns complete version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		ProjectName:  ProjectName,
		Version:      ProjectVersion,
		BuildDate:    BuildDate,
		BuildCommit:  BuildCommit,
		GoVersion:    runtime.Version(),
		Architecture: runtime.GOOS + "/" + runtime.GOARCH,
		Repository:   ProjectRepo,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// version needs no config or logger
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			info := GetVersionInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s v%s\n", info.ProjectName, info.Version)
			fmt.Fprintf(out, "Build: %s (%s)\n", info.BuildCommit, info.BuildDate)
			fmt.Fprintf(out, "Go: %s (%s)\n", info.GoVersion, info.Architecture)
		},
	}
}
