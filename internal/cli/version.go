package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

//nolint:gochecknoglobals // Set once from main
var buildInfo = BuildInfo{Version: "dev"}

// SetBuildInfo records the build metadata shown by the version command.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
	rootCmd.Version = formatVersion(info)
}

// formatVersion renders build info with placeholders for missing fields.
func formatVersion(info BuildInfo) string {
	v, commit, date := info.Version, info.Commit, info.Date
	if v == "" {
		v = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)
}

// versionCmd prints build information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	Long:    `Show the subpass version, commit and build date.`,
	Example: `  subpass version -o json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := GetCmdContext(cmd)
		return cc.Fmt.Emit(struct {
			BuildInfo
			GoVersion string `json:"go_version"`
		}{buildInfo, runtime.Version()}, func(w io.Writer) error {
			outln(w, "subpass "+formatVersion(buildInfo))
			return nil
		})
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.GroupID = groupConfig
	rootCmd.AddCommand(versionCmd)
}
