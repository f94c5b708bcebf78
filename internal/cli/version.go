package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-bridge/internal/version"
)

const versionCheckTimeout = 10 * time.Second

// BuildInfo holds the values stamped into the binary at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

//nolint:gochecknoglobals // Set once by Execute
var (
	buildInfo BuildInfo

	// latestRelease is replaced in tests.
	latestRelease = func(ctx context.Context) (*version.Release, error) {
		return version.NewReleaseClient("").Latest(ctx)
	}
)

// setBuildInfo records the build metadata reported by the version command.
func setBuildInfo(info BuildInfo) {
	buildInfo = info
	rootCmd.Version = formatVersion(info)
}

// currentVersion returns the running version, "dev" for unstamped builds.
func currentVersion() string {
	if buildInfo.Version == "" {
		return "dev"
	}
	return buildInfo.Version
}

// formatVersion renders build metadata with placeholders for missing values.
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
	return v + " (commit: " + commit + ", built: " + date + ")"
}

// versionCmd prints build information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the sigil-bridge version, commit and build date.

With --check the latest published release is fetched and compared with the
running version.`,
	Example: `  sigil-bridge version
  sigil-bridge version --check -o json`,
	GroupID: groupConfig,
	Args:    cobra.NoArgs,
	RunE:    runVersion,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var versionCheck bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}

// VersionResponse is the JSON shape of the version command.
type VersionResponse struct {
	Version         string `json:"version"`
	Commit          string `json:"commit,omitempty"`
	Date            string `json:"date,omitempty"`
	Latest          string `json:"latest,omitempty"`
	UpdateAvailable bool   `json:"update_available,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	resp := VersionResponse{
		Version: currentVersion(),
		Commit:  buildInfo.Commit,
		Date:    buildInfo.Date,
	}

	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, versionCheckTimeout)
		defer cancel()

		release, err := latestRelease(ctx)
		if err != nil {
			return err
		}
		resp.Latest = version.NormalizeVersion(release.TagName)
		resp.UpdateAvailable = version.IsNewerVersion(resp.Version, release.TagName)
	}

	return cc.Fmt.Result(resp, func(w io.Writer) error {
		outln(w, "sigil-bridge "+formatVersion(buildInfo))
		if resp.Latest != "" {
			if resp.UpdateAvailable {
				out(w, "A newer release is available: %s\n", resp.Latest)
			} else {
				outln(w, "You are running the latest release.")
			}
		}
		return nil
	})
}
