package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo contains build-time information
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var buildInfo BuildInfo

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redmine-gitlab-sync",
	Short: "Migrate Redmine issues to GitLab",
	Long: `redmine-gitlab-sync moves project-tracking data from a Redmine instance to
a GitLab project over both REST APIs: issues with their notes, relations,
attachments, custom fields and time tracking, with identifier reconciliation
so GitLab iids can match the original Redmine issue ids.

Credentials come from the environment or a .env file:
  REDMINE_API_KEY   Redmine administrator API key
  GITLAB_TOKEN      GitLab administrator token`,
	Version: buildInfo.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(info BuildInfo) error {
	buildInfo = info
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
	return rootCmd.Execute()
}

func init() {
	bindLoggingFlags(rootCmd.PersistentFlags())
}
