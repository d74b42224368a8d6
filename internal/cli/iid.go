package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgsync/redmine-gitlab-sync/pkg/config"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/sqlrewrite"
	"github.com/rgsync/redmine-gitlab-sync/pkg/transport"
)

// iidCmd represents the recover-iid command
var iidCmd = &cobra.Command{
	Use:   "recover-iid <gitlab-project-url>",
	Short: "Rewrite GitLab iids from marker titles via direct SQL",
	Long: `Recover Redmine issue ids as GitLab iids after a migration that ran
without gap filling. Issues created with the -RM-<id>-MR- marker title get
their title restored and their iid column rewritten to the embedded source
id, directly in the GitLab database.

Must run on the GitLab host with access to the omnibus psql socket.`,
	Example: `  # See how many issues are waiting for the rewrite
  redmine-gitlab-sync recover-iid https://gitlab.example.com/group/foo --check

  # Perform the rewrite
  redmine-gitlab-sync recover-iid https://gitlab.example.com/group/foo`,
	Args: cobra.ExactArgs(1),
	RunE: runRecoverIID,
}

func runRecoverIID(cmd *cobra.Command, args []string) error {
	check, _ := cmd.Flags().GetBool("check")

	cfg, err := config.NewDotEnvLoader().Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.Flags())
	if err != nil {
		return err
	}

	sender := transport.NewClient(gitlab.AuthHeader(cfg.GitLabToken), cfg.InsecureSkipVerify)
	project, err := gitlab.NewProject(args[0], sender, log)
	if err != nil {
		return err
	}
	projectID, err := project.ID(cmd.Context())
	if err != nil {
		return err
	}

	rewriter := &sqlrewrite.Rewriter{
		Runner:    sqlrewrite.NewPSQLRunner(),
		ProjectID: projectID,
	}

	count, err := rewriter.CountUnmigrated(cmd.Context())
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no issue to rewrite: either iids were already recovered or no issues were migrated yet")
	}
	fmt.Printf("Ready to recover iid for %d issues.\n", count)

	if check {
		return nil
	}

	rewritten, err := rewriter.Rewrite(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("✅ Recovered iid for %d issues\n", rewritten)
	return nil
}

func init() {
	rootCmd.AddCommand(iidCmd)
	iidCmd.Flags().Bool("check", false, "Only count issues awaiting the rewrite, change nothing")
}
