package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rgsync/redmine-gitlab-sync/pkg/config"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/transport"
)

// deleteCmd represents the delete-issues command
var deleteCmd = &cobra.Command{
	Use:   "delete-issues <gitlab-project-url>",
	Short: "Delete every issue of a GitLab project",
	Long: `Delete all issues of the target project. This is the reset path after a
fatal migration failure: the migration never rolls back on its own, so a
partially migrated project must be wiped before retrying.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteIssues,
}

func runDeleteIssues(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")

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

	issues, err := project.Issues(cmd.Context())
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("Project has no issues.")
		return nil
	}

	if !yes {
		fmt.Printf("About to delete %d issues from %s. Type 'yes' to continue: ", len(issues), args[0])
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			return fmt.Errorf("aborted")
		}
	}

	for _, issue := range issues {
		if err := project.DeleteIssue(cmd.Context(), issue.IID); err != nil {
			return err
		}
		log.V(1).Info("deleted issue", "iid", issue.IID)
	}
	fmt.Printf("🗑️  Deleted %d issues\n", len(issues))
	return nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
}
