package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgsync/redmine-gitlab-sync/internal/migrate"
	"github.com/rgsync/redmine-gitlab-sync/pkg/config"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/metrics"
	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/textile"
	"github.com/rgsync/redmine-gitlab-sync/pkg/transport"
	"github.com/rgsync/redmine-gitlab-sync/pkg/usermap"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate <redmine-project-url> <gitlab-project-url>",
	Short: "Migrate all issues of a Redmine project to a GitLab project",
	Long: `Migrate every issue of a Redmine project to a GitLab project: notes,
relations, attachments, custom fields and time tracking included.

Issues are processed strictly in ascending Redmine id order. When a gap
appears in the source ids, placeholder issues are created and deleted on
GitLab so its iid counter stays aligned with the Redmine ids. After a fatal
failure, reset the target with delete-issues or resume with --initial-iid.

Milestones are expected to exist on the target already (they are matched by
version name); issues referencing a missing milestone migrate without one.`,
	Example: `  # Dry run: check preconditions and show what would be created
  redmine-gitlab-sync migrate https://redmine.example.com/projects/foo \
      https://gitlab.example.com/group/foo --check

  # Real migration with operator-mapped users and an archive account
  redmine-gitlab-sync migrate https://redmine.example.com/projects/foo \
      https://gitlab.example.com/group/foo \
      --user-map=users.yml --archive-user=redmine-archive

  # Resume after a failure, first new issue landing on iid 120
  redmine-gitlab-sync migrate https://redmine.example.com/projects/foo \
      https://gitlab.example.com/group/foo --initial-iid=120`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	redmineURL, gitlabURL := args[0], args[1]

	check, _ := cmd.Flags().GetBool("check")
	keepTitle, _ := cmd.Flags().GetBool("keep-title")
	noSudo, _ := cmd.Flags().GetBool("no-sudo")
	noConvert, _ := cmd.Flags().GetBool("no-convert")
	initialIID, _ := cmd.Flags().GetInt("initial-iid")
	closedStates, _ := cmd.Flags().GetStringSlice("closed-states")
	customFields, _ := cmd.Flags().GetStringSlice("custom-fields")
	userMapPath, _ := cmd.Flags().GetString("user-map")
	archiveUser, _ := cmd.Flags().GetString("archive-user")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	fmt.Println("📄 Loading configuration...")
	cfg, err := config.NewDotEnvLoader().Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.Flags())
	if err != nil {
		return err
	}

	overrides, err := usermap.Load(userMapPath)
	if err != nil {
		return err
	}

	var converter textile.Converter
	if noConvert {
		converter = textile.Passthrough{}
	} else {
		pandoc, err := textile.NewPandocConverter()
		if err != nil {
			return fmt.Errorf("%w (use --no-convert to migrate without Textile conversion)", err)
		}
		converter = pandoc
	}

	fmt.Println("🔗 Connecting to Redmine and GitLab...")
	redmineSender := transport.NewClient(redmine.AuthHeader(cfg.RedmineAPIKey), cfg.InsecureSkipVerify)
	gitlabSender := transport.NewClient(gitlab.AuthHeader(cfg.GitLabToken), cfg.InsecureSkipVerify)

	source, err := redmine.NewProject(redmineURL, redmineSender, log)
	if err != nil {
		return err
	}
	target, err := gitlab.NewProject(gitlabURL, gitlabSender, log)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	if metricsAddr != "" {
		recorder.Serve(metricsAddr)
		fmt.Printf("📈 Serving /metrics on %s\n", metricsAddr)
	}

	engine := &migrate.Engine{
		Source:     source,
		Target:     target,
		Downloader: redmineSender,
		Opts: migrate.Options{
			RedmineAPIKey: cfg.RedmineAPIKey,
			Overrides:     overrides,
			ClosedStates:  closedStates,
			CustomFields:  customFields,
			Text:          converter,
			KeepTitle:     keepTitle,
			Sudo:          !noSudo,
			ArchiveUser:   archiveUser,
			InitialIID:    initialIID,
			CheckOnly:     check,
		},
		Log:     log,
		Metrics: recorder,
	}

	result, err := engine.Run(cmd.Context())
	printSummary(result, check)
	return err
}

func printSummary(result *migrate.Result, checkOnly bool) {
	if result == nil {
		return
	}
	if checkOnly {
		fmt.Printf("\n✅ Check complete: %d issues would be migrated\n", result.TotalIssues)
		return
	}
	fmt.Printf("\nMigrated %d/%d issues in %s (%d placeholders burned, %d notes posted)\n",
		result.IssuesCreated, result.TotalIssues, result.Duration.Round(1e9), result.PlaceholdersCreated, result.NotesPosted)
	for _, skipped := range result.SkippedNotes {
		fmt.Printf("⚠️  skipped note %d on issue #%d (iid %d): %v\n",
			skipped.NoteIndex, skipped.SourceIssueID, skipped.TargetIID, skipped.Err)
	}
	for _, skipped := range result.SkippedAttachments {
		fmt.Printf("⚠️  skipped attachment %q on issue #%d: %v\n",
			skipped.Filename, skipped.SourceIssueID, skipped.Err)
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("check", false, "Only run precondition checks and show the plan, write nothing")
	migrateCmd.Flags().Bool("keep-title", false, "Keep original issue titles instead of the -RM-<id>-MR- marker")
	migrateCmd.Flags().Bool("no-sudo", false, "Do not impersonate authors (authorship goes into issue/note bodies)")
	migrateCmd.Flags().Bool("no-convert", false, "Skip Textile→Markdown conversion (no pandoc required)")
	migrateCmd.Flags().Int("initial-iid", 0, "Resume a partial run: iid the first migrated issue should land on")
	migrateCmd.Flags().StringSlice("closed-states", []string{"closed", "rejected"}, "Status names that mean an issue is closed")
	migrateCmd.Flags().StringSlice("custom-fields", nil, "Custom field names to carry into the description")
	migrateCmd.Flags().String("user-map", "", "YAML file mapping Redmine logins to GitLab usernames")
	migrateCmd.Flags().String("archive-user", "", "GitLab account that adopts issues/notes of unmappable users")
	migrateCmd.Flags().String("metrics-addr", "", "Serve Prometheus /metrics on this address during the run")
}
