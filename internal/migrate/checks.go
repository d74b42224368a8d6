package migrate

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/rgsync/redmine-gitlab-sync/pkg/convert"
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
)

var (
	okLabel     = color.New(color.FgGreen).SprintFunc()
	failedLabel = color.New(color.FgRed, color.Bold).SprintFunc()
)

type check struct {
	name string
	run  func() error
}

// runChecks verifies every precondition before any write happens, printing
// a per-check OK/FAILED summary. The first pass over all checks always
// completes so the operator sees every problem at once.
func (e *Engine) runChecks(resolver *convert.UserResolver, existing []gitlab.Issue) error {
	checks := []check{
		{"archive account exists on target", func() error {
			return resolver.Validate()
		}},
		{"required users present on target", func() error {
			return e.checkUsers(resolver)
		}},
		{"target project has no pre-existing issue", func() error {
			return e.checkNoIssues(existing)
		}},
	}

	failed := 0
	for _, c := range checks {
		if err := c.run(); err != nil {
			fmt.Printf("%s... %s (%v)\n", c.name, failedLabel("FAILED"), err)
			failed++
		} else {
			fmt.Printf("%s... %s\n", c.name, okLabel("OK"))
		}
	}
	if failed > 0 {
		return &PreconditionError{Failed: failed}
	}
	return nil
}

// checkUsers requires every participant's mapped login to exist on the
// target. With an archive account configured, unmapped users are expected
// and fall back to it instead of failing the run.
func (e *Engine) checkUsers(resolver *convert.UserResolver) error {
	if resolver.ArchiveUser != "" {
		return nil
	}
	var missing []string
	for _, user := range resolver.Users {
		username := resolver.Overrides.Resolve(user.Login)
		if _, ok := resolver.GitLabUsers[username]; !ok {
			missing = append(missing, username)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing users: %v (create them, map them with --user-map, or set --archive-user)", missing)
	}
	return nil
}

func (e *Engine) checkNoIssues(existing []gitlab.Issue) error {
	if len(existing) == 0 {
		return nil
	}
	if e.Opts.InitialIID > 0 {
		// Resuming: pre-existing issues are the point.
		return nil
	}
	return fmt.Errorf("%d issues already present (use delete-issues to reset, or --initial-iid to resume)", len(existing))
}

// PreconditionError aborts the run before any mutation.
type PreconditionError struct {
	Failed int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%d precondition check(s) failed, nothing was migrated", e.Failed)
}
