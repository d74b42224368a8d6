// Package sqlrewrite is the out-of-band recovery path: rewriting GitLab
// issue iids directly in its database by extracting the source id embedded
// in marker titles. It only ever runs on the GitLab host, with the psql
// defaults of an omnibus install.
package sqlrewrite

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// markerRegex must match convert.TitleMarkerPattern: capture group 1 is the
// source id, group 2 the original subject.
const markerRegex = `-RM-([0-9]+)-MR-(.*)`

const countUnmigratedSQL = `
SELECT COUNT(*)
FROM issues
WHERE title ~* '%s' AND project_id=%d;
`

const rewriteIIDSQL = `
UPDATE issues SET
  title = regexp_replace(issues.title, '%s','\2'),
  iid = regexp_replace(issues.title, '%s', '\1')::integer
WHERE title ~* '%s' AND project_id=%d;
`

// Runner executes one SQL command and returns the raw psql output.
type Runner interface {
	Run(ctx context.Context, sql string) (string, error)
}

// PSQLRunner shells out to psql as the gitlab database unix user. Defaults
// match an omnibus-installed GitLab.
type PSQLRunner struct {
	UnixUser string
	Hostname string
	DBName   string
	PSQLBin  string
}

// NewPSQLRunner returns a runner with omnibus defaults.
func NewPSQLRunner() *PSQLRunner {
	return &PSQLRunner{
		UnixUser: "gitlab-psql",
		Hostname: "/var/opt/gitlab/postgresql",
		DBName:   "gitlabhq_production",
		PSQLBin:  "/opt/gitlab/embedded/bin/psql",
	}
}

// Run pipes the command into psql with unadorned output (-A -t).
func (r *PSQLRunner) Run(ctx context.Context, sql string) (string, error) {
	cmd := exec.CommandContext(ctx,
		"sudo", "-u", r.UnixUser,
		r.PSQLBin,
		"-A", "-t",
		"-h", r.Hostname,
		"-d", r.DBName,
	)
	cmd.Stdin = strings.NewReader(sql)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("psql failed: %w: %s", err, strings.TrimSpace(errOut.String()))
	}
	return out.String(), nil
}

// Rewriter drives the two-step count/rewrite sequence for one project.
type Rewriter struct {
	Runner    Runner
	ProjectID int
}

var (
	countOutputRe  = regexp.MustCompile(`(?s)\s*(\d+)\s*`)
	updateOutputRe = regexp.MustCompile(`(?s)\s*UPDATE\s+(\d+)\s*`)
)

// CountUnmigrated returns how many issues still carry a marker title.
// Unparsable psql output is a distinct error, never silently zero.
func (r *Rewriter) CountUnmigrated(ctx context.Context) (int, error) {
	sql := fmt.Sprintf(countUnmigratedSQL, markerRegex, r.ProjectID)
	output, err := r.Runner.Run(ctx, sql)
	if err != nil {
		return 0, err
	}
	m := countOutputRe.FindStringSubmatch(output)
	if m == nil {
		return 0, &ParseError{Command: "count", Output: output}
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ParseError{Command: "count", Output: output}
	}
	return count, nil
}

// Rewrite restores marker titles to the bare subject and moves the embedded
// source id into the iid column. Returns the number of rewritten rows.
func (r *Rewriter) Rewrite(ctx context.Context) (int, error) {
	sql := fmt.Sprintf(rewriteIIDSQL, markerRegex, markerRegex, markerRegex, r.ProjectID)
	output, err := r.Runner.Run(ctx, sql)
	if err != nil {
		return 0, err
	}
	m := updateOutputRe.FindStringSubmatch(output)
	if m == nil {
		return 0, &ParseError{Command: "rewrite", Output: output}
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ParseError{Command: "rewrite", Output: output}
	}
	return count, nil
}

// ParseError reports psql output that did not match the expected shape.
type ParseError struct {
	Command string
	Output  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected psql output for %s command: %q", e.Command, e.Output)
}
