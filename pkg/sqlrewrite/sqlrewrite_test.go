package sqlrewrite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output string
	err    error
	ran    []string
}

func (f *fakeRunner) Run(_ context.Context, sql string) (string, error) {
	f.ran = append(f.ran, sql)
	return f.output, f.err
}

func TestMarkerRegexMatchesMarkerTitles(t *testing.T) {
	re := regexp.MustCompile(markerRegex)

	m := re.FindStringSubmatch("-RM-467-MR-Update doc")
	require.NotNil(t, m)
	assert.Equal(t, "467", m[1])
	assert.Equal(t, "Update doc", m[2])

	assert.Nil(t, re.FindStringSubmatch("A plain title"))
}

func TestCountUnmigrated(t *testing.T) {
	runner := &fakeRunner{output: "12\n"}
	r := &Rewriter{Runner: runner, ProjectID: 5}

	count, err := r.CountUnmigrated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	require.Len(t, runner.ran, 1)
	assert.Contains(t, runner.ran[0], "SELECT COUNT(*)")
	assert.Contains(t, runner.ran[0], "project_id=5")
}

func TestCountUnmigrated_UnparsableOutput(t *testing.T) {
	runner := &fakeRunner{output: "could not connect to server"}
	r := &Rewriter{Runner: runner, ProjectID: 5}

	_, err := r.CountUnmigrated(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "count", parseErr.Command)
}

func TestCountUnmigrated_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("psql failed: exit status 2")}
	r := &Rewriter{Runner: runner, ProjectID: 5}

	_, err := r.CountUnmigrated(context.Background())
	assert.ErrorContains(t, err, "psql failed")
}

func TestRewrite(t *testing.T) {
	runner := &fakeRunner{output: "UPDATE 12\n"}
	r := &Rewriter{Runner: runner, ProjectID: 5}

	count, err := r.Rewrite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	require.Len(t, runner.ran, 1)
	assert.Contains(t, runner.ran[0], "UPDATE issues SET")
	assert.Contains(t, runner.ran[0], `'\2'`)
	assert.Contains(t, runner.ran[0], `'\1')::integer`)
	assert.Contains(t, runner.ran[0], "project_id=5")
}

func TestRewrite_UnparsableOutput(t *testing.T) {
	runner := &fakeRunner{output: "ERROR:  relation \"issues\" does not exist"}
	r := &Rewriter{Runner: runner, ProjectID: 5}

	_, err := r.Rewrite(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "rewrite", parseErr.Command)
	assert.Contains(t, parseErr.Error(), "rewrite")
}
