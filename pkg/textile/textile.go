// Package textile converts Redmine's Textile markup to GitLab-flavored
// Markdown by shelling out to pandoc. Conversion failure is an explicit
// signal, distinct from empty output: callers fall back to the raw text and
// log a diagnostic rather than dropping content.
package textile

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Converter renders source markup to Markdown.
type Converter interface {
	Convert(text string) (string, error)
}

// ConvertError signals that the input could not be rendered.
type ConvertError struct {
	Reason string
	Err    error
}

func (e *ConvertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("textile conversion failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("textile conversion failed: %s", e.Reason)
}

func (e *ConvertError) Unwrap() error { return e.Err }

// PandocConverter shells out to pandoc for each document.
type PandocConverter struct {
	binary  string
	timeout time.Duration
}

// NewPandocConverter locates pandoc on PATH. A missing binary is a startup
// configuration error, not a per-issue one.
func NewPandocConverter() (*PandocConverter, error) {
	path, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, &ConvertError{Reason: "pandoc not found in PATH", Err: err}
	}
	return &PandocConverter{binary: path, timeout: 30 * time.Second}, nil
}

// Convert renders one Textile document to GitLab-flavored Markdown.
func (c *PandocConverter) Convert(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, "-f", "textile", "-t", "gfm", "--wrap=preserve")
	cmd.Stdin = strings.NewReader(text)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", &ConvertError{Reason: strings.TrimSpace(errOut.String()), Err: err}
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// Passthrough returns input unchanged. Used with --no-convert or when the
// source project never used Textile.
type Passthrough struct{}

func (Passthrough) Convert(text string) (string, error) {
	return text, nil
}
