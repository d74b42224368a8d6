// Package metrics exposes migration progress as Prometheus counters. A run
// is a batch job, so the counters mostly feed the final summary; long runs
// can additionally serve /metrics for live observation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the counters the migration engine increments.
type Recorder struct {
	registry *prometheus.Registry

	IssuesCreated       prometheus.Counter
	PlaceholdersCreated prometheus.Counter
	NotesPosted         prometheus.Counter
	NotesSkipped        prometheus.Counter
	AttachmentsUploaded prometheus.Counter
	AttachmentsSkipped  prometheus.Counter
	UserFallbacks       prometheus.Counter
}

// NewRecorder builds and registers all counters on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redmine_gitlab_sync",
			Name:      name,
			Help:      help,
		})
		r.registry.MustRegister(c)
		return c
	}

	r.IssuesCreated = counter("issues_created_total", "Issues created on the target project.")
	r.PlaceholdersCreated = counter("placeholder_issues_total", "Placeholder issues created and deleted to advance the iid counter.")
	r.NotesPosted = counter("notes_posted_total", "Notes posted on created issues.")
	r.NotesSkipped = counter("notes_skipped_total", "Notes skipped after exhausting retries.")
	r.AttachmentsUploaded = counter("attachments_uploaded_total", "Attachments uploaded to the target project.")
	r.AttachmentsSkipped = counter("attachments_skipped_total", "Attachments skipped after upload failure.")
	r.UserFallbacks = counter("user_fallbacks_total", "Issues or notes attributed to the archive or admin account.")

	return r
}

// Handler returns the /metrics handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in the background. Errors other than
// server shutdown are reported on the returned channel.
func (r *Recorder) Serve(addr string) <-chan error {
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
