package syncer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/lifeops/pkg/diff"
	"github.com/harrisonrobin/lifeops/pkg/schedule"
	"github.com/harrisonrobin/lifeops/pkg/state"
)

// ErrPartial is returned by Report.Err when the run completed but some
// remote call, or the state commit, failed.
var ErrPartial = errors.New("sync finished with failures")

// Outcome is what happened to one added or removed fingerprint.
type Outcome string

const (
	Created      Outcome = "created"
	CreateFailed Outcome = "create-failed"
	Deleted      Outcome = "deleted"
	DeleteFailed Outcome = "delete-failed"
	// Skipped means a removed task had no managed event on the remote side.
	Skipped Outcome = "skipped"
	// Unresolved means the deletion window could not be listed.
	Unresolved Outcome = "unresolved"
	// Planned is used for every item in a dry run.
	Planned Outcome = "planned"
)

// Item is the result for one fingerprint.
type Item struct {
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	Action  string    `json:"action"`
	Outcome Outcome   `json:"outcome"`
	EventID string    `json:"event_id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func newItem(fp schedule.Fingerprint, action string, outcome Outcome) Item {
	return Item{Title: fp.Title, Start: fp.Time().UTC(), Action: action, Outcome: outcome}
}

// Malformed describes a record excluded from the comparison.
type Malformed struct {
	Side   diff.Side `json:"side"`
	Index  int       `json:"index"`
	Reason string    `json:"reason"`
}

// Warning describes a record that was compared but needed a fallback.
type Warning struct {
	Side    diff.Side `json:"side"`
	Index   int       `json:"index"`
	Message string    `json:"message"`
}

// Report summarises one sync attempt. It is always returned, also when the
// run stopped early.
type Report struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Source      string       `json:"source"`
	Policy      state.Policy `json:"policy"`
	StateOrigin state.Origin `json:"state_origin,omitempty"`
	StateError  string       `json:"state_error,omitempty"`
	DryRun      bool         `json:"dry_run,omitempty"`

	Current   int         `json:"current"`
	LastKnown int         `json:"last_known"`
	Malformed []Malformed `json:"malformed,omitempty"`
	Warnings  []Warning   `json:"warnings,omitempty"`
	Added     int         `json:"added"`
	Removed   int         `json:"removed"`
	NoChanges bool        `json:"no_changes"`
	Items     []Item      `json:"items,omitempty"`

	ListError   string `json:"list_error,omitempty"`
	Committed   bool   `json:"committed"`
	CommitError string `json:"commit_error,omitempty"`

	// Fatal is set when the run could not start, e.g. the task source was
	// unreadable. Nothing was changed remotely or locally.
	Fatal string `json:"fatal,omitempty"`
}

// Count returns how many items ended with outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed reports whether anything in the run did not go through: a fatal
// error, a failed list, commit, create or delete.
func (r *Report) Failed() bool {
	if r.Fatal != "" || r.ListError != "" || r.CommitError != "" {
		return true
	}
	return r.Count(CreateFailed)+r.Count(DeleteFailed)+r.Count(Unresolved) > 0
}

// Summary is a one-line human description.
func (r *Report) Summary() string {
	if r.Fatal != "" {
		return "sync aborted: " + r.Fatal
	}
	if r.NoChanges {
		return "no changes"
	}
	var parts []string
	for _, o := range []Outcome{Created, CreateFailed, Deleted, DeleteFailed, Skipped, Unresolved, Planned} {
		if n := r.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	s := fmt.Sprintf("+%d/-%d", r.Added, r.Removed)
	if len(parts) > 0 {
		s += ": " + strings.Join(parts, ", ")
	}
	if r.CommitError != "" {
		s += "; state not saved"
	}
	return s
}

// Err returns nil for a clean run, ErrPartial (wrapped with the summary) for
// a run with failures, and a plain error for a run that never started.
func (r *Report) Err() error {
	switch {
	case r.Fatal != "":
		return errors.New(r.Summary())
	case r.Failed():
		return fmt.Errorf("%w: %s", ErrPartial, r.Summary())
	}
	return nil
}

// Markdown renders the report for a chat card.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", r.Summary())
	if r.Fatal == "" {
		fmt.Fprintf(&b, "current %d, last known %d (%s)\n", r.Current, r.LastKnown, r.StateOrigin)
	}
	for _, it := range r.Items {
		line := fmt.Sprintf("- %s %s @ %s", it.Outcome, it.Title, it.Start.Format("2006-01-02 15:04 MST"))
		if it.Error != "" {
			line += ": " + it.Error
		}
		b.WriteString(line + "\n")
	}
	if len(r.Malformed) > 0 {
		fmt.Fprintf(&b, "%d malformed task(s) skipped\n", len(r.Malformed))
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "%d task(s) with an unreadable end time\n", len(r.Warnings))
	}
	if r.CommitError != "" {
		fmt.Fprintf(&b, "state not saved: %s\n", r.CommitError)
	}
	if r.DryRun {
		b.WriteString("_dry run, nothing changed_\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Theme picks a card header colour for the report.
func (r *Report) Theme() string {
	switch {
	case r.Fatal != "":
		return "red"
	case r.Failed():
		return "orange"
	case r.NoChanges:
		return "grey"
	}
	return "green"
}
