// Package syncer applies the difference between the current schedule and
// the last synced one to a remote calendar.
package syncer

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/lifeops/pkg/calendar"
	"github.com/harrisonrobin/lifeops/pkg/diff"
	"github.com/harrisonrobin/lifeops/pkg/schedule"
	"github.com/harrisonrobin/lifeops/pkg/source"
	"github.com/harrisonrobin/lifeops/pkg/state"
)

// DefaultDeletionPadding widens the list window around removed tasks.
const DefaultDeletionPadding = time.Hour

// Options tune an Executor. The zero value is usable.
type Options struct {
	// Policy applies when the state store cannot be read.
	Policy state.Policy
	// Marker identifies bot-owned events. Defaults to calendar.DefaultMarker.
	Marker string
	// Zone is the fallback zone for naive timestamps.
	Zone *time.Location
	// DeletionPadding is added on both sides of the deletion window.
	DeletionPadding time.Duration
	// CarryFailures keeps failed items out of the committed snapshot so the
	// next run retries them. When false the current snapshot is committed
	// as is.
	CarryFailures bool
	// DryRun logs the plan and changes nothing.
	DryRun bool
	Logger *log.Logger
}

// Executor runs sync attempts. It is not safe for concurrent use and does
// not guard against two processes sharing one state store.
type Executor struct {
	source   source.Source
	store    state.Store
	calendar calendar.Calendar
	opts     Options
	norm     schedule.Normalizer
	now      func() time.Time
}

// New wires an Executor.
func New(src source.Source, store state.Store, cal calendar.Calendar, opts Options) *Executor {
	if opts.Policy == "" {
		opts.Policy = state.DefaultPolicy
	}
	if opts.Marker == "" {
		opts.Marker = calendar.DefaultMarker
	}
	if opts.DeletionPadding <= 0 {
		opts.DeletionPadding = DefaultDeletionPadding
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Executor{
		source:   src,
		store:    store,
		calendar: cal,
		opts:     opts,
		norm:     schedule.NewNormalizer(opts.Zone),
		now:      time.Now,
	}
}

// Run performs one sync attempt. Per-item failures are recorded in the
// report and never stop the run.
func (e *Executor) Run(ctx context.Context) *Report {
	runID := uuid.NewString()
	base := e.opts.Logger
	logger := log.New(base.Writer(), base.Prefix()+"["+runID[:8]+"] ", base.Flags())

	rep := &Report{
		RunID:     runID,
		StartedAt: e.now(),
		Source:    e.source.Name(),
		Policy:    e.opts.Policy,
		DryRun:    e.opts.DryRun,
	}
	defer func() { rep.FinishedAt = e.now() }()

	logger.Printf("Starting sync from %s", rep.Source)

	current, err := e.source.Load(ctx)
	if err != nil {
		logger.Printf("Error loading current schedule: %v", err)
		rep.Fatal = err.Error()
		return rep
	}

	resolved := state.Resolve(ctx, e.store, current, e.opts.Policy, logger)
	rep.StateOrigin = resolved.Origin
	if resolved.LoadErr != nil {
		rep.StateError = resolved.LoadErr.Error()
	}
	rep.Current, rep.LastKnown = len(current), len(resolved.Snapshot)

	d := diff.Compute(e.norm, current, resolved.Snapshot)
	for _, s := range d.Skipped {
		logger.Printf("Skipping malformed task #%d in %s snapshot: %v", s.Index, s.Side, s.Err)
		rep.Malformed = append(rep.Malformed, Malformed{Side: s.Side, Index: s.Index, Reason: s.Err.Error()})
	}
	for _, w := range d.Warnings {
		logger.Printf("Warning: task #%d in %s snapshot: %s", w.Index, w.Side, w.Message)
		rep.Warnings = append(rep.Warnings, Warning{Side: w.Side, Index: w.Index, Message: w.Message})
	}
	rep.Added, rep.Removed = len(d.Added), len(d.Removed)
	logger.Printf("Diff: +%d new, -%d removed", rep.Added, rep.Removed)

	if d.Empty() {
		rep.NoChanges = true
		logger.Println("No changes detected.")
		e.commit(ctx, logger, rep, current)
		return rep
	}

	if e.opts.DryRun {
		for _, fp := range d.AddedKeys() {
			logger.Printf("Would add: %s", fp)
			rep.Items = append(rep.Items, newItem(fp, "create", Planned))
		}
		for _, fp := range d.RemovedKeys() {
			logger.Printf("Would delete: %s", fp)
			rep.Items = append(rep.Items, newItem(fp, "delete", Planned))
		}
		return rep
	}

	failedCreates := e.applyAdditions(ctx, logger, rep, d)
	carried := e.applyRemovals(ctx, logger, rep, d)

	next := current
	if e.opts.CarryFailures {
		next = e.nextSnapshot(current, failedCreates, carried)
	}
	e.commit(ctx, logger, rep, next)
	return rep
}

// applyAdditions creates one event per added fingerprint and returns the
// fingerprints whose create failed.
func (e *Executor) applyAdditions(ctx context.Context, logger *log.Logger, rep *Report, d diff.Result) map[schedule.Fingerprint]bool {
	failed := make(map[schedule.Fingerprint]bool)
	for _, fp := range d.AddedKeys() {
		task, err := e.norm.Normalize(d.Added[fp])
		if err != nil {
			// Unreachable: the fingerprint was derived from the same record.
			failed[fp] = true
			continue
		}

		logger.Printf("Adding: %s", fp)
		item := newItem(fp, "create", Created)
		id, err := e.calendar.CreateEvent(ctx, calendar.Payload(task, e.opts.Marker))
		if err != nil {
			logger.Printf("Error creating event %q: %v", task.Title, err)
			item.Outcome, item.Error = CreateFailed, err.Error()
			failed[fp] = true
		} else {
			item.EventID = id
		}
		rep.Items = append(rep.Items, item)
	}
	return failed
}

// applyRemovals lists the remote window covering every removed fingerprint
// once and deletes the managed events that match. It returns the last-known
// records whose deletion did not go through.
func (e *Executor) applyRemovals(ctx context.Context, logger *log.Logger, rep *Report, d diff.Result) schedule.Snapshot {
	keys := d.RemovedKeys()
	from, to, ok := diff.Window(keys, e.opts.DeletionPadding)
	if !ok {
		return nil
	}

	logger.Printf("Searching remote events between %s and %s for %d removed tasks",
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), len(keys))
	events, err := e.calendar.ListEvents(ctx, from, to)
	if err != nil {
		logger.Printf("Error listing remote events, %d deletions unresolved: %v", len(keys), err)
		rep.ListError = err.Error()
		carried := make(schedule.Snapshot, 0, len(keys))
		for _, fp := range keys {
			item := newItem(fp, "delete", Unresolved)
			item.Error = err.Error()
			rep.Items = append(rep.Items, item)
			carried = append(carried, d.Removed[fp])
		}
		return carried
	}

	remote := calendar.ManagedIndex(events, e.opts.Marker)
	var carried schedule.Snapshot
	for _, fp := range keys {
		item := newItem(fp, "delete", Deleted)
		id, found := remote[fp]
		if !found {
			logger.Printf("Skip delete: %s not found on remote", fp)
			item.Outcome = Skipped
			rep.Items = append(rep.Items, item)
			continue
		}

		item.EventID = id
		logger.Printf("Deleting: %s (ID: %s)", fp, id)
		if err := e.calendar.DeleteEvent(ctx, id); err != nil {
			if errors.Is(err, calendar.ErrNotFound) {
				logger.Printf("Skip delete: event %s already gone", id)
				item.Outcome = Skipped
			} else {
				logger.Printf("Error deleting event %s: %v", id, err)
				item.Outcome, item.Error = DeleteFailed, err.Error()
				carried = append(carried, d.Removed[fp])
			}
		}
		rep.Items = append(rep.Items, item)
	}
	return carried
}

// nextSnapshot is current without the records whose create failed, plus the
// last-known records whose deletion must be retried.
func (e *Executor) nextSnapshot(current schedule.Snapshot, failedCreates map[schedule.Fingerprint]bool, carried schedule.Snapshot) schedule.Snapshot {
	next := make(schedule.Snapshot, 0, len(current)+len(carried))
	for _, rec := range current {
		if fp, err := e.norm.Fingerprint(rec); err == nil && failedCreates[fp] {
			continue
		}
		next = append(next, rec)
	}
	return append(next, carried...)
}

func (e *Executor) commit(ctx context.Context, logger *log.Logger, rep *Report, snap schedule.Snapshot) {
	if e.opts.DryRun {
		return
	}
	logger.Printf("Updating state at %s", e.store.Location())
	if err := e.store.Commit(ctx, snap); err != nil {
		logger.Printf("Error saving state: %v", err)
		rep.CommitError = err.Error()
		return
	}
	rep.Committed = true
}
