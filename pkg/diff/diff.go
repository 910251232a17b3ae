// Package diff compares two task snapshots by fingerprint.
package diff

import (
	"sort"
	"time"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

// Side names the snapshot a record came from.
type Side string

const (
	Current   Side = "current"
	LastKnown Side = "last-known"
)

// Skipped is a record left out of the comparison because it did not
// normalize.
type Skipped struct {
	Side   Side
	Index  int
	Record schedule.Record
	Err    error
}

// Warning is a record that was compared but needed a fallback, such as an
// end time that could not be read.
type Warning struct {
	Side    Side
	Index   int
	Message string
}

// Result is the delta between a current and a last-known snapshot.
type Result struct {
	Added    map[schedule.Fingerprint]schedule.Record
	Removed  map[schedule.Fingerprint]schedule.Record
	Skipped  []Skipped
	Warnings []Warning
}

// Empty reports whether nothing was added or removed.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// AddedKeys returns the added fingerprints ordered by start then title. The
// order is only for stable logs; nothing depends on it.
func (r Result) AddedKeys() []schedule.Fingerprint { return sortedKeys(r.Added) }

// RemovedKeys returns the removed fingerprints ordered by start then title.
func (r Result) RemovedKeys() []schedule.Fingerprint { return sortedKeys(r.Removed) }

// Index maps fingerprint to record for one snapshot. Records that fail to
// normalize are returned separately, as are warnings for records that were
// kept. A later record with the same fingerprint replaces an earlier one.
func Index(n schedule.Normalizer, side Side, snap schedule.Snapshot) (map[schedule.Fingerprint]schedule.Record, []Skipped, []Warning) {
	m := make(map[schedule.Fingerprint]schedule.Record, len(snap))
	var skipped []Skipped
	var warnings []Warning
	for i, rec := range snap {
		task, err := n.Normalize(rec)
		if err != nil {
			skipped = append(skipped, Skipped{Side: side, Index: i, Record: rec, Err: err})
			continue
		}
		if task.EndWarning != "" {
			warnings = append(warnings, Warning{Side: side, Index: i, Message: task.EndWarning})
		}
		m[task.Fingerprint()] = rec
	}
	return m, skipped, warnings
}

// Compute returns the fingerprints present in current but not in last
// (Added) and those present in last but not in current (Removed).
func Compute(n schedule.Normalizer, current, last schedule.Snapshot) Result {
	curr, skippedCurr, warnCurr := Index(n, Current, current)
	prev, skippedPrev, warnPrev := Index(n, LastKnown, last)

	res := Result{
		Added:    make(map[schedule.Fingerprint]schedule.Record),
		Removed:  make(map[schedule.Fingerprint]schedule.Record),
		Skipped:  append(skippedCurr, skippedPrev...),
		Warnings: append(warnCurr, warnPrev...),
	}
	for fp, rec := range curr {
		if _, ok := prev[fp]; !ok {
			res.Added[fp] = rec
		}
	}
	for fp, rec := range prev {
		if _, ok := curr[fp]; !ok {
			res.Removed[fp] = rec
		}
	}
	return res
}

// Window returns the smallest [min-pad, max+pad] range covering every
// fingerprint's start. ok is false when fps is empty.
func Window(fps []schedule.Fingerprint, pad time.Duration) (from, to time.Time, ok bool) {
	if len(fps) == 0 {
		return time.Time{}, time.Time{}, false
	}
	lo, hi := fps[0].Unix, fps[0].Unix
	for _, fp := range fps[1:] {
		if fp.Unix < lo {
			lo = fp.Unix
		}
		if fp.Unix > hi {
			hi = fp.Unix
		}
	}
	return time.Unix(lo, 0).Add(-pad), time.Unix(hi, 0).Add(pad), true
}

func sortedKeys(m map[schedule.Fingerprint]schedule.Record) []schedule.Fingerprint {
	keys := make([]schedule.Fingerprint, 0, len(m))
	for fp := range m {
		keys = append(keys, fp)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
