package orgmode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

// Source turns the active, timed entries of a set of Org files into
// schedule records.
type Source struct {
	Files []string
	// Tag, when set, keeps only entries carrying it.
	Tag    string
	Logger *log.Logger
}

func NewSource(files []string, tag string) *Source {
	return &Source{Files: files, Tag: tag}
}

func (s *Source) Name() string {
	return "orgmode:" + strings.Join(s.Files, ",")
}

// Load fails if any file cannot be read.
func (s *Source) Load(ctx context.Context) (schedule.Snapshot, error) {
	if len(s.Files) == 0 {
		return nil, fmt.Errorf("no org files configured")
	}
	var snap schedule.Snapshot
	for _, path := range s.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := parseFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read org file %s: %w", path, err)
		}
		for _, e := range entries {
			if !e.Active() || (s.Tag != "" && !e.HasTag(s.Tag)) {
				continue
			}
			r, ok := ToRecord(e)
			if !ok {
				s.logf("Skipping %q in %s: no time of day", e.Title, path)
				continue
			}
			snap = append(snap, r)
		}
	}
	if snap == nil {
		snap = schedule.Snapshot{}
	}
	return snap, nil
}

func (s *Source) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func parseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

var priorities = map[string]string{"A": "high", "B": "medium", "C": "low"}

// ToRecord maps an entry to a date/time-range record. Entries without a
// clock time are not placed on the calendar.
func ToRecord(e Entry) (schedule.Record, bool) {
	if e.Date == "" || e.Clock == "" {
		return schedule.Record{}, false
	}
	r := schedule.Record{
		Task:     e.Title,
		Date:     e.Date,
		Time:     e.Clock,
		Desc:     strings.Join(e.Body, "\n"),
		Priority: priorities[e.Priority],
	}
	if e.ID != "" {
		id, _ := json.Marshal(e.ID)
		r.Extra = map[string]json.RawMessage{"org_id": id}
	}
	return r, true
}
