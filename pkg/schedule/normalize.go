package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDuration is applied when a task has a start but no end.
const DefaultDuration = time.Hour

// ErrMalformed is matched by every normalization failure.
var ErrMalformed = errors.New("malformed task")

// MalformedError explains why a record could not be normalized.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed task: %s", e.Reason)
	}
	return fmt.Sprintf("malformed task: %s: %s", e.Field, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(field, format string, args ...any) error {
	return &MalformedError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Task is a normalized record with a guaranteed start.
type Task struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Priority    string
	// EndWarning is set when the end could not be read and End fell back
	// to Start + DefaultDuration.
	EndWarning string
}

// Normalizer converts records into Tasks. Zone is applied to timestamps that
// carry no offset of their own.
type Normalizer struct {
	Zone *time.Location
}

// FallbackZone is UTC+08:00, the zone naive timestamps are read in unless
// configured otherwise.
var FallbackZone = time.FixedZone("CST", 8*60*60)

// NewNormalizer returns a Normalizer for zone, or FallbackZone when nil.
func NewNormalizer(zone *time.Location) Normalizer {
	if zone == nil {
		zone = FallbackZone
	}
	return Normalizer{Zone: zone}
}

func (n Normalizer) zone() *time.Location {
	if n.Zone == nil {
		return FallbackZone
	}
	return n.Zone
}

// Normalize returns the canonical Task for r or an error matching
// ErrMalformed. Only the title and the start decide whether r is usable; a
// bad end is reported in Task.EndWarning. It never mutates r.
func (n Normalizer) Normalize(r Record) (Task, error) {
	if r.decodeErr != nil {
		return Task{}, &MalformedError{Reason: r.decodeErr.Error()}
	}
	title := r.Task
	if strings.TrimSpace(title) == "" {
		return Task{}, malformed(keyTask, "title is required")
	}

	tf, err := timeFields(r)
	if err != nil {
		return Task{}, err
	}

	start, err := ParseTimestamp(tf.start, n.zone())
	if err != nil {
		return Task{}, malformed(keyStartTime, "%v", err)
	}
	t := Task{
		Title:       title,
		Start:       start,
		End:         start.Add(DefaultDuration),
		Description: r.Body(),
		Priority:    r.Priority,
	}

	switch {
	case tf.endProblem != "":
		t.EndWarning = fmt.Sprintf("%s: %s; ending after %s", tf.endField, tf.endProblem, DefaultDuration)
	case tf.end != "":
		end, err := ParseTimestamp(tf.end, n.zone())
		if err != nil {
			t.EndWarning = fmt.Sprintf("%s: %v; ending after %s", tf.endField, err, DefaultDuration)
		} else {
			t.End = end
		}
	}
	return t, nil
}

type timeText struct {
	start, end string
	// endField names the key the end came from; endProblem is set when
	// the end is present but unusable before parsing.
	endField, endProblem string
}

// timeFields picks the start/end text for r. An explicit start_time wins
// over a date/time pair.
func timeFields(r Record) (timeText, error) {
	if r.StartTime != "" {
		return timeText{start: r.StartTime, end: r.EndTime, endField: keyEndTime}, nil
	}
	if r.Date == "" || r.Time == "" {
		return timeText{}, malformed(keyStartTime, "no start_time and no date/time pair")
	}

	parts := strings.Split(r.Time, "-")
	if len(parts) > 2 {
		return timeText{}, malformed(keyTime, "range %q has more than one '-'", r.Time)
	}
	from := padSeconds(strings.TrimSpace(parts[0]))
	if from == "" {
		return timeText{}, malformed(keyTime, "range %q has no start", r.Time)
	}
	tf := timeText{start: r.Date + "T" + from, endField: keyTime}
	if len(parts) == 2 {
		to := padSeconds(strings.TrimSpace(parts[1]))
		if to == "" {
			tf.endProblem = fmt.Sprintf("range %q has no end", r.Time)
		} else {
			tf.end = r.Date + "T" + to
		}
	}
	return tf, nil
}

// padSeconds turns a bare HH:MM into HH:MM:SS.
func padSeconds(clock string) string {
	if len(clock) == 5 {
		return clock + ":00"
	}
	return clock
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 style timestamp. When the text carries
// no offset, it is read in zone.
func ParseTimestamp(s string, zone *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
