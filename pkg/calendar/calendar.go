// Package calendar defines what the sync engine needs from a remote
// calendar and how bot-created events are recognised.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

// DefaultMarker is appended to every event description the bot writes.
// Only events containing it are ever deleted.
const DefaultMarker = "[LifeOps Managed]"

// ErrNotFound is returned by DeleteEvent when the event is already gone.
var ErrNotFound = errors.New("event not found")

// NewEvent is the create payload.
type NewEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Priority    string
}

// Event is a remote event as returned by ListEvents. Start and End are Unix
// seconds.
type Event struct {
	ID          string
	Title       string
	Description string
	Start       int64
	End         int64
}

// Fingerprint returns the identity key of a remote event, comparable with
// local task fingerprints.
func (e Event) Fingerprint() schedule.Fingerprint {
	return schedule.FingerprintOf(time.Unix(e.Start, 0), e.Title)
}

// Calendar is the remote calendar capability. Each call may fail
// independently.
type Calendar interface {
	CreateEvent(ctx context.Context, ev NewEvent) (string, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Payload builds the create payload for a normalized task. The description
// is the task body followed by a blank line and marker, with a priority line
// in front when the task has one.
func Payload(t schedule.Task, marker string) NewEvent {
	desc := t.Description + "\n\n" + marker
	if t.Priority != "" {
		desc = fmt.Sprintf("Priority: %s\n", t.Priority) + desc
	}
	return NewEvent{
		Title:       t.Title,
		Description: desc,
		Start:       t.Start,
		End:         t.End,
		Priority:    t.Priority,
	}
}

// IsManaged reports whether description carries marker.
func IsManaged(description, marker string) bool {
	return marker != "" && strings.Contains(description, marker)
}

// ManagedIndex maps fingerprints of marker-bearing events to their ids.
// Events without the marker are never included.
func ManagedIndex(events []Event, marker string) map[schedule.Fingerprint]string {
	idx := make(map[schedule.Fingerprint]string, len(events))
	for _, ev := range events {
		if !IsManaged(ev.Description, marker) {
			continue
		}
		idx[ev.Fingerprint()] = ev.ID
	}
	return idx
}
