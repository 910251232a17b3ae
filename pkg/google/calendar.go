// Package google implements the remote calendar on Google Calendar.
package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	lifecal "github.com/harrisonrobin/lifeops/pkg/calendar"
)

var errStopPaging = errors.New("stop paging")

// CalendarClient is a Google Calendar API client bound to one calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	timeZone   string
	attendees  []string
	logger     *log.Logger
}

var _ lifecal.Calendar = (*CalendarClient)(nil)

// NewCalendarClient wraps an existing service and calendar id.
func NewCalendarClient(srv *calendar.Service, calendarID string, cfg Config) *CalendarClient {
	return &CalendarClient{
		srv:        srv,
		calendarID: calendarID,
		timeZone:   cfg.TimeZone,
		attendees:  cfg.Attendees,
		logger:     cfg.Logger,
	}
}

// CalendarID returns the resolved calendar id.
func (c *CalendarClient) CalendarID() string { return c.calendarID }

// CreateEvent inserts an event and invites the configured attendees.
func (c *CalendarClient) CreateEvent(ctx context.Context, ev lifecal.NewEvent) (string, error) {
	event := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		ColorId:     priorityColor(ev.Priority),
		Start:       c.dateTime(ev.Start),
		End:         c.dateTime(ev.End),
	}
	for _, email := range c.attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	call := c.srv.Events.Insert(c.calendarID, event).Context(ctx)
	if len(event.Attendees) > 0 {
		call = call.SendUpdates("all")
	}
	created, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("unable to create event %q: %w", ev.Title, err)
	}
	return created.Id, nil
}

// ListEvents returns every event overlapping [from, to], following all
// result pages. Recurring events are expanded into instances.
func (c *CalendarClient) ListEvents(ctx context.Context, from, to time.Time) ([]lifecal.Event, error) {
	var out []lifecal.Event
	err := c.srv.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		MaxResults(250).
		Context(ctx).
		Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				ev, err := c.convert(item)
				if err != nil {
					if c.logger != nil {
						c.logger.Printf("Ignoring event %s: %v", item.Id, err)
					}
					continue
				}
				out = append(out, ev)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return out, nil
}

// DeleteEvent deletes an event. An event that is already gone yields
// lifecal.ErrNotFound.
func (c *CalendarClient) DeleteEvent(ctx context.Context, id string) error {
	err := c.srv.Events.Delete(c.calendarID, id).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return fmt.Errorf("event %s: %w", id, lifecal.ErrNotFound)
	}
	return fmt.Errorf("unable to delete event %s: %w", id, err)
}

func (c *CalendarClient) dateTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: c.timeZone,
	}
}

func (c *CalendarClient) convert(item *calendar.Event) (lifecal.Event, error) {
	start, err := c.instant(item.Start)
	if err != nil {
		return lifecal.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := c.instant(item.End)
	if err != nil {
		end = start
	}
	return lifecal.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Start:       start.Unix(),
		End:         end.Unix(),
	}, nil
}

// instant reads a timed or all-day EventDateTime. All-day dates are taken
// at midnight in the event's zone, else the client's zone, else UTC.
func (c *CalendarClient) instant(edt *calendar.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing time")
	}
	if edt.DateTime != "" {
		return time.Parse(time.RFC3339, edt.DateTime)
	}
	if edt.Date != "" {
		loc := time.UTC
		for _, name := range []string{edt.TimeZone, c.timeZone} {
			if name == "" {
				continue
			}
			if l, err := time.LoadLocation(name); err == nil {
				loc = l
				break
			}
		}
		return time.ParseInLocation("2006-01-02", edt.Date, loc)
	}
	return time.Time{}, fmt.Errorf("neither dateTime nor date set")
}

// priorityColor maps common priority spellings to Google event colours:
// Tomato for high, Banana for medium, Sage for low.
func priorityColor(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "h", "high", "urgent", "1", "p1":
		return "11"
	case "m", "medium", "2", "p2":
		return "5"
	case "l", "low", "3", "p3":
		return "2"
	}
	return ""
}
