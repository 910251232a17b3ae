package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/lifeops/pkg/auth"
)

// Scopes requested for the Google Calendar API.
var Scopes = []string{
	calendar.CalendarScope,
}

// Config selects and authenticates the Google calendar.
type Config struct {
	// CalendarName is the summary of the bot's calendar. It is created when
	// no calendar with that name exists.
	CalendarName string
	// TimeZone is an IANA zone name set on created events and on a newly
	// created calendar. Empty leaves it to Google.
	TimeZone string
	// Attendees are invited to every created event.
	Attendees []string
	Auth      auth.Config
	Logger    *log.Logger
}

// NewClient authenticates and resolves the configured calendar.
func NewClient(ctx context.Context, cfg Config) (*CalendarClient, error) {
	httpClient, err := auth.NewHTTPClient(ctx, cfg.Auth, Scopes)
	if err != nil {
		return nil, err
	}
	return NewClientWithHTTP(ctx, cfg, httpClient, nil)
}

// NewClientWithHTTP builds the client on an existing *http.Client. Extra
// options are appended, e.g. option.WithEndpoint for tests.
func NewClientWithHTTP(ctx context.Context, cfg Config, httpClient *http.Client, opts []option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	calendarID, err := ensureCalendar(ctx, srv, cfg)
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(srv, calendarID, cfg), nil
}

// ensureCalendar returns the id of the calendar named cfg.CalendarName,
// creating it if needed.
func ensureCalendar(ctx context.Context, srv *calendar.Service, cfg Config) (string, error) {
	if cfg.CalendarName == "" {
		return "", fmt.Errorf("calendar name is required")
	}

	var calendarID string
	err := srv.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if item.Summary == cfg.CalendarName {
				calendarID = item.Id
				return errStopPaging
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	if calendarID != "" {
		return calendarID, nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Printf("Calendar %q not found, creating it", cfg.CalendarName)
	}
	created, err := srv.Calendars.Insert(&calendar.Calendar{
		Summary:     cfg.CalendarName,
		Description: "Managed by lifeops",
		TimeZone:    cfg.TimeZone,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create calendar %q: %w", cfg.CalendarName, err)
	}
	return created.Id, nil
}
