// Package calendar reads the caller's primary Google Calendar with their
// delegated credential.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

const primaryCalendar = "primary"

// Client wraps the Calendar service for a single user.
type Client struct {
	svc *calendar.Service
	now func() time.Time
}

// NewClient takes an already authorized HTTP client. endpoint overrides the
// API base URL and is empty in production.
func NewClient(ctx context.Context, httpClient *http.Client, endpoint string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &Client{svc: svc, now: time.Now}, nil
}

// ListUpcoming returns raw events from now on, expanded and ordered by start.
func (c *Client) ListUpcoming(ctx context.Context, maxResults int64) ([]*calendar.Event, error) {
	events, err := c.svc.Events.List(primaryCalendar).
		TimeMin(c.now().UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translate(err)
	}
	if events.Items == nil {
		return []*calendar.Event{}, nil
	}
	return events.Items, nil
}

// Availability lists events overlapping [start, end) and renders them in the
// given IANA time zone. Zero bounds are left open.
func (c *Client) Availability(ctx context.Context, start, end time.Time, timezone string, maxResults int64) ([]model.CalendarEvent, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, apperrors.InvalidInput("timezone", "unknown time zone")
	}

	call := c.svc.Events.List(primaryCalendar).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx)
	if !start.IsZero() {
		call = call.TimeMin(start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		call = call.TimeMax(end.Format(time.RFC3339))
	}

	events, err := call.Do()
	if err != nil {
		return nil, translate(err)
	}

	out := make([]model.CalendarEvent, 0, len(events.Items))
	for _, event := range events.Items {
		if ev, ok := toCalendarEvent(event, loc); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// translate keeps Google's status and body so the browser can see why the
// call failed.
func translate(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		body := strings.TrimSpace(gErr.Body)
		if body == "" {
			body = gErr.Message
		}
		appErr := apperrors.External("google calendar", err)
		appErr.Message = "Google API error: " + body
		if gErr.Code != 0 {
			appErr = appErr.WithStatus(gErr.Code)
		}
		return appErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.External("google calendar", err)
}
