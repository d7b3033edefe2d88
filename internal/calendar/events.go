package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teknolabs/vocameet-server/internal/model"
)

const dateLayout = "2006-01-02"

// toCalendarEvent skips events without a usable start or end.
func toCalendarEvent(e *calendar.Event, loc *time.Location) (model.CalendarEvent, bool) {
	start, allDay, ok := parseEventTime(e.Start, loc)
	if !ok {
		return model.CalendarEvent{}, false
	}
	end, _, ok := parseEventTime(e.End, loc)
	if !ok {
		return model.CalendarEvent{}, false
	}

	ev := model.CalendarEvent{
		ID:               e.Id,
		Title:            e.Summary,
		Description:      e.Description,
		Location:         e.Location,
		Status:           e.Status,
		Created:          e.Created,
		Updated:          e.Updated,
		Attendees:        make([]model.CalendarAttendee, 0, len(e.Attendees)),
		HangoutLink:      e.HangoutLink,
		HTMLLink:         e.HtmlLink,
		Recurrence:       e.Recurrence,
		RecurringEventID: e.RecurringEventId,
		Start:            start.Format(time.RFC3339),
		End:              end.Format(time.RFC3339),
		AllDay:           allDay,
	}
	if ev.Title == "" {
		ev.Title = "No Title"
	}
	if ev.Status == "" {
		ev.Status = "confirmed"
	}
	if e.Organizer != nil {
		ev.Organizer = e.Organizer.Email
	}
	if e.Creator != nil {
		ev.Creator = e.Creator.Email
	}
	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, model.CalendarAttendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return ev, true
}

// parseEventTime reads dateTime, falling back to an all-day date, which is
// taken as midnight in loc.
func parseEventTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool, bool) {
	if dt == nil {
		return time.Time{}, false, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return t.In(loc), false, true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation(dateLayout, dt.Date, loc)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}
	return time.Time{}, false, false
}
