package model

type CalendarAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

type CalendarEvent struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description,omitempty"`
	Location         string             `json:"location,omitempty"`
	Status           string             `json:"status"`
	Organizer        string             `json:"organizer,omitempty"`
	Creator          string             `json:"creator,omitempty"`
	Created          string             `json:"created,omitempty"`
	Updated          string             `json:"updated,omitempty"`
	Attendees        []CalendarAttendee `json:"attendees"`
	HangoutLink      string             `json:"hangoutLink,omitempty"`
	HTMLLink         string             `json:"htmlLink,omitempty"`
	Recurrence       []string           `json:"recurrence,omitempty"`
	RecurringEventID string             `json:"recurringEventId,omitempty"`
	Start            string             `json:"start"`
	End              string             `json:"end"`
	AllDay           bool               `json:"allDay"`
}
