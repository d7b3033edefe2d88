package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
)

const eventsJSON = `{
  "items": [
    {
      "id": "evt1",
      "summary": "Standup",
      "status": "confirmed",
      "organizer": {"email": "boss@example.com"},
      "creator": {"email": "boss@example.com"},
      "attendees": [{"email": "ada@example.com", "responseStatus": "accepted"}],
      "hangoutLink": "https://meet.google.com/abc",
      "start": {"dateTime": "2024-06-03T09:00:00Z"},
      "end": {"dateTime": "2024-06-03T09:15:00Z"}
    },
    {
      "id": "evt2",
      "start": {"date": "2024-06-04"},
      "end": {"date": "2024-06-05"}
    },
    {
      "id": "broken",
      "start": {}
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), server.Client(), server.URL+"/")
	require.NoError(t, err)
	return client
}

func TestListUpcoming(t *testing.T) {
	t.Run("queries from now in start order", func(t *testing.T) {
		var query map[string]string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"))
			query = map[string]string{
				"timeMin":      r.URL.Query().Get("timeMin"),
				"singleEvents": r.URL.Query().Get("singleEvents"),
				"orderBy":      r.URL.Query().Get("orderBy"),
				"maxResults":   r.URL.Query().Get("maxResults"),
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(eventsJSON))
		})
		fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		client.now = func() time.Time { return fixed }

		events, err := client.ListUpcoming(context.Background(), 25)
		require.NoError(t, err)
		assert.Len(t, events, 3)
		assert.Equal(t, "2024-06-01T12:00:00Z", query["timeMin"])
		assert.Equal(t, "true", query["singleEvents"])
		assert.Equal(t, "startTime", query["orderBy"])
		assert.Equal(t, "25", query["maxResults"])
	})

	t.Run("surfaces upstream body and status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"insufficient scopes"}}`))
		})

		_, err := client.ListUpcoming(context.Background(), 25)
		require.Error(t, err)

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeExternal, appErr.Code)
		assert.Equal(t, http.StatusForbidden, appErr.Status)
		assert.True(t, strings.HasPrefix(appErr.Message, "Google API error: "))
		assert.Contains(t, appErr.Message, "insufficient scopes")
	})

	t.Run("empty calendar is an empty list", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		})

		events, err := client.ListUpcoming(context.Background(), 25)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})
}

func TestAvailability(t *testing.T) {
	t.Run("normalizes events in the requested zone", func(t *testing.T) {
		var timeMin, timeMax string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			timeMin = r.URL.Query().Get("timeMin")
			timeMax = r.URL.Query().Get("timeMax")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(eventsJSON))
		})

		start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
		end := start.Add(7 * 24 * time.Hour)
		events, err := client.Availability(context.Background(), start, end, "Asia/Kolkata", 25)
		require.NoError(t, err)

		assert.Equal(t, "2024-06-03T00:00:00Z", timeMin)
		assert.Equal(t, "2024-06-10T00:00:00Z", timeMax)

		require.Len(t, events, 2)
		standup := events[0]
		assert.Equal(t, "Standup", standup.Title)
		assert.Equal(t, "2024-06-03T14:30:00+05:30", standup.Start)
		assert.Equal(t, "2024-06-03T14:45:00+05:30", standup.End)
		assert.Equal(t, "boss@example.com", standup.Organizer)
		require.Len(t, standup.Attendees, 1)
		assert.Equal(t, "accepted", standup.Attendees[0].ResponseStatus)
		assert.False(t, standup.AllDay)

		allDay := events[1]
		assert.Equal(t, "No Title", allDay.Title)
		assert.Equal(t, "confirmed", allDay.Status)
		assert.Equal(t, "2024-06-04T00:00:00+05:30", allDay.Start)
		assert.True(t, allDay.AllDay)
		assert.NotNil(t, allDay.Attendees)
	})

	t.Run("rejects unknown time zone", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		})

		_, err := client.Availability(context.Background(), time.Time{}, time.Time{}, "Mars/Olympus", 25)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})
}
