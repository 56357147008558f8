package repository

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/pkg/logger"
)

func icsDocument(events ...string) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Hospitable//Checkout Calendar//EN",
	}
	lines = append(lines, events...)
	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

func serveICS(t *testing.T, body string) *ICalCalendarRepository {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	return NewICalCalendarRepository(server.URL, logger.NewNop()).(*ICalCalendarRepository)
}

func TestFetch_ParsesTimedEvent(t *testing.T) {
	repo := serveICS(t, icsDocument(
		"BEGIN:VEVENT",
		"UID:evt-1",
		"DTSTART:20260830T100000Z",
		"DTEND:20260830T110000Z",
		"SUMMARY:Guest Check-out",
		"DESCRIPTION:Reservation: ABC123\\nTURN_OFF_THERMOSTATS",
		"END:VEVENT",
	))

	entries, err := repo.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), entry.Start)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC), entry.End)
	assert.Equal(t, "Guest Check-out", entry.Summary)
	assert.Equal(t, "Reservation: ABC123\nTURN_OFF_THERMOSTATS", entry.Description)
}

func TestFetch_NaiveTimesAssumedUTC(t *testing.T) {
	repo := serveICS(t, icsDocument(
		"BEGIN:VEVENT",
		"UID:evt-1",
		"DTSTART:20260830T100000",
		"DTEND:20260830T113000",
		"SUMMARY:Checkout",
		"END:VEVENT",
	))

	entries, err := repo.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), entries[0].Start)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC), entries[0].End)
}

func TestFetch_AllDayEventAnchorsToMidnightUTC(t *testing.T) {
	repo := serveICS(t, icsDocument(
		"BEGIN:VEVENT",
		"UID:evt-1",
		"DTSTART;VALUE=DATE:20260830",
		"DTEND;VALUE=DATE:20260831",
		"SUMMARY:Checkout",
		"END:VEVENT",
	))

	entries, err := repo.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), entries[0].Start)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), entries[0].End)
}

func TestFetch_MissingEndDefaultsToOneHour(t *testing.T) {
	repo := serveICS(t, icsDocument(
		"BEGIN:VEVENT",
		"UID:evt-1",
		"DTSTART:20260830T100000Z",
		"SUMMARY:Checkout",
		"END:VEVENT",
	))

	entries, err := repo.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entries[0].Start.Add(time.Hour), entries[0].End)
}

func TestFetch_SkipsEventWithoutStart(t *testing.T) {
	repo := serveICS(t, icsDocument(
		"BEGIN:VEVENT",
		"UID:evt-broken",
		"SUMMARY:No times at all",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:evt-ok",
		"DTSTART:20260830T100000Z",
		"SUMMARY:Checkout",
		"END:VEVENT",
	))

	entries, err := repo.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1, "malformed entry is skipped, sibling kept")
	assert.Equal(t, "Checkout", entries[0].Summary)
}

func TestFetch_HTTPErrorIsFeedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	repo := NewICalCalendarRepository(server.URL, logger.NewNop())
	_, err := repo.Fetch(context.Background())

	var feedErr *entity.FeedError
	require.ErrorAs(t, err, &feedErr)
}

func TestFetch_UnparseableBodyIsFeedError(t *testing.T) {
	repo := serveICS(t, "this is not an icalendar document")

	_, err := repo.Fetch(context.Background())

	var feedErr *entity.FeedError
	require.ErrorAs(t, err, &feedErr)
}

func TestNewICalCalendarRepository_RewritesWebcalScheme(t *testing.T) {
	repo := NewICalCalendarRepository("webcal://calendar.example.com/feed.ics", logger.NewNop()).(*ICalCalendarRepository)
	assert.Equal(t, "https://calendar.example.com/feed.ics", repo.feedURL)
}
