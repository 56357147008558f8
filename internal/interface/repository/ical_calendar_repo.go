package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/internal/domain/repository"
	"nestcheckout-service/pkg/logger"
)

// ICalCalendarRepository fetches the booking calendar feed over HTTP and
// parses it into calendar entries.
type ICalCalendarRepository struct {
	feedURL string
	client  *http.Client
	logger  logger.Logger
}

// NewICalCalendarRepository creates a calendar feed repository. webcal://
// URLs are accepted and rewritten to https://.
func NewICalCalendarRepository(feedURL string, logger logger.Logger) repository.CalendarFeed {
	return &ICalCalendarRepository{
		feedURL: strings.Replace(feedURL, "webcal://", "https://", 1),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Fetch retrieves and parses the feed. Fetch and parse failures come back
// as *entity.FeedError so the caller can skip the tick.
func (r *ICalCalendarRepository) Fetch(ctx context.Context) ([]entity.CalendarEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, nil)
	if err != nil {
		return nil, &entity.FeedError{Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &entity.FeedError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &entity.FeedError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.FeedError{Err: err}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &entity.FeedError{Err: fmt.Errorf("parse calendar: %w", err)}
	}

	entries := make([]entity.CalendarEntry, 0)
	for _, ve := range cal.Events() {
		entry, perr := r.parseVEvent(ve)
		if perr != nil {
			// A single malformed event never poisons the feed.
			r.logger.Warn("Skipping malformed calendar entry", "error", perr)
			continue
		}
		entries = append(entries, entry)
	}

	r.logger.Debug("Calendar feed parsed", "entries", len(entries))
	return entries, nil
}

func (r *ICalCalendarRepository) parseVEvent(ve *ical.VEvent) (entity.CalendarEntry, error) {
	var entry entity.CalendarEntry

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		entry.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		entry.Description = unescapeText(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return entry, &entity.PolicyError{Summary: entry.Summary, Err: errors.New("missing DTSTART")}
	}

	start, err := parseICSTime(dtStart)
	if err != nil {
		return entry, &entity.PolicyError{Summary: entry.Summary, Err: err}
	}
	entry.Start = start

	// Missing DTEND defaults the event duration to one hour.
	entry.End = start.Add(time.Hour)
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := parseICSTime(dtEnd); err == nil {
			entry.End = end
		}
	}

	return entry, nil
}

// parseICSTime normalizes a DTSTART/DTEND property to an absolute UTC
// instant. Naive date-times are assumed UTC; date-only values anchor to
// midnight UTC; TZID-qualified values are converted from their zone.
func parseICSTime(prop *ical.IANAProperty) (time.Time, error) {
	value := strings.TrimSpace(prop.Value)
	if value == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if tzids, ok := prop.ICalParameters["TZID"]; ok && len(tzids) > 0 {
		if loc, err := time.LoadLocation(tzids[0]); err == nil {
			if t, err := time.ParseInLocation("20060102T150405", value, loc); err == nil {
				return t.UTC(), nil
			}
		}
	}

	if strings.HasSuffix(value, "Z") {
		return time.Parse("20060102T150405Z", value)
	}
	if strings.Contains(value, "T") {
		return time.ParseInLocation("20060102T150405", value, time.UTC)
	}
	return time.ParseInLocation("20060102", value, time.UTC)
}

// unescapeText undoes iCalendar TEXT escaping for the characters that
// matter to the labeled-field parser.
func unescapeText(s string) string {
	replacer := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return replacer.Replace(s)
}
