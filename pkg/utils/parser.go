package utils

import (
	"regexp"
	"strings"
)

// Calendar event descriptions carry labeled fields, one per line, e.g.
//
//	Reservation: HMFW5EYFCS
//	Property: Lakeside Cabin
//	Guest name: Jane Doe
var (
	reservationRe  = regexp.MustCompile(`(?i)Reservation:\s*([A-Z0-9]+)`)
	propertyNameRe = regexp.MustCompile(`Property:\s*(.+?)(?:\n|$)`)
	guestNameRe    = regexp.MustCompile(`Guest name:\s*(.+?)(?:\n|$)`)
)

// ExtractReservationID extracts the reservation identifier from an event
// description. The second return value is false when no labeled field is
// present.
func ExtractReservationID(description string) (string, bool) {
	match := reservationRe.FindStringSubmatch(description)
	if len(match) == 2 {
		return match[1], true
	}
	return "", false
}

// ExtractPropertyName extracts the property name from an event description.
func ExtractPropertyName(description string) string {
	match := propertyNameRe.FindStringSubmatch(description)
	if len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return "Unknown Property"
}

// ExtractGuestName extracts the guest name from an event description.
func ExtractGuestName(description string) string {
	match := guestNameRe.FindStringSubmatch(description)
	if len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return "Unknown Guest"
}

// ParseDeviceIDList splits a comma-separated device id list, dropping
// empty entries.
func ParseDeviceIDList(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
