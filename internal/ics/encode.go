// Package ics maps canonical events to and from the iCalendar interchange
// format and validates an encoded artifact against its source.
package ics

import (
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calharvest/internal/model"
)

const prodID = "-//calharvest//harvest pipeline//EN"

var slugRuns = regexp.MustCompile(`[^a-z0-9]+`)

// slug lowercases a title and collapses non-alphanumeric runs to a single
// separator so the UID stays stable across runs of the same logical event.
func slug(title string) string {
	s := slugRuns.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "event"
	}
	return s
}

// UID derives the deterministic identifier for an event: the UTC start
// instant plus the title slug. Consumers can diff unchanged vs updated
// entries across runs.
func UID(ev model.Event) string {
	return ev.Start.UTC().Format("20060102T150405Z") + "-" + slug(ev.Title) + "@calharvest"
}

// Encode serializes window-filtered canonical events into an iCalendar
// artifact. Timed events carry UTC date-times; all-day events carry
// VALUE=DATE with the standard exclusive end (the canonical End is already
// the start of the day after, so the date is taken as-is, not bumped again).
// Empty optional fields are omitted rather than encoded as empty strings.
func Encode(events []model.Event) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	now := time.Now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(UID(ev))
		ve.SetDtStampTime(now)
		ve.SetSummary(ev.Title)

		if ev.AllDay {
			ve.SetAllDayStartAt(dateOnly(ev.Start))
			ve.SetAllDayEndAt(dateOnly(ev.End))
		} else {
			ve.SetStartAt(ev.Start.UTC())
			ve.SetEndAt(ev.End.UTC())
		}

		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.URL != "" {
			ve.SetURL(ev.URL)
		}
	}

	return []byte(cal.Serialize())
}

// dateOnly strips an instant to its calendar date in its own location, so an
// all-day midnight in the display timezone never shifts a day when
// serialized.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
