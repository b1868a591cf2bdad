package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "calharvest/internal/log"
	"calharvest/internal/model"
)

// occurrenceCap bounds recurrence expansion per VEVENT.
const occurrenceCap = 5000

// Decode parses an iCalendar artifact back into canonical events anchored in
// the display timezone. VEVENTs carrying an RRULE are expanded into concrete
// occurrences intersecting the window, so per-occurrence counting stays
// honest even for artifacts that grew recurrences downstream. Individual
// malformed VEVENTs are logged and skipped.
func Decode(body []byte, loc *time.Location, window model.Window) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty artifact body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		evs, derr := decodeVEvent(ve, loc, window)
		if derr != nil {
			appLog.Error("ics vevent decode failed", derr, "uid", veUID(ve))
			continue
		}
		events = append(events, evs...)
	}
	return events, nil
}

func veUID(ve *ical.VEvent) string {
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}

func decodeVEvent(ve *ical.VEvent, loc *time.Location, window model.Window) ([]model.Event, error) {
	base := model.Event{Title: model.DefaultTitle}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		base.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		base.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		base.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		base.URL = p.Value
	}

	start, end, allDay, err := eventTimes(ve, loc)
	if err != nil {
		return nil, err
	}
	base.AllDay = allDay
	base.Start = start
	base.End = end

	rawRRule := ""
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}
	if rawRRule == "" {
		return []model.Event{base}, nil
	}

	// Recurring entry: expand into concrete occurrences inside the window,
	// each keeping the base duration.
	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)

	times := set.Between(window.Start.In(start.Location()), window.End.In(start.Location()), true)
	if len(times) > occurrenceCap {
		times = times[:occurrenceCap]
	}

	dur := end.Sub(start)
	out := make([]model.Event, 0, len(times))
	for _, occStart := range times {
		occ := base
		occ.Start = occStart.In(loc)
		occ.End = occ.Start.Add(dur)
		out = append(out, occ)
	}
	return out, nil
}

// eventTimes resolves DTSTART/DTEND. All-day entries (VALUE=DATE or a value
// with no time part) are re-anchored to midnight in the display timezone so
// they compare cleanly with the harvested canonical set; a missing all-day
// DTEND defaults to the exclusive next day.
func eventTimes(ve *ical.VEvent, loc *time.Location) (time.Time, time.Time, bool, error) {
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return time.Time{}, time.Time{}, false, errors.New("missing DTSTART")
	}

	allDay := !strings.Contains(dtStart.Value, "T")
	if params := dtStart.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
	}

	if allDay {
		start, err := parseICSDate(dtStart.Value, loc)
		if err != nil {
			return time.Time{}, time.Time{}, false, err
		}
		end := start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
			if e, err := parseICSDate(dtEnd.Value, loc); err == nil {
				end = e
			}
		}
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		return start, end, true, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start.Add(time.Hour)
	}
	start = start.In(loc)
	end = end.In(loc)
	if !end.After(start) {
		end = start.Add(time.Hour)
	}
	return start, end, false, nil
}

// parseICSDate parses a DATE value (20060102) at midnight in loc.
func parseICSDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	return time.ParseInLocation("20060102", v, loc)
}
