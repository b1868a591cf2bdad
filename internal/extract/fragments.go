package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	appLog "calharvest/internal/log"
	"calharvest/internal/model"
)

// Fragment is one loosely structured piece of page text, as pulled from the
// rendered markup by the page driver. Used only when no structured capture
// yields any events.
type Fragment struct {
	Title        string
	WhenText     string
	LocationText string
	Href         string
}

// Recognized whenText shapes, tried in order.
var (
	// "Wed 3 Sep 2025 09:00 - 10:30"
	timedWeekdayRe = regexp.MustCompile(`(?i)\b(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+(\d{1,2})\s+([a-z]+)\.?\s+(\d{4})\s+(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})`)
	// "3 Sep 2025 09:00 - 10:30"
	timedRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+([a-z]+)\.?\s+(\d{4})\s+(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})`)
	// "3 Sep 2025"
	dateOnlyRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+([a-z]+)\.?\s+(\d{4})\b`)

	dashVariants = strings.NewReplacer(
		"‐", "-", "‑", "-", "‒", "-",
		"–", "-", "—", "-", "―", "-",
		"−", "-",
	)
)

var monthsByName = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// FromFragments extracts canonical events from page text fragments. A
// fragment matching no known date shape is dropped; partial coverage is
// acceptable on this fallback path.
func FromFragments(fragments []Fragment, loc *time.Location) []model.Event {
	events := make([]model.Event, 0, len(fragments))
	for _, f := range fragments {
		ev, ok := fragmentEvent(f, loc)
		if !ok {
			appLog.Debug("fragment dropped, no date shape", "when", f.WhenText)
			continue
		}
		events = append(events, ev)
	}
	return events
}

func fragmentEvent(f Fragment, loc *time.Location) (model.Event, bool) {
	when := dashVariants.Replace(f.WhenText)

	title := strings.TrimSpace(f.Title)
	if title == "" {
		title = model.DefaultTitle
	}
	ev := model.Event{
		Title:    title,
		Location: strings.TrimSpace(f.LocationText),
		URL:      strings.TrimSpace(f.Href),
	}

	for _, re := range []*regexp.Regexp{timedWeekdayRe, timedRe} {
		m := re.FindStringSubmatch(when)
		if m == nil {
			continue
		}
		day, month, year, ok := parseDateParts(m[1], m[2], m[3])
		if !ok {
			continue
		}
		sh, _ := strconv.Atoi(m[4])
		sm, _ := strconv.Atoi(m[5])
		eh, _ := strconv.Atoi(m[6])
		em, _ := strconv.Atoi(m[7])

		ev.Start = time.Date(year, month, day, sh, sm, 0, 0, loc)
		ev.End = time.Date(year, month, day, eh, em, 0, 0, loc)
		if !ev.End.After(ev.Start) {
			ev.End = ev.Start.Add(invertedEndDuration)
		}
		return ev, true
	}

	if m := dateOnlyRe.FindStringSubmatch(when); m != nil {
		day, month, year, ok := parseDateParts(m[1], m[2], m[3])
		if !ok {
			return model.Event{}, false
		}
		// All-day: one calendar day with an exclusive end on the next.
		ev.AllDay = true
		ev.Start = time.Date(year, month, day, 0, 0, 0, 0, loc)
		ev.End = ev.Start.AddDate(0, 0, 1)
		return ev, true
	}

	return model.Event{}, false
}

func parseDateParts(dayStr, monthStr, yearStr string) (int, time.Month, int, bool) {
	month, ok := monthsByName[strings.ToLower(monthStr)[:min(3, len(monthStr))]]
	if !ok {
		return 0, 0, 0, false
	}
	day, _ := strconv.Atoi(dayStr)
	year, _ := strconv.Atoi(yearStr)
	if day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return day, month, year, true
}
