// Package extract derives canonical events from raw captures, best-effort:
// a record that cannot be made sense of is skipped, never fatal.
package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	appLog "calharvest/internal/log"
	"calharvest/internal/model"
)

// Repair durations applied to records with a missing or inverted end.
const (
	missingEndDuration  = time.Hour
	invertedEndDuration = 30 * time.Minute
)

// Alternate key spellings per semantic field; first present, non-null value
// wins.
var (
	titleKeys       = []string{"title", "name", "summary", "subject"}
	startKeys       = []string{"start", "starts_at", "start_date", "start_time", "startDate", "dtstart", "begin", "from"}
	endKeys         = []string{"end", "ends_at", "end_date", "end_time", "endDate", "dtend", "finish", "to", "until"}
	locationKeys    = []string{"location", "venue", "place", "where"}
	descriptionKeys = []string{"description", "details", "body", "text"}
	urlKeys         = []string{"url", "link", "href", "permalink"}
	allDayKeys      = []string{"allDay", "all_day", "allday", "is_all_day", "fullDay"}
)

// FromPayloads normalizes every record found in the structured capture
// payloads into canonical events in the given display timezone. Unparsable
// payloads and records are skipped.
func FromPayloads(payloads [][]byte, loc *time.Location) []model.Event {
	events := make([]model.Event, 0)
	for i, payload := range payloads {
		records := decodeRecords(payload)
		if len(records) == 0 {
			continue
		}
		kept := 0
		for _, rec := range records {
			ev, ok := NormalizeRecord(rec, loc)
			if !ok {
				continue
			}
			events = append(events, ev)
			kept++
		}
		appLog.Debug("capture normalized", "capture", i, "records", len(records), "events", kept)
	}
	return events
}

// decodeRecords extracts the event record array from a capture payload. A
// payload may be the array itself or wrap it under "events" or "data".
func decodeRecords(payload []byte) []map[string]any {
	var root any
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil
	}

	candidates := []any{root}
	if obj, ok := root.(map[string]any); ok {
		candidates = append(candidates, obj["events"], obj["data"])
	}

	for _, cand := range candidates {
		arr, ok := cand.([]any)
		if !ok {
			continue
		}
		records := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

// NormalizeRecord converts one raw record into a canonical event. It returns
// false when the record has no parsable start, which discards the record.
func NormalizeRecord(rec map[string]any, loc *time.Location) (model.Event, bool) {
	start, ok := parseInstant(firstValue(rec, startKeys))
	if !ok {
		return model.Event{}, false
	}
	start = start.In(loc)

	end, haveEnd := parseInstant(firstValue(rec, endKeys))
	switch {
	case !haveEnd:
		end = start.Add(missingEndDuration)
	case !end.After(start):
		// Malformed source; favor producing a plausible event over failing
		// the harvest.
		end = start.Add(invertedEndDuration)
	default:
		end = end.In(loc)
	}

	title := stringValue(firstValue(rec, titleKeys))
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}

	return model.Event{
		Title:       title,
		Location:    stringValue(firstValue(rec, locationKeys)),
		Description: stringValue(firstValue(rec, descriptionKeys)),
		URL:         stringValue(firstValue(rec, urlKeys)),
		AllDay:      boolValue(firstValue(rec, allDayKeys)),
		Start:       start,
		End:         end,
	}, true
}

// firstValue resolves a semantic field by trying keys in order; the first
// present, non-null value wins.
func firstValue(rec map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// parseInstant accepts a numeric epoch-millisecond timestamp or an ISO-8601
// string, both interpreted as UTC instants.
func parseInstant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// boolValue reads a boolean-ish source field; absence or junk means false.
func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	case float64:
		return t == 1
	}
	return false
}
