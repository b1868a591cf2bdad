package model

import (
	"strings"
	"time"
)

// DefaultTitle is used when a source record carries no usable title.
const DefaultTitle = "Untitled event"

// Event is the canonical event record all downstream components consume.
// Start and End are in the configured display timezone and always satisfy
// End.After(Start); normalization enforces this, the encoder never does.
type Event struct {
	Title       string
	Location    string
	Description string
	URL         string

	AllDay bool

	Start time.Time
	End   time.Time
}

// Key identifies one occurrence for deduplication purposes. Two events with
// the same key are the same occurrence regardless of which capture produced
// them.
func (e Event) Key() string {
	return normalizeField(e.Title) + "\x00" +
		e.Start.UTC().Format(time.RFC3339) + "\x00" +
		normalizeField(e.Location)
}

func normalizeField(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Dedupe returns one representative per distinct identity key, preserving
// the order of first occurrence.
func Dedupe(events []Event) []Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		k := ev.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// Window is the requested date/time range the published artifact must
// represent. Overlap uses the half-open convention: an event abutting the
// window boundary (End == Window.Start) is excluded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ev overlaps the window.
func (w Window) Contains(ev Event) bool {
	return ev.Start.Before(w.End) && ev.End.After(w.Start)
}

// Filter returns the subset of events overlapping the window, in input order.
func (w Window) Filter(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if w.Contains(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Split divides the window into n equal consecutive sub-windows.
func (w Window) Split(n int) []Window {
	if n <= 0 {
		return nil
	}
	step := w.End.Sub(w.Start) / time.Duration(n)
	subs := make([]Window, 0, n)
	cur := w.Start
	for i := 0; i < n; i++ {
		next := cur.Add(step)
		if i == n-1 {
			next = w.End
		}
		subs = append(subs, Window{Start: cur, End: next})
		cur = next
	}
	return subs
}

// Coverage is the accumulated event range, derived on demand from the
// current canonical event set rather than stored.
type Coverage struct {
	EarliestStart time.Time
	LatestStart   time.Time
	Count         int
}

// CoverageOf computes coverage over events. A zero Count means the other
// fields are meaningless.
func CoverageOf(events []Event) Coverage {
	var c Coverage
	for _, ev := range events {
		if c.Count == 0 {
			c.EarliestStart = ev.Start
			c.LatestStart = ev.Start
		} else {
			if ev.Start.Before(c.EarliestStart) {
				c.EarliestStart = ev.Start
			}
			if ev.Start.After(c.LatestStart) {
				c.LatestStart = ev.Start
			}
		}
		c.Count++
	}
	return c
}

// ReachesBack reports whether accumulated events extend to or past the
// window start. An empty accumulation never satisfies coverage; stopping on
// an empty page would be premature.
func (c Coverage) ReachesBack(w Window) bool {
	if c.Count == 0 {
		return false
	}
	return !c.EarliestStart.After(w.Start)
}

// ReachesForward reports whether accumulated events extend to the window
// end. A small epsilon admits events landing exactly on the boundary
// instant.
func (c Coverage) ReachesForward(w Window) bool {
	if c.Count == 0 {
		return false
	}
	return !c.LatestStart.Before(w.End.Add(-time.Second))
}
