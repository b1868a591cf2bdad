package model

import (
	"testing"
	"time"
)

func ts(h int) time.Time {
	return time.Date(2025, 9, 1, h, 0, 0, 0, time.UTC)
}

func TestKey_IgnoresCaseAndSpacing(t *testing.T) {
	a := Event{Title: "Morning  Assembly", Location: "Main Hall", Start: ts(8), End: ts(9)}
	b := Event{Title: "morning assembly", Location: "main  hall", Start: ts(8), End: ts(9)}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}

func TestKey_DistinguishesStart(t *testing.T) {
	a := Event{Title: "Assembly", Start: ts(8), End: ts(9)}
	b := Event{Title: "Assembly", Start: ts(9), End: ts(10)}
	if a.Key() == b.Key() {
		t.Errorf("events at different times share a key")
	}
}

func TestDedupe_PreservesFirstOccurrenceOrder(t *testing.T) {
	events := []Event{
		{Title: "B", Start: ts(10), End: ts(11)},
		{Title: "A", Start: ts(8), End: ts(9)},
		{Title: "B", Start: ts(10), End: ts(11)},
		{Title: "C", Start: ts(12), End: ts(13)},
		{Title: "A", Start: ts(8), End: ts(9)},
	}
	got := Dedupe(events)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Title != "B" || got[1].Title != "A" || got[2].Title != "C" {
		t.Errorf("order = %s %s %s, want B A C", got[0].Title, got[1].Title, got[2].Title)
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	events := []Event{
		{Title: "A", Start: ts(8), End: ts(9)},
		{Title: "B", Start: ts(10), End: ts(11)},
	}
	once := Dedupe(events)
	twice := Dedupe(once)
	if len(once) != len(twice) {
		t.Fatalf("dedupe not idempotent: %d vs %d", len(once), len(twice))
	}
	// events ++ events collapses back to events.
	doubled := Dedupe(append(append([]Event{}, events...), events...))
	if len(doubled) != len(events) {
		t.Errorf("dedupe(events ++ events) = %d events, want %d", len(doubled), len(events))
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: ts(9), End: ts(17)}

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"inside", ts(10), ts(11), true},
		{"straddles start", ts(8), ts(10), true},
		{"straddles end", ts(16), ts(18), true},
		{"spans whole window", ts(8), ts(18), true},
		{"fully before", ts(6), ts(7), false},
		{"fully after", ts(18), ts(19), false},
		{"abuts start", ts(8), ts(9), false},
		{"abuts end", ts(17), ts(18), false},
		{"starts on end boundary", ts(17), ts(19), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Event{Title: "x", Start: tc.start, End: tc.end}
			if got := w.Contains(ev); got != tc.want {
				t.Errorf("Contains(%s..%s) = %v, want %v", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestWindow_Filter(t *testing.T) {
	w := Window{Start: ts(9), End: ts(17)}
	events := []Event{
		{Title: "in", Start: ts(10), End: ts(11)},
		{Title: "out", Start: ts(18), End: ts(19)},
	}
	got := w.Filter(events)
	if len(got) != 1 || got[0].Title != "in" {
		t.Errorf("filter = %v", got)
	}
}

func TestWindow_Split(t *testing.T) {
	w := Window{
		Start: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
	}
	subs := w.Split(2)
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}
	mid := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	if !subs[0].End.Equal(mid) || !subs[1].Start.Equal(mid) {
		t.Errorf("split boundary = %s / %s, want %s", subs[0].End, subs[1].Start, mid)
	}
	if !subs[0].Start.Equal(w.Start) || !subs[1].End.Equal(w.End) {
		t.Errorf("split does not span the window: %v", subs)
	}
}

func TestCoverageOf_Empty(t *testing.T) {
	c := CoverageOf(nil)
	if c.Count != 0 {
		t.Errorf("count = %d, want 0", c.Count)
	}
	w := Window{Start: ts(0), End: ts(23)}
	if c.ReachesBack(w) || c.ReachesForward(w) {
		t.Errorf("empty coverage must never satisfy the window")
	}
}

func TestCoverage_Reaches(t *testing.T) {
	w := Window{Start: ts(9), End: ts(17)}

	c := CoverageOf([]Event{
		{Title: "a", Start: ts(9), End: ts(10)},
		{Title: "b", Start: ts(17), End: ts(18)},
	})
	if !c.ReachesBack(w) {
		t.Errorf("earliest start %s should reach window start %s", c.EarliestStart, w.Start)
	}
	if !c.ReachesForward(w) {
		t.Errorf("latest start %s (with epsilon) should reach window end %s", c.LatestStart, w.End)
	}

	short := CoverageOf([]Event{{Title: "a", Start: ts(12), End: ts(13)}})
	if short.ReachesBack(w) || short.ReachesForward(w) {
		t.Errorf("single mid-window event should not prove coverage")
	}
}
