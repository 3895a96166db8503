package services

import (
	"testing"

	"pulse_server/models"
)

func TestGetFocusWindowBounds(t *testing.T) {
	config := DefaultFocusConfig

	w := GetFocusWindow(0, config)
	if w.ID != "0" || w.StartsAt != 0 || w.EndsAt != 3000 {
		t.Fatalf("unexpected window for t=0: %+v", w)
	}

	w = GetFocusWindow(3100, config)
	if w.ID != "3000" || w.StartsAt != 3000 || w.EndsAt != 6000 {
		t.Fatalf("unexpected window for t=3100: %+v", w)
	}

	for _, now := range []int64{1, 1499, 2999, 3000, 4500, 1_700_000_000_123} {
		w := GetFocusWindow(now, config)
		if now < w.StartsAt || now >= w.EndsAt {
			t.Fatalf("t=%d outside its window %+v", now, w)
		}
		if got := GetFocusWindow(w.StartsAt, config).ID; got != w.ID {
			t.Fatalf("window id unstable within window: %s vs %s", got, w.ID)
		}
		if got := GetFocusWindow(w.EndsAt-1, config).ID; got != w.ID {
			t.Fatalf("window id unstable at window end: %s vs %s", got, w.ID)
		}
	}
}

func makeEntries(ids ...string) []models.QueueEntry {
	entries := make([]models.QueueEntry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, models.QueueEntry{
			QueueEntryID: id,
			JoinedAt:     int64(1000 + i),
			IsActive:     true,
		})
	}
	return entries
}

func TestGetFocusTargetRotation(t *testing.T) {
	config := DefaultFocusConfig
	entries := makeEntries("a", "b", "c", "d")

	// Stable within a window.
	first := GetFocusTarget(entries, "a", 6000, config)
	second := GetFocusTarget(entries, "a", 8999, config)
	if first == nil || second == nil || first.QueueEntryID != second.QueueEntryID {
		t.Fatalf("target changed within one window: %v vs %v", first, second)
	}

	// Rotates across windows and visits every candidate once per cycle.
	seen := map[string]bool{}
	for i := int64(0); i < 3; i++ {
		target := GetFocusTarget(entries, "a", 6000+i*config.FocusWindowMs, config)
		if target == nil {
			t.Fatal("expected a target")
		}
		if target.QueueEntryID == "a" {
			t.Fatal("participant targeted itself")
		}
		seen[target.QueueEntryID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct targets over a full cycle, got %v", seen)
	}

	// Consecutive windows differ with more than one candidate.
	t0 := GetFocusTarget(entries, "a", 6000, config)
	t1 := GetFocusTarget(entries, "a", 6000+config.FocusWindowMs, config)
	if t0.QueueEntryID == t1.QueueEntryID {
		t.Fatalf("target did not rotate: %s", t0.QueueEntryID)
	}
}

func TestGetFocusTargetEdgeCases(t *testing.T) {
	config := DefaultFocusConfig

	if target := GetFocusTarget(makeEntries("a"), "a", 0, config); target != nil {
		t.Fatalf("expected no target when alone, got %v", target)
	}
	if target := GetFocusTarget(nil, "a", 0, config); target != nil {
		t.Fatalf("expected no target for empty pool, got %v", target)
	}

	// Two participants always target each other.
	entries := makeEntries("a", "b")
	for i := int64(0); i < 5; i++ {
		now := i * config.FocusWindowMs
		ta := GetFocusTarget(entries, "a", now, config)
		tb := GetFocusTarget(entries, "b", now, config)
		if ta.QueueEntryID != "b" || tb.QueueEntryID != "a" {
			t.Fatalf("pair did not target each other at t=%d: %s / %s", now, ta.QueueEntryID, tb.QueueEntryID)
		}
	}
}

func TestSortQueueEntriesStableOrder(t *testing.T) {
	entries := []models.QueueEntry{
		{QueueEntryID: "z", JoinedAt: 100},
		{QueueEntryID: "a", JoinedAt: 100},
		{QueueEntryID: "m", JoinedAt: 50},
	}
	sorted := SortQueueEntries(entries)
	got := []string{sorted[0].QueueEntryID, sorted[1].QueueEntryID, sorted[2].QueueEntryID}
	want := []string{"m", "a", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
	// Input untouched.
	if entries[0].QueueEntryID != "z" {
		t.Fatal("SortQueueEntries mutated its input")
	}
}

func TestCanCommitHoldWithinWindow(t *testing.T) {
	config := DefaultFocusConfig
	windowEnd := int64(6000)

	if !CanCommitHoldWithinWindow(4500, windowEnd, config) {
		t.Fatal("start+minHold == windowEnd should be committable")
	}
	if CanCommitHoldWithinWindow(4501, windowEnd, config) {
		t.Fatal("start+minHold > windowEnd should not be committable")
	}

	// Monotone decreasing in start.
	committable := true
	for start := int64(3000); start < 6000; start += 100 {
		ok := CanCommitHoldWithinWindow(start, windowEnd, config)
		if ok && !committable {
			t.Fatalf("committability not monotone at start=%d", start)
		}
		committable = ok
	}
}

func TestIntervalOverlap(t *testing.T) {
	a := Interval{Start: 1000, End: 2200}
	b := Interval{Start: 1600, End: 2600}

	overlap := IntervalOverlap(a, b)
	if overlap == nil || overlap.Start != 1600 || overlap.End != 2200 || overlap.OverlapMs != 600 {
		t.Fatalf("unexpected overlap: %+v", overlap)
	}

	// Symmetric.
	reversed := IntervalOverlap(b, a)
	if reversed == nil || *reversed != *overlap {
		t.Fatalf("overlap not symmetric: %+v vs %+v", overlap, reversed)
	}

	// Touching intervals do not overlap.
	if got := IntervalOverlap(Interval{Start: 0, End: 10}, Interval{Start: 10, End: 20}); got != nil {
		t.Fatalf("expected no overlap for touching intervals, got %+v", got)
	}
	if got := IntervalOverlap(Interval{Start: 0, End: 10}, Interval{Start: 50, End: 60}); got != nil {
		t.Fatalf("expected no overlap for disjoint intervals, got %+v", got)
	}
}

func TestGetHoldProgress(t *testing.T) {
	config := DefaultFocusConfig

	p := GetHoldProgress(1750, 1000, config)
	if p.ProgressMs != 750 || p.ProgressRatio != 0.5 {
		t.Fatalf("unexpected progress: %+v", p)
	}

	// Capped at 1.
	p = GetHoldProgress(10_000, 1000, config)
	if p.ProgressRatio != 1 {
		t.Fatalf("ratio not capped: %+v", p)
	}

	// Clock skew never yields negative progress.
	p = GetHoldProgress(500, 1000, config)
	if p.ProgressMs != 0 || p.ProgressRatio != 0 {
		t.Fatalf("negative progress not clamped: %+v", p)
	}
}

func TestClampPressEnd(t *testing.T) {
	config := DefaultFocusConfig
	start := int64(1000)

	if got := ClampPressEnd(start, 3000, config); got != 3000 {
		t.Fatalf("end within bound should pass through, got %d", got)
	}
	if got := ClampPressEnd(start, 100_000, config); got != start+config.MaxPressDurationMs {
		t.Fatalf("end not clamped: %d", got)
	}
}
