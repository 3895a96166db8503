package services

import (
	"sort"
	"strconv"

	"pulse_server/models"
)

// FocusConfig carries the protocol constants. Every participant's client and
// the server derive identical focus windows from the same config, so these are
// compiled in rather than per-deployment tunables.
type FocusConfig struct {
	MinHoldMs          int64
	FocusWindowMs      int64
	MaxPressDurationMs int64
	MinOverlapMs       int64
	QueueStaleAfterMs  int64
	SessionDurationMs  int64
	IntroDurationMs    int64
	ChatMessageTTLMs   int64
}

// DefaultFocusConfig mirrors the production constants.
var DefaultFocusConfig = FocusConfig{
	MinHoldMs:          1_500,
	FocusWindowMs:      3_000,
	MaxPressDurationMs: 6_000,
	MinOverlapMs:       350,
	QueueStaleAfterMs:  45_000,
	SessionDurationMs:  2 * 60 * 1000,
	IntroDurationMs:    1_000,
	ChatMessageTTLMs:   10 * 60 * 1000,
}

// FocusWindow is a fixed-length, globally-synchronized time slice. It is a
// value derived from wall time, never persisted.
type FocusWindow struct {
	ID         string `json:"id"`
	StartsAt   int64  `json:"startsAt"`
	EndsAt     int64  `json:"endsAt"`
	DurationMs int64  `json:"durationMs"`
}

// GetFocusWindow maps a unix-ms timestamp to its focus window.
func GetFocusWindow(now int64, config FocusConfig) FocusWindow {
	startsAt := (now / config.FocusWindowMs) * config.FocusWindowMs
	return FocusWindow{
		ID:         strconv.FormatInt(startsAt, 10),
		StartsAt:   startsAt,
		EndsAt:     startsAt + config.FocusWindowMs,
		DurationMs: config.FocusWindowMs,
	}
}

// SortQueueEntries orders entries by (joinedAt, queueEntryId): a stable total
// order that only changes when membership changes.
func SortQueueEntries(entries []models.QueueEntry) []models.QueueEntry {
	sorted := make([]models.QueueEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].JoinedAt != sorted[j].JoinedAt {
			return sorted[i].JoinedAt < sorted[j].JoinedAt
		}
		return sorted[i].QueueEntryID < sorted[j].QueueEntryID
	})
	return sorted
}

// CandidateCycle returns the sorted candidate ring excluding the participant
// itself.
func CandidateCycle(entries []models.QueueEntry, selfID string) []models.QueueEntry {
	cycle := make([]models.QueueEntry, 0, len(entries))
	for _, entry := range SortQueueEntries(entries) {
		if entry.QueueEntryID == selfID {
			continue
		}
		cycle = append(cycle, entry)
	}
	return cycle
}

// GetFocusTarget picks the participant selfID is focused on this window:
// the ring rotates one step per window, visiting every candidate once per
// len(cycle) windows. Returns nil when no other candidate exists.
func GetFocusTarget(entries []models.QueueEntry, selfID string, now int64, config FocusConfig) *models.QueueEntry {
	cycle := CandidateCycle(entries, selfID)
	if len(cycle) == 0 {
		return nil
	}
	windowIndex := now / config.FocusWindowMs
	target := cycle[int(windowIndex%int64(len(cycle)))]
	return &target
}

// ClampPressEnd bounds a press end so a hold never counts for more than
// MaxPressDurationMs.
func ClampPressEnd(startedAt, end int64, config FocusConfig) int64 {
	maxEnd := startedAt + config.MaxPressDurationMs
	if end > maxEnd {
		return maxEnd
	}
	return end
}

// HoldProgress reports how far a hold is toward the minimum duration.
type HoldProgress struct {
	ProgressMs    int64   `json:"progressMs"`
	ProgressRatio float64 `json:"progressRatio"`
}

// GetHoldProgress computes elapsed hold time and its ratio of MinHoldMs,
// capped at 1.
func GetHoldProgress(now, startAt int64, config FocusConfig) HoldProgress {
	progressMs := now - startAt
	if progressMs < 0 {
		progressMs = 0
	}
	ratio := float64(progressMs) / float64(config.MinHoldMs)
	if ratio > 1 {
		ratio = 1
	}
	return HoldProgress{ProgressMs: progressMs, ProgressRatio: ratio}
}

// CanCommitHoldWithinWindow reports whether a hold that started at
// pressStartedAt can still reach the minimum duration before the window ends.
func CanCommitHoldWithinWindow(pressStartedAt, windowEndsAt int64, config FocusConfig) bool {
	return pressStartedAt+config.MinHoldMs <= windowEndsAt
}

// Interval is a closed-open time span in unix milliseconds.
type Interval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Overlap is the intersection of two hold intervals.
type Overlap struct {
	Start     int64 `json:"start"`
	End       int64 `json:"end"`
	OverlapMs int64 `json:"overlapMs"`
}

// IntervalOverlap returns the intersection of two intervals and its length,
// or nil when they do not overlap. Symmetric in its arguments.
func IntervalOverlap(a, b Interval) *Overlap {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	overlapMs := end - start
	if overlapMs <= 0 {
		return nil
	}
	return &Overlap{Start: start, End: end, OverlapMs: overlapMs}
}
