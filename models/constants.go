package models

// Queue entry statuses
const (
	QueueStatusQueued   = "queued"
	QueueStatusMatching = "matching"
	QueueStatusMatched  = "matched"
)

// Press statuses. Reciprocal holds walk holding -> ready -> matched;
// overlap-variant holds carry no target and start out pending.
const (
	PressStatusHolding   = "holding"
	PressStatusReady     = "ready"
	PressStatusPending   = "pending"
	PressStatusMatched   = "matched"
	PressStatusExpired   = "expired"
	PressStatusCancelled = "cancelled"
)

// Match statuses
const (
	MatchStatusPendingIntro = "pending_intro"
	MatchStatusOpen         = "open"
	MatchStatusEnded        = "ended"
)

// Session statuses
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// OTP challenge statuses
const (
	OtpStatusPending  = "pending"
	OtpStatusVerified = "verified"
	OtpStatusExpired  = "expired"
	OtpStatusFailed   = "failed"
)
