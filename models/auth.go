package models

// OtpChallenge is one phone verification attempt. The raw code is never
// stored, only sha256(phone:code:pepper).
type OtpChallenge struct {
	ChallengeID  string `dynamodbav:"challengeId" json:"challengeId"`
	PhoneE164    string `dynamodbav:"phoneE164" json:"phoneE164"`
	OtpCodeHash  string `dynamodbav:"otpCodeHash" json:"-"`
	Purpose      string `dynamodbav:"purpose" json:"purpose"`
	Status       string `dynamodbav:"status" json:"status"`
	AttemptCount int    `dynamodbav:"attemptCount" json:"attemptCount"`
	MaxAttempts  int    `dynamodbav:"maxAttempts" json:"maxAttempts"`
	ResendCount  int    `dynamodbav:"resendCount" json:"resendCount"`
	DeviceID     string `dynamodbav:"deviceId,omitempty" json:"deviceId,omitempty"`
	ExpiresAt    int64  `dynamodbav:"expiresAt" json:"expiresAt"`
	CreatedAt    int64  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    int64  `dynamodbav:"updatedAt" json:"updatedAt"`
}

// AuthUser is the upstream identity record keyed by phone number.
type AuthUser struct {
	AuthUserID string `dynamodbav:"authUserId" json:"authUserId"`
	PhoneE164  string `dynamodbav:"phoneE164" json:"phoneE164"`
	Status     string `dynamodbav:"status" json:"status"` // active, blocked, deleted
	CreatedAt  int64  `dynamodbav:"createdAt" json:"createdAt"`
}

// AuthSession is a device session backed by a hashed refresh token.
type AuthSession struct {
	SessionID        string `dynamodbav:"sessionId" json:"sessionId"`
	AuthUserID       string `dynamodbav:"authUserId" json:"authUserId"`
	RefreshTokenHash string `dynamodbav:"refreshTokenHash" json:"-"`
	DeviceID         string `dynamodbav:"deviceId,omitempty" json:"deviceId,omitempty"`
	CreatedAt        int64  `dynamodbav:"createdAt" json:"createdAt"`
	LastSeenAt       int64  `dynamodbav:"lastSeenAt" json:"lastSeenAt"`
	ExpiresAt        int64  `dynamodbav:"expiresAt" json:"expiresAt"`
	RevokedAt        *int64 `dynamodbav:"revokedAt,omitempty" json:"revokedAt,omitempty"`
}

// Table names for the auth collaborator
const (
	OtpChallengesTable = "PulseOtpChallenges"
	AuthUsersTable     = "PulseAuthUsers"
	AuthSessionsTable  = "PulseAuthSessions"
)
