package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"os"
	"regexp"
	"time"

	"pulse_server/models"
	"pulse_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	otpCodeLength        = 6
	otpMaxAttempts       = 5
	otpMaxResends        = 5
	otpTTLMs             = 5 * 60 * 1000
	otpResendCooldownMs  = 30 * 1000
	accessTokenTTL       = 15 * time.Minute
	refreshTokenTTLMs    = int64(30 * 24 * time.Hour / time.Millisecond)
	authUsersPhoneIndex  = "by_phoneE164"
	challengesPhoneIndex = "by_phoneE164_createdAt"
)

var phoneE164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// AuthService implements passwordless phone auth: an OTP challenge per phone
// number, then a JWT access token plus a rotating refresh-token session.
type AuthService struct {
	Dynamo *DynamoService
	Clock  clockwork.Clock

	// JWTSecret signs access tokens; OtpPepper salts code hashes so a table
	// dump alone cannot be brute-forced offline.
	JWTSecret []byte
	OtpPepper string
}

// AccessClaims is the JWT payload for an access token.
type AccessClaims struct {
	AuthSessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// RequestCodeResult is the outcome of RequestCode.
type RequestCodeResult struct {
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
	ChallengeID string `json:"challengeId,omitempty"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
}

// VerifyCodeResult is the outcome of VerifyCode. On success it carries the
// token pair and the identity it resolved.
type VerifyCodeResult struct {
	OK           bool   `json:"ok"`
	Reason       string `json:"reason,omitempty"`
	AuthUserID   string `json:"authUserId,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func hashOtpCode(phone, code, pepper string) string {
	sum := sha256.Sum256([]byte(phone + ":" + code + ":" + pepper))
	return hex.EncodeToString(sum[:])
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateOtpCode() (string, error) {
	code := ""
	for i := 0; i < otpCodeLength; i++ {
		digit, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate OTP digit: %w", err)
		}
		code += digit.String()
	}
	return code, nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RequestCode starts (or re-issues) an OTP challenge for a phone number.
// Re-requesting within the cooldown is rejected; past the resend cap the
// challenge locks until it expires.
func (s *AuthService) RequestCode(ctx context.Context, phoneE164, deviceID string) (*RequestCodeResult, error) {
	now := s.Clock.Now().UnixMilli()
	if !phoneE164Pattern.MatchString(phoneE164) {
		return &RequestCodeResult{OK: false, Reason: "invalid_phone"}, nil
	}

	pending, err := s.latestPendingChallenge(ctx, phoneE164, now)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if now-pending.UpdatedAt < otpResendCooldownMs {
			return &RequestCodeResult{OK: false, Reason: "cooldown", ChallengeID: pending.ChallengeID, ExpiresAt: pending.ExpiresAt}, nil
		}
		if pending.ResendCount >= otpMaxResends {
			return &RequestCodeResult{OK: false, Reason: "resend_limit", ExpiresAt: pending.ExpiresAt}, nil
		}
	}

	code, err := generateOtpCode()
	if err != nil {
		return nil, err
	}

	challenge := models.OtpChallenge{
		ChallengeID: uuid.NewString(),
		PhoneE164:   phoneE164,
		OtpCodeHash: hashOtpCode(phoneE164, code, s.OtpPepper),
		Purpose:     "login",
		Status:      models.OtpStatusPending,
		MaxAttempts: otpMaxAttempts,
		DeviceID:    deviceID,
		ExpiresAt:   now + otpTTLMs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if pending != nil {
		challenge.ResendCount = pending.ResendCount + 1
		pending.Status = models.OtpStatusExpired
		pending.UpdatedAt = now
		if err := s.Dynamo.PutItem(ctx, models.OtpChallengesTable, pending); err != nil {
			return nil, err
		}
	}
	if err := s.Dynamo.PutItem(ctx, models.OtpChallengesTable, challenge); err != nil {
		return nil, err
	}

	// SMS delivery is an external concern; in local mode surface the code in
	// the server log so the flow can be exercised end to end.
	if os.Getenv("APP_ENV") == "local" {
		log.Printf("📱 OTP for %s: %s", phoneE164, code)
	}

	return &RequestCodeResult{OK: true, ChallengeID: challenge.ChallengeID, ExpiresAt: challenge.ExpiresAt}, nil
}

// VerifyCode checks a submitted OTP against its challenge. On success it
// resolves (or creates) the phone's auth user and opens a device session.
func (s *AuthService) VerifyCode(ctx context.Context, challengeID, phoneE164, code, deviceID string) (*VerifyCodeResult, error) {
	now := s.Clock.Now().UnixMilli()

	item, err := s.Dynamo.GetItem(ctx, models.OtpChallengesTable, map[string]types.AttributeValue{
		"challengeId": StringAttr(challengeID),
	})
	if err != nil {
		if err == ErrItemNotFound {
			return &VerifyCodeResult{OK: false, Reason: "challenge_not_found"}, nil
		}
		return nil, err
	}
	var challenge models.OtpChallenge
	if err := attributevalue.UnmarshalMap(item, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP challenge: %w", err)
	}

	if challenge.PhoneE164 != phoneE164 || challenge.Status != models.OtpStatusPending {
		return &VerifyCodeResult{OK: false, Reason: "challenge_not_found"}, nil
	}
	if now >= challenge.ExpiresAt {
		challenge.Status = models.OtpStatusExpired
		challenge.UpdatedAt = now
		if err := s.Dynamo.PutItem(ctx, models.OtpChallengesTable, challenge); err != nil {
			return nil, err
		}
		return &VerifyCodeResult{OK: false, Reason: "expired"}, nil
	}

	expected := hashOtpCode(phoneE164, code, s.OtpPepper)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(challenge.OtpCodeHash)) != 1 {
		// Atomic counter bump so concurrent wrong guesses cannot lose an
		// increment and sneak past the attempt limit.
		attrs, err := s.Dynamo.UpdateItem(ctx, models.OtpChallengesTable,
			"SET attemptCount = attemptCount + :one, updatedAt = :now",
			map[string]types.AttributeValue{"challengeId": StringAttr(challengeID)},
			map[string]types.AttributeValue{":one": NumberAttr(1), ":now": NumberAttr(now)},
			nil,
		)
		if err != nil {
			return nil, err
		}
		if err := attributevalue.UnmarshalMap(attrs, &challenge); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OTP challenge: %w", err)
		}
		reason := "invalid_code"
		if challenge.AttemptCount >= challenge.MaxAttempts {
			challenge.Status = models.OtpStatusFailed
			if err := s.Dynamo.PutItem(ctx, models.OtpChallengesTable, challenge); err != nil {
				return nil, err
			}
			reason = "attempt_limit"
		}
		return &VerifyCodeResult{OK: false, Reason: reason}, nil
	}

	challenge.Status = models.OtpStatusVerified
	challenge.UpdatedAt = now
	if err := s.Dynamo.PutItem(ctx, models.OtpChallengesTable, challenge); err != nil {
		return nil, err
	}

	user, err := s.findOrCreateUser(ctx, phoneE164, now)
	if err != nil {
		return nil, err
	}
	if user.Status != "active" {
		return &VerifyCodeResult{OK: false, Reason: "account_blocked"}, nil
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	session := models.AuthSession{
		SessionID:        uuid.NewString(),
		AuthUserID:       user.AuthUserID,
		RefreshTokenHash: hashRefreshToken(refreshToken),
		DeviceID:         deviceID,
		CreatedAt:        now,
		LastSeenAt:       now,
		ExpiresAt:        now + refreshTokenTTLMs,
	}
	if err := s.Dynamo.PutItem(ctx, models.AuthSessionsTable, session); err != nil {
		return nil, err
	}

	accessToken, err := s.signAccessToken(user.AuthUserID, session.SessionID)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Verified phone %s, session %s", phoneE164, session.SessionID)
	return &VerifyCodeResult{
		OK:           true,
		AuthUserID:   user.AuthUserID,
		SessionID:    session.SessionID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair, rotating the
// stored token so a stolen old one becomes useless.
func (s *AuthService) Refresh(ctx context.Context, sessionID, refreshToken string) (*VerifyCodeResult, error) {
	now := s.Clock.Now().UnixMilli()

	item, err := s.Dynamo.GetItem(ctx, models.AuthSessionsTable, map[string]types.AttributeValue{
		"sessionId": StringAttr(sessionID),
	})
	if err != nil {
		if err == ErrItemNotFound {
			return &VerifyCodeResult{OK: false, Reason: "session_not_found"}, nil
		}
		return nil, err
	}
	var session models.AuthSession
	if err := attributevalue.UnmarshalMap(item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth session: %w", err)
	}

	if session.RevokedAt != nil || now >= session.ExpiresAt {
		return &VerifyCodeResult{OK: false, Reason: "session_expired"}, nil
	}
	if subtle.ConstantTimeCompare(
		[]byte(hashRefreshToken(refreshToken)), []byte(session.RefreshTokenHash)) != 1 {
		// A mismatched token on a live session means the token leaked or was
		// already rotated; kill the session either way.
		session.RevokedAt = &now
		if err := s.Dynamo.PutItem(ctx, models.AuthSessionsTable, session); err != nil {
			return nil, err
		}
		return &VerifyCodeResult{OK: false, Reason: "invalid_token"}, nil
	}

	nextToken, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	session.RefreshTokenHash = hashRefreshToken(nextToken)
	session.LastSeenAt = now
	session.ExpiresAt = now + refreshTokenTTLMs
	if err := s.Dynamo.PutItem(ctx, models.AuthSessionsTable, session); err != nil {
		return nil, err
	}

	accessToken, err := s.signAccessToken(session.AuthUserID, session.SessionID)
	if err != nil {
		return nil, err
	}
	return &VerifyCodeResult{
		OK:           true,
		AuthUserID:   session.AuthUserID,
		SessionID:    session.SessionID,
		AccessToken:  accessToken,
		RefreshToken: nextToken,
	}, nil
}

// Revoke invalidates a device session. Idempotent.
func (s *AuthService) Revoke(ctx context.Context, sessionID string) error {
	now := s.Clock.Now().UnixMilli()
	item, err := s.Dynamo.GetItem(ctx, models.AuthSessionsTable, map[string]types.AttributeValue{
		"sessionId": StringAttr(sessionID),
	})
	if err != nil {
		if err == ErrItemNotFound {
			return nil
		}
		return err
	}
	var session models.AuthSession
	if err := attributevalue.UnmarshalMap(item, &session); err != nil {
		return fmt.Errorf("failed to unmarshal auth session: %w", err)
	}
	if session.RevokedAt != nil {
		return nil
	}
	session.RevokedAt = &now
	return s.Dynamo.PutItem(ctx, models.AuthSessionsTable, session)
}

// ParseAccessToken validates a bearer token and returns its claims.
func (s *AuthService) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *AuthService) signAccessToken(authUserID, sessionID string) (string, error) {
	now := s.Clock.Now()
	claims := AccessClaims{
		AuthSessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   authUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, phoneE164 string, now int64) (*models.AuthUser, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.AuthUsersTable, authUsersPhoneIndex,
		"phoneE164 = :phone",
		map[string]types.AttributeValue{":phone": StringAttr(phoneE164)}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		var user models.AuthUser
		if err := attributevalue.UnmarshalMap(items[0], &user); err != nil {
			return nil, fmt.Errorf("failed to unmarshal auth user: %w", err)
		}
		return &user, nil
	}

	user := models.AuthUser{
		AuthUserID: uuid.NewString(),
		PhoneE164:  phoneE164,
		Status:     "active",
		CreatedAt:  now,
	}
	if err := s.Dynamo.PutItem(ctx, models.AuthUsersTable, user); err != nil {
		return nil, err
	}
	log.Printf("👤 Created auth user for %s", phoneE164)
	return &user, nil
}

func (s *AuthService) latestPendingChallenge(ctx context.Context, phoneE164 string, now int64) (*models.OtpChallenge, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.OtpChallengesTable, challengesPhoneIndex,
		"phoneE164 = :phone",
		map[string]types.AttributeValue{":phone": StringAttr(phoneE164)}, nil, 10)
	if err != nil {
		return nil, err
	}
	var latest *models.OtpChallenge
	for i := range items {
		if utils.ExtractString(items[i], "status") != models.OtpStatusPending ||
			now >= utils.ExtractNumber(items[i], "expiresAt") {
			continue
		}
		var challenge models.OtpChallenge
		if err := attributevalue.UnmarshalMap(items[i], &challenge); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OTP challenge: %w", err)
		}
		if latest == nil || challenge.CreatedAt > latest.CreatedAt {
			copied := challenge
			latest = &copied
		}
	}
	return latest, nil
}
