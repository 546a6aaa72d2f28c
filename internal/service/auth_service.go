package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/model"
)

// Common auth errors.
var (
	ErrTokenInvalid = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// TokenType distinguishes session tokens from anything else signed with the same secret.
type TokenType string

const TokenTypeSession TokenType = "exam_session"

// Claims extends JWT standard claims with the session binding.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	SessionID uuid.UUID `json:"session_id"`
	ExamID    uuid.UUID `json:"exam_id"`
}

// AuthService mints and validates the tokens that bind a client to one session.
type AuthService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewAuthService creates a new AuthService.
func NewAuthService(secret string, ttl time.Duration, clk clock.Clock) *AuthService {
	return &AuthService{secret: []byte(secret), ttl: ttl, clock: clk}
}

// GenerateSessionToken creates a JWT scoped to sess.
func (s *AuthService) GenerateSessionToken(sess *model.ExamSession) (string, time.Time, error) {
	now := s.clock.Now()
	expires := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   sess.StudentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		TokenType: TokenTypeSession,
		SessionID: sess.ID,
		ExamID:    sess.ExamID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken parses and validates a session JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != TokenTypeSession {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
