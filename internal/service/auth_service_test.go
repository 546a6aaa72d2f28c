package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/model"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	clk := clock.NewFake(testStart)
	auth := NewAuthService("secret", time.Hour, clk)
	sess := &model.ExamSession{ID: uuid.New(), ExamID: uuid.New(), StudentID: "s-1"}

	token, expires, err := auth.GenerateSessionToken(sess)
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	if !expires.Equal(testStart.Add(time.Hour)) {
		t.Errorf("expires = %v", expires)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.SessionID != sess.ID || claims.ExamID != sess.ExamID || claims.Subject != "s-1" {
		t.Errorf("claims = %+v", claims)
	}

	clk.Advance(time.Hour + time.Second)
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: err = %v, want ErrTokenExpired", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	clk := clock.NewFake(testStart)
	auth := NewAuthService("secret", time.Hour, clk)

	other, _, _ := NewAuthService("other", time.Hour, clk).GenerateSessionToken(&model.ExamSession{ID: uuid.New()})

	wrongType := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(testStart.Add(time.Hour))},
		TokenType:        "refresh",
		SessionID:        uuid.New(),
	})
	wrongTypeStr, _ := wrongType.SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", other},
		{"wrong token type", wrongTypeStr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("err = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
