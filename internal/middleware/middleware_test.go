package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequireSessionJWT(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	auth := service.NewAuthService("secret", time.Hour, clk)
	sess := &model.ExamSession{ID: uuid.New(), ExamID: uuid.New()}
	token, _, err := auth.GenerateSessionToken(sess)
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.GET("/sessions/:id", RequireSessionJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).SessionID.String())
	})
	r.GET("/ws/:id", RequireSessionWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"ok", "/sessions/" + sess.ID.String(), "Bearer " + token, http.StatusOK},
		{"missing", "/sessions/" + sess.ID.String(), "", http.StatusUnauthorized},
		{"garbage", "/sessions/" + sess.ID.String(), "Bearer nope", http.StatusUnauthorized},
		{"other session", "/sessions/" + uuid.NewString(), "Bearer " + token, http.StatusForbidden},
		{"bad id", "/sessions/not-a-uuid", "Bearer " + token, http.StatusBadRequest},
		{"ws query token", "/ws/" + sess.ID.String() + "?token=" + token, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	clk.Advance(2 * time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "TOKEN_EXPIRED") {
		t.Errorf("expired token: %d %s", w.Code, w.Body.String())
	}
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("exam-proctor ", 400)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 256}))
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/small")
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
		t.Errorf("small body was compressed: %q", w.Body.String())
	}

	w = get("/large")
	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("large body not compressed")
	}
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != large {
		t.Errorf("round trip mismatch: %d bytes", len(plain))
	}
}

func TestAcceptsBrotli(t *testing.T) {
	tests := map[string]bool{
		"br":             true,
		"gzip, br;q=0.5": true,
		"gzip, deflate":  false,
		"br;q=0":         false,
		"":               false,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", header)
		if got := acceptsBrotli(req); got != want {
			t.Errorf("acceptsBrotli(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(2, time.Second, clk)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst rejected")
	}
	if rl.Allow("a") {
		t.Error("third request in burst allowed")
	}
	if !rl.Allow("b") {
		t.Error("keys share a bucket")
	}

	clk.Advance(500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("bucket did not refill")
	}

	clk.Advance(10 * time.Minute)
	rl.Allow("c")
	if _, ok := rl.visitors["a"]; ok {
		t.Error("stale visitor not cleaned up")
	}
}
