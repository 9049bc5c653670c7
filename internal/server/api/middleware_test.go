package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	t.Run("user", func(t *testing.T) {
		actor, err := ParseToken(testSecret, token(t, 42, ""))
		require.NoError(t, err)
		assert.Equal(t, int64(42), actor.UserID)
		assert.False(t, actor.Admin)
	})

	t.Run("admin", func(t *testing.T) {
		actor, err := ParseToken(testSecret, token(t, 7, roleAdmin))
		require.NoError(t, err)
		assert.True(t, actor.Admin)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseToken([]byte("other"), token(t, 42, ""))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := IssueToken(testSecret, 42, "", -time.Minute)
		require.NoError(t, err)
		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})

	t.Run("other signing method", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString(testSecret)
		require.NoError(t, err)
		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})

	t.Run("non numeric subject", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	e := echo.New()
	h := rl.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/files", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(req, rec)))
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))

	// buckets are per client
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2"))
}

func TestRateLimiter_CleanupDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}
