package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	// Burst of 20 passes, the 21st immediate request does not.
	for i := 0; i < 20; i++ {
		assert.True(t, rl.Allow("user-1"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("user-1"))

	// Other keys have their own bucket.
	assert.True(t, rl.Allow("user-2"))
}

func TestRateLimiterEchoMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	echoServer := echo.New()
	echoServer.POST("/chat", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, rl.Echo())

	request := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		if userID != "" {
			req.Header.Set("X-User-Id", userID)
		}
		rec := httptest.NewRecorder()
		echoServer.ServeHTTP(rec, req)
		return rec
	}

	var rejected *httptest.ResponseRecorder
	for i := 0; i < 25; i++ {
		rec := request("user-1")
		if rec.Code == http.StatusTooManyRequests {
			rejected = rec
			break
		}
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	require.NotNil(t, rejected, "burst was never exhausted")
	assert.Contains(t, rejected.Body.String(), "RATE_LIMIT_EXCEEDED")

	// A different user is unaffected by user-1's exhausted bucket.
	assert.Equal(t, http.StatusOK, request("user-2").Code)
}
