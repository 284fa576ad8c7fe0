package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterRequest(remoteAddr, forwardedFor, bearer string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/points/check-in", nil)
	r.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", forwardedFor)
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	return r
}

func TestClientKey(t *testing.T) {
	t.Run("same bearer token shares a bucket across addresses", func(t *testing.T) {
		a := clientKey(limiterRequest("10.0.0.1:1234", "", "jwt-abc"))
		b := clientKey(limiterRequest("10.0.0.2:5678", "203.0.113.9", "jwt-abc"))
		assert.Equal(t, a, b)
	})

	t.Run("different bearer tokens behind one address get separate buckets", func(t *testing.T) {
		a := clientKey(limiterRequest("10.0.0.1:1234", "", "jwt-abc"))
		b := clientKey(limiterRequest("10.0.0.1:1234", "", "jwt-def"))
		assert.NotEqual(t, a, b)
	})

	t.Run("unauthenticated traffic keys on the first forwarded hop", func(t *testing.T) {
		a := clientKey(limiterRequest("10.0.0.1:1234", "203.0.113.9, 70.41.3.18", ""))
		assert.Equal(t, "ip:203.0.113.9", a)

		b := clientKey(limiterRequest("192.0.2.7:1234", "", ""))
		assert.Equal(t, "ip:192.0.2.7", b)
	})

	t.Run("empty bearer value falls back to IP", func(t *testing.T) {
		r := limiterRequest("192.0.2.7:1234", "", "")
		r.Header.Set("Authorization", "Bearer ")
		assert.Equal(t, "ip:192.0.2.7", clientKey(r))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(ok)

	t.Run("fresh client passes through", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, limiterRequest("198.51.100.1:1000", "", "jwt-fresh-client"))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("exhausted bucket rejects with 429", func(t *testing.T) {
		req := limiterRequest("198.51.100.2:1000", "", "jwt-noisy-client")
		lim := limiterFor(clientKey(req))
		for lim.Tokens() >= 1 {
			require.True(t, lim.Allow())
		}

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})

	t.Run("one user's burst does not starve a neighbor on the same address", func(t *testing.T) {
		noisy := limiterRequest("198.51.100.3:1000", "", "jwt-noisy-neighbor")
		lim := limiterFor(clientKey(noisy))
		for lim.Tokens() >= 1 {
			require.True(t, lim.Allow())
		}

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, limiterRequest("198.51.100.3:1000", "", "jwt-quiet-neighbor"))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
