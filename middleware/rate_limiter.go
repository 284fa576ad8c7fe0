package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Earn and redeem endpoints are cheap to spam, so every caller gets a
// token bucket. Authenticated requests are keyed by their bearer token
// so one user behind a shared NAT cannot exhaust the budget of
// everyone else on that address; unauthenticated traffic (webhooks,
// health checks) falls back to the client IP.

const (
	requestsPerSecond = 5
	requestBurst      = 30
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	clients   = make(map[string]*client)
	clientsMu sync.Mutex
)

func clientKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		// The raw JWT is too long and too sensitive to use as a map
		// key; a truncated digest identifies the session just as well.
		sum := sha256.Sum256([]byte(token))
		return "tok:" + hex.EncodeToString(sum[:8])
	}

	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	} else if i := strings.IndexByte(ip, ','); i >= 0 {
		// First hop in the forwarded chain is the original client.
		ip = strings.TrimSpace(ip[:i])
	}
	return "ip:" + ip
}

func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiterFor(clientKey(r)).Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limiterFor(key string) *rate.Limiter {
	clientsMu.Lock()
	defer clientsMu.Unlock()

	c, ok := clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(requestsPerSecond, requestBurst)}
		clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// CleanupStaleClients drops buckets idle for a few minutes so the map
// does not grow with every one-off caller. Run it as a goroutine.
func CleanupStaleClients() {
	for {
		time.Sleep(time.Minute)
		clientsMu.Lock()
		for key, c := range clients {
			if time.Since(c.lastSeen) > 3*time.Minute {
				delete(clients, key)
			}
		}
		clientsMu.Unlock()
	}
}
