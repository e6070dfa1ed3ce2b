package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter is one client's token bucket plus when it was last used.
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client IP with a token bucket.
//
// It guards the credential endpoints (sign-in, sign-up) against password
// guessing. Idle buckets are dropped by a background sweep so the map
// doesn't grow forever.
//
// Clients are keyed on the socket peer recorded by PeerAddr. Proxy headers
// are only honored when trustProxy is set, since anyone can send them.
type RateLimiter struct {
	perMinute       int
	trustProxy      bool
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter allows perMinute requests per minute per IP, with bursts
// of the same size. Set trustProxy only when a reverse proxy you control
// sets X-Forwarded-For and RealIP runs after PeerAddr.
//
// It starts the cleanup goroutine; call Stop to end it.
func NewRateLimiter(perMinute int, trustProxy bool, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	rl := &RateLimiter{
		perMinute:       perMinute,
		trustProxy:      trustProxy,
		rate:            rate.Limit(float64(perMinute) / 60.0),
		burst:           perMinute,
		cleanupInterval: 5 * time.Minute,
		logger:          logger,
		clients:         make(map[string]*clientLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)

		if !rl.limiterFor(ip).Allow() {
			rl.logger.Warn("rate limit exceeded",
				slog.String("client_ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			http.Error(w, "Too many attempts. Please wait a minute and try again.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientCount reports how many IPs currently have a bucket.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for more than two cleanup intervals. By then
// an idle bucket has refilled, so a fresh one behaves the same.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.cleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.clients, ip)
		}
	}
}

// retryAfterSeconds is the time for one token to refill, at least 1s.
func (rl *RateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil(60.0 / float64(rl.perMinute)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// clientIP returns the host the bucket is keyed on. Without trustProxy that
// is the peer PeerAddr saw; r.RemoteAddr is only used when PeerAddr didn't
// run or when RealIP's rewrite is trusted.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if !rl.trustProxy {
		if peer, ok := peerAddrFrom(r.Context()); ok {
			addr = peer
		}
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
