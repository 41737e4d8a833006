package servers

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// defaultLimiterCacheSize bounds the number of remote addresses tracked.
const defaultLimiterCacheSize = 10_000

// rateLimiter holds one token bucket per remote address. Least recently
// seen addresses are evicted and start over with a full bucket.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func newRateLimiter(perSecond float64, burst, size int) (*rateLimiter, error) {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	limiters, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &rateLimiter{limit: rate.Limit(perSecond), burst: burst, limiters: limiters}, nil
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// middleware rejects write requests over the limit with 429. Reads are not
// limited.
func (l *rateLimiter) middleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			host := remoteHost(r)
			if !l.allow(host) {
				log.Warn("Rate limit exceeded", "remote", host, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(1/float64(l.limit)))))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
