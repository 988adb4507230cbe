package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// keyWindow is one key's allowance. The limiter holds maxRequests tokens and
// refills one per window, so it cannot hand out more than maxRequests
// before the window is replaced.
type keyWindow struct {
	start time.Time
	lim   *rate.Limiter
}

// RateLimiter allows maxRequests per key in a fixed window that opens on the
// key's first request. Windows live in an expiring LRU with a TTL of one
// window, which also bounds how many keys are tracked at once.
type RateLimiter struct {
	scope  string
	max    int
	window time.Duration
	key    func(*http.Request) string
	now    func() time.Time

	mu      sync.Mutex
	windows *expirable.LRU[string, *keyWindow]

	onReject func(w http.ResponseWriter, r *http.Request, scope string, retryAfter time.Duration)
}

// NewRateLimiter returns a limiter; a non-positive maxRequests or window
// disables it.
func NewRateLimiter(scope string, maxRequests int, win time.Duration, tracked int, key func(*http.Request) string) *RateLimiter {
	rl := &RateLimiter{scope: scope, key: key, now: time.Now}
	if maxRequests <= 0 || win <= 0 {
		return rl
	}
	if tracked <= 0 {
		tracked = 10000
	}
	rl.max = maxRequests
	rl.window = win
	rl.windows = expirable.NewLRU[string, *keyWindow](tracked, nil, win)
	return rl
}

// Allow counts one request for key. A rejected request reports how long
// until the key's window closes.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl.windows == nil {
		return true, 0
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	w, ok := rl.windows.Get(key)
	if !ok || now.Sub(w.start) >= rl.window {
		w = &keyWindow{start: now, lim: rate.NewLimiter(rate.Every(rl.window), rl.max)}
		rl.windows.Add(key, w)
	}
	if !w.lim.AllowN(now, 1) {
		return false, w.start.Add(rl.window).Sub(now)
	}
	return true, 0
}

// Middleware rejects requests over the limit with a 429 envelope.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := rl.Allow(rl.key(r))
		if !ok {
			if rl.onReject != nil {
				rl.onReject(w, r, rl.scope, retry)
				return
			}
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
