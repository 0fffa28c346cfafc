package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultEdgeClients = 10000

// edgeLimiter keeps one token bucket per client IP. The LRU bounds memory
// under address churn; an evicted client starts again with a full bucket.
type edgeLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

func newEdgeLimiter(perSecond float64, burst, maxClients int) *edgeLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if maxClients <= 0 {
		maxClients = defaultEdgeClients
	}
	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil
	}
	return &edgeLimiter{limit: rate.Limit(perSecond), burst: burst, clients: clients}
}

func (l *edgeLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.clients.Get(ip); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients.Add(ip, lim)
	return lim
}

// reserve admits one request from ip or reports how long to wait.
func (l *edgeLimiter) reserve(ip string) (bool, time.Duration) {
	res := l.limiter(ip).Reserve()
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

func (a *API) limit(next http.Handler) http.Handler {
	if a.edge == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := authcore.ClientIPFromContext(r.Context())
		if ip == "" {
			ip = "unknown"
		}
		if ok, wait := a.edge.reserve(ip); !ok {
			middleware.WriteError(w, &authcore.RateLimitError{RetryAfter: wait})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
