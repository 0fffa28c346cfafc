package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	RefreshCookieName = "refresh_token"
	RefreshCookiePath = "/auth"

	defaultMaxBodyBytes = 64 << 10
)

// Engine is the subset of *authcore.Engine the boundary calls.
type Engine interface {
	Login(ctx context.Context, email, password string) (*authcore.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*authcore.TokenPair, error)
	Logout(ctx context.Context, refreshToken, accessToken string)
	Authenticate(ctx context.Context, authorization string, requiredRoles ...string) (*authcore.Claims, error)
}

// Config tunes cookies, body limits and the edge limiter.
type Config struct {
	// CookieSecure marks the refresh cookie Secure. Disable only for plain
	// HTTP development.
	CookieSecure bool
	// RefreshTTL sets the cookie Max-Age when the engine does not report one.
	RefreshTTL   time.Duration
	MaxBodyBytes int64

	// EdgeRate is the per-IP refill rate in requests per second. Zero
	// disables the edge limiter.
	EdgeRate       float64
	EdgeBurst      int
	EdgeMaxClients int
	// TrustForwarded takes the client IP from X-Forwarded-For.
	TrustForwarded bool
}

// API serves the auth routes.
type API struct {
	engine Engine
	cfg    Config
	log    *zap.Logger
	edge   *edgeLimiter
}

// New returns an API. A nil logger discards request logs.
func New(engine Engine, cfg Config, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &API{
		engine: engine,
		cfg:    cfg,
		log:    log.Named("http"),
		edge:   newEdgeLimiter(cfg.EdgeRate, cfg.EdgeBurst, cfg.EdgeMaxClients),
	}
}

// Register mounts the routes under /auth on r.
func (a *API) Register(r *mux.Router) {
	sub := r.PathPrefix("/auth").Subrouter()
	sub.Use(a.logRequests, a.withClientIP)

	sub.Handle("/login", a.limit(http.HandlerFunc(a.handleLogin))).Methods(http.MethodPost)
	sub.Handle("/refresh", a.limit(http.HandlerFunc(a.handleRefresh))).Methods(http.MethodPost)
	sub.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
	sub.Handle("/me", middleware.Guard(a.engine)(http.HandlerFunc(a.handleMe))).Methods(http.MethodGet)
}

// Router returns a fresh router with only the auth routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	a.Register(r)
	return r
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		a.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.code),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *API) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientIP(r.Context(), clientIP(r, a.cfg.TrustForwarded))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
