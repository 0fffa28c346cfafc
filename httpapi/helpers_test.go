package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/users"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	engine *authcore.Engine
	users  *users.Memory
	mr     *miniredis.Miniredis
	router *mux.Router
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	ec := authcore.DefaultConfig()
	ec.JWT.Secret = []byte(testSecret)
	ec.Password.Memory = 8 * 1024
	ec.Password.Time = 1
	ec.Password.Parallelism = 1
	ec.Session.RetryAttempts = 1

	dir := users.NewMemory()
	engine, err := authcore.New().
		WithConfig(ec).
		WithRedis(rdb).
		WithUserProvider(dir).
		Build()
	require.NoError(t, err)

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	router := New(engine, cfg, nil).Router()
	router.Handle("/staff", middleware.Guard(engine, "admin", "manager")(okHandler())).Methods(http.MethodGet)
	router.Handle("/lobby", middleware.Guard(engine, "user", "guest")(okHandler())).Methods(http.MethodGet)

	return &fixture{engine: engine, users: dir, mr: mr, router: router}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (f *fixture) addUser(t *testing.T, id, email, password, role string) {
	t.Helper()
	hash, err := f.engine.HashPassword(password)
	require.NoError(t, err)
	f.users.Put(authcore.UserRecord{ID: id, Email: email, PasswordHash: hash, Role: role})
}

type requestOpt func(*http.Request)

func withCookie(value string) requestOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: value})
	}
}

func withBearer(token string) requestOpt {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withRemote(addr string) requestOpt {
	return func(r *http.Request) {
		r.RemoteAddr = addr
	}
}

func (f *fixture) do(method, path, body string, opts ...requestOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) (tokenResponse, *http.Cookie) {
	t.Helper()
	rec := f.do(http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp, refreshCookie(t, rec)
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookieName)
	return nil
}
