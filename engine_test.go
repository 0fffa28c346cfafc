package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
	"golang.org/x/crypto/bcrypt"
)

func TestBuilderValidation(t *testing.T) {
	if _, err := New().WithUserProvider(newMemUsers()).Build(); err == nil {
		t.Fatal("expected missing redis client to fail")
	}

	et := newEngineTest(t, nil)
	cfg := testConfig()
	cfg.JWT.Secret = []byte("short")
	if _, err := New().WithConfig(cfg).WithRedis(et.rdb).WithUserProvider(et.users).Build(); err == nil {
		t.Fatal("expected short secret to fail")
	}

	b := New().WithConfig(testConfig()).WithRedis(et.rdb).WithUserProvider(et.users)
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single-use")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"refresh ttl below access ttl": func(c *Config) { c.Session.RefreshTTL = time.Minute },
		"zero session cap":             func(c *Config) { c.Session.MaxActiveSessions = 0 },
		"zero throttle max":            func(c *Config) { c.Throttle.MaxAttempts = 0 },
		"zero window":                  func(c *Config) { c.Throttle.Window = 0 },
		"excessive leeway":             func(c *Config) { c.JWT.Leeway = time.Hour },
		"no roles":                     func(c *Config) { c.Authz.Roles = nil },
		"audit without buffer":         func(c *Config) { c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config should validate: %v", err)
	}
}

func TestLoginVerifyRoundTrip(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()

	for i, role := range []string{"admin", "manager", "user", "guest"} {
		email := fmt.Sprintf("%s@example.com", role)
		et.addUser(t, fmt.Sprint(i+1), email, "correct horse battery", role)

		pair, err := et.engine.Login(ctx, email, "correct horse battery")
		if err != nil {
			t.Fatalf("login %s: %v", role, err)
		}
		if pair.TokenType != "Bearer" || pair.ExpiresIn != 15*time.Minute || pair.SessionID == "" {
			t.Fatalf("unexpected pair %+v", pair)
		}

		claims, err := et.engine.Verify(ctx, pair.AccessToken)
		if err != nil {
			t.Fatalf("verify %s: %v", role, err)
		}
		if claims.Role != role || claims.Email != email || claims.SubjectID() != fmt.Sprint(i+1) {
			t.Fatalf("claims mismatch: %+v", claims)
		}
		if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
			t.Fatal("exp must be after iat")
		}
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	et := newEngineTest(t, nil)
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	if _, err := et.engine.Login(context.Background(), "  Alice@Example.com ", "correct horse battery"); err != nil {
		t.Fatalf("login with mixed-case email: %v", err)
	}
	rec, err := et.engine.LoginMetrics(context.Background(), "ALICE@example.com")
	if err != nil || rec.SuccessfulLogins != 1 {
		t.Fatalf("metrics not keyed by normalized email: %+v %v", rec, err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")
	off := et.addUser(t, "2", "off@example.com", "correct horse battery", "user")
	et.users.update(off.ID, func(u *UserRecord) { u.Disabled = true })

	for _, tc := range []struct{ email, pw string }{
		{"alice@example.com", "wrong password!"},
		{"nobody@example.com", "correct horse battery"},
		{"off@example.com", "correct horse battery"},
		{"", "correct horse battery"},
	} {
		_, err := et.engine.Login(ctx, tc.email, tc.pw)
		if err != ErrCredentialInvalid {
			t.Fatalf("%q: expected bare ErrCredentialInvalid, got %v", tc.email, err)
		}
	}

	rec, err := et.engine.LoginMetrics(ctx, "alice@example.com")
	if err != nil || rec.FailedAttempts != 1 {
		t.Fatalf("expected one recorded failure: %+v %v", rec, err)
	}
}

func TestLoginAcceptsLegacyBcrypt(t *testing.T) {
	et := newEngineTest(t, nil)
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	et.users.put(UserRecord{ID: "9", Email: "old@example.com", PasswordHash: string(hash), Role: "user"})

	if _, err := et.engine.Login(context.Background(), "old@example.com", "legacy-password"); err != nil {
		t.Fatalf("bcrypt account should log in: %v", err)
	}
	if _, err := et.engine.Login(context.Background(), "old@example.com", "not-the-password"); !errors.Is(err, ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}
}

func TestLoginUpgradesBcryptHash(t *testing.T) {
	et := newEngineTest(t, nil)
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	et.users.put(UserRecord{ID: "9", Email: "old@example.com", PasswordHash: string(hash), Role: "user"})

	if _, err := et.engine.Login(context.Background(), "old@example.com", "legacy-password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	upgraded := et.users.hashOf("9")
	if !strings.HasPrefix(upgraded, "$argon2id$") {
		t.Fatalf("expected argon2id hash after login, got %q", upgraded)
	}

	// the new hash verifies and is left alone on the next login
	if _, err := et.engine.Login(context.Background(), "old@example.com", "legacy-password"); err != nil {
		t.Fatalf("login with upgraded hash: %v", err)
	}
	if got := et.users.hashOf("9"); got != upgraded {
		t.Fatal("current hash must not be rewritten")
	}
}

func TestLoginUpgradesWeakArgon2Hash(t *testing.T) {
	et := newEngineTest(t, func(cfg *Config) { cfg.Password.Time = 2 })

	weakCfg := password.DefaultConfig()
	weakCfg.Memory = 8 * 1024
	weakCfg.Time = 1
	weakCfg.Parallelism = 1
	weak, err := password.NewArgon2(weakCfg)
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}
	hash, err := weak.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	et.users.put(UserRecord{ID: "3", Email: "carol@example.com", PasswordHash: hash, Role: "user"})

	if _, err := et.engine.Login(context.Background(), "carol@example.com", "correct horse"); err != nil {
		t.Fatalf("login: %v", err)
	}
	got := et.users.hashOf("3")
	if got == hash || !strings.Contains(got, "t=2") {
		t.Fatalf("expected a t=2 hash, got %q", got)
	}
}

func TestLoginSucceedsWhenRehashFails(t *testing.T) {
	et := newEngineTest(t, nil)
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	et.users.put(UserRecord{ID: "9", Email: "old@example.com", PasswordHash: string(hash), Role: "user"})
	et.users.mu.Lock()
	et.users.updateErr = errors.New("read-only replica")
	et.users.mu.Unlock()

	if _, err := et.engine.Login(context.Background(), "old@example.com", "legacy-password"); err != nil {
		t.Fatalf("rehash failure must not fail login: %v", err)
	}
	if got := et.users.hashOf("9"); got != string(hash) {
		t.Fatalf("hash changed despite failed update: %q", got)
	}
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	first, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := et.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.SessionID == first.SessionID {
		t.Fatal("rotation must issue a new token and session")
	}

	if _, err := et.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on replay, got %v", err)
	}
	if _, err := et.engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("current token should still rotate: %v", err)
	}

	events := et.events()
	if countEvents(events, AuditRefreshReplay, false) != 1 {
		t.Fatalf("expected one replay audit event, got %+v", events)
	}
	if got := et.engine.MetricsSnapshot().Counters[MetricRefreshReplay]; got != 1 {
		t.Fatalf("expected replay metric 1, got %d", got)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	pair, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := et.engine.Refresh(ctx, pair.RefreshToken)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenRevoked):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestRefreshAppliesRoleChangeAndDisable(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	pair, _ := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
	et.users.update("1", func(u *UserRecord) { u.Role = "manager" })

	rotated, err := et.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := et.engine.Verify(ctx, rotated.AccessToken)
	if err != nil || claims.Role != "manager" {
		t.Fatalf("role change not applied at rotation: %+v %v", claims, err)
	}

	et.users.update("1", func(u *UserRecord) { u.Disabled = true })
	if _, err := et.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("disabled account must not refresh, got %v", err)
	}
}

func TestRefreshErrorKinds(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()

	cases := map[string]error{
		"":          ErrTokenMissing,
		"not-token": ErrTokenMalformed,
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": ErrTokenNotFound,
	}
	for tok, want := range cases {
		if _, err := et.engine.Refresh(ctx, tok); !errors.Is(err, want) {
			t.Fatalf("%q: expected %v, got %v", tok, want, err)
		}
	}
}

func TestSessionCapEvictsOldest(t *testing.T) {
	et := newEngineTest(t, func(c *Config) { c.Throttle.MaxAttempts = 100 })
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	var pairs []*TokenPair
	for i := 0; i < 6; i++ {
		p, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
		if err != nil {
			t.Fatalf("login %d: %v", i+1, err)
		}
		pairs = append(pairs, p)

		active, err := et.engine.ActiveSessions(ctx, "1")
		if err != nil {
			t.Fatalf("active sessions: %v", err)
		}
		if len(active) > 5 {
			t.Fatalf("index exceeds cap after login %d: %d", i+1, len(active))
		}
	}

	active, _ := et.engine.ActiveSessions(ctx, "1")
	if len(active) != 5 {
		t.Fatalf("expected 5 active sessions, got %d", len(active))
	}
	if active[0].SessionID != pairs[1].SessionID || active[4].SessionID != pairs[5].SessionID {
		t.Fatal("oldest session should have been evicted")
	}
	if _, err := et.engine.Refresh(ctx, pairs[0].RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("evicted session must be revoked, got %v", err)
	}

	if countEvents(et.events(), AuditSessionEvicted, true) != 1 {
		t.Fatal("expected one eviction audit event")
	}
}

func TestThrottleDeniesCorrectCredentialsUntilWindowEnds(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	for i := 0; i < 5; i++ {
		if _, err := et.engine.Login(ctx, "alice@example.com", "wrong password!"); !errors.Is(err, ErrCredentialInvalid) {
			t.Fatalf("attempt %d: expected ErrCredentialInvalid, got %v", i+1, err)
		}
	}

	_, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
	var rl *RateLimitError
	if !errors.As(err, &rl) || !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected RetryAfter %v", rl.RetryAfter)
	}
	if OutcomeOf(err) != OutcomeTooManyRequests {
		t.Fatalf("expected 429 outcome, got %v", OutcomeOf(err))
	}

	et.mr.FastForward(15*time.Minute + time.Second)
	if _, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestResetThrottleLiftsLockout(t *testing.T) {
	et := newEngineTest(t, func(c *Config) { c.Throttle.MaxIPAttempts = 6 })
	ctx := WithClientIP(context.Background(), "10.0.0.9")
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	for i := 0; i < 5; i++ {
		_, _ = et.engine.Login(ctx, "alice@example.com", "wrong password!")
	}
	if n, err := et.engine.ThrottleAttempts(ctx, " Alice@Example.com"); err != nil || n != 5 {
		t.Fatalf("expected 5 counted attempts, got %d %v", n, err)
	}
	if _, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected throttled login, got %v", err)
	}

	if err := et.engine.ResetThrottle(ctx, "ALICE@example.com", "10.0.0.9"); err != nil {
		t.Fatalf("ResetThrottle: %v", err)
	}
	if n, _ := et.engine.ThrottleAttempts(ctx, "alice@example.com"); n != 0 {
		t.Fatalf("expected cleared counter, got %d", n)
	}
	if et.mr.Exists(et.keys().AttemptsIP("10.0.0.9")) {
		t.Fatal("ip counter should be cleared")
	}
	if _, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}

	if n := countEvents(et.events(), AuditThrottleReset, true); n != 1 {
		t.Fatalf("expected one throttle reset event, got %d", n)
	}
}

func TestResetThrottleStoreOutage(t *testing.T) {
	et := newEngineTest(t, nil)
	et.mr.Close()

	err := et.engine.ResetThrottle(context.Background(), "alice@example.com", "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := et.engine.ThrottleAttempts(context.Background(), "alice@example.com"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLockoutSignalDoesNotBlock(t *testing.T) {
	et := newEngineTest(t, func(c *Config) {
		c.Throttle.MaxAttempts = 100
		c.Throttle.FailureAlertThreshold = 3
	})
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	for i := 0; i < 4; i++ {
		_, _ = et.engine.Login(ctx, "alice@example.com", "wrong password!")
	}
	if _, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("lockout signal must not block: %v", err)
	}
	rec, _ := et.engine.LoginMetrics(ctx, "alice@example.com")
	if rec.FailedAttempts != 0 || rec.SuccessfulLogins != 1 {
		t.Fatalf("success should reset failures: %+v", rec)
	}

	if got := countEvents(et.events(), AuditLockoutSignal, false); got != 1 {
		t.Fatalf("expected exactly one lockout signal, got %d", got)
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	pair, _ := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
	et.engine.Logout(ctx, pair.RefreshToken, pair.AccessToken)

	if _, err := et.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected refresh after logout to be revoked, got %v", err)
	}
	if _, err := et.engine.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected access token to be blacklisted, got %v", err)
	}
	ttl := et.mr.TTL(et.keys().Blacklist(pair.AccessToken))
	if ttl <= 0 || ttl > 15*time.Minute {
		t.Fatalf("access blacklist TTL out of range: %v", ttl)
	}

	// garbage never fails logout
	et.engine.Logout(ctx, "garbage", "garbage")
	et.engine.Logout(ctx, "", "")
}

func TestLogoutAll(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")

	a, _ := et.engine.Login(ctx, "alice@example.com", "correct horse battery")
	b, _ := et.engine.Login(ctx, "alice@example.com", "correct horse battery")

	if err := et.engine.LogoutAll(ctx, "1"); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, p := range []*TokenPair{a, b} {
		if _, err := et.engine.Refresh(ctx, p.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("expected ErrTokenRevoked, got %v", err)
		}
	}
	if active, _ := et.engine.ActiveSessions(ctx, "1"); len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(active))
	}
}

func TestAuthorizeRoles(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "u@example.com", "correct horse battery", "user")
	et.addUser(t, "2", "a@example.com", "correct horse battery", "admin")

	userPair, _ := et.engine.Login(ctx, "u@example.com", "correct horse battery")
	adminPair, _ := et.engine.Login(ctx, "a@example.com", "correct horse battery")

	hdr := "Bearer " + userPair.AccessToken
	if _, err := et.engine.Authenticate(ctx, hdr, "admin", "manager"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := et.engine.Authenticate(ctx, hdr, "user", "guest"); err != nil {
		t.Fatalf("user should be allowed: %v", err)
	}
	if _, err := et.engine.Authenticate(ctx, hdr); err != nil {
		t.Fatalf("empty requirement should allow: %v", err)
	}
	if _, err := et.engine.Authenticate(ctx, "bearer "+adminPair.AccessToken, "manager"); err != nil {
		t.Fatalf("admin wildcard should satisfy any role: %v", err)
	}

	if !et.mr.Exists(et.keys().Authz("1", "user", []string{"manager", "admin"})) {
		t.Fatal("decision should be cached under sorted key")
	}

	n, err := et.engine.InvalidateAuthorization(ctx, "1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 invalidated decisions, got %d %v", n, err)
	}
	if !et.mr.Exists(et.keys().Authz("2", "admin", []string{"manager"})) {
		t.Fatal("other subjects' decisions must survive")
	}
}

func TestAuthenticateHeaderErrors(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()

	cases := map[string]error{
		"":              ErrTokenMissing,
		"Bearer ":       ErrTokenMissing,
		"Basic abc":     ErrTokenMalformed,
		"Bearer a.b":    ErrTokenMalformed,
		"Bearer a.b.c":  ErrTokenMalformed,
		"Token abc.d.e": ErrTokenMalformed,
	}
	for hdr, want := range cases {
		if _, err := et.engine.Authenticate(ctx, hdr); !errors.Is(err, want) {
			t.Fatalf("%q: expected %v, got %v", hdr, want, err)
		}
	}
}

func TestVerifyFailsClosedWhenStoreDown(t *testing.T) {
	et := newEngineTest(t, nil)
	ctx := context.Background()
	et.addUser(t, "1", "alice@example.com", "correct horse battery", "user")
	pair, _ := et.engine.Login(ctx, "alice@example.com", "correct horse battery")

	et.mr.Close()

	if _, err := et.engine.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := et.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected login to report ErrStoreUnavailable, got %v", err)
	}
	if _, err := et.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected refresh to report ErrStoreUnavailable, got %v", err)
	}
	if OutcomeOf(ErrStoreUnavailable) != OutcomeServiceUnavailable {
		t.Fatal("store errors must map to service unavailable")
	}
	if et.engine.Ping(ctx) == nil {
		t.Fatal("ping should fail")
	}
}

func TestDirectoryOutageIsUnavailable(t *testing.T) {
	et := newEngineTest(t, nil)
	et.users.failWith(errors.New("connection refused"))

	_, err := et.engine.Login(context.Background(), "alice@example.com", "correct horse battery")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
