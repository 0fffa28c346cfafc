package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"go.uber.org/zap"
)

// Engine orchestrates login, refresh, logout, verification and authorization.
// It is safe for concurrent use once built.
type Engine struct {
	config       Config
	store        *session.Store
	keys         session.Keys
	protocol     *refresh.Protocol
	rateLimiter  *rate.Limiter
	loginMetrics *limiters.LoginMetrics
	authz        *permission.Cache
	audit        *audit.Dispatcher
	metrics      *Metrics
	jwtManager   *jwt.Manager
	verifier     *password.Verifier
	userProvider UserProvider
	flows        flows.Service
	log          *zap.Logger
	now          func() time.Time
}

func (e *Engine) initFlows() {
	e.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			ClientIP:       clientIPFromContext,
			Throttle:       e.rateLimiter,
			LookupUser:     e.lookupUser,
			VerifyPassword: e.verifier.Verify,
			VerifyDummy:    e.verifier.VerifyDummy,
			Attempts:       e.loginMetrics,
			IssueAccess: func(u flows.LoginUser) (string, error) {
				return e.jwtManager.Issue(u.ID, u.Email, u.Role, 0)
			},
			IssueRefresh: func(ctx context.Context, u flows.LoginUser) (*refresh.Issued, error) {
				return e.protocol.Issue(ctx, refresh.Subject{ID: u.ID, Email: u.Email, Role: u.Role})
			},
			RehashPassword: e.rehashPassword,
		},
		Refresh: flows.RefreshDeps{
			Rotate: e.protocol.Refresh,
			IssueAccess: func(s refresh.Subject) (string, error) {
				return e.jwtManager.Issue(s.ID, s.Email, s.Role, 0)
			},
		},
		Validate: flows.ValidateDeps{
			ParseAccess: e.jwtManager.Verify,
			IsRevoked: func(ctx context.Context, token string) (bool, error) {
				return e.store.Exists(ctx, e.keys.Blacklist(token))
			},
		},
		Logout: flows.LogoutDeps{
			RevokeRefresh: e.protocol.Revoke,
			ParseAccess:   e.jwtManager.Verify,
			RevokeAccess: func(ctx context.Context, token string, ttl time.Duration) error {
				return e.store.Put(ctx, e.keys.Blacklist(token), e.now().Unix(), ttl)
			},
			Now: e.now,
		},
	})
}

// Close flushes pending audit events. The Redis client is owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks connectivity to the session store.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// Roles returns the configured role table.
func (e *Engine) Roles() *permission.RoleTable {
	return e.authz.Table()
}

// HashPassword hashes plain with the engine's argon2id parameters, for use by
// whatever owns user records.
func (e *Engine) HashPassword(plain string) (string, error) {
	return e.verifier.Hasher().Hash(plain)
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates email and password and issues a token pair.
//
// Unknown accounts, wrong passwords and disabled accounts all return
// ErrCredentialInvalid. A throttled attempt returns a *RateLimitError, even
// with correct credentials.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	defer e.observe(MetricLoginLatency, time.Now())

	res := e.flows.Login(ctx, email, password)
	e.noteAttempt(ctx, res)
	e.noteRehash(res)

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureMissingIdentifier, flows.LoginFailureCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, false, res.User.ID, "", ErrCredentialInvalid, nil)
		return nil, ErrCredentialInvalid
	case flows.LoginFailureThrottled:
		e.metricInc(MetricLoginThrottled)
		e.emitAudit(ctx, AuditLoginThrottled, false, "", "", ErrRateLimitExceeded, func() map[string]string {
			return map[string]string{"retry_after": durationMeta(res.RetryAfter)}
		})
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	case flows.LoginFailureUnavailable, flows.LoginFailureIssueRefresh:
		if errors.Is(res.Err, session.ErrUnavailable) || errors.Is(res.Err, rate.ErrRedisUnavailable) ||
			errors.Is(res.Err, flows.ErrDirectoryUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			e.log.Error("login backend unavailable", zap.Error(res.Err))
			return nil, storeUnavailable(res.Err)
		}
		e.log.Error("login failed", zap.String("subject_id", res.User.ID), zap.Error(res.Err))
		return nil, fmt.Errorf("login: %w", res.Err)
	default:
		e.log.Error("login failed", zap.String("subject_id", res.User.ID), zap.Error(res.Err))
		return nil, fmt.Errorf("login: %w", res.Err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.noteEvictions(ctx, res.User.ID, res.Refresh.Evicted)
	e.emitAudit(ctx, AuditLogin, true, res.User.ID, res.Refresh.Record.SessionID, nil, nil)

	return e.tokenPair(res.AccessToken, res.Refresh), nil
}

func (e *Engine) lookupUser(ctx context.Context, identifier string) (flows.LoginUser, bool, error) {
	u, err := e.userProvider.GetUserByEmail(ctx, identifier)
	if errors.Is(err, ErrUserNotFound) {
		return flows.LoginUser{}, false, nil
	}
	if err != nil {
		return flows.LoginUser{}, false, fmt.Errorf("%w: %v", flows.ErrDirectoryUnavailable, err)
	}
	return flows.LoginUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Disabled:     u.Disabled,
	}, true, nil
}

// rehashPassword replaces a stale stored hash when the provider can write one.
func (e *Engine) rehashPassword(ctx context.Context, u flows.LoginUser, plain string) (bool, error) {
	up, ok := e.userProvider.(PasswordUpgrader)
	if !ok || !e.verifier.NeedsRehash(u.PasswordHash) {
		return false, nil
	}
	hash, err := e.verifier.Hasher().Hash(plain)
	if err != nil {
		return false, err
	}
	if err := up.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) noteRehash(res flows.LoginResult) {
	switch {
	case res.RehashErr != nil:
		e.log.Warn("password rehash failed", zap.String("subject_id", res.User.ID), zap.Error(res.RehashErr))
	case res.Rehashed:
		e.log.Info("password hash upgraded", zap.String("subject_id", res.User.ID))
	}
}

// resolveSubject re-reads the account at rotation time so that role changes
// and disabled accounts take effect on the next refresh.
func (e *Engine) resolveSubject(ctx context.Context, subjectID string) (refresh.Subject, error) {
	u, err := e.userProvider.GetUserByID(ctx, subjectID)
	if errors.Is(err, ErrUserNotFound) {
		return refresh.Subject{}, refresh.ErrSubjectGone
	}
	if err != nil {
		return refresh.Subject{}, fmt.Errorf("%w: %v", flows.ErrDirectoryUnavailable, err)
	}
	if u.Disabled {
		return refresh.Subject{}, refresh.ErrSubjectGone
	}
	return refresh.Subject{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

// noteAttempt logs metric write failures and raises the lockout signal.
func (e *Engine) noteAttempt(ctx context.Context, res flows.LoginResult) {
	if res.AttemptErr != nil {
		e.log.Warn("login metrics write failed", zap.Error(res.AttemptErr))
		return
	}
	if !res.Attempt.LockoutSignal {
		return
	}
	e.metricInc(MetricLockoutSignal)
	e.log.Warn("consecutive login failures reached alert threshold",
		zap.String("identifier", res.Identifier),
		zap.Int("failed_attempts", res.Attempt.FailedAttempts),
	)
	e.emitAudit(ctx, AuditLockoutSignal, false, res.User.ID, "", ErrCredentialInvalid, func() map[string]string {
		return map[string]string{
			"identifier":      res.Identifier,
			"failed_attempts": strconv.Itoa(res.Attempt.FailedAttempts),
		}
	})
}

func (e *Engine) noteEvictions(ctx context.Context, subjectID string, evicted []string) {
	for _, sid := range evicted {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, AuditSessionEvicted, true, subjectID, sid, nil, nil)
	}
}

func (e *Engine) tokenPair(access string, issued *refresh.Issued) *TokenPair {
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		TokenType:        "Bearer",
		ExpiresIn:        e.jwtManager.AccessTTL(),
		RefreshExpiresIn: e.protocol.TTL(),
		SessionID:        issued.Record.SessionID,
		SubjectID:        issued.Subject.ID,
	}
}

/*
====================================
REFRESH
====================================
*/

// Refresh rotates refreshToken. The old token is retired before the new pair
// is issued; presenting it again returns ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	defer e.observe(MetricRefreshLatency, time.Now())

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.metricInc(MetricSessionCreated)
		e.noteEvictions(ctx, res.Issued.Subject.ID, res.Issued.Evicted)
		e.emitAudit(ctx, AuditRefresh, true, res.Issued.Subject.ID, res.Issued.Record.SessionID, nil, nil)
		return e.tokenPair(res.AccessToken, res.Issued), nil
	}

	e.metricInc(MetricRefreshFailure)
	err := refreshError(res)
	switch res.Failure {
	case flows.RefreshFailureReplay:
		e.metricInc(MetricRefreshReplay)
		e.log.Warn("retired refresh token presented", zap.String("token_fp", fingerprint(refreshToken)))
		e.emitAudit(ctx, AuditRefreshReplay, false, "", "", err, func() map[string]string {
			return map[string]string{"token_fp": fingerprint(refreshToken)}
		})
		return nil, err
	case flows.RefreshFailureUnavailable:
		e.metricInc(MetricStoreUnavailable)
		e.log.Error("refresh backend unavailable", zap.Error(res.Err))
	case flows.RefreshFailureRotate, flows.RefreshFailureIssueAccess:
		e.log.Error("refresh failed", zap.String("token_fp", fingerprint(refreshToken)), zap.Error(res.Err))
	}
	e.emitAudit(ctx, AuditRefresh, false, "", "", err, nil)
	return nil, err
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureMissing:
		return ErrTokenMissing
	case flows.RefreshFailureMalformed:
		return ErrTokenMalformed
	case flows.RefreshFailureNotFound:
		return ErrTokenNotFound
	case flows.RefreshFailureExpired:
		return ErrTokenExpired
	case flows.RefreshFailureReplay, flows.RefreshFailureSubjectGone:
		return ErrTokenRevoked
	case flows.RefreshFailureUnavailable:
		return storeUnavailable(res.Err)
	default:
		return fmt.Errorf("refresh: %w", res.Err)
	}
}

/*
====================================
LOGOUT
====================================
*/

// Logout revokes refreshToken and blacklists accessToken for the rest of its
// lifetime. Either may be empty. Failures are logged, never returned.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) {
	res := e.flows.Logout(ctx, refreshToken, accessToken)

	if res.RefreshErr != nil && !errors.Is(res.RefreshErr, refresh.ErrMalformed) {
		e.log.Warn("logout: refresh revocation failed",
			zap.String("token_fp", fingerprint(refreshToken)), zap.Error(res.RefreshErr))
	}
	if res.AccessErr != nil && res.SubjectID != "" {
		e.log.Warn("logout: access token blacklist failed",
			zap.String("subject_id", res.SubjectID), zap.Error(res.AccessErr))
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, res.SubjectID, "", nil, func() map[string]string {
		return map[string]string{
			"refresh_revoked": strconv.FormatBool(res.RefreshRevoked),
			"access_revoked":  strconv.FormatBool(res.AccessRevoked),
		}
	})
}

// LogoutAll revokes every active refresh session of subjectID. Access tokens
// already issued stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return errors.New("logout all: empty subject id")
	}
	n, err := e.protocol.RevokeAll(ctx, subjectID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.log.Error("logout all failed", zap.String("subject_id", subjectID), zap.Int("revoked", n), zap.Error(err))
		return storeUnavailable(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return nil
}

/*
====================================
VERIFY / AUTHORIZE
====================================
*/

// Verify checks the access token signature, expiry and required claims, then
// the blacklist. When the blacklist cannot be read the token is rejected with
// ErrStoreUnavailable.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	defer e.observe(MetricVerifyLatency, time.Now())

	res := e.flows.Validate(ctx, accessToken)
	if res.Failure == flows.ValidateFailureNone {
		e.metricInc(MetricVerifySuccess)
		return res.Claims, nil
	}

	e.metricInc(MetricVerifyFailure)
	switch res.Failure {
	case flows.ValidateFailureMissing:
		return nil, ErrTokenMissing
	case flows.ValidateFailureMalformed:
		return nil, ErrTokenMalformed
	case flows.ValidateFailureExpired:
		return nil, ErrTokenExpired
	case flows.ValidateFailureRevoked:
		return nil, ErrTokenRevoked
	case flows.ValidateFailureUnavailable:
		e.metricInc(MetricStoreUnavailable)
		e.log.Error("blacklist lookup failed", zap.Error(res.Err))
		return nil, storeUnavailable(res.Err)
	default:
		return nil, ErrTokenInvalid
	}
}

// Authorize succeeds when claims' role satisfies requiredRoles. An empty
// requirement admits every authenticated caller.
func (e *Engine) Authorize(ctx context.Context, claims *Claims, requiredRoles ...string) error {
	if claims == nil {
		return ErrTokenMissing
	}
	if e.authz.IsAllowed(ctx, claims.SubjectID(), claims.Role, requiredRoles) {
		e.metricInc(MetricAuthorizeAllowed)
		return nil
	}

	e.metricInc(MetricAuthorizeDenied)
	e.emitAudit(ctx, AuditAccessDenied, false, claims.SubjectID(), "", ErrPermissionDenied, func() map[string]string {
		return map[string]string{
			"role":     claims.Role,
			"required": strings.Join(requiredRoles, ","),
		}
	})
	return ErrPermissionDenied
}

// Authenticate parses an Authorization header value, verifies the bearer
// token and authorizes it against requiredRoles.
func (e *Engine) Authenticate(ctx context.Context, authorization string, requiredRoles ...string) (*Claims, error) {
	token, err := ParseBearer(authorization)
	if err != nil {
		return nil, err
	}
	claims, err := e.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(ctx, claims, requiredRoles...); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseBearer extracts the token from a "Bearer <token>" header value. The
// scheme is case-insensitive.
func ParseBearer(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrTokenMalformed
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}

/*
====================================
INTROSPECTION
====================================
*/

// LoginMetrics returns the login statistics for an email identifier.
func (e *Engine) LoginMetrics(ctx context.Context, identifier string) (LoginRecord, error) {
	rec, err := e.loginMetrics.Get(ctx, flows.NormalizeIdentifier(identifier))
	if err != nil {
		return LoginRecord{}, storeUnavailable(err)
	}
	return rec, nil
}

// ThrottleAttempts returns the attempts counted against identifier in the
// current throttle window.
func (e *Engine) ThrottleAttempts(ctx context.Context, identifier string) (int, error) {
	n, err := e.rateLimiter.Attempts(ctx, flows.NormalizeIdentifier(identifier))
	if err != nil {
		return 0, storeUnavailable(err)
	}
	return n, nil
}

// ResetThrottle clears the throttle window of identifier and, when ip is not
// empty, of that client address. It lifts a lockout before the window ends.
func (e *Engine) ResetThrottle(ctx context.Context, identifier, ip string) error {
	id := flows.NormalizeIdentifier(identifier)
	if err := e.rateLimiter.Reset(ctx, id, ip); err != nil {
		e.metricInc(MetricStoreUnavailable)
		return storeUnavailable(err)
	}
	e.emitAudit(ctx, AuditThrottleReset, true, "", "", nil, func() map[string]string {
		return map[string]string{"identifier": id}
	})
	return nil
}

// ActiveSessions lists the live refresh sessions of subjectID, oldest first.
func (e *Engine) ActiveSessions(ctx context.Context, subjectID string) ([]*SessionRecord, error) {
	recs, err := e.protocol.ActiveSessions(ctx, subjectID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return recs, nil
}

// InvalidateAuthorization drops every cached decision of subjectID. Call it
// after changing a subject's role.
func (e *Engine) InvalidateAuthorization(ctx context.Context, subjectID string) (int, error) {
	n, err := e.authz.Invalidate(ctx, subjectID)
	if err != nil {
		return n, storeUnavailable(err)
	}
	return n, nil
}

// fingerprint is a short, non-reversible token identifier for logs.
func fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
