package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/refresh"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureMissingIdentifier
	LoginFailureThrottled
	LoginFailureUnavailable
	LoginFailureCredentials
	LoginFailureIssueAccess
	LoginFailureIssueRefresh
)

// LoginUser is the flow-local account view.
type LoginUser struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Disabled     bool
}

// LoginResult carries either the issued credentials or failure metadata.
// Attempt is the login metrics record after this attempt, when it could be written.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	Identifier string
	RetryAfter time.Duration
	User       LoginUser

	AccessToken string
	Refresh     *refresh.Issued

	Attempt    limiters.Record
	AttemptErr error

	// Rehashed is set when the stored hash was replaced; RehashErr carries a
	// failed replacement, which does not fail the login.
	Rehashed  bool
	RehashErr error
}

type LoginThrottle interface {
	TryConsume(ctx context.Context, identifier, ip string) (rate.Decision, error)
}

type LoginAttemptRecorder interface {
	RecordAttempt(ctx context.Context, identifier string, success bool) (limiters.Record, error)
}

// LoginDeps captures login flow dependencies. LookupUser returns found=false
// for unknown accounts and an error only for infrastructural failures.
type LoginDeps struct {
	ClientIP       func(context.Context) string
	Throttle       LoginThrottle
	LookupUser     func(ctx context.Context, identifier string) (LoginUser, bool, error)
	VerifyPassword func(plain, hash string) bool
	VerifyDummy    func(plain string) bool
	Attempts       LoginAttemptRecorder
	IssueAccess    func(LoginUser) (string, error)
	IssueRefresh   func(context.Context, LoginUser) (*refresh.Issued, error)
	// RehashPassword is optional. It runs after a successful verification and
	// reports whether the stored hash was replaced.
	RehashPassword func(ctx context.Context, u LoginUser, plain string) (bool, error)
}

// NormalizeIdentifier trims and lowercases an email identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// RunLogin throttles, verifies credentials and issues an access token plus a
// refresh session. The throttle runs before any credential work, so a denied
// attempt never reaches the user directory.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	id := NormalizeIdentifier(identifier)
	if id == "" {
		return LoginResult{Failure: LoginFailureMissingIdentifier, Err: errors.New("empty identifier")}
	}

	var ip string
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}

	decision, err := deps.Throttle.TryConsume(ctx, id, ip)
	if err != nil {
		return LoginResult{Failure: LoginFailureUnavailable, Err: err, Identifier: id}
	}
	if !decision.Allowed {
		return LoginResult{
			Failure:    LoginFailureThrottled,
			Err:        rate.ErrRateLimited,
			Identifier: id,
			RetryAfter: decision.RetryAfter,
		}
	}

	user, found, err := deps.LookupUser(ctx, id)
	if err != nil {
		return LoginResult{Failure: LoginFailureUnavailable, Err: err, Identifier: id}
	}

	var ok bool
	if found {
		ok = deps.VerifyPassword(password, user.PasswordHash)
	} else {
		deps.VerifyDummy(password)
	}
	if !found || !ok || user.Disabled {
		res := LoginResult{Failure: LoginFailureCredentials, Identifier: id, User: user}
		res.Attempt, res.AttemptErr = recordAttempt(ctx, deps.Attempts, id, false)
		return res
	}

	res := LoginResult{Identifier: id, User: user}
	res.Attempt, res.AttemptErr = recordAttempt(ctx, deps.Attempts, id, true)
	if deps.RehashPassword != nil {
		res.Rehashed, res.RehashErr = deps.RehashPassword(ctx, user, password)
	}

	access, err := deps.IssueAccess(user)
	if err != nil {
		res.Failure, res.Err = LoginFailureIssueAccess, err
		return res
	}

	issued, err := deps.IssueRefresh(ctx, user)
	if err != nil {
		res.Failure, res.Err = LoginFailureIssueRefresh, err
		return res
	}

	res.AccessToken = access
	res.Refresh = issued
	return res
}

func recordAttempt(ctx context.Context, r LoginAttemptRecorder, id string, success bool) (limiters.Record, error) {
	if r == nil {
		return limiters.Record{}, nil
	}
	return r.RecordAttempt(ctx, id, success)
}
