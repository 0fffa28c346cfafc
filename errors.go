package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrCredentialInvalid covers unknown accounts, wrong passwords and disabled
	// accounts alike. Callers cannot tell them apart.
	ErrCredentialInvalid = errors.New("invalid credentials")
	// ErrTokenMissing is returned when no bearer or refresh token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenMalformed is returned for tokens that cannot be parsed.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid is returned when a token parses but its signature or claims do not verify.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for blacklisted tokens, including a refresh token presented twice.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenNotFound is returned for refresh tokens with no stored session.
	ErrTokenNotFound = errors.New("token not found")
	// ErrRateLimitExceeded is returned when the login throttle rejects an attempt.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrPermissionDenied is returned when the caller's role does not satisfy the requirement.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStoreUnavailable is the only infrastructural kind: the session store or user
	// directory could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ErrUserNotFound is returned by a UserProvider for unknown identifiers.
var ErrUserNotFound = errors.New("user not found")

// Kind classifies an engine error.
type Kind int

const (
	KindNone Kind = iota
	KindCredentialInvalid
	KindTokenMissing
	KindTokenMalformed
	KindTokenInvalid
	KindTokenExpired
	KindTokenRevoked
	KindTokenNotFound
	KindRateLimitExceeded
	KindPermissionDenied
	KindStoreUnavailable
	KindInternal
)

var kindNames = [...]string{
	KindNone:              "none",
	KindCredentialInvalid: "credential_invalid",
	KindTokenMissing:      "token_missing",
	KindTokenMalformed:    "token_malformed",
	KindTokenInvalid:      "token_invalid",
	KindTokenExpired:      "token_expired",
	KindTokenRevoked:      "token_revoked",
	KindTokenNotFound:     "token_not_found",
	KindRateLimitExceeded: "rate_limit_exceeded",
	KindPermissionDenied:  "permission_denied",
	KindStoreUnavailable:  "store_unavailable",
	KindInternal:          "internal",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

var kindSentinels = []struct {
	err  error
	kind Kind
}{
	{ErrCredentialInvalid, KindCredentialInvalid},
	{ErrTokenMissing, KindTokenMissing},
	{ErrTokenMalformed, KindTokenMalformed},
	{ErrTokenInvalid, KindTokenInvalid},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenRevoked, KindTokenRevoked},
	{ErrTokenNotFound, KindTokenNotFound},
	{ErrRateLimitExceeded, KindRateLimitExceeded},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrStoreUnavailable, KindStoreUnavailable},
}

// KindOf classifies err. nil is KindNone; anything unrecognized is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// Outcome is the caller-facing collapse of a Kind.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeUnauthorized
	OutcomeForbidden
	OutcomeTooManyRequests
	OutcomeServiceUnavailable
	OutcomeInternal
)

// OutcomeOf maps err to the response a boundary should give.
func OutcomeOf(err error) Outcome {
	switch KindOf(err) {
	case KindNone:
		return OutcomeOK
	case KindCredentialInvalid, KindTokenMissing, KindTokenMalformed, KindTokenInvalid,
		KindTokenExpired, KindTokenRevoked, KindTokenNotFound:
		return OutcomeUnauthorized
	case KindPermissionDenied:
		return OutcomeForbidden
	case KindRateLimitExceeded:
		return OutcomeTooManyRequests
	case KindStoreUnavailable:
		return OutcomeServiceUnavailable
	default:
		return OutcomeInternal
	}
}

// HTTPStatus returns the status code for o.
func (o Outcome) HTTPStatus() int {
	switch o {
	case OutcomeOK:
		return http.StatusOK
	case OutcomeUnauthorized:
		return http.StatusUnauthorized
	case OutcomeForbidden:
		return http.StatusForbidden
	case OutcomeTooManyRequests:
		return http.StatusTooManyRequests
	case OutcomeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RateLimitError is returned by Login when the throttle denies an attempt.
// It matches ErrRateLimitExceeded under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", ErrRateLimitExceeded, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
