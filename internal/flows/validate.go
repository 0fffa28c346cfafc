package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
)

// ValidateFailureKind classifies access-token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissing
	ValidateFailureMalformed
	ValidateFailureInvalid
	ValidateFailureExpired
	ValidateFailureRevoked
	// ValidateFailureUnavailable means the blacklist could not be read. The
	// token is rejected.
	ValidateFailureUnavailable
)

// ValidateResult returns either verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.Claims, error)
	IsRevoked   func(ctx context.Context, token string) (bool, error)
}

// RunValidate verifies the token offline, then consults the blacklist.
func RunValidate(ctx context.Context, accessToken string, deps ValidateDeps) ValidateResult {
	if accessToken == "" {
		return ValidateResult{Failure: ValidateFailureMissing}
	}

	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		return ValidateResult{Failure: classifyAccess(err), Err: err}
	}

	if deps.IsRevoked != nil {
		revoked, err := deps.IsRevoked(ctx, accessToken)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureUnavailable, Err: err}
		}
		if revoked {
			return ValidateResult{Failure: ValidateFailureRevoked}
		}
	}

	return ValidateResult{Claims: claims}
}

func classifyAccess(err error) ValidateFailureKind {
	switch {
	case errors.Is(err, jwt.ErrMalformed):
		return ValidateFailureMalformed
	case errors.Is(err, jwt.ErrExpired):
		return ValidateFailureExpired
	default:
		return ValidateFailureInvalid
	}
}
