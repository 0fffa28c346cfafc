package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureExpired
	// RefreshFailureReplay means the token was already retired: a second use
	// of a rotated token or a revoked one.
	RefreshFailureReplay
	RefreshFailureSubjectGone
	RefreshFailureUnavailable
	RefreshFailureRotate
	RefreshFailureIssueAccess
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	Issued      *refresh.Issued
	AccessToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Rotate      func(ctx context.Context, token string) (*refresh.Issued, error)
	IssueAccess func(refresh.Subject) (string, error)
}

// RunRefresh rotates refreshToken and issues a new access token for the
// (re-resolved) subject.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing}
	}

	issued, err := deps.Rotate(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: classifyRefresh(err), Err: err}
	}

	access, err := deps.IssueAccess(issued.Subject)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, Issued: issued}
	}

	return RefreshResult{Issued: issued, AccessToken: access}
}

func classifyRefresh(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, refresh.ErrMalformed):
		return RefreshFailureMalformed
	case errors.Is(err, refresh.ErrNotFound):
		return RefreshFailureNotFound
	case errors.Is(err, refresh.ErrExpired):
		return RefreshFailureExpired
	case errors.Is(err, refresh.ErrRevoked):
		return RefreshFailureReplay
	case errors.Is(err, refresh.ErrSubjectGone):
		return RefreshFailureSubjectGone
	case errors.Is(err, session.ErrUnavailable), errors.Is(err, ErrDirectoryUnavailable):
		return RefreshFailureUnavailable
	default:
		return RefreshFailureRotate
	}
}
