package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	RevokeRefresh func(ctx context.Context, token string) error
	ParseAccess   func(string) (*jwt.Claims, error)
	// RevokeAccess blacklists an access token for ttl.
	RevokeAccess func(ctx context.Context, token string, ttl time.Duration) error
	Now          func() time.Time
}

// LogoutResult reports what happened to each presented token. Errors here are
// for logging only; logout always succeeds from the caller's view.
type LogoutResult struct {
	SubjectID      string
	RefreshErr     error
	AccessErr      error
	AccessRevoked  bool
	RefreshRevoked bool
}

// RunLogout revokes the refresh token and, when a still-valid access token is
// presented, blacklists it for its remaining lifetime.
func RunLogout(ctx context.Context, refreshToken, accessToken string, deps LogoutDeps) LogoutResult {
	var res LogoutResult

	if refreshToken != "" {
		res.RefreshErr = deps.RevokeRefresh(ctx, refreshToken)
		res.RefreshRevoked = res.RefreshErr == nil
	}

	if accessToken == "" {
		return res
	}
	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		// expired or forged tokens need no blacklist entry
		res.AccessErr = err
		return res
	}
	res.SubjectID = claims.SubjectID()

	remaining := time.Second
	if claims.ExpiresAt != nil {
		if d := claims.ExpiresAt.Time.Sub(deps.Now()); d > remaining {
			remaining = d
		}
	}
	res.AccessErr = deps.RevokeAccess(ctx, accessToken, remaining)
	res.AccessRevoked = res.AccessErr == nil
	return res
}
