// Package refresh runs the rotating refresh-token protocol on top of the
// session store.
//
// A refresh token is 32 random bytes, base64url encoded without padding. It is
// opaque to clients and carries no claims; everything about the session lives
// in the stored record.
//
// Lifecycle:
//
//	Issued -> Active -> Rotated | Revoked
//
// Rotated and Revoked are terminal. Presenting a token after it has left the
// Active state yields [ErrRevoked], and exactly one of any set of concurrent
// rotations of the same token succeeds.
//
// Each subject holds at most Config.MaxActiveSessions live tokens. Issuing
// beyond that revokes the oldest ones first.
package refresh
