package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// UserRecord is the read-only view of an account that the engine needs.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Disabled     bool
}

// UserProvider looks accounts up. Implementations return ErrUserNotFound for
// unknown accounts; any other error is treated as the directory being unavailable.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// PasswordUpgrader is optionally implemented by a UserProvider. After a
// successful login against a bcrypt hash or an argon2id hash with outdated
// parameters, the engine stores a fresh hash through it. Failures are logged
// and never fail the login.
type PasswordUpgrader interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime.
	ExpiresIn time.Duration
	// RefreshExpiresIn is the refresh token lifetime.
	RefreshExpiresIn time.Duration
	SessionID        string
	SubjectID        string
}

// Claims is the verified access-token payload.
type Claims = jwt.Claims

// SessionRecord describes one live refresh session.
type SessionRecord = session.Record

// LoginRecord is the per-identifier login statistics record.
type LoginRecord = limiters.Record
