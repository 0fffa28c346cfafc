package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
)

// Config holds every engine setting. Start from DefaultConfig and override;
// Build calls Validate.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Throttle ThrottleConfig
	Password PasswordConfig
	Authz    AuthzConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens. Secret must be at least 32 bytes.
type JWTConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Leeway    time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures refresh sessions and the Redis keyspace.
type SessionConfig struct {
	RefreshTTL        time.Duration
	MaxActiveSessions int
	// Namespace prefixes every key. Empty keeps the plain layout.
	Namespace     string
	RetryAttempts int
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig configures the login throttle and login metrics.
type ThrottleConfig struct {
	MaxAttempts   int
	MaxIPAttempts int
	Window        time.Duration
	// FailureAlertThreshold emits a lockout signal when consecutive failures
	// reach it. It never blocks. Zero disables the signal.
	FailureAlertThreshold int
	MetricsRetention      time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for new hashes and the dummy hash.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

/*
====================================
AUTHZ CONFIG
====================================
*/

// AuthzConfig configures the role table and the decision cache.
type AuthzConfig struct {
	Roles    map[string][]string
	CacheTTL time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. JWT.Secret is left empty and
// must be supplied.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
		},
		Session: SessionConfig{
			RefreshTTL:        7 * 24 * time.Hour,
			MaxActiveSessions: 5,
			RetryAttempts:     3,
		},
		Throttle: ThrottleConfig{
			MaxAttempts:           5,
			MaxIPAttempts:         20,
			Window:                15 * time.Minute,
			FailureAlertThreshold: 10,
			MetricsRetention:      30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: pw.MaxPasswordBytes,
		},
		Authz: AuthzConfig{
			Roles:    permission.DefaultRoles(),
			CacheTTL: permission.DefaultCacheTTL,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate checks the configuration for unsafe or inconsistent values.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Session.MaxActiveSessions <= 0 {
		return errors.New("Session MaxActiveSessions must be > 0")
	}
	if c.Session.RetryAttempts < 0 {
		return errors.New("Session RetryAttempts must be >= 0")
	}

	// Throttle
	if c.Throttle.MaxAttempts <= 0 {
		return errors.New("Throttle MaxAttempts must be > 0")
	}
	if c.Throttle.MaxIPAttempts < 0 {
		return errors.New("Throttle MaxIPAttempts must be >= 0")
	}
	if c.Throttle.Window <= 0 {
		return errors.New("Throttle Window must be > 0")
	}
	if c.Throttle.FailureAlertThreshold < 0 {
		return errors.New("Throttle FailureAlertThreshold must be >= 0")
	}

	// Authz
	if len(c.Authz.Roles) == 0 {
		return errors.New("Authz Roles must not be empty")
	}
	if c.Authz.CacheTTL < 0 {
		return errors.New("Authz CacheTTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c PasswordConfig) toPassword() password.Config {
	return password.Config{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MaxPasswordBytes: c.MaxPasswordBytes,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.Authz.Roles != nil {
		out.Authz.Roles = make(map[string][]string, len(cfg.Authz.Roles))
		for role, perms := range cfg.Authz.Roles {
			out.Authz.Roles[role] = append([]string(nil), perms...)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
