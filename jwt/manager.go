package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretBytes = 32

var (
	// ErrMalformed is returned when the token is not three well-formed base64url segments.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature is returned when the signature does not verify or the algorithm is not HS256.
	ErrSignature = errors.New("token signature invalid")
	// ErrExpired is returned when exp is in the past (after leeway).
	ErrExpired = errors.New("token expired")
	// ErrMissingClaims is returned when sub, email or role is absent.
	ErrMissingClaims = errors.New("token missing required claims")
)

// Config holds the codec settings. Secret is shared between signing and verification.
type Config struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Leeway    time.Duration
}

// Manager issues and verifies HS256 access tokens.
//
// Manager holds no mutable state and is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the access-token payload.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID returns the sub claim.
func (c *Claims) SubjectID() string {
	return c.Subject
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured default lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// Issue signs a token for the subject. A non-positive ttl falls back to the configured AccessTTL.
func (m *Manager) Issue(subjectID, email, role string, ttl time.Duration) (string, error) {
	if subjectID == "" || email == "" || role == "" {
		return "", ErrMissingClaims
	}
	if ttl <= 0 {
		ttl = m.config.AccessTTL
	}

	now := m.now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Verify parses and validates tokenStr. The returned error is one of ErrMalformed,
// ErrSignature, ErrExpired or ErrMissingClaims.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	if strings.Count(tokenStr, ".") != 2 {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || claims.Email == "" || claims.Role == "" {
		return nil, ErrMissingClaims
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrMissingClaims
	default:
		// iat in the future, wrong issuer, not-before: all treated as an unusable signature.
		return ErrSignature
	}
}
