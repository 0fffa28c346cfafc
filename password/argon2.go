package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 8
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps plaintext input so a single request cannot
	// pin a CPU on a multi-megabyte password.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrInvalidHash is returned for any stored hash that is not a well-formed argon2id PHC string.
	ErrInvalidHash = errors.New("password: invalid hash format")
	// ErrPasswordLength is returned when plaintext is shorter than the minimum or longer than MaxPasswordBytes.
	ErrPasswordLength = errors.New("password: length out of bounds")
)

// Config holds argon2id cost parameters. The zero value is invalid; start from DefaultConfig.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the OWASP-recommended argon2id parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 hashes and verifies passwords in PHC string format.
// It is immutable after construction and safe for concurrent use.
type Argon2 struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a new salted hash for plain. Input bytes are used as given,
// without Unicode normalization.
func (a *Argon2) Hash(plain string) (string, error) {
	if len(plain) < minPassBytes || len(plain) > a.config.MaxPasswordBytes {
		return "", ErrPasswordLength
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. The comparison is constant time.
// An error means the stored hash itself is unusable, not that the password was wrong.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	if len(plain) > a.config.MaxPasswordBytes {
		return false, ErrPasswordLength
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters than
// the hasher's current configuration.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.KeyLength != uint32(len(p.hash)), nil
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, parts[2])
	}

	p := &phc{}
	if err := p.parseParams(parts[3]); err != nil {
		return nil, err
	}

	if p.salt, err = decodeSegment(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	if p.hash, err = decodeSegment(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}

	return p, nil
}

// decodeSegment accepts both padded and unpadded base64, since PHC encoders disagree.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func (p *phc) parseParams(segment string) error {
	var seen int
	for _, pair := range strings.Split(segment, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: parameter %q", ErrInvalidHash, pair)
		}

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return fmt.Errorf("%w: memory", ErrInvalidHash)
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return fmt.Errorf("%w: time", ErrInvalidHash)
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return fmt.Errorf("%w: parallelism", ErrInvalidHash)
			}
			p.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
		seen++
	}

	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return fmt.Errorf("%w: missing parameters", ErrInvalidHash)
	}
	return nil
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case c.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case c.MaxPasswordBytes < minPassBytes:
		return errors.New("password max bytes must be >= 8")
	}
	return nil
}
