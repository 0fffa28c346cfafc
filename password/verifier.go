package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// dummyPlain seeds the hash that VerifyDummy checks against. Its value is irrelevant.
const dummyPlain = "authcore-dummy-credential"

// Verifier is the credential check used at login. It accepts argon2id hashes
// and legacy bcrypt hashes, and never reports why a check failed.
type Verifier struct {
	argon *Argon2
	dummy string
}

// NewVerifier builds a Verifier around an argon2id hasher. A dummy hash is
// derived once with the same parameters so that checks against unknown
// accounts cost the same as checks against real ones.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	dummy, err := a.Hash(dummyPlain)
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a, dummy: dummy}, nil
}

// Hasher exposes the argon2id hasher used for new hashes.
func (v *Verifier) Hasher() *Argon2 {
	return v.argon
}

// Verify returns true only when plain matches hash. Malformed hashes,
// unsupported formats and oversized input all yield false.
func (v *Verifier) Verify(plain, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$"+algorithmID+"$"):
		ok, err := v.argon.Verify(plain, hash)
		return err == nil && ok
	case isBcrypt(hash):
		if len(plain) > v.argon.config.MaxPasswordBytes {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether a hash that just verified should be replaced by
// a fresh argon2id hash. Legacy bcrypt hashes always qualify; argon2id hashes
// qualify when their parameters are weaker than the current configuration.
func (v *Verifier) NeedsRehash(hash string) bool {
	if isBcrypt(hash) {
		return true
	}
	stale, err := v.argon.NeedsUpgrade(hash)
	return err == nil && stale
}

// VerifyDummy burns one argon2id verification and always returns false.
func (v *Verifier) VerifyDummy(plain string) bool {
	_, _ = v.argon.Verify(plain, v.dummy)
	return false
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
