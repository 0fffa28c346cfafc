package session

import (
	"sort"
	"strings"
)

// Keys builds the Redis key for every record type. The zero value produces
// un-prefixed keys.
type Keys struct {
	Namespace string
}

func (k Keys) join(kind, id string) string {
	if k.Namespace == "" {
		return kind + ":" + id
	}
	return k.Namespace + ":" + kind + ":" + id
}

// Refresh is the key of a refresh session record.
func (k Keys) Refresh(token string) string { return k.join("refresh_token", token) }

// Blacklist is the revocation key of an access or refresh token.
func (k Keys) Blacklist(token string) string { return k.join("blacklist", token) }

// Index is the active-session list of a subject.
func (k Keys) Index(subjectID string) string { return k.join("user_tokens", subjectID) }

// LoginMetrics is the per-identifier login counter hash.
func (k Keys) LoginMetrics(identifier string) string { return k.join("login_metrics", identifier) }

// Attempts is the per-identifier throttle counter.
func (k Keys) Attempts(identifier string) string { return k.join("login_attempts", identifier) }

// AttemptsIP is the per-address throttle counter.
func (k Keys) AttemptsIP(ip string) string { return k.join("login_attempts_ip", ip) }

// Authz is the decision-cache key. Required roles are sorted so that the
// same set in any order maps to one entry.
func (k Keys) Authz(subjectID, role string, required []string) string {
	sorted := append([]string(nil), required...)
	sort.Strings(sorted)
	return k.join("authz", subjectID+":"+role+":"+strings.Join(sorted, ","))
}

// AuthzSubjectPattern is a SCAN MATCH pattern covering every decision-cache
// entry of subjectID. Glob metacharacters in the namespace and subject are
// escaped so they match literally.
func (k Keys) AuthzSubjectPattern(subjectID string) string {
	return globEscaper.Replace(k.join("authz", subjectID+":")) + "*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
