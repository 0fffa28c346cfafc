package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/google/uuid"
)

var (
	ErrMalformed = errors.New("refresh token malformed")
	ErrNotFound  = errors.New("refresh token not found")
	ErrExpired   = errors.New("refresh token expired")
	ErrRevoked   = errors.New("refresh token revoked")
	// ErrSubjectGone is returned by a SubjectResolver when the account behind a
	// session can no longer authenticate. The presented token is revoked.
	ErrSubjectGone = errors.New("refresh subject no longer valid")
)

// Subject identifies who a refresh session belongs to.
type Subject struct {
	ID    string
	Email string
	Role  string
}

// SubjectResolver re-reads a subject at rotation time so that role changes
// take effect on the next refresh.
type SubjectResolver func(ctx context.Context, subjectID string) (Subject, error)

// Config controls token lifetime and the per-subject session cap.
type Config struct {
	TTL               time.Duration
	MaxActiveSessions int
}

// Issued is the result of a successful Issue or Refresh.
type Issued struct {
	Token   string
	Record  *session.Record
	Subject Subject
	// Evicted holds the session IDs revoked to keep the subject under the cap.
	Evicted []string
}

// Option customizes a Protocol.
type Option func(*Protocol)

// WithResolver installs a SubjectResolver.
func WithResolver(r SubjectResolver) Option {
	return func(p *Protocol) { p.resolve = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// Protocol issues, rotates and revokes refresh tokens. It is safe for concurrent use.
type Protocol struct {
	store   *session.Store
	keys    session.Keys
	cfg     Config
	resolve SubjectResolver
	now     func() time.Time
}

// New validates cfg and returns a Protocol over store.
func New(store *session.Store, cfg Config, opts ...Option) (*Protocol, error) {
	if store == nil {
		return nil, errors.New("refresh: nil session store")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh: TTL must be > 0")
	}
	if cfg.MaxActiveSessions <= 0 {
		return nil, errors.New("refresh: MaxActiveSessions must be > 0")
	}

	p := &Protocol{store: store, keys: store.Keys(), cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// TTL returns the configured refresh lifetime.
func (p *Protocol) TTL() time.Duration {
	return p.cfg.TTL
}

// Issue creates a new session for subj, appends it to the subject's index and
// revokes the oldest sessions beyond MaxActiveSessions.
func (p *Protocol) Issue(ctx context.Context, subj Subject) (*Issued, error) {
	if subj.ID == "" {
		return nil, errors.New("refresh: empty subject id")
	}

	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	now := p.now()
	rec := &session.Record{
		SessionID: uuid.NewString(),
		Subject:   subj.ID,
		Email:     subj.Email,
		Role:      subj.Role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(p.cfg.TTL).Unix(),
	}
	data, err := rec.Encode()
	if err != nil {
		return nil, err
	}

	if err := p.store.Put(ctx, p.keys.Refresh(token), data, p.cfg.TTL); err != nil {
		return nil, err
	}

	index := p.keys.Index(subj.ID)
	if _, err := p.store.ListAppend(ctx, index, token, p.cfg.TTL); err != nil {
		return nil, err
	}

	overflow, err := p.store.ListEvictOldest(ctx, index, p.cfg.MaxActiveSessions)
	if err != nil {
		return nil, err
	}

	issued := &Issued{Token: token, Record: rec, Subject: subj}
	for _, old := range overflow {
		sid, err := p.retire(ctx, old, subj.ID)
		if err != nil {
			return nil, fmt.Errorf("revoke evicted session: %w", err)
		}
		if sid != "" {
			issued.Evicted = append(issued.Evicted, sid)
		}
	}

	return issued, nil
}

// Refresh rotates oldToken: it is retired and a new token is issued for the
// same subject. Any second presentation of oldToken fails with ErrRevoked.
func (p *Protocol) Refresh(ctx context.Context, oldToken string) (*Issued, error) {
	if err := ParseToken(oldToken); err != nil {
		return nil, err
	}

	revoked, err := p.store.Exists(ctx, p.keys.Blacklist(oldToken))
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	rec, err := p.load(ctx, oldToken)
	if err != nil {
		return nil, err
	}

	now := p.now()
	if rec.Expired(now) {
		if err := p.store.Delete(ctx, p.keys.Refresh(oldToken)); err != nil {
			return nil, err
		}
		if err := p.store.ListRemove(ctx, p.keys.Index(rec.Subject), oldToken); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	subj := Subject{ID: rec.Subject, Email: rec.Email, Role: rec.Role}
	if p.resolve != nil {
		resolved, err := p.resolve(ctx, rec.Subject)
		if err != nil {
			if errors.Is(err, ErrSubjectGone) {
				if _, rerr := p.retire(ctx, oldToken, rec.Subject); rerr != nil {
					return nil, rerr
				}
			}
			return nil, err
		}
		subj = resolved
	}

	status, err := p.store.Retire(ctx,
		p.keys.Refresh(oldToken), p.keys.Blacklist(oldToken), p.keys.Index(rec.Subject),
		oldToken, now, p.clampTTL(rec.Remaining(now)),
	)
	if err != nil {
		return nil, err
	}
	switch status {
	case session.RetireAlreadyRevoked:
		return nil, ErrRevoked
	case session.RetireNotFound:
		return nil, ErrNotFound
	}

	return p.Issue(ctx, subj)
}

// Revoke retires token. Unknown and already-revoked tokens are not an error.
func (p *Protocol) Revoke(ctx context.Context, token string) error {
	if err := ParseToken(token); err != nil {
		return err
	}
	_, err := p.retire(ctx, token, "")
	return err
}

// RevokeAll retires every indexed session of subjectID and reports how many
// were live.
func (p *Protocol) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	index := p.keys.Index(subjectID)
	tokens, err := p.store.ListMembers(ctx, index)
	if err != nil {
		return 0, err
	}

	var revoked int
	for _, token := range tokens {
		sid, err := p.retire(ctx, token, subjectID)
		if err != nil {
			return revoked, err
		}
		if sid != "" {
			revoked++
		}
	}
	return revoked, nil
}

// ActiveSessions returns the live session records of subjectID, oldest first.
// Tokens themselves are not returned.
func (p *Protocol) ActiveSessions(ctx context.Context, subjectID string) ([]*session.Record, error) {
	tokens, err := p.store.ListMembers(ctx, p.keys.Index(subjectID))
	if err != nil {
		return nil, err
	}

	out := make([]*session.Record, 0, len(tokens))
	for _, token := range tokens {
		rec, err := p.load(ctx, token)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *Protocol) load(ctx context.Context, token string) (*session.Record, error) {
	data, err := p.store.Get(ctx, p.keys.Refresh(token))
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec, err := session.DecodeRecord(data)
	if errors.Is(err, session.ErrCorrupt) {
		if derr := p.store.Delete(ctx, p.keys.Refresh(token)); derr != nil {
			return nil, derr
		}
		return nil, ErrNotFound
	}
	return rec, err
}

// retire blacklists token for its remaining lifetime and returns the session
// ID when this call did the retiring. subjectHint is used to clean the index
// when the record is already gone.
func (p *Protocol) retire(ctx context.Context, token, subjectHint string) (string, error) {
	rec, err := p.load(ctx, token)
	if errors.Is(err, ErrNotFound) {
		if subjectHint != "" {
			return "", p.store.ListRemove(ctx, p.keys.Index(subjectHint), token)
		}
		return "", nil
	}
	if err != nil {
		return "", err
	}

	now := p.now()
	status, err := p.store.Retire(ctx,
		p.keys.Refresh(token), p.keys.Blacklist(token), p.keys.Index(rec.Subject),
		token, now, p.clampTTL(rec.Remaining(now)),
	)
	if err != nil || status != session.RetireOK {
		return "", err
	}
	return rec.SessionID, nil
}

// clampTTL keeps blacklist lifetimes within [1s, refresh TTL].
func (p *Protocol) clampTTL(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	if d > p.cfg.TTL {
		return p.cfg.TTL
	}
	return d
}
