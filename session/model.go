package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned when a stored refresh record cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// Record is the value stored under a refresh_token key. Email and Role are a
// snapshot taken at issue time; IssuedAt and ExpiresAt are unix seconds.
type Record struct {
	SessionID string `json:"sid"`
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Encode marshals the record for storage.
func (r *Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRecord parses a stored record. A record without subject or expiry is corrupt.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Subject == "" || r.ExpiresAt <= 0 {
		return nil, ErrCorrupt
	}
	return &r, nil
}

// Expired reports whether the record's lifetime has ended at now.
func (r *Record) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// Remaining is the lifetime left at now, never negative.
func (r *Record) Remaining(now time.Time) time.Duration {
	d := time.Unix(r.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
