package users

import (
	"context"
	"strings"
	"sync"

	"github.com/MrEthical07/authcore"
)

// Memory is a concurrency-safe in-process directory.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]authcore.UserRecord
	emailID map[string]string
}

var (
	_ authcore.UserProvider     = (*Memory)(nil)
	_ authcore.PasswordUpgrader = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]authcore.UserRecord),
		emailID: make(map[string]string),
	}
}

// Put inserts or replaces u. Emails are stored normalized.
func (m *Memory) Put(u authcore.UserRecord) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[u.ID]; ok {
		delete(m.emailID, old.Email)
	}
	m.byID[u.ID] = u
	m.emailID[u.Email] = u.ID
}

// Update applies fn to the stored record for id. It reports whether id exists.
func (m *Memory) Update(id string, fn func(*authcore.UserRecord)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.emailID, u.Email)
	fn(&u)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	m.byID[id] = u
	m.emailID[u.Email] = id
	return true
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (authcore.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emailID[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	if !m.Update(userID, func(u *authcore.UserRecord) { u.PasswordHash = hash }) {
		return authcore.ErrUserNotFound
	}
	return nil
}
