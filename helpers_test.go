package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type memUsers struct {
	mu      sync.RWMutex
	byID    map[string]UserRecord
	emailID map[string]string
	err     error
	// updateErr fails UpdatePasswordHash when set.
	updateErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]UserRecord{}, emailID: map[string]string{}}
}

func (m *memUsers) put(u UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
	m.emailID[u.Email] = u.ID
}

func (m *memUsers) update(id string, fn func(*UserRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	fn(&u)
	m.byID[id] = u
}

func (m *memUsers) failWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) hashOf(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id].PasswordHash
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return UserRecord{}, m.err
	}
	id, ok := m.emailID[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return UserRecord{}, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

type engineTest struct {
	engine *Engine
	users  *memUsers
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	sink   *audit.ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.RetryAttempts = 1
	cfg.Audit.DropIfFull = false
	cfg.Audit.BufferSize = 256
	return cfg
}

func newEngineTest(t *testing.T, mutate func(*Config)) *engineTest {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMemUsers()
	sink := audit.NewChannelSink(1024)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})

	return &engineTest{engine: engine, users: users, mr: mr, rdb: rdb, sink: sink}
}

// addUser hashes password with the engine's parameters and registers the account.
func (et *engineTest) addUser(t *testing.T, id, email, password, role string) UserRecord {
	t.Helper()
	hash, err := et.engine.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := UserRecord{ID: id, Email: email, PasswordHash: hash, Role: role}
	et.users.put(u)
	return u
}

// events closes the engine and returns every audit event it emitted.
func (et *engineTest) events() []AuditEvent {
	et.engine.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-et.sink.Events():
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func countEvents(events []AuditEvent, typ string, success bool) int {
	var n int
	for _, ev := range events {
		if ev.Type == typ && ev.Success == success {
			n++
		}
	}
	return n
}

func (et *engineTest) keys() session.Keys {
	return et.engine.keys
}
