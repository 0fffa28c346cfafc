package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	selectColumns = `select id, email, password_hash, role, disabled from users`
	byEmailQuery  = selectColumns + ` where email = $1`
	byIDQuery     = selectColumns + ` where id = $1`

	updateHashQuery = `update users set password_hash = $1 where id = $2`
)

// PoolConfig tunes the database/sql pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// Postgres reads accounts from a users table. Its only write is the
// password_hash column, when a login upgrades a stale hash.
type Postgres struct {
	db           *sql.DB
	queryTimeout time.Duration
}

var (
	_ authcore.UserProvider     = (*Postgres)(nil)
	_ authcore.PasswordUpgrader = (*Postgres)(nil)
)

// Open connects through the pgx stdlib driver and applies pool settings.
func Open(dsn string, pool PoolConfig) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	return NewPostgres(db, pool.QueryTimeout), nil
}

// NewPostgres wraps an existing handle. queryTimeout <= 0 leaves deadlines to
// the caller's context.
func NewPostgres(db *sql.DB, queryTimeout time.Duration) *Postgres {
	return &Postgres{db: db, queryTimeout: queryTimeout}
}

func (p *Postgres) Close() error { return p.db.Close() }

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	return p.queryOne(ctx, byEmailQuery, strings.ToLower(strings.TrimSpace(email)))
}

func (p *Postgres) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	return p.queryOne(ctx, byIDQuery, userID)
}

// UpdatePasswordHash stores hash for userID.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, updateHashQuery, hash, userID)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}

func (p *Postgres) queryOne(ctx context.Context, query string, arg string) (authcore.UserRecord, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var (
		u    authcore.UserRecord
		role sql.NullString
	)
	err := p.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("query user: %w", err)
	}
	u.Role = role.String
	return u, nil
}
