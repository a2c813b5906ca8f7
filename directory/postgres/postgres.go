// Package postgres is a goCred.Directory backed by a pgx connection pool.
//
// Credentials live in one table:
//
//	credentials(subject, email, name, password_hash, algorithm,
//	            totp_secret, two_factor, updated_at)
//
// Emails are matched case-insensitively through a lower(email) unique
// index. Call [Store.Migrate] once to create the table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the credentials table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS credentials (
	subject       TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	algorithm     TEXT NOT NULL DEFAULT 'argon2id',
	totp_secret   BYTEA,
	two_factor    TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS credentials_email_lower_idx ON credentials (lower(email));
`

const (
	qBySubject = `SELECT subject, email, name, password_hash, algorithm, totp_secret, two_factor, updated_at
FROM credentials WHERE subject = $1`
	qByEmail    = `SELECT subject FROM credentials WHERE lower(email) = lower($1)`
	qUpdateHash = `UPDATE credentials SET password_hash = $2, updated_at = now() WHERE subject = $1`
	qUpsert     = `INSERT INTO credentials (subject, email, name, password_hash, algorithm, totp_secret, two_factor, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (subject) DO UPDATE SET
	email = EXCLUDED.email,
	name = EXCLUDED.name,
	password_hash = EXCLUDED.password_hash,
	algorithm = EXCLUDED.algorithm,
	totp_secret = EXCLUDED.totp_secret,
	two_factor = EXCLUDED.two_factor,
	updated_at = now()`
	qSetTwoFactor = `UPDATE credentials SET totp_secret = $2, two_factor = $3, updated_at = now() WHERE subject = $1`
	qDelete       = `DELETE FROM credentials WHERE subject = $1`
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PoolConfig tunes the pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
}

// Store implements goCred.Directory.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// Open parses dsn, applies cfg and connects.
func Open(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
		pcfg.MaxConnIdleTime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, db: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Close closes the pool if the Store opened or was given one.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Migrate creates the credentials table and index.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

func (s *Store) FindBySubject(ctx context.Context, subject string) (goCred.Credential, error) {
	var (
		c         goCred.Credential
		twoFactor string
	)
	err := s.db.QueryRow(ctx, qBySubject, subject).Scan(
		&c.Subject, &c.Email, &c.Name, &c.PasswordHash, &c.Algorithm, &c.TOTPSecret, &twoFactor, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return goCred.Credential{}, goCred.ErrSubjectNotFound
		}
		return goCred.Credential{}, fmt.Errorf("find credential: %w", err)
	}
	c.TwoFactor = goCred.Channel(twoFactor)
	return c, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (string, error) {
	var subject string
	err := s.db.QueryRow(ctx, qByEmail, strings.TrimSpace(email)).Scan(&subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", goCred.ErrSubjectNotFound
		}
		return "", fmt.Errorf("find credential by email: %w", err)
	}
	return subject, nil
}

func (s *Store) UpdateCredential(ctx context.Context, subject, passwordHash string) error {
	tag, err := s.db.Exec(ctx, qUpdateHash, subject, passwordHash)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return goCred.ErrSubjectNotFound
	}
	return nil
}

// Upsert inserts or replaces c. Used by seeding and signup tooling.
func (s *Store) Upsert(ctx context.Context, c goCred.Credential) error {
	if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Email) == "" || c.PasswordHash == "" {
		return errors.New("subject, email and password hash are required")
	}
	algorithm := c.Algorithm
	if algorithm == "" {
		algorithm = "argon2id"
	}
	_, err := s.db.Exec(ctx, qUpsert,
		c.Subject, strings.TrimSpace(c.Email), c.Name, c.PasswordHash, algorithm, c.TOTPSecret, string(c.TwoFactor))
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// SetTwoFactor stores the authenticator secret and step-up channel. A nil
// secret with an empty channel disables the second factor.
func (s *Store) SetTwoFactor(ctx context.Context, subject string, secret []byte, channel goCred.Channel) error {
	tag, err := s.db.Exec(ctx, qSetTwoFactor, subject, secret, string(channel))
	if err != nil {
		return fmt.Errorf("set two factor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return goCred.ErrSubjectNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, subject string) error {
	_, err := s.db.Exec(ctx, qDelete, subject)
	return err
}
