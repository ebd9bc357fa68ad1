package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres keeps all blobs in a single key/value table, for deployments
// where the attendance store outgrows the local file.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a Postgres connection with sane defaults and ensures
// the blobs table exists.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blobs (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Get returns the blob for key, or nil when absent.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	row := p.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = $1`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// Set upserts the blob for key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blobs (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}

// Delete removes the blob for key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = $1`, key)
	return err
}

// Close closes the underlying connection.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
