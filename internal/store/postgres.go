package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Postgres implements Store on the kv_store table created by db.EnsureSchema.
// Expiry is evaluated against the database clock.
type Postgres struct {
	DB *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM kv_store WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`
	var value []byte
	err := p.DB.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	query := `
        INSERT INTO kv_store (key, value, expires_at)
        VALUES ($1, $2, NULL)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = NULL
    `
	_, err := p.DB.ExecContext(ctx, query, key, value)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	return err
}

// SetIfAbsent inserts the row, or takes over a row whose expiry has passed.
// A conflicting live row leaves zero rows affected. ttl <= 0 never expires.
func (p *Postgres) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var ttlMillis any
	if ttl > 0 {
		ttlMillis = ttl.Milliseconds()
	}
	query := `
        INSERT INTO kv_store (key, value, expires_at)
        VALUES ($1, $2, NOW() + $3::bigint * INTERVAL '1 millisecond')
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
        WHERE kv_store.expires_at IS NOT NULL AND kv_store.expires_at <= NOW()
    `
	res, err := p.DB.ExecContext(ctx, query, key, value, ttlMillis)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1 AND value = $2`, key, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *Postgres) Scan(ctx context.Context, prefix string) ([]string, error) {
	query := `
        SELECT key FROM kv_store
        WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > NOW())
        ORDER BY key
    `
	rows, err := p.DB.QueryContext(ctx, query, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var _ Store = (*Postgres)(nil)
