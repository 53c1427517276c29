package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

// Cache stores generated descriptions keyed by image content and request
// parameters so that resubmitting a batch does not repeat provider calls.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at fname and applies the schema.
func Open(ctx context.Context, fname string) (*Cache, error) {
	// Open the DB but flip on the cleaner timestamps from Go
	sqldb, err := sql.Open("sqlite", fname+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent
	sqldb.SetMaxOpenConns(1)

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}

	return &Cache{db: sqldb}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for image data and the parameters that shape the
// description (provider, model, max chars, style...).
func Key(data []byte, params ...string) string {
	h := sha256.New()
	h.Write(data)
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached description for key. The bool is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var desc string
	err := c.db.QueryRowContext(ctx,
		"SELECT description FROM descriptions WHERE cache_key=$1", key).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if _, err := c.db.ExecContext(ctx,
		"UPDATE descriptions SET hits=hits+1 WHERE cache_key=$1", key); err != nil {
		return "", false, err
	}

	return desc, true, nil
}

// Put stores or replaces the description for key.
func (c *Cache) Put(ctx context.Context, key, description string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO descriptions (cache_key, description, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT(cache_key) DO UPDATE SET description=excluded.description, created_at=excluded.created_at`,
		key, description, time.Now())
	return err
}

// Count returns the number of cached descriptions
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM descriptions").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
