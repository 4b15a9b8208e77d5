// Package cache is the last-resort local fallback: a small SQLite-backed
// key/value store holding the most recent per-user field values. It is written
// through on every optimistic update and read only while signed out or while
// the remote store is unreachable.
package cache

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type Cache struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (and if needed creates) the cache database at path. ":memory:"
// yields a throwaway cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key returns the per-user cache key for a field.
func Key(uid, field string) string {
	return "pf_" + uid + "_" + field
}

// Put stores the JSON encoding of value under the per-user key.
func (c *Cache) Put(uid, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		Key(uid, field), string(raw),
	)
	return err
}

// Get returns the cached value for the per-user key. When no per-user value
// exists, the legacy un-prefixed key is read for backward compatibility.
func (c *Cache) Get(uid, field string) (any, bool) {
	if v, ok := c.get(Key(uid, field)); ok {
		return v, true
	}
	return c.get(field)
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var raw string
	if err := c.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw); err != nil {
		return nil, false
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false
	}
	return value, true
}

// Delete removes the per-user key. Missing keys are a no-op.
func (c *Cache) Delete(uid, field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM kv WHERE key = ?`, Key(uid, field))
	return err
}
