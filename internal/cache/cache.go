// Package cache stores rendered token responses outside the analysis core.
// The CLI uses the sqlite Store; the HTTP server can use RedisStore.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Backend is implemented by every cache store.
type Backend interface {
	Get(ctx context.Context, key string, maxStale time.Duration) (Result, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

// Key derives the cache key for one analysed token.
func Key(command, chain, address string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join([]string{command, chain, address}, "|"))))
	return hex.EncodeToString(sum[:])
}

func evaluate(value []byte, created time.Time, ttl, maxStale time.Duration, now time.Time) Result {
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	stale := age > ttl
	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}
}

const (
	dsnPragmas      = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	initLockTimeout = 10 * time.Second
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	// Pragmas run on every pooled connection, busy_timeout first.
	db, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	store := &Store{db: db, lock: flock.New(lockPath)}

	// Schema setup and the journal mode switch are serialized across processes.
	ctx, cancel := context.WithTimeout(context.Background(), initLockTimeout)
	defer cancel()
	locked, err := store.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		_ = db.Close()
		return nil, fmt.Errorf("lock cache for init: %w", errors.Join(err, ctx.Err()))
	}
	_, err = db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS token_responses (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_ms INTEGER NOT NULL);")
	_ = store.lock.Unlock()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	_ = store.Prune(time.Hour)
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes entries that expired more than retain ago.
func (s *Store) Prune(retain time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().Add(-retain).UnixMilli()
	if _, err := s.db.Exec("DELETE FROM token_responses WHERE created_at + ttl_ms < ?", cutoff); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string, maxStale time.Duration) (Result, error) {
	var (
		value     []byte
		createdMS int64
		ttlMS     int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT value, created_at, ttl_ms FROM token_responses WHERE key = ?", key).Scan(&value, &createdMS, &ttlMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}
	return evaluate(value, time.UnixMilli(createdMS), time.Duration(ttlMS)*time.Millisecond, maxStale, time.Now()), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlMS := ttl.Milliseconds()
	if ttlMS <= 0 {
		ttlMS = 1000
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_responses (key, value, created_at, ttl_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			created_at=excluded.created_at,
			ttl_ms=excluded.ttl_ms
	`, key, value, time.Now().UnixMilli(), ttlMS)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
