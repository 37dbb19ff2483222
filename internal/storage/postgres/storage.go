// Package postgres implements the store port on a single Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/groupflight/flightgroup/internal/storage"
)

var (
	// ErrMissingDSN is returned by New when no connection string is configured
	ErrMissingDSN = errors.New("postgres: dsn is required")

	// ErrClosed is returned by operations on a storage closed before first use
	ErrClosed = errors.New("postgres: storage is closed")
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Storage keeps every item as a row keyed by (tbl, key). Expired rows are
// invisible to reads and overwritten by writes.
type Storage struct {
	cfg    Config
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// New creates a Postgres storage. The connection is opened lazily on first use.
func New(cfg Config) (*Storage, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}
	defaults := DefaultConfig()
	if cfg.TableName == "" {
		cfg.TableName = defaults.TableName
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	return &Storage{cfg: cfg, openDB: sql.Open}, nil
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

func (s *Storage) Get(ctx context.Context, table storage.Table, key string) ([]byte, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE tbl = $1 AND key = $2 AND (expires_at IS NULL OR expires_at > NOW())`,
		quoteIdentifier(s.cfg.TableName))
	var value []byte
	err := s.db.QueryRowContext(ctx, query, string(table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Storage) Put(ctx context.Context, table storage.Table, key string, value []byte, ttl time.Duration) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.upsertQuery(), string(table), key, value, ttl.Milliseconds())
	return err
}

// Update serializes writers of one key with a transaction-scoped advisory
// lock, which also covers keys that do not have a row yet.
func (s *Storage) Update(ctx context.Context, table storage.Table, key string, ttl time.Duration, fn storage.Mutator) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(s.cfg.TableName, table, key)); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE tbl = $1 AND key = $2 AND (expires_at IS NULL OR expires_at > NOW())`,
		quoteIdentifier(s.cfg.TableName))
	var current []byte
	exists := true
	err = tx.QueryRowContext(ctx, query, string(table), key).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current, exists = nil, false
	} else if err != nil {
		return err
	}

	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, s.upsertQuery(), string(table), key, next, ttl.Milliseconds()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Storage) Delete(ctx context.Context, table storage.Table, key string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE tbl = $1 AND key = $2", quoteIdentifier(s.cfg.TableName))
	_, err := s.db.ExecContext(ctx, query, string(table), key)
	return err
}

// Close closes the database handle if it was opened. It waits for an
// in-progress open, and a storage closed before first use never opens.
func (s *Storage) Close() error {
	s.initOnce.Do(func() { s.initErr = ErrClosed })
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PurgeExpired deletes rows whose expiry has passed and reports how many went
func (s *Storage) PurgeExpired(ctx context.Context) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= NOW()", quoteIdentifier(s.cfg.TableName))
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// upsertQuery takes ($1 tbl, $2 key, $3 value, $4 ttl in ms); ttl 0 means no expiry.
func (s *Storage) upsertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (tbl, key, value, expires_at)
		VALUES ($1, $2, $3, CASE WHEN $4::BIGINT > 0 THEN NOW() + $4::BIGINT * INTERVAL '1 millisecond' END)
		ON CONFLICT (tbl, key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		quoteIdentifier(s.cfg.TableName))
}

func (s *Storage) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

func (s *Storage) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.cfg.DSN)
		if err != nil {
			s.initErr = err
			return
		}
		if s.cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(s.cfg.MaxOpenConns)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				tbl TEXT NOT NULL,
				key TEXT NOT NULL,
				value BYTEA NOT NULL,
				expires_at TIMESTAMPTZ NULL,
				PRIMARY KEY (tbl, key)
			)`, quoteIdentifier(s.cfg.TableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func lockKey(tableName string, table storage.Table, key string) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(tableName))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(table))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(key))
	return int64(hasher.Sum64())
}
