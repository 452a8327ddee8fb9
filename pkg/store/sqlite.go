package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/choked/choked/pkg/rate"
)

// SQLiteStore is a bucket store backed by a SQLite database file. Writers
// serialize through immediate transactions, which makes it safe for several
// processes on the same host to share one budget through a shared file.
//
// A cron-driven sweep deletes buckets that have been idle long enough to be
// indistinguishable from a fresh full bucket, so the file does not grow with
// key cardinality.
type SQLiteStore struct {
	db     *sql.DB
	cron   *cron.Cron
	logger *slog.Logger
	cfg    SQLiteConfig

	mu        sync.Mutex
	closeOnce sync.Once
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path. Required.
	Path string

	// BusyTimeout is how long a writer waits for the file lock before
	// failing. Default: 5 seconds.
	BusyTimeout time.Duration

	// SweepSchedule is a cron expression for the idle-bucket sweep, for
	// example "*/10 * * * *". Empty disables the sweep.
	SweepSchedule string

	// IdleTTL is how long an untouched bucket survives the sweep.
	// Default: 1 hour.
	IdleTTL time.Duration
}

// NewSQLiteStore opens (creating if needed) the database, initializes the
// schema, and starts the sweep scheduler when configured.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = time.Hour
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	// SQLite supports a single writer; a larger pool just queues on the
	// file lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "store.sqlite"),
		cfg:    cfg,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: schema: %w", err)
	}

	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
		s.cron = cron.New()
		_, err := s.cron.AddFunc(cfg.SweepSchedule, func() {
			if n, err := s.Sweep(context.Background()); err != nil {
				s.logger.Warn("bucket sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("bucket sweep completed", "removed", n)
			}
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: scheduling sweep: %w", err)
		}
		s.cron.Start()
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buckets (
		key TEXT PRIMARY KEY,
		tokens REAL NOT NULL,
		last_refill REAL NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_buckets_updated_at ON buckets(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// TryConsume implements Store. The whole cycle runs inside an immediate
// transaction so concurrent processes cannot interleave between the read
// and the write.
func (s *SQLiteStore) TryConsume(ctx context.Context, key string, cost float64, limit rate.Limit) (res Result, err error) {
	err = s.withBucketTx(ctx, key, func(tokens, lastRefill float64, exists bool, commit func(tokens, lastRefill float64) error) error {
		now := float64(time.Now().UnixMicro()) / 1e6
		if !exists {
			tokens = limit.Capacity
			lastRefill = now
		}

		elapsed := now - lastRefill
		if elapsed < 0 {
			elapsed = 0
		}
		tokens += elapsed * limit.RefillPerSecond
		if tokens > limit.Capacity {
			tokens = limit.Capacity
		}

		if tokens >= cost {
			tokens -= cost
			res = Result{Granted: true, Available: tokens}
		} else {
			res = Result{
				Granted:   false,
				Available: tokens,
				Wait:      limit.WaitFor(cost - tokens),
			}
		}
		return commit(tokens, now)
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: sqlite consume %q: %w", ErrUnavailable, key, err)
	}
	return res, nil
}

// Refund implements Store. The refill timestamp is preserved.
func (s *SQLiteStore) Refund(ctx context.Context, key string, units float64, limit rate.Limit) error {
	err := s.withBucketTx(ctx, key, func(tokens, lastRefill float64, exists bool, commit func(tokens, lastRefill float64) error) error {
		now := float64(time.Now().UnixMicro()) / 1e6
		if !exists {
			return commit(limit.Capacity, now)
		}
		tokens += units
		if tokens > limit.Capacity {
			tokens = limit.Capacity
		}
		return commit(tokens, lastRefill)
	})
	if err != nil {
		return fmt.Errorf("%w: sqlite refund %q: %w", ErrUnavailable, key, err)
	}
	return nil
}

// withBucketTx loads one bucket row under BEGIN IMMEDIATE, hands it to fn,
// and commits whatever fn passes back through commit.
func (s *SQLiteStore) withBucketTx(ctx context.Context, key string, fn func(tokens, lastRefill float64, exists bool, commit func(tokens, lastRefill float64) error) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// IMMEDIATE takes the write lock up front; a deferred transaction could
	// hit SQLITE_BUSY on lock upgrade when two writers race.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}

	var (
		tokens     float64
		lastRefill float64
		exists     = true
	)
	row := conn.QueryRowContext(ctx, "SELECT tokens, last_refill FROM buckets WHERE key = ?", key)
	if err := row.Scan(&tokens, &lastRefill); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			conn.ExecContext(ctx, "ROLLBACK")
			return err
		}
		exists = false
	}

	committed := false
	commit := func(tokens, lastRefill float64) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO buckets (key, tokens, last_refill, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				tokens = excluded.tokens,
				last_refill = excluded.last_refill,
				updated_at = excluded.updated_at`,
			key, tokens, lastRefill, time.Now().Unix())
		if err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return err
		}
		committed = true
		return nil
	}

	if err := fn(tokens, lastRefill, exists, commit); err != nil {
		if !committed {
			conn.ExecContext(ctx, "ROLLBACK")
		}
		return err
	}
	if !committed {
		conn.ExecContext(ctx, "ROLLBACK")
	}
	return nil
}

// Sweep deletes buckets idle longer than the configured TTL and returns how
// many rows were removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.IdleTTL).Unix()
	result, err := s.db.ExecContext(ctx, "DELETE FROM buckets WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Close stops the sweep scheduler and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cron != nil {
			s.cron.Stop()
		}
		err = s.db.Close()
	})
	return err
}
