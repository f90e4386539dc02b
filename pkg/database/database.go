// Package database builds the sql.DB pool backing the durable feedback
// record log.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Options struct {
	Driver          string
	DataSource      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

type Option func(*Options)

func WithDriver(driver string) Option {
	return func(o *Options) { o.Driver = driver }
}

func WithDataSource(dsn string) Option {
	return func(o *Options) { o.DataSource = dsn }
}

func WithMaxOpenConns(count int) Option {
	return func(o *Options) { o.MaxOpenConns = count }
}

func WithMaxIdleConns(count int) Option {
	return func(o *Options) { o.MaxIdleConns = count }
}

func WithConnMaxLifetime(duration time.Duration) Option {
	return func(o *Options) { o.ConnMaxLifetime = duration }
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Options) {
		o.RetryAttempts = attempts
		o.RetryDelay = delay
	}
}

// sqlitePragmas are appended to sqlite DSNs: WAL so dashboard reads never
// block the concurrent ingest writers, a busy timeout instead of immediate
// SQLITE_BUSY failures when writers collide, and enforced foreign keys.
var sqlitePragmas = []string{
	"_journal_mode=WAL",
	"_busy_timeout=5000",
	"_foreign_keys=on",
}

// sqliteDSN appends the default pragmas to dsn. Parameters already present
// in the DSN win.
func sqliteDSN(dsn string) string {
	var missing []string
	for _, pragma := range sqlitePragmas {
		key := pragma[:strings.IndexByte(pragma, '=')+1]
		if !strings.Contains(dsn, key) {
			missing = append(missing, pragma)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

// New creates a database connection pool, retrying the initial connection
// with linear backoff.
func New(ctx context.Context, opts ...Option) (*sql.DB, error) {
	options := &Options{
		Driver:          "sqlite3",
		DataSource:      ":memory:",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.Driver == "" {
		return nil, fmt.Errorf("database driver cannot be empty")
	}
	if options.DataSource == "" {
		return nil, fmt.Errorf("database data source cannot be empty")
	}

	dsn := options.DataSource
	if options.Driver == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}

	var lastErr error
	for attempt := 0; attempt < options.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * options.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		db, err := sql.Open(options.Driver, dsn)
		if err != nil {
			lastErr = err
			continue
		}

		db.SetMaxOpenConns(options.MaxOpenConns)
		db.SetMaxIdleConns(options.MaxIdleConns)
		db.SetConnMaxLifetime(options.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			lastErr = err
			db.Close()
			continue
		}
		return db, nil
	}

	return nil, fmt.Errorf("connect %s after %d attempts: %w", options.Driver, options.RetryAttempts, lastErr)
}
