package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// goqu dialect names
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

//go:embed migrations
var migrations embed.FS

// Handle owns the process-wide connection pool. The pool is opened on first
// use and reused afterwards; a failed attempt is not cached so the next
// caller tries again.
type Handle struct {
	driver  string
	dsn     string
	dialect string

	mu sync.Mutex
	db *sql.DB
}

// New prepares a handle for databaseURL without connecting. URLs starting
// with postgres:// or postgresql:// select PostgreSQL, anything else is
// treated as a SQLite file path.
func New(databaseURL string) *Handle {
	if isPostgres(databaseURL) {
		return &Handle{driver: "pgx", dsn: databaseURL, dialect: DialectPostgres}
	}
	return &Handle{driver: "sqlite", dsn: formatSQLitePath(databaseURL), dialect: DialectSQLite}
}

func (h *Handle) Dialect() string {
	return h.dialect
}

// DB returns the shared pool, opening and migrating it on first call.
func (h *Handle) DB(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db, nil
	}

	db, err := sql.Open(h.driver, h.dsn)
	if err != nil {
		log.Error().Err(err).Str("driver", h.driver).Msg("failed to open database")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		log.Error().Err(err).Str("driver", h.driver).Msg("failed to ping database")
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().Str("driver", h.driver).Msg("database connection successful")

	if err := h.migrate(db); err != nil {
		log.Error().Err(err).Msg("failed to run migrations")
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("dialect", h.dialect).Msg("migrations completed successfully")

	h.db = db
	return h.db, nil
}

func (h *Handle) Ping(ctx context.Context) error {
	db, err := h.DB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *Handle) migrate(db *sql.DB) error {
	var (
		driver database.Driver
		dir    string
		err    error
	)
	switch h.dialect {
	case DialectPostgres:
		dir = "migrations/postgres"
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		dir = "migrations/sqlite"
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	// Closing the migrator would close db as well, so it is left to the GC.
	m, err := migrate.NewWithInstance("iofs", source, h.dialect, driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func isPostgres(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

func formatSQLitePath(path string) string {
	if path == "" {
		path = "qrlink.db"
	}
	path = strings.TrimPrefix(path, "file:")

	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("mode", "rwc")
	params.Set("_time_format", "sqlite")
	params.Set("_txlock", "immediate")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")

	return "file:" + path + "?" + params.Encode()
}
