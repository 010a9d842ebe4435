package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/sniplink/sniplink/internal/model"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound means no record matched the lookup.
	ErrNotFound = errors.New("url not found")

	// ErrDuplicateCode is the store's unique-constraint violation on
	// short_code. The service treats it as the authoritative collision
	// signal: retry for generated codes, conflict for aliases.
	ErrDuplicateCode = errors.New("short code already exists")
)

// URLRepository is the persistent record store for URL mappings.
// It speaks either PostgreSQL (production) or SQLite (development, tests)
// through the same sqlx handle; queries are written with "?" placeholders
// and rebound per driver.
type URLRepository struct {
	db     *sqlx.DB
	driver string
}

// New opens the database for the given driver ("postgres" or "sqlite3")
// and applies embedded migrations.
func New(driver, dsn string) (*URLRepository, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	// An in-memory SQLite database exists per connection; cap the pool
	// so every query sees the same database.
	if driver == "sqlite3" && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	r := &URLRepository{db: db, driver: driver}
	if err := r.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *URLRepository) runMigrations() error {
	var (
		dir string
		drv database.Driver
		err error
	)

	switch r.driver {
	case "postgres":
		dir = "migrations/postgres"
		drv, err = migratepg.WithInstance(r.db.DB, &migratepg.Config{})
	case "sqlite3":
		dir = "migrations/sqlite"
		drv, err = migratesqlite.WithInstance(r.db.DB, &migratesqlite.Config{})
	default:
		return fmt.Errorf("unsupported driver %q", r.driver)
	}
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, r.driver, drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Create inserts a new URL record and fills in its ID and CreatedAt.
// Returns ErrDuplicateCode when short_code already exists.
func (r *URLRepository) Create(ctx context.Context, u *model.URL) error {
	u.CreatedAt = time.Now().UTC()

	if r.driver == "postgres" {
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO urls (short_code, original_url, custom_alias, created_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			u.ShortCode, u.OriginalURL, u.CustomAlias, u.CreatedAt,
		).Scan(&u.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateCode
			}
			return err
		}
		return nil
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO urls (short_code, original_url, custom_alias, created_at)
		 VALUES (?, ?, ?, ?)`,
		u.ShortCode, u.OriginalURL, u.CustomAlias, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}

	id, _ := result.LastInsertId()
	u.ID = uint64(id)
	return nil
}

// GetByShortCode returns the record for a short code, or ErrNotFound.
// Covers both generated codes and custom aliases, since alias records
// store the alias in short_code as well.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*model.URL, error) {
	u := &model.URL{}
	query := r.db.Rebind(
		`SELECT id, short_code, original_url, custom_alias, clicks, created_at
		 FROM urls WHERE short_code = ?`)
	err := r.db.GetContext(ctx, u, query, shortCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByOriginalURL returns the oldest dedup-eligible record for a URL:
// same original_url and no custom alias. Alias-pinned records are never
// dedup candidates.
func (r *URLRepository) FindByOriginalURL(ctx context.Context, originalURL string) (*model.URL, error) {
	u := &model.URL{}
	query := r.db.Rebind(
		`SELECT id, short_code, original_url, custom_alias, clicks, created_at
		 FROM urls WHERE original_url = ? AND custom_alias IS NULL
		 ORDER BY id LIMIT 1`)
	err := r.db.GetContext(ctx, u, query, originalURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// IncrementClicks atomically adds one to the click counter. The add
// happens in SQL, not read-modify-write, so concurrent redirects of the
// same code never lose updates.
func (r *URLRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	query := r.db.Rebind(`UPDATE urls SET clicks = clicks + 1 WHERE short_code = ?`)
	_, err := r.db.ExecContext(ctx, query, shortCode)
	return err
}

// Close closes the underlying database handle.
func (r *URLRepository) Close() error {
	return r.db.Close()
}

// isUniqueViolation reports whether err is the driver's unique-constraint
// error for either supported backend.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}
