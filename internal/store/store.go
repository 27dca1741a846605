package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/abdotop/cartpay/internal/db"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// Store owns the storefront SQLite database (users and orders).
type Store struct {
	DB *sql.DB
}

// New opens the SQLite database at dbPath, creating the file when missing.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("dbPath cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite serialises writers
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return &Store{DB: conn}, nil
}

// Queries returns the query set bound to this database.
func (s *Store) Queries() *db.Queries {
	return db.New(s.DB)
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// AutoMigrate applies pending goose migrations from the provided directory.
// It is safe to call repeatedly; goose will no-op if already up to date.
func (s *Store) AutoMigrate(migrationsDir string) error {
	if migrationsDir == "" {
		return errors.New("migrationsDir cannot be empty")
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	absDir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}
	if err := goose.Up(s.DB, absDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
