// Package database provides the PostgreSQL client and schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the durable store connection. All services share the same
// *sql.DB; pgx handles the wire protocol.
type Client struct {
	db  *sql.DB
	cfg Config
}

// DB returns the underlying connection pool for direct queries.
func (c *Client) DB() *sql.DB {
	return c.db
}

// DSN returns the connection string, used for the dedicated LISTEN connection.
func (c *Client) DSN() string {
	return c.cfg.DSN()
}

// NewClientWithDB wraps an existing connection (used by tests).
func NewClientWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// NewClient opens the database, configures pooling and applies pending
// migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db, cfg: cfg}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// runMigrations applies embedded SQL migrations with golang-migrate.
// Files under migrations/ are compiled into the binary, so deployments
// need no external migration assets.
func runMigrations(db *sql.DB, cfg Config) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the
	// database driver, which closes the shared *sql.DB.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}
