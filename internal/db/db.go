package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

type Database struct {
	Conn   *sql.DB
	Driver string
}

func NewDatabase(driver, dsn string) (*Database, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if driver == DriverSQLite {
		dsn = withBusyTimeout(dsn)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite has a single writer; one connection keeps writes ordered and avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(25)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}
	return &Database{Conn: conn, Driver: driver}, nil
}

// withBusyTimeout makes a writer wait for another process holding the
// SQLite file lock instead of failing with SQLITE_BUSY.
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

// Rebind rewrites '?' placeholders into the driver's native form.
func (d *Database) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *Database) AutoMigrate() error {
	queries := postgresSchema
	if d.Driver == DriverSQLite {
		queries = sqliteSchema
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Timestamps are stored as unix nanoseconds so both drivers sort them the same way.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
            seq BIGSERIAL PRIMARY KEY,
            id VARCHAR(36) UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            sender TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at BIGINT NOT NULL
        )`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages (room_id, created_at, seq)`,

	`CREATE TABLE IF NOT EXISTS polls (
            seq BIGSERIAL PRIMARY KEY,
            id TEXT UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            creator TEXT NOT NULL,
            question TEXT NOT NULL,
            options JSONB NOT NULL,
            version BIGINT NOT NULL DEFAULT 0,
            created_at BIGINT NOT NULL
        )`,
	`CREATE INDEX IF NOT EXISTS idx_polls_room_time ON polls (room_id, created_at, seq)`,

	// Client supplied names have no length limit on either driver.
	`ALTER TABLE messages ALTER COLUMN room_id TYPE TEXT, ALTER COLUMN sender TYPE TEXT`,
	`ALTER TABLE polls ALTER COLUMN id TYPE TEXT, ALTER COLUMN room_id TYPE TEXT, ALTER COLUMN creator TYPE TEXT`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            sender TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at INTEGER NOT NULL
        )`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages (room_id, created_at, seq)`,

	`CREATE TABLE IF NOT EXISTS polls (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            creator TEXT NOT NULL,
            question TEXT NOT NULL,
            options TEXT NOT NULL,
            version INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL
        )`,
	`CREATE INDEX IF NOT EXISTS idx_polls_room_time ON polls (room_id, created_at, seq)`,
}
