package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongo    = "mongo"
)

// DB wraps a SQL connection and remembers which driver it speaks so
// queries written with ? placeholders can be rebound.
type DB struct {
	conn   *sql.DB
	driver string
}

// OpenSQLite opens (or creates) the SQLite file at dbPath.
func OpenSQLite(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return Open(DriverSQLite, dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
}

// Open connects to dsn with the given driver and runs migrations.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite only supports one writer
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver returns the driver name the DB was opened with.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites ? placeholders to $n for postgres.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.Rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.Rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.Rebind(query), args...)
}

// upsert builds an insert that replaces the non-key columns on conflict.
func (db *DB) upsert(table, key string, cols ...string) string {
	all := append([]string{key}, cols...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(all)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(all, ", "), marks)

	sets := make([]string, len(cols))
	for i, c := range cols {
		if db.driver == DriverMySQL {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}
	if db.driver == DriverMySQL {
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return q + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET ", key) + strings.Join(sets, ", ")
}

func (db *DB) migrate() error {
	// Column types differ per engine: MySQL cannot index TEXT keys.
	key, body := "TEXT", "TEXT"
	if db.driver == DriverMySQL {
		key, body = "VARCHAR(64)", "LONGTEXT"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id ` + key + ` PRIMARY KEY,
			title ` + body + ` NOT NULL,
			status VARCHAR(32) NOT NULL,
			updated_at BIGINT NOT NULL,
			data_json ` + body + ` NOT NULL
		)`,
		// Undo history: one row per snapshot, parent links form a tree
		`CREATE TABLE IF NOT EXISTS history_nodes (
			id ` + key + ` PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			parent_id VARCHAR(64),
			label ` + body + ` NOT NULL,
			snapshot_json ` + body + ` NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		// Current position pointer per project
		`CREATE TABLE IF NOT EXISTS history_state (
			project_id ` + key + ` PRIMARY KEY,
			current_node_id VARCHAR(64) NOT NULL
		)`,
	}
	if db.driver != DriverMySQL {
		migrations = append(migrations,
			`CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at)`,
			`CREATE INDEX IF NOT EXISTS idx_history_nodes_project ON history_nodes(project_id)`,
		)
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", firstWords(m), err)
		}
	}

	return nil
}

func firstWords(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
