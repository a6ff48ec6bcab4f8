package database

import (
	"database/sql"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// ApplicationName tags PostgreSQL sessions opened by starchart
const ApplicationName = "starchart"

// PostgresDialect implements Dialect for a shared PostgreSQL server
type PostgresDialect struct{}

// NewPostgresDialect creates a new PostgreSQL dialect
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// DSN tags URL-style connection strings with an application_name unless the
// URL already sets one. Key/value strings are passed through unchanged.
func (d *PostgresDialect) DSN(config DialectConfig) string {
	u, err := url.Parse(config.URL)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return config.URL
	}
	q := u.Query()
	if q.Get("application_name") == "" {
		q.Set("application_name", ApplicationName)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (d *PostgresDialect) RewriteQuery(query string) string {
	return rewritePlaceholdersToNumbered(query)
}

func (d *PostgresDialect) ConfigureConnection(db *sql.DB) error {
	// a household produces little traffic; keep the server-side footprint small
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return nil
}

func (d *PostgresDialect) MigrationsSubdir() string {
	return "postgres"
}

func (d *PostgresDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT UNIQUE NOT NULL,
			executed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
	`
}

func (d *PostgresDialect) UpsertQuery(table string, key, columns []string) string {
	return onConflictUpsert(table, key, columns)
}
