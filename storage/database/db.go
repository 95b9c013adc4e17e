// Package database opens the PostgreSQL store and runs its migrations.
package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/admitdesk/admitdesk/core"
	appfs "github.com/admitdesk/admitdesk/fs"
)

const (
	migrationsDir = "migrations"
	maintenanceDB = "postgres"

	pingAttempts = 30
	pingStep     = 100 * time.Millisecond
)

// dsn builds the connection URL of dbName. Admin credentials are used when asked for and configured.
func dsn(conf core.DatabaseConfig, dbName string, admin bool) string {
	creds := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		creds = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}

	q := url.Values{}
	q.Set("timezone", "utc")
	if conf.DisableTLS {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "require")
	}

	return (&url.URL{
		Scheme:   conf.Engine,
		User:     creds,
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}).String()
}

// Open opens the application database. The connection is not checked.
func Open(conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dsn(conf.Database, conf.Database.Name, false))
}

// waitReady pings db until it answers, backing off a little more after each failure.
func waitReady(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for database")
		case <-time.After(time.Duration(attempt) * pingStep):
		}
	}
	return errors.Wrap(err, "database ping timeout")
}

func exists(ctx context.Context, db *sql.DB, query, name string) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, query, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return found, err
}

// CreateIfNotExist connects to the maintenance database and creates the application role
// and database when missing. The database is owned by the application role.
func CreateIfNotExist(conf *core.Config) error {
	ctx := context.Background()
	dbConf := conf.Database

	db, err := sql.Open(dbConf.Engine, dsn(dbConf, maintenanceDB, true))
	if err != nil {
		return errors.Wrap(err, "opening maintenance database")
	}
	defer func() { _ = db.Close() }()

	if err = waitReady(ctx, db); err != nil {
		return err
	}

	if dbConf.User != "" {
		found, err := exists(ctx, db, "SELECT true FROM pg_roles WHERE rolname = $1", dbConf.User)
		if err != nil {
			return errors.Wrap(err, "checking app role")
		}
		if !found {
			q := "CREATE ROLE " + pq.QuoteIdentifier(dbConf.User) +
				" LOGIN CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(dbConf.Password)
			if _, err = db.ExecContext(ctx, q); err != nil {
				return errors.Wrap(err, "creating app role")
			}
		}
	}

	found, err := exists(ctx, db, "SELECT true FROM pg_database WHERE datname = $1", dbConf.Name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if found {
		return nil
	}
	q := "CREATE DATABASE " + pq.QuoteIdentifier(dbConf.Name)
	if dbConf.User != "" {
		q += " OWNER " + pq.QuoteIdentifier(dbConf.User)
	}
	_, err = db.ExecContext(ctx, q)
	return errors.Wrap(err, "creating database")
}

func init() {
	goose.SetBaseFS(appfs.FS)
}

// Migrate runs a goose command ("up", "down", "status", "redo"...) against the embedded migrations.
func Migrate(db *sql.DB, command string, args ...string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting dialect")
	}
	if err := goose.RunContext(context.Background(), command, db, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migration %q", command)
	}
	return nil
}
