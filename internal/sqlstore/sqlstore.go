// Package sqlstore implements the Postgres-backed chitter.Service, grounded
// on the teacher's internal/database package: raw database/sql, explicit
// $n placeholders, and Begin/rollback-on-err/Commit around every
// multi-statement mutation.
package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/mwren/chitter/internal/chitter"
	"github.com/mwren/chitter/internal/chitter/creds"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the Postgres chitter.Service implementation.
type Store struct {
	conn  *sql.DB
	creds *creds.Registry
	log   *log.Logger
}

// Open connects to dsn, runs pending migrations, and starts the
// credential registry's sweeper.
func Open(dsn string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, chitter.Tagged(chitter.TagCouldNotCreateTables, err)
	}

	return &Store{conn: db, creds: creds.New(), log: logger}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// Close stops the credential sweeper and the connection pool.
func (s *Store) Close() error {
	s.creds.Close()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func wrapCouldNot(tag chitter.Tag, err error) error {
	if err == nil {
		return nil
	}
	return chitter.Tagged(tag, err)
}

func rollbackOnErr(tx *sql.Tx, err *error) {
	if *err != nil {
		tx.Rollback()
	}
}

var errNoRows = sql.ErrNoRows

func tagNotFound(err error, tag chitter.Tag) error {
	if errors.Is(err, errNoRows) {
		return chitter.Tagged(tag, nil)
	}
	return err
}
