package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	mdatabase "github.com/golang-migrate/migrate/v4/database"
	mpgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// migrateUp applies all pending migrations for the driver.
//
// migrate closes the *sql.DB it's handed, so we give it a connection of it's own.
func migrateUp(driverName, dsn string) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return err
	}

	var driver mdatabase.Driver
	dir := "migrations/postgres"
	switch driverName {
	case DriverSQLite:
		dir = "migrations/sqlite"
		driver, err = msqlite.WithInstance(db, &msqlite.Config{})
	case DriverPgx:
		driver, err = mpgx.WithInstance(db, &mpgx.Config{})
	case DriverPQ:
		driver, err = mpostgres.WithInstance(db, &mpostgres.Config{})
	default:
		err = fmt.Errorf("unsupported driver %s", driverName)
	}
	if err != nil {
		db.Close()
		return err
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		driver.Close()
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		driver.Close()
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
