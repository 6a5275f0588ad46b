package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS

func Up(driver, dsn string) error {
	m, err := migrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func Down(driver, dsn string) error {
	m, err := migrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	err = m.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version reports the applied schema version. ok is false on an empty database.
func Version(driver, dsn string) (version uint, dirty bool, ok bool, err error) {
	m, err := migrator(driver, dsn)
	if err != nil {
		return 0, false, false, err
	}
	defer m.Close()
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, true, nil
}

func migrator(driver, dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(FS, driver)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	switch driver {
	case "mysql":
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		dbDriver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create driver: %w", err)
		}
		return newWithInstance(src, driver, dbDriver)
	case "sqlite":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create driver: %w", err)
		}
		return newWithInstance(src, driver, dbDriver)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func newWithInstance(src source.Driver, name string, dbDriver database.Driver) (*migrate.Migrate, error) {
	m, err := migrate.NewWithInstance("iofs", src, name, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
