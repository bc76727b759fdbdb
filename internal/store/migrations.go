package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/pairstream/pairstream/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	upDownSeparator     = "-- +migrate Up"
	downMarker          = "-- +migrate Down"
	migrationDirections = 2
)

//go:embed migrations/001_pairstream_core_1.sql
var mig001 string

// Migration pairs an identifier with a SQL file that contains a Down
// section followed by an Up section.
type Migration struct {
	ID  string
	SQL string
}

func coreMigrations() []Migration {
	return []Migration{
		{ID: "001_pairstream_core_1.sql", SQL: mig001},
	}
}

// RunMigrations brings the schema at dbPath up to date.
func RunMigrations(dbPath string) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB %w", err)
	}
	defer db.Close()

	return RunMigrationsDB(logger.GetDefaultLogger(), db, coreMigrations())
}

// RunMigrationsDB executes pending migrations against an open database.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, migrations []Migration) error {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	for _, m := range migrations {
		splitted := strings.Split(m.SQL, upDownSeparator)

		if len(splitted) < migrationDirections {
			return fmt.Errorf("migration %s missing '-- +migrate Up' separator", m.ID)
		}

		downSQL := splitted[0]
		upSQL := strings.TrimSpace(splitted[1])

		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = strings.TrimSpace(downSQL[idx+len(downMarker):])
		} else {
			downSQL = strings.TrimSpace(downSQL)
		}

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{upSQL},
			Down: []string{downSQL},
		})
	}

	var listMigrations strings.Builder
	for _, m := range migs.Migrations {
		listMigrations.WriteString(m.Id + ", ")
	}

	log.Debugf("running migrations: %s", listMigrations.String())

	nMigrations, err := migrate.Exec(db, "sqlite3", migs, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migrations %s: %w", listMigrations.String(), err)
	}

	log.Infof("successfully ran %d migrations from migrations: %s", nMigrations, listMigrations.String())
	return nil
}
