package dbmigrate

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"time"

	gorp "github.com/go-gorp/gorp"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/hostops/hops/sdk"
)

const dialectName = "postgres"

// MigrationStatus is the state of one migration script.
type MigrationStatus struct {
	ID        string     `json:"id" db:"id"`
	Migrated  bool       `json:"migrated" db:"-"`
	AppliedAt *time.Time `json:"applied_at" db:"applied_at"`
}

// Do applies migrations found in sqlMigrateDir. With dryrun it only returns the planned migrations.
func Do(DBFunc func() *sql.DB, sqlMigrateDir string, dir migrate.MigrationDirection, dryrun bool, limit int) ([]*migrate.PlannedMigration, error) {
	source := migrate.FileMigrationSource{
		Dir: sqlMigrateDir,
	}

	if dryrun {
		migrations, _, err := migrate.PlanMigration(DBFunc(), dialectName, source, dir, limit)
		if err != nil {
			return nil, sdk.WrapError(err, "cannot plan migration")
		}
		return migrations, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, sdk.WithStack(err)
	}
	hostname = fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
	if err := lockMigrate(DBFunc(), hostname); err != nil {
		return nil, err
	}

	_, errExec := migrate.ExecMax(DBFunc(), dialectName, source, dir, limit)

	if err := unlockMigrate(DBFunc(), hostname); err != nil {
		return nil, sdk.WrapError(err, "cannot unlock migration")
	}

	return nil, sdk.WithStack(errExec)
}

// MigrationLock is a row of gorp_migrations_lock, held while migrations run.
type MigrationLock struct {
	ID       string     `db:"id"`
	Locked   *time.Time `db:"locked"`
	Unlocked *time.Time `db:"unlocked"`
}

func lockDBMap(db *sql.DB) *gorp.DbMap {
	dbmap := &gorp.DbMap{Db: db, Dialect: gorp.PostgresDialect{}}
	dbmap.AddTableWithName(MigrationLock{}, "gorp_migrations_lock").SetKeys(false, "ID")
	return dbmap
}

func pendingLocks(tx *gorp.Transaction) ([]MigrationLock, error) {
	var pending []MigrationLock
	query := "SELECT * FROM gorp_migrations_lock WHERE unlocked IS NULL FOR UPDATE OF gorp_migrations_lock NOWAIT"
	if _, err := tx.Select(&pending, query); err != nil {
		return nil, sdk.WithStack(err)
	}
	return pending, nil
}

func lockMigrate(db *sql.DB, id string) error {
	dbmap := lockDBMap(db)
	if err := dbmap.CreateTablesIfNotExists(); err != nil {
		return sdk.WithStack(err)
	}

	tx, err := dbmap.Begin()
	if err != nil {
		return sdk.WithStack(err)
	}
	defer tx.Rollback() // nolint

	pending, err := pendingLocks(tx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return sdk.NewErrorFrom(sdk.ErrLocked, "migration is locked by %s since %v", pending[0].ID, pending[0].Locked)
	}

	t := time.Now()
	if err := tx.Insert(&MigrationLock{ID: id, Locked: &t}); err != nil {
		return sdk.WithStack(err)
	}
	return sdk.WithStack(tx.Commit())
}

func unlockMigrate(db *sql.DB, id string) error {
	tx, err := lockDBMap(db).Begin()
	if err != nil {
		return sdk.WithStack(err)
	}
	defer tx.Rollback() // nolint

	pending, err := pendingLocks(tx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return sdk.WithStack(fmt.Errorf("there is no migration to unlock"))
	}

	var m MigrationLock
	if err := tx.SelectOne(&m, "SELECT * FROM gorp_migrations_lock WHERE id = $1", id); err != nil {
		return sdk.WithStack(err)
	}
	t := time.Now()
	m.Unlocked = &t
	if _, err := tx.Update(&m); err != nil {
		return sdk.WithStack(err)
	}
	return sdk.WithStack(tx.Commit())
}

// Get the status of all migration scripts
func Get(DBFunc func() *sql.DB, dir string) ([]MigrationStatus, error) {
	source := migrate.FileMigrationSource{
		Dir: dir,
	}

	migrations, err := source.FindMigrations()
	if err != nil {
		return nil, sdk.WithStack(err)
	}

	records, err := migrate.GetMigrationRecords(DBFunc(), dialectName)
	if err != nil {
		return nil, sdk.WithStack(err)
	}

	rows := make(map[string]MigrationStatus, len(migrations))
	for _, m := range migrations {
		rows[m.Id] = MigrationStatus{ID: m.Id}
	}

	for _, r := range records {
		s, ok := rows[r.Id]
		if !ok {
			return nil, sdk.WithStack(fmt.Errorf("record '%s' not in migration list, manual migration needed", r.Id))
		}
		appliedAt := r.AppliedAt
		s.Migrated = true
		s.AppliedAt = &appliedAt
		rows[r.Id] = s
	}

	res := make([]MigrationStatus, 0, len(rows))
	for _, r := range rows {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res, nil
}
