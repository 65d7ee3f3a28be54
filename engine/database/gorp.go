package database

import (
	"database/sql"

	"github.com/go-gorp/gorp"
)

// TableMapping registers a type on a gorp DbMap.
type TableMapping func(m *gorp.DbMap)

var mappings []TableMapping

// RegisterTableMapping adds a mapping applied on every DbMap returned by DBMap.
// It has to be called from package init functions.
func RegisterTableMapping(fs ...TableMapping) {
	mappings = append(mappings, fs...)
}

// DBMap returns a gorp.DbMap on postgres with the registered table mappings.
func DBMap(db *sql.DB) *gorp.DbMap {
	if db == nil {
		return nil
	}
	dbmap := &gorp.DbMap{Db: db, Dialect: gorp.PostgresDialect{}}
	for _, f := range mappings {
		f(dbmap)
	}
	return dbmap
}
