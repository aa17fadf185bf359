package main

import (
	"database/sql"

	"github.com/trezcool/masomo-admin/storage/database"
)

var migrateFunc = database.Migrate // mockable

func migrator(db *sql.DB) func(command string, args ...string) error {
	return func(command string, args ...string) error {
		return migrateFunc(db, command, args...)
	}
}
