package database

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	sqlStore
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// An in-memory database exists per connection.
	if connectionString == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return &SQLiteDatabase{
		sqlStore: sqlStore{
			db:      db,
			dialect: dialect{name: "sqlite", blobType: "BLOB"},
		},
		connectionString: connectionString,
	}, nil
}
