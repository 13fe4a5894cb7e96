package database

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// CreateRecord stores the record and returns its generated id.
	CreateRecord(ctx context.Context, record *Record) (string, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	// ListRecords returns the newest records first without preview and result payloads.
	ListRecords(ctx context.Context, limit int) ([]*Record, error)
	// FindByHash returns the newest record for the image hash and engine.
	FindByHash(ctx context.Context, imageHash, engine string) (*Record, error)
	DeleteRecord(ctx context.Context, id string) error
}
