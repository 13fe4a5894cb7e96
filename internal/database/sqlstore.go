package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the supported SQL backends.
type dialect struct {
	name       string
	blobType   string
	positional bool
}

// sqlStore implements DatabaseService on top of database/sql.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) rebind(query string) string {
	if !s.dialect.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) CreateDatabase() (*sql.DB, error) {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			source_kind TEXT NOT NULL,
			file_name TEXT NOT NULL,
			image_hash TEXT NOT NULL,
			engine TEXT NOT NULL,
			preview %[1]s,
			markdown TEXT NOT NULL,
			local_markdown TEXT NOT NULL,
			result_json %[1]s
		)`, s.dialect.blobType),
		`CREATE INDEX IF NOT EXISTS idx_records_hash ON records (image_hash, engine)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created ON records (created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return s.db, nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlStore) DoesDatabaseExist() bool {
	return s.db.Ping() == nil
}

func (s *sqlStore) CreateRecord(ctx context.Context, record *Record) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", err
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO records
		(id, created_at, source_kind, file_name, image_hash, engine, preview, markdown, local_markdown, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, createdAt.UnixNano(), record.SourceKind, record.FileName, record.ImageHash, record.Engine,
		record.Preview, record.Markdown, record.LocalMarkdown, record.ResultJSON)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	record.ID = id
	record.CreatedAt = time.Unix(0, createdAt.UnixNano())
	return id, nil
}

const fullColumns = `id, created_at, source_kind, file_name, image_hash, engine, preview, markdown, local_markdown, result_json`

func (s *sqlStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+fullColumns+` FROM records WHERE id = ?`), id)
	return scanFull(row)
}

func (s *sqlStore) FindByHash(ctx context.Context, imageHash, engine string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+fullColumns+` FROM records
		WHERE image_hash = ? AND engine = ?
		ORDER BY created_at DESC
		LIMIT 1`), imageHash, engine)
	return scanFull(row)
}

func (s *sqlStore) ListRecords(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, created_at, source_kind, file_name, image_hash, engine, markdown
		FROM records
		ORDER BY created_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*Record
	for rows.Next() {
		var (
			r  Record
			ts int64
		)
		if err := rows.Scan(&r.ID, &ts, &r.SourceKind, &r.FileName, &r.ImageHash, &r.Engine, &r.Markdown); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, ts)
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (s *sqlStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM records WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanFull(row *sql.Row) (*Record, error) {
	var (
		r  Record
		ts int64
	)
	err := row.Scan(&r.ID, &ts, &r.SourceKind, &r.FileName, &r.ImageHash, &r.Engine,
		&r.Preview, &r.Markdown, &r.LocalMarkdown, &r.ResultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, ts)
	return &r, nil
}
