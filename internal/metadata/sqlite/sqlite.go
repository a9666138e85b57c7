// Package sqlite provides a SQLite-backed metadata store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS descriptors (
  name TEXT NOT NULL,
  tag TEXT NOT NULL,
  size INTEGER NOT NULL,
  checksum TEXT NOT NULL,
  location TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (name, tag)
);
`

type SQLite struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("metadata database path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(FULL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open metadata database: %w", model.ErrStorageIO, err)
	}

	// Readers don't block each other in WAL mode, while concurrent
	// writers wait for each other thanks to the busy timeout
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: failed to open metadata database: %w", model.ErrStorageIO, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: failed to apply metadata database schema: %w", model.ErrStorageIO, err)
	}

	return &SQLite{db: db}, nil
}

func (sqlite *SQLite) Put(ctx context.Context, descriptor model.Descriptor) error {
	now := time.Now().UTC()

	if descriptor.UpdatedAt.IsZero() {
		descriptor.UpdatedAt = now
	}

	if descriptor.CreatedAt.IsZero() {
		descriptor.CreatedAt = descriptor.UpdatedAt
	}

	// Single statement, so the record is either written as a whole or not at all;
	// re-pushes keep the original creation time
	_, err := sqlite.db.ExecContext(ctx, `
INSERT INTO descriptors (name, tag, size, checksum, location, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name, tag) DO UPDATE SET
  size = excluded.size,
  checksum = excluded.checksum,
  location = excluded.location,
  updated_at = excluded.updated_at
`,
		descriptor.Name,
		descriptor.Tag,
		descriptor.Size,
		descriptor.Checksum,
		descriptor.Location,
		descriptor.CreatedAt.UnixNano(),
		descriptor.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to put descriptor for %s: %w", model.ErrStorageIO, descriptor.Key, err)
	}

	return nil
}

func (sqlite *SQLite) Get(ctx context.Context, key model.Key) (model.Descriptor, error) {
	row := sqlite.db.QueryRowContext(ctx, `
SELECT name, tag, size, checksum, location, created_at, updated_at
FROM descriptors WHERE name = ? AND tag = ?
`, key.Name, key.Tag)

	descriptor, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Descriptor{}, fmt.Errorf("%w: no descriptor for %s", model.ErrNotFound, key)
		}

		return model.Descriptor{}, fmt.Errorf("%w: failed to get descriptor for %s: %w",
			model.ErrStorageIO, key, err)
	}

	return descriptor, nil
}

func (sqlite *SQLite) Delete(ctx context.Context, key model.Key) error {
	result, err := sqlite.db.ExecContext(ctx, "DELETE FROM descriptors WHERE name = ? AND tag = ?",
		key.Name, key.Tag)
	if err != nil {
		return fmt.Errorf("%w: failed to delete descriptor for %s: %w", model.ErrStorageIO, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to delete descriptor for %s: %w", model.ErrStorageIO, key, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: no descriptor for %s", model.ErrNotFound, key)
	}

	return nil
}

func (sqlite *SQLite) List(ctx context.Context) iter.Seq2[model.Descriptor, error] {
	return func(yield func(model.Descriptor, error) bool) {
		rows, err := sqlite.db.QueryContext(ctx, `
SELECT name, tag, size, checksum, location, created_at, updated_at
FROM descriptors ORDER BY name, tag
`)
		if err != nil {
			yield(model.Descriptor{}, fmt.Errorf("%w: failed to list descriptors: %w", model.ErrStorageIO, err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			descriptor, err := scan(rows)
			if err != nil {
				yield(model.Descriptor{}, fmt.Errorf("%w: failed to list descriptors: %w",
					model.ErrStorageIO, err))

				return
			}

			if !yield(descriptor, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(model.Descriptor{}, fmt.Errorf("%w: failed to list descriptors: %w", model.ErrStorageIO, err))
		}
	}
}

// Close checkpoints the write-ahead log into the main database
// file and releases the database handle. It's safe to call it
// multiple times.
func (sqlite *SQLite) Close() error {
	if sqlite == nil || sqlite.db == nil {
		return nil
	}

	sqlite.closeOnce.Do(func() {
		_, checkpointErr := sqlite.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

		sqlite.closeErr = errors.Join(checkpointErr, sqlite.db.Close())
	})

	return sqlite.closeErr
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(scanner scanner) (model.Descriptor, error) {
	var descriptor model.Descriptor
	var createdAt, updatedAt int64

	if err := scanner.Scan(
		&descriptor.Name,
		&descriptor.Tag,
		&descriptor.Size,
		&descriptor.Checksum,
		&descriptor.Location,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.Descriptor{}, err
	}

	descriptor.CreatedAt = time.Unix(0, createdAt).UTC()
	descriptor.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return descriptor, nil
}
