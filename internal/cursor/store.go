package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/donnguyen19/code42cli/internal/domain"
)

// Store persists one cursor value per checkpoint name, scoped to a single
// service ("file-events" or "alerts") within a profile's database file.
// Values are stored as TEXT so a checkpoint can hold either an epoch
// timestamp or an opaque token. Writes go through SQLite transactions, so
// a crash mid-write can never leave a half-written value behind.
//
// The store tolerates concurrent invocations against different checkpoint
// names (WAL + busy_timeout); single-flight per name is the driver's
// contract, not enforced here.
type Store struct {
	db      *sql.DB
	service string
	logger  *slog.Logger
}

// Open opens (creating if necessary) the checkpoint database at path and
// scopes the returned store to the given service. An existing file that
// cannot be opened or migrated surfaces domain.ErrStoreCorrupt.
func Open(path, service string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreCorrupt, err)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS checkpoints (
		service TEXT NOT NULL,
		name    TEXT NOT NULL,
		cursor  TEXT NOT NULL,
		PRIMARY KEY (service, name)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreCorrupt, err)
	}

	return &Store{db: db, service: service, logger: logger}, nil
}

// Get returns the stored cursor value for name. Absence is not an error:
// the second return is false when no checkpoint exists.
func (s *Store) Get(ctx context.Context, name string) (string, bool, error) {
	const q = `SELECT cursor FROM checkpoints WHERE service = ? AND name = ?`

	var value string
	err := s.db.QueryRowContext(ctx, q, s.service, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read checkpoint %q: %v", domain.ErrStoreCorrupt, name, err)
	}
	return value, true, nil
}

// Replace atomically overwrites the single cursor value for name.
func (s *Store) Replace(ctx context.Context, name, value string) error {
	const q = `INSERT INTO checkpoints (service, name, cursor) VALUES (?, ?, ?)
		ON CONFLICT (service, name) DO UPDATE SET cursor = excluded.cursor`

	if _, err := s.db.ExecContext(ctx, q, s.service, name, value); err != nil {
		return fmt.Errorf("replace checkpoint %q: %w", name, err)
	}
	s.logger.Debug("checkpoint advanced", "service", s.service, "name", name, "cursor", value)
	return nil
}

// Delete removes the checkpoint for name. Deleting an absent checkpoint
// is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	const q = `DELETE FROM checkpoints WHERE service = ? AND name = ?`

	if _, err := s.db.ExecContext(ctx, q, s.service, name); err != nil {
		return fmt.Errorf("delete checkpoint %q: %w", name, err)
	}
	return nil
}

// Reset clears every checkpoint in this store's service scope. Idempotent.
func (s *Store) Reset(ctx context.Context) error {
	const q = `DELETE FROM checkpoints WHERE service = ?`

	if _, err := s.db.ExecContext(ctx, q, s.service); err != nil {
		return fmt.Errorf("reset checkpoints: %w", err)
	}
	s.logger.Info("checkpoints cleared", "service", s.service)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
