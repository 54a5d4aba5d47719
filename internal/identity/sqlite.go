package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/camnode/internal/infrastructure/database"
	"github.com/nerrad567/camnode/migrations"
)

// SQLiteStore keeps the record in the device_identity table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore applies pending migrations and returns a store on db.
// The caller owns db and closes it.
func NewSQLiteStore(ctx context.Context, db *database.DB) (*SQLiteStore, error) {
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrating identity schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// HealthCheck reports whether the database answers.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (Identity, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM device_identity WHERE slot = 1`,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("loading identity: %w", err)
	}

	var id Identity
	if err := json.Unmarshal([]byte(record), &id); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if id.SysID == "" {
		return Identity{}, fmt.Errorf("%w: record has no sys_id", ErrCorrupt)
	}
	return id, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, id Identity) error {
	if id.SysID == "" {
		return ErrNoSysID
	}

	record, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO device_identity (slot, sys_id, record, updated_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
		   sys_id = excluded.sys_id,
		   record = excluded.record,
		   updated_at = excluded.updated_at`,
		id.SysID, string(record), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM device_identity`); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}
