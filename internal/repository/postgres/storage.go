package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/itsobito471-bot/thebottlestories/pkg/database"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	loadQuery   = `SELECT value FROM device_storage WHERE device_id = $1 AND key = $2`
	storeQuery  = `INSERT INTO device_storage (device_id, key, value, updated_at) VALUES ($1, $2, $3, NOW()) ON CONFLICT (device_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	removeQuery = `DELETE FROM device_storage WHERE device_id = $1 AND key = $2`
	purgeQuery  = `DELETE FROM device_storage WHERE updated_at < $1`
)

// Storage is device storage in PostgreSQL, one row per device and key.
type Storage struct {
	db     database.DBTX
	tracer database.QueryTracer
}

// NewStorage creates a PostgreSQL-backed device storage.
func NewStorage(db database.DBTX, tracer database.QueryTracer) *Storage {
	return &Storage{db: db, tracer: tracer}
}

func (s *Storage) Load(ctx context.Context, deviceID, key string) (_ []byte, err error) {
	ctx, end := s.tracer.Start(ctx, "LoadDeviceKey", "device_storage", loadQuery)
	defer func() { end(err) }()

	var value []byte
	if err = s.db.QueryRow(ctx, loadQuery, deviceID, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(key, deviceID)
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

func (s *Storage) Store(ctx context.Context, deviceID, key string, value []byte) (err error) {
	ctx, end := s.tracer.Start(ctx, "StoreDeviceKey", "device_storage", storeQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, storeQuery, deviceID, key, value); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, deviceID, key string) (err error) {
	ctx, end := s.tracer.Start(ctx, "RemoveDeviceKey", "device_storage", removeQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, removeQuery, deviceID, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Purge deletes rows not written since before and returns how many went.
func (s *Storage) Purge(ctx context.Context, before time.Time) (_ int64, err error) {
	ctx, end := s.tracer.Start(ctx, "PurgeDeviceStorage", "device_storage", purgeQuery)
	defer func() { end(err) }()

	tag, err := s.db.Exec(ctx, purgeQuery, before)
	if err != nil {
		return 0, fmt.Errorf("purge device storage: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity for readiness probes.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}
