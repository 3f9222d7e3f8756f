package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// Device storage keys. Each names one concern and is only touched by the
// component that owns it.
const (
	KeyCart       = "cart"
	KeyDirectCart = "direct-cart"
	KeyAuthToken  = "auth-token"
	KeyUser       = "user"
)

// DeviceStorage is a key-value store partitioned by device id. Load returns
// an error wrapping apperrors.ErrNotFound when the key is absent.
type DeviceStorage interface {
	Load(ctx context.Context, deviceID, key string) ([]byte, error)
	Store(ctx context.Context, deviceID, key string, value []byte) error
	Remove(ctx context.Context, deviceID, key string) error
}

// KV is device storage already bound to one device.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Scope binds storage to deviceID.
func Scope(storage DeviceStorage, deviceID string) KV {
	return scoped{storage: storage, deviceID: deviceID}
}

type scoped struct {
	storage  DeviceStorage
	deviceID string
}

func (s scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.storage.Load(ctx, s.deviceID, key)
}

func (s scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.storage.Store(ctx, s.deviceID, key, value)
}

func (s scoped) Delete(ctx context.Context, key string) error {
	return s.storage.Remove(ctx, s.deviceID, key)
}

// GetJSON decodes key into dst. It reports false with a nil error when the
// key is absent.
func GetJSON(ctx context.Context, kv KV, key string, dst any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}
