package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceEntry is one persisted key of one device.
type DeviceEntry struct {
	DeviceID  string `gorm:"primaryKey;size:64"`
	Key       string `gorm:"column:entry_key;primaryKey;size:128"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (DeviceEntry) TableName() string { return "device_entries" }

// SQL persists device entries through GORM (sqlite for a single node, postgres when shared).
type SQL struct {
	client *db.Client
}

// NewSQL returns the backend once the device_entries table exists. The schema
// is owned by the goose migrations in pkg/migrate.
func NewSQL(ctx context.Context, client *db.Client) (*SQL, error) {
	if client == nil {
		return nil, errors.New("storage: db client is required")
	}
	if !client.DB().WithContext(ctx).Migrator().HasTable(&DeviceEntry{}) {
		return nil, errors.New("storage: device_entries table missing, run migrations first")
	}
	return &SQL{client: client}, nil
}

func (s *SQL) Get(ctx context.Context, deviceID, key string) (string, bool, error) {
	if deviceID == "" {
		return "", false, ErrDeviceRequired
	}
	var entry DeviceEntry
	err := s.client.DB().WithContext(ctx).
		Where("device_id = ? AND entry_key = ?", deviceID, key).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *SQL) Set(ctx context.Context, deviceID, key, value string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	entry := DeviceEntry{DeviceID: deviceID, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.client.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, deviceID string, keys ...string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ? AND entry_key IN ?", deviceID, keys).Delete(&DeviceEntry{}).Error; err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		return nil
	})
}
