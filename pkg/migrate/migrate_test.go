package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/config"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestDeviceEntriesMigrationContainsKey(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_device_entries.sql"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("no device_entries migration found (err=%v)", err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS device_entries",
		"PRIMARY KEY (device_id, entry_key)",
		"DROP TABLE IF EXISTS device_entries",
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

func TestUpCreatesDeviceEntriesOnSQLite(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	if err := Up(ctx, db, config.StorageDriverSQLite); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := Up(ctx, db, config.StorageDriverSQLite); err != nil {
		t.Fatalf("second up should be a no-op: %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO device_entries (device_id, entry_key, value, updated_at) VALUES ('d1', 'cart', '[]', CURRENT_TIMESTAMP)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO device_entries (device_id, entry_key, value, updated_at) VALUES ('d1', 'cart', '[]', CURRENT_TIMESTAMP)`); err == nil {
		t.Fatal("expected primary key violation for duplicate device key")
	}
}

func TestRunRejectsUnknownDriver(t *testing.T) {
	if err := Up(context.Background(), openSQLite(t), config.StorageDriverMemory); err == nil {
		t.Fatal("expected memory driver to be rejected")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, " Add Device Index! ", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260301120000_add_device_index.sql" {
		t.Fatalf("unexpected filename %q", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "add device index", now); err == nil {
		t.Fatal("expected existing migration to be refused")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}
