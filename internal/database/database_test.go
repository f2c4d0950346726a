package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "fabric-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestOpen(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("expected non-nil database")
	}

	var journalMode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected WAL mode, got %s", journalMode)
	}

	var foreignKeys int
	if err := db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("failed to query foreign keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("expected foreign keys enabled, got %d", foreignKeys)
	}
}

func TestOpenWithConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "fabric-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")
	cfg := Config{
		Path:            dbPath,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		BusyTimeout:     3 * time.Second,
	}

	db, err := OpenWithConfig(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if db.Stats().OpenConnections < 0 {
		t.Error("expected valid connection count")
	}
}

func TestClose(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}
	if err := db.conn.Ping(); err == nil {
		t.Error("expected error pinging closed database")
	}
}

func TestHealth(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := db.Health(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.Health(ctx); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestWithTx(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	migrator := NewMigrator(db)
	if err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_jobs (id, agent_id, kind, status, queued_at)
			VALUES (?, ?, ?, ?, ?)`,
			"job-1", "agent-1", "all", "queued", time.Now().UTC())
		return err
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM sync_jobs WHERE id = ?", "job-1").Scan(&count); err != nil {
		t.Fatalf("failed to query sync_jobs: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 sync job, got %d", count)
	}
}

func TestWithTxRollback(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	migrator := NewMigrator(db)
	if err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_jobs (id, agent_id, kind, status, queued_at)
			VALUES (?, ?, ?, ?, ?)`,
			"job-2", "agent-1", "all", "queued", time.Now().UTC())
		if err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	if err == nil {
		t.Fatal("expected transaction to fail")
	}

	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM sync_jobs WHERE id = ?", "job-2").Scan(&count); err != nil {
		t.Fatalf("failed to query sync_jobs: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 sync jobs (rolled back), got %d", count)
	}
}

func TestMigrate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := NewMigrator(db)

	version, err := migrator.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	version, err = migrator.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}

	tables := []string{"sync_jobs", "correlation_state", "migrations"}
	for _, table := range tables {
		var count int
		if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count); err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := NewMigrator(db)

	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("first migrate failed: %v", err)
	}
	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	version, err := migrator.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestRollback(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := NewMigrator(db)

	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if err := migrator.Rollback(ctx, 0); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	version, err := migrator.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sync_jobs'`).Scan(&count); err != nil {
		t.Fatalf("failed to check sync_jobs table: %v", err)
	}
	if count != 0 {
		t.Error("expected sync_jobs table to be dropped")
	}
}

func TestRollbackInvalidVersion(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := NewMigrator(db)

	if err := migrator.Rollback(ctx, -1); err == nil {
		t.Error("expected error for negative target version")
	}

	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if err := migrator.Rollback(ctx, 999); err == nil {
		t.Error("expected error for future target version")
	}
}

func TestGetAppliedMigrations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := NewMigrator(db)

	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	migrations, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("failed to get applied migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "initial_schema" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "job_result_metadata" {
		t.Errorf("unexpected second migration: %+v", migrations[1])
	}
}

func TestWithTxPanic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	migrator := NewMigrator(db)
	if err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx := context.Background()
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic to be re-thrown")
		}
	}()

	db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_jobs (id, agent_id, kind, status, queued_at)
			VALUES (?, ?, ?, ?, ?)`,
			"job-panic", "agent-1", "all", "queued", time.Now().UTC())
		if err != nil {
			return err
		}
		panic("test panic")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/test.db")

	if cfg.Path != "/tmp/test.db" {
		t.Errorf("expected path /tmp/test.db, got %s", cfg.Path)
	}
	if cfg.MaxOpenConns != 10 {
		t.Errorf("expected MaxOpenConns 10, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 5 {
		t.Errorf("expected MaxIdleConns 5, got %d", cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != time.Hour {
		t.Errorf("expected ConnMaxLifetime 1h, got %v", cfg.ConnMaxLifetime)
	}
	if cfg.BusyTimeout != 5*time.Second {
		t.Errorf("expected BusyTimeout 5s, got %v", cfg.BusyTimeout)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open("/nonexistent/path/db.sqlite"); err == nil {
		t.Error("expected error opening database in nonexistent directory")
	}
}

func TestCloseNilConnection(t *testing.T) {
	db := &DB{conn: nil}
	if err := db.Close(); err != nil {
		t.Errorf("expected no error closing nil connection, got %v", err)
	}
}

func TestHealthErrors(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.Close()

	if err := db.Health(context.Background()); err == nil {
		t.Error("expected health check to fail on closed connection")
	}
}

func TestVacuumError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	if err := db.Vacuum(context.Background()); err == nil {
		t.Error("expected vacuum to fail on closed connection")
	}
}

func TestCheckpointError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	if err := db.Checkpoint(context.Background()); err == nil {
		t.Error("expected checkpoint to fail on closed connection")
	}
}

func TestInitSchema(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sync_jobs'").Scan(&count); err != nil {
		t.Fatalf("failed to check sync_jobs table: %v", err)
	}
	if count != 1 {
		t.Error("expected sync_jobs table to exist")
	}
}

func TestInitSchemaError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	if err := db.InitSchema(); err == nil {
		t.Error("expected InitSchema to fail on closed connection")
	}
}

func TestMigrateApplyError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	migrator := NewMigrator(db)
	ctx := context.Background()
	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	db.Close()
	if err := migrator.Migrate(ctx); err == nil {
		t.Error("expected migrate to fail on closed connection")
	}
}

func TestCurrentVersionError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	migrator := NewMigrator(db)
	if _, err := migrator.CurrentVersion(context.Background()); err == nil {
		t.Error("expected CurrentVersion to fail on closed connection")
	}
}

func TestGetAppliedMigrationsError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	migrator := NewMigrator(db)
	if _, err := migrator.GetAppliedMigrations(context.Background()); err == nil {
		t.Error("expected GetAppliedMigrations to fail on closed connection")
	}
}

func TestContextCancellation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	migrator := NewMigrator(db)
	if err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.conn.QueryContext(ctx, "SELECT * FROM sync_jobs")
	if err == nil {
		t.Error("expected error with cancelled context")
	}
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestVacuum(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Vacuum(context.Background()); err != nil {
		t.Fatalf("vacuum failed: %v", err)
	}
}

func TestCheckpoint(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Checkpoint(context.Background()); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	stats := db.Stats()
	if stats.OpenConnections < 0 || stats.InUse < 0 || stats.Idle < 0 {
		t.Error("expected valid connection pool stats")
	}
}

func TestPath(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "fabric-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if db.Path() != dbPath {
		t.Errorf("expected path %s, got %s", dbPath, db.Path())
	}
}

func TestConn(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	conn := db.Conn()
	if conn == nil {
		t.Fatal("expected non-nil connection")
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("connection ping failed: %v", err)
	}
}

func TestWithTxBeginError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	err := db.WithTx(context.Background(), func(tx *sql.Tx) error { return nil })
	if err == nil {
		t.Error("expected WithTx to fail on closed connection")
	}
}
