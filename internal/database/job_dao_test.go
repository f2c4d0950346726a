package database

import (
	"context"
	"testing"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/dkm"
	"github.com/agentfabric/knowledgefabric/internal/sync"
)

func migrateTestDB(t *testing.T, db *DB) {
	t.Helper()
	migrator := NewMigrator(db)
	if err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
}

func TestJobDAOCreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	migrateTestDB(t, db)

	ctx := context.Background()
	dao := NewJobDAO(db)

	job := sync.NewJob(sync.JobKindPriority, []string{"Event"}, 1)

	if err := dao.Create(ctx, "agent-1", job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec, err := dao.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, rec.ID)
	}
	if rec.AgentID != "agent-1" {
		t.Errorf("expected AgentID agent-1, got %s", rec.AgentID)
	}
	if rec.Kind != string(sync.JobKindPriority) {
		t.Errorf("expected kind priority, got %s", rec.Kind)
	}
	if len(rec.Labels) != 1 || rec.Labels[0] != "Event" {
		t.Errorf("expected labels [Event], got %v", rec.Labels)
	}
	if rec.Status != job.Status {
		t.Errorf("expected status %s, got %s", job.Status, rec.Status)
	}
}

func TestJobDAOUpdateReflectsTerminalState(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	migrateTestDB(t, db)

	ctx := context.Background()
	dao := NewJobDAO(db)

	job := sync.NewJob(sync.JobKindAll, nil, 5)
	if err := dao.Create(ctx, "agent-1", job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job.Status = "succeeded"
	job.StartedAt = time.Now().UTC()
	job.EndedAt = time.Now().UTC()
	job.ToShared = &dkm.SyncSummary{NodesSynced: 3, RelationshipsSynced: 2, ConflictsResolved: 1}
	job.FromShared = &dkm.SyncSummary{NodesSynced: 1}

	if err := dao.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rec, err := dao.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Status != job.Status {
		t.Errorf("expected status %s, got %s", job.Status, rec.Status)
	}
	if rec.NodesToShared != 3 {
		t.Errorf("expected NodesToShared 3, got %d", rec.NodesToShared)
	}
	if rec.NodesFromShared != 1 {
		t.Errorf("expected NodesFromShared 1, got %d", rec.NodesFromShared)
	}
	if rec.ConflictsResolved != 1 {
		t.Errorf("expected ConflictsResolved 1, got %d", rec.ConflictsResolved)
	}
	if rec.RelationshipsSynced != 2 {
		t.Errorf("expected RelationshipsSynced 2, got %d", rec.RelationshipsSynced)
	}
	if rec.StartedAt.IsZero() || rec.EndedAt.IsZero() {
		t.Error("expected StartedAt/EndedAt to be set")
	}
}

func TestJobDAOUpdateNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	migrateTestDB(t, db)

	job := sync.NewJob(sync.JobKindAll, nil, 5)
	if err := NewJobDAO(db).Update(context.Background(), job); err == nil {
		t.Error("expected error updating nonexistent job")
	}
}

func TestJobDAOListByAgentOrdersByQueuedAtDesc(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	migrateTestDB(t, db)

	ctx := context.Background()
	dao := NewJobDAO(db)

	first := sync.NewJob(sync.JobKindAll, nil, 5)
	if err := dao.Create(ctx, "agent-1", first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	second := sync.NewJob(sync.JobKindPriority, []string{"Event"}, 1)
	second.QueuedAt = first.QueuedAt.Add(time.Second)
	if err := dao.Create(ctx, "agent-1", second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	other := sync.NewJob(sync.JobKindAll, nil, 5)
	if err := dao.Create(ctx, "agent-2", other); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	records, err := dao.ListByAgent(ctx, "agent-1", 10)
	if err != nil {
		t.Fatalf("ListByAgent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != second.ID {
		t.Errorf("expected most recent job first, got %s", records[0].ID)
	}
}

func TestJobDAOGetNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	migrateTestDB(t, db)

	if _, err := NewJobDAO(db).Get(context.Background(), sync.NewJob(sync.JobKindAll, nil, 0).ID); err == nil {
		t.Error("expected error getting nonexistent job")
	}
}
