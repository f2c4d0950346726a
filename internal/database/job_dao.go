package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/sync"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// JobDAO persists sync.Job records so a restarted agent can report
// synchronization history without replaying it from the graph.
type JobDAO struct {
	db *DB
}

// NewJobDAO creates a new JobDAO instance.
func NewJobDAO(db *DB) *JobDAO {
	return &JobDAO{db: db}
}

// Create inserts a new sync job record.
func (dao *JobDAO) Create(ctx context.Context, agentID string, job *sync.Job) error {
	query := `
		INSERT INTO sync_jobs (
			id, agent_id, kind, labels, priority, status,
			queued_at, started_at, ended_at,
			nodes_to_shared, nodes_from_shared, conflicts_resolved,
			relationships_synced, label_set, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	toShared, fromShared, relSynced := summaryCounts(job)

	_, err := dao.db.ExecContext(ctx, query,
		job.ID.String(),
		agentID,
		string(job.Kind),
		strings.Join(job.Labels, ","),
		job.Priority,
		string(job.Status),
		job.QueuedAt,
		nullableTime(job.StartedAt),
		nullableTime(job.EndedAt),
		toShared,
		fromShared,
		conflictsResolved(job),
		relSynced,
		strings.Join(job.Labels, ","),
		nullableString(job.Err),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync job: %w", err)
	}
	return nil
}

// Update overwrites an existing sync job record with its current state,
// called when a queued job transitions to running or reaches a terminal
// status.
func (dao *JobDAO) Update(ctx context.Context, job *sync.Job) error {
	query := `
		UPDATE sync_jobs SET
			status = ?,
			started_at = ?,
			ended_at = ?,
			nodes_to_shared = ?,
			nodes_from_shared = ?,
			conflicts_resolved = ?,
			relationships_synced = ?,
			error = ?
		WHERE id = ?
	`

	toShared, fromShared, relSynced := summaryCounts(job)

	result, err := dao.db.ExecContext(ctx, query,
		string(job.Status),
		nullableTime(job.StartedAt),
		nullableTime(job.EndedAt),
		toShared,
		fromShared,
		conflictsResolved(job),
		relSynced,
		nullableString(job.Err),
		job.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("sync job not found: %s", job.ID)
	}
	return nil
}

// Get retrieves a sync job by ID.
func (dao *JobDAO) Get(ctx context.Context, id types.ID) (*JobRecord, error) {
	query := `
		SELECT id, agent_id, kind, labels, priority, status,
			queued_at, started_at, ended_at,
			nodes_to_shared, nodes_from_shared, conflicts_resolved,
			relationships_synced, error
		FROM sync_jobs
		WHERE id = ?
	`
	row := dao.db.QueryRowContext(ctx, query, id.String())
	return scanJobRecord(row)
}

// ListByAgent returns sync jobs for agentID, most recently queued first,
// capped at limit records.
func (dao *JobDAO) ListByAgent(ctx context.Context, agentID string, limit int) ([]*JobRecord, error) {
	query := `
		SELECT id, agent_id, kind, labels, priority, status,
			queued_at, started_at, ended_at,
			nodes_to_shared, nodes_from_shared, conflicts_resolved,
			relationships_synced, error
		FROM sync_jobs
		WHERE agent_id = ?
		ORDER BY queued_at DESC
		LIMIT ?
	`
	rows, err := dao.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer rows.Close()

	var records []*JobRecord
	for rows.Next() {
		rec, err := scanJobRecordFromRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync jobs: %w", err)
	}
	return records, nil
}

// JobRecord is the persisted view of a sync job, decoupled from
// sync.Job so the database package does not need dkm.SyncSummary's
// shape to round-trip a row.
type JobRecord struct {
	ID                  types.ID
	AgentID             string
	Kind                string
	Labels              []string
	Priority            int
	Status              types.SyncJobStatus
	QueuedAt            time.Time
	StartedAt           time.Time
	EndedAt             time.Time
	NodesToShared       int
	NodesFromShared     int
	ConflictsResolved   int
	RelationshipsSynced int
	Err                 string
}

func summaryCounts(job *sync.Job) (toShared, fromShared, relSynced int) {
	if job.ToShared != nil {
		toShared = job.ToShared.NodesSynced
		relSynced += job.ToShared.RelationshipsSynced
	}
	if job.FromShared != nil {
		fromShared = job.FromShared.NodesSynced
		relSynced += job.FromShared.RelationshipsSynced
	}
	return
}

func conflictsResolved(job *sync.Job) int {
	var n int
	if job.ToShared != nil {
		n += job.ToShared.ConflictsResolved
	}
	if job.FromShared != nil {
		n += job.FromShared.ConflictsResolved
	}
	return n
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func scanJobRecord(row *sql.Row) (*JobRecord, error) {
	var rec JobRecord
	var id, labels, status string
	var startedAt, endedAt sql.NullTime
	var errText sql.NullString

	err := row.Scan(
		&id, &rec.AgentID, &rec.Kind, &labels, &rec.Priority, &status,
		&rec.QueuedAt, &startedAt, &endedAt,
		&rec.NodesToShared, &rec.NodesFromShared, &rec.ConflictsResolved,
		&rec.RelationshipsSynced, &errText,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}
	return finishJobRecord(&rec, id, labels, status, startedAt, endedAt, errText)
}

func scanJobRecordFromRows(rows *sql.Rows) (*JobRecord, error) {
	var rec JobRecord
	var id, labels, status string
	var startedAt, endedAt sql.NullTime
	var errText sql.NullString

	err := rows.Scan(
		&id, &rec.AgentID, &rec.Kind, &labels, &rec.Priority, &status,
		&rec.QueuedAt, &startedAt, &endedAt,
		&rec.NodesToShared, &rec.NodesFromShared, &rec.ConflictsResolved,
		&rec.RelationshipsSynced, &errText,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}
	return finishJobRecord(&rec, id, labels, status, startedAt, endedAt, errText)
}

func finishJobRecord(rec *JobRecord, id, labels, status string, startedAt, endedAt sql.NullTime, errText sql.NullString) (*JobRecord, error) {
	parsedID, err := types.ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sync job ID: %w", err)
	}
	rec.ID = parsedID
	rec.Status = types.SyncJobStatus(status)
	if labels != "" {
		rec.Labels = strings.Split(labels, ",")
	}
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	if errText.Valid {
		rec.Err = errText.String
	}
	return rec, nil
}
