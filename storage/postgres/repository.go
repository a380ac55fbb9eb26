package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capflow/capflow-go/workflow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository implements workflow.Repository on top of the pool
type Repository struct {
	db *DB
}

// NewRepository creates a workflow repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Get implements workflow.Repository
func (r *Repository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM workflows WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: workflow %s", workflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}

	var w workflow.Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", id, err)
	}
	return &w, nil
}

// Create implements workflow.Repository
func (r *Repository) Create(ctx context.Context, w *workflow.Workflow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
        INSERT INTO workflows (id, status, current_stage, created_at, last_modified, version, data)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, w.ID, w.Status, w.CurrentStage, w.CreatedAt, w.LastModified, w.Version, data)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &workflow.ConflictError{WorkflowID: w.ID, ExpectedVersion: 0}
	}
	if err != nil {
		return fmt.Errorf("failed to create workflow %s: %w", w.ID, err)
	}
	return nil
}

// Save implements workflow.Repository. The version predicate makes the
// compare-and-swap atomic with the write.
func (r *Repository) Save(ctx context.Context, w *workflow.Workflow, expectedVersion int) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}

	tag, err := r.db.Pool.Exec(ctx, `
        UPDATE workflows
        SET status = $2, current_stage = $3, last_modified = $4, version = $5, data = $6
        WHERE id = $1 AND version = $7
    `, w.ID, w.Status, w.CurrentStage, w.LastModified, w.Version, data, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", w.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row matched: either the workflow is gone or another actor won the
	// race. Distinguish for the caller.
	var actual int
	err = r.db.Pool.QueryRow(ctx, `SELECT version FROM workflows WHERE id = $1`, w.ID).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: workflow %s", workflow.ErrNotFound, w.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to inspect workflow %s after conflicting save: %w", w.ID, err)
	}
	return &workflow.ConflictError{WorkflowID: w.ID, ExpectedVersion: expectedVersion, ActualVersion: actual}
}

// Query implements workflow.Repository
func (r *Repository) Query(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	query := `SELECT data FROM workflows`
	var clauses []string
	var args []any

	if filter.UserID != "" || filter.Role != "" {
		member := map[string]any{"isActive": true}
		if filter.UserID != "" {
			member["userId"] = filter.UserID
		}
		if filter.Role != "" {
			member["role"] = filter.Role
		}
		probe, err := json.Marshal([]map[string]any{member})
		if err != nil {
			return nil, fmt.Errorf("failed to encode participant filter: %w", err)
		}
		args = append(args, probe)
		clauses = append(clauses, fmt.Sprintf(`data -> 'participants' @> $%d`, len(args)))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf(`status = ANY($%d)`, len(args)))
	}

	if !filter.ChangedSince.IsZero() {
		args = append(args, filter.ChangedSince)
		clauses = append(clauses, fmt.Sprintf(`last_modified > $%d`, len(args)))
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at"

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		var w workflow.Workflow
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode workflow row: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
