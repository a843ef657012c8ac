package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

var taskColumns = columnSet("id", "project_id", "task_description", "is_completed", "created_at", "updated_at")

const taskSelect = `SELECT id, project_id, task_description, is_completed, created_at, updated_at FROM project_tasks`

// CreateTask inserts a task for an existing project.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ProjectID == "" || t.TaskDescription == "" {
		return fmt.Errorf("task needs a project and a description: %w", jerrors.ErrInvalidInput)
	}
	if t.ID == "" {
		t.ID = newID()
	}
	now := s.stamp()
	t.CreatedAt = fromMillis(now)
	t.UpdatedAt = t.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_tasks (id, project_id, task_description, is_completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.TaskDescription, boolInt(t.IsCompleted), now, now,
	)
	if err != nil {
		return wrapInsertErr("task", err)
	}
	return nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, jerrors.ErrNotFound)
	}
	return t, err
}

// FindTasks returns tasks matching q.
func (s *Store) FindTasks(ctx context.Context, q Query) ([]*Task, error) {
	tail, args, err := q.build(taskColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, taskSelect+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask applies a partial update.
func (s *Store) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error) {
	var set setClause
	if patch.TaskDescription != nil {
		set.add("task_description", *patch.TaskDescription)
	}
	if patch.IsCompleted != nil {
		set.add("is_completed", boolInt(*patch.IsCompleted))
	}
	if set.empty() {
		return s.GetTask(ctx, id)
	}
	set.add("updated_at", s.stamp())

	res, err := s.db.ExecContext(ctx, `UPDATE project_tasks SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if err := checkAffected(res, "task", id); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// ToggleTask flips a task's completion flag.
func (s *Store) ToggleTask(ctx context.Context, id string) (*Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE project_tasks SET is_completed = 1 - is_completed, updated_at = ? WHERE id = ?`, s.stamp(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}
	if err := checkAffected(res, "task", id); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return checkAffected(res, "task", id)
}

func scanTask(r rowScanner) (*Task, error) {
	var (
		t                Task
		done             int
		created, updated int64
	)
	if err := r.Scan(&t.ID, &t.ProjectID, &t.TaskDescription, &done, &created, &updated); err != nil {
		return nil, err
	}
	t.IsCompleted = done != 0
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return &t, nil
}

// wrapInsertErr maps a foreign key failure on a child insert to ErrNotFound.
func wrapInsertErr(what string, err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%s parent does not exist: %w", what, jerrors.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s already exists: %w", what, jerrors.ErrConflict)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}
