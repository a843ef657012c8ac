package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

var itemColumns = columnSet("id", "project_id", "item_name", "install_commencement_date", "created_at", "updated_at")

var itemSelect = `SELECT id, project_id, item_name, item_budget, install_commencement_date, install_duration, ` +
	strings.Join(ChecklistSteps, ", ") + `, created_at, updated_at FROM joinery_items`

// CreateJoineryItem inserts an item for an existing project. Checklist
// entries set on the item are stored; unknown step names are rejected.
func (s *Store) CreateJoineryItem(ctx context.Context, j *JoineryItem) error {
	if j.ProjectID == "" || j.ItemName == "" {
		return fmt.Errorf("joinery item needs a project and a name: %w", jerrors.ErrInvalidInput)
	}
	for step := range j.Checklist {
		if !ValidChecklistStep(step) {
			return fmt.Errorf("checklist step %q: %w", step, jerrors.ErrInvalidInput)
		}
	}
	if j.ID == "" {
		j.ID = newID()
	}
	now := s.stamp()
	j.CreatedAt = fromMillis(now)
	j.UpdatedAt = j.CreatedAt

	cols := []string{"id", "project_id", "item_name", "item_budget", "install_commencement_date", "install_duration"}
	args := []any{j.ID, j.ProjectID, j.ItemName, j.ItemBudget, nullString(j.InstallCommencementDate), j.InstallDuration}
	for _, step := range ChecklistSteps {
		cols = append(cols, step)
		args = append(args, boolInt(j.Checklist[step]))
	}
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	query := `INSERT INTO joinery_items (` + strings.Join(cols, ", ") + `) VALUES (?` +
		strings.Repeat(", ?", len(cols)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return wrapInsertErr("joinery item", err)
	}
	j.Checklist = fullChecklist(j.Checklist)
	return nil
}

// GetJoineryItem returns an item by ID.
func (s *Store) GetJoineryItem(ctx context.Context, id string) (*JoineryItem, error) {
	j, err := scanItem(s.db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("joinery item %s: %w", id, jerrors.ErrNotFound)
	}
	return j, err
}

// FindJoineryItems returns items matching q.
func (s *Store) FindJoineryItems(ctx context.Context, q Query) ([]*JoineryItem, error) {
	tail, args, err := q.build(itemColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, itemSelect+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query joinery items: %w", err)
	}
	defer rows.Close()

	var out []*JoineryItem
	for rows.Next() {
		j, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJoineryItem applies a partial update.
func (s *Store) UpdateJoineryItem(ctx context.Context, id string, patch JoineryItemPatch) (*JoineryItem, error) {
	var set setClause
	if patch.ItemName != nil {
		set.add("item_name", *patch.ItemName)
	}
	if patch.ItemBudget != nil {
		set.add("item_budget", *patch.ItemBudget)
	}
	if patch.InstallCommencementDate != nil {
		set.add("install_commencement_date", nullString(*patch.InstallCommencementDate))
	}
	if patch.InstallDuration != nil {
		set.add("install_duration", *patch.InstallDuration)
	}
	if set.empty() {
		return s.GetJoineryItem(ctx, id)
	}
	set.add("updated_at", s.stamp())
	return s.execItemUpdate(ctx, id, set)
}

// SetChecklistStep marks one checklist step done or not done.
func (s *Store) SetChecklistStep(ctx context.Context, id, step string, done bool) (*JoineryItem, error) {
	if !ValidChecklistStep(step) {
		return nil, fmt.Errorf("checklist step %q: %w", step, jerrors.ErrInvalidInput)
	}
	var set setClause
	// step is whitelisted above, so it is safe to splice as a column name.
	set.add(step, boolInt(done))
	set.add("updated_at", s.stamp())
	return s.execItemUpdate(ctx, id, set)
}

// DeleteJoineryItem removes an item.
func (s *Store) DeleteJoineryItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM joinery_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete joinery item: %w", err)
	}
	return checkAffected(res, "joinery item", id)
}

func (s *Store) execItemUpdate(ctx context.Context, id string, set setClause) (*JoineryItem, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE joinery_items SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update joinery item: %w", err)
	}
	if err := checkAffected(res, "joinery item", id); err != nil {
		return nil, err
	}
	return s.GetJoineryItem(ctx, id)
}

func fullChecklist(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(ChecklistSteps))
	for _, step := range ChecklistSteps {
		out[step] = in[step]
	}
	return out
}

func scanItem(r rowScanner) (*JoineryItem, error) {
	var (
		j                JoineryItem
		install          sql.NullString
		created, updated int64
	)
	flags := make([]int, len(ChecklistSteps))
	dest := []any{&j.ID, &j.ProjectID, &j.ItemName, &j.ItemBudget, &install, &j.InstallDuration}
	for i := range flags {
		dest = append(dest, &flags[i])
	}
	dest = append(dest, &created, &updated)

	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	j.InstallCommencementDate = install.String
	j.Checklist = make(map[string]bool, len(ChecklistSteps))
	for i, step := range ChecklistSteps {
		j.Checklist[step] = flags[i] != 0
	}
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	return &j, nil
}
