package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

var materialColumns = columnSet(
	"id", "project_id", "material_name", "supplier", "is_ordered", "order_number", "created_at", "updated_at",
)

const materialSelect = `SELECT id, project_id, material_name, thickness, board_size, quantity, supplier,
	is_ordered, order_number, created_at, updated_at FROM materials`

// CreateMaterial inserts a material line for an existing project.
func (s *Store) CreateMaterial(ctx context.Context, m *Material) error {
	if m.ProjectID == "" || m.MaterialName == "" {
		return fmt.Errorf("material needs a project and a name: %w", jerrors.ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = newID()
	}
	now := s.stamp()
	m.CreatedAt = fromMillis(now)
	m.UpdatedAt = m.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (id, project_id, material_name, thickness, board_size, quantity, supplier,
			is_ordered, order_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.MaterialName, m.Thickness, m.BoardSize, m.Quantity, m.Supplier,
		boolInt(m.IsOrdered), m.OrderNumber, now, now,
	)
	if err != nil {
		return wrapInsertErr("material", err)
	}
	return nil
}

// GetMaterial returns a material by ID.
func (s *Store) GetMaterial(ctx context.Context, id string) (*Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx, materialSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("material %s: %w", id, jerrors.ErrNotFound)
	}
	return m, err
}

// FindMaterials returns materials matching q.
func (s *Store) FindMaterials(ctx context.Context, q Query) ([]*Material, error) {
	tail, args, err := q.build(materialColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, materialSelect+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	var out []*Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMaterial applies a partial update to one material.
func (s *Store) UpdateMaterial(ctx context.Context, id string, patch MaterialPatch) (*Material, error) {
	set := materialSet(patch)
	if set.empty() {
		return s.GetMaterial(ctx, id)
	}
	set.add("updated_at", s.stamp())

	res, err := s.db.ExecContext(ctx, `UPDATE materials SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update material: %w", err)
	}
	if err := checkAffected(res, "material", id); err != nil {
		return nil, err
	}
	return s.GetMaterial(ctx, id)
}

// UpdateMaterials applies patch to every material matching q and returns the
// number of rows changed. Zero matches is not an error.
func (s *Store) UpdateMaterials(ctx context.Context, q Query, patch MaterialPatch) (int64, error) {
	if patch.Empty() {
		return 0, fmt.Errorf("empty material update: %w", jerrors.ErrInvalidInput)
	}
	tail, tailArgs, err := q.build(materialColumns)
	if err != nil {
		return 0, err
	}
	set := materialSet(patch)
	set.add("updated_at", s.stamp())

	args := append(set.args, tailArgs...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE materials SET `+set.sql()+` WHERE id IN (SELECT id FROM materials`+tail+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update materials: %w", err)
	}
	return res.RowsAffected()
}

// DeleteMaterial removes a material.
func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}
	return checkAffected(res, "material", id)
}

func materialSet(patch MaterialPatch) setClause {
	var set setClause
	if patch.MaterialName != nil {
		set.add("material_name", *patch.MaterialName)
	}
	if patch.Thickness != nil {
		set.add("thickness", *patch.Thickness)
	}
	if patch.BoardSize != nil {
		set.add("board_size", *patch.BoardSize)
	}
	if patch.Quantity != nil {
		set.add("quantity", *patch.Quantity)
	}
	if patch.Supplier != nil {
		set.add("supplier", *patch.Supplier)
	}
	if patch.IsOrdered != nil {
		set.add("is_ordered", boolInt(*patch.IsOrdered))
	}
	if patch.OrderNumber != nil {
		set.add("order_number", *patch.OrderNumber)
	}
	return set
}

func scanMaterial(r rowScanner) (*Material, error) {
	var (
		m                Material
		ordered          int
		created, updated int64
	)
	err := r.Scan(&m.ID, &m.ProjectID, &m.MaterialName, &m.Thickness, &m.BoardSize, &m.Quantity, &m.Supplier,
		&ordered, &m.OrderNumber, &created, &updated)
	if err != nil {
		return nil, err
	}
	m.IsOrdered = ordered != 0
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}
