package store

import (
	"context"
	"fmt"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

// CreateInstaller inserts an installer.
func (s *Store) CreateInstaller(ctx context.Context, in *Installer) error {
	if in.Name == "" {
		return fmt.Errorf("installer name is required: %w", jerrors.ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = newID()
	}
	now := s.stamp()
	in.CreatedAt = fromMillis(now)
	in.UpdatedAt = in.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO installers (id, name, contact_info, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		in.ID, in.Name, in.ContactInfo, now, now,
	)
	if err != nil {
		return wrapInsertErr("installer", err)
	}
	return nil
}

// ListInstallers returns all installers ordered by name.
func (s *Store) ListInstallers(ctx context.Context) ([]*Installer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, contact_info, created_at, updated_at FROM installers ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to query installers: %w", err)
	}
	defer rows.Close()
	return scanInstallers(rows)
}

// AssignInstaller links an installer to a project. Assigning twice is a
// conflict; unknown ids are not found.
func (s *Store) AssignInstaller(ctx context.Context, projectID, installerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_installers (id, project_id, installer_id, created_at) VALUES (?, ?, ?, ?)`,
		newID(), projectID, installerID, s.stamp(),
	)
	if err != nil {
		return wrapInsertErr("installer assignment", err)
	}
	return nil
}

// UnassignInstaller removes a project-installer link.
func (s *Store) UnassignInstaller(ctx context.Context, projectID, installerID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM project_installers WHERE project_id = ? AND installer_id = ?`, projectID, installerID)
	if err != nil {
		return fmt.Errorf("failed to unassign installer: %w", err)
	}
	return checkAffected(res, "installer assignment", projectID+"/"+installerID)
}

// ProjectInstallers returns the installers assigned to a project.
func (s *Store) ProjectInstallers(ctx context.Context, projectID string) ([]*Installer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.name, i.contact_info, i.created_at, i.updated_at
		 FROM installers i JOIN project_installers pi ON pi.installer_id = i.id
		 WHERE pi.project_id = ? ORDER BY pi.created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query project installers: %w", err)
	}
	defer rows.Close()
	return scanInstallers(rows)
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Err() error
}

func scanInstallers(rows rowsScanner) ([]*Installer, error) {
	var out []*Installer
	for rows.Next() {
		var (
			in               Installer
			created, updated int64
		)
		if err := rows.Scan(&in.ID, &in.Name, &in.ContactInfo, &created, &updated); err != nil {
			return nil, err
		}
		in.CreatedAt = fromMillis(created)
		in.UpdatedAt = fromMillis(updated)
		out = append(out, &in)
	}
	return out, rows.Err()
}
