package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

var projectColumns = columnSet(
	"id", "project_number", "client", "project_name", "project_address",
	"project_status", "priority_level", "install_commencement_date", "created_at", "updated_at",
)

const projectSelect = `SELECT id, project_number, client, project_name, project_address, date_created,
	project_status, install_commencement_date, install_duration, overall_project_budget,
	priority_level, created_at, updated_at FROM projects`

// CreateProject inserts p, filling ID, timestamps and defaults. A duplicate
// project number returns an error wrapping ErrConflict.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ProjectNumber == "" || p.Client == "" || p.ProjectName == "" {
		return fmt.Errorf("project number, client and name are required: %w", jerrors.ErrInvalidInput)
	}
	if p.ProjectStatus == "" {
		p.ProjectStatus = StatusPlanning
	}
	if p.PriorityLevel == "" {
		p.PriorityLevel = PriorityMedium
	}
	if !ValidStatus(p.ProjectStatus) {
		return fmt.Errorf("project status %q: %w", p.ProjectStatus, jerrors.ErrInvalidInput)
	}
	if !ValidPriority(p.PriorityLevel) {
		return fmt.Errorf("priority %q: %w", p.PriorityLevel, jerrors.ErrInvalidInput)
	}

	now := s.now()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.DateCreated == "" {
		p.DateCreated = now.Format("2006-01-02")
	}
	p.CreatedAt = fromMillis(now.UnixMilli())
	p.UpdatedAt = p.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, project_number, client, project_name, project_address, date_created,
			project_status, install_commencement_date, install_duration, overall_project_budget,
			priority_level, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectNumber, p.Client, p.ProjectName, p.ProjectAddress, p.DateCreated,
		p.ProjectStatus, nullString(p.InstallCommencementDate), p.InstallDuration, p.OverallProjectBudget,
		p.PriorityLevel, now.UnixMilli(), now.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("project number %s: %w", p.ProjectNumber, jerrors.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, jerrors.ErrNotFound)
	}
	return p, err
}

// FindProjects returns projects matching q.
func (s *Store) FindProjects(ctx context.Context, q Query) ([]*Project, error) {
	tail, args, err := q.build(projectColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, projectSelect+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindProject returns the first project matching q, or nil when none does.
func (s *Store) FindProject(ctx context.Context, q Query) (*Project, error) {
	q.Limit = 1
	projects, err := s.FindProjects(ctx, q)
	if err != nil || len(projects) == 0 {
		return nil, err
	}
	return projects[0], nil
}

// UpdateProject applies a partial update and returns the stored result.
func (s *Store) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*Project, error) {
	var set setClause
	if patch.Client != nil {
		set.add("client", *patch.Client)
	}
	if patch.ProjectName != nil {
		set.add("project_name", *patch.ProjectName)
	}
	if patch.ProjectAddress != nil {
		set.add("project_address", *patch.ProjectAddress)
	}
	if patch.ProjectStatus != nil {
		if !ValidStatus(*patch.ProjectStatus) {
			return nil, fmt.Errorf("project status %q: %w", *patch.ProjectStatus, jerrors.ErrInvalidInput)
		}
		set.add("project_status", *patch.ProjectStatus)
	}
	if patch.InstallCommencementDate != nil {
		set.add("install_commencement_date", nullString(*patch.InstallCommencementDate))
	}
	if patch.InstallDuration != nil {
		set.add("install_duration", *patch.InstallDuration)
	}
	if patch.OverallProjectBudget != nil {
		set.add("overall_project_budget", *patch.OverallProjectBudget)
	}
	if patch.PriorityLevel != nil {
		if !ValidPriority(*patch.PriorityLevel) {
			return nil, fmt.Errorf("priority %q: %w", *patch.PriorityLevel, jerrors.ErrInvalidInput)
		}
		set.add("priority_level", *patch.PriorityLevel)
	}
	if set.empty() {
		return s.GetProject(ctx, id)
	}
	set.add("updated_at", s.stamp())

	res, err := s.db.ExecContext(ctx, `UPDATE projects SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if err := checkAffected(res, "project", id); err != nil {
		return nil, err
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project and, by cascade, its children.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return checkAffected(res, "project", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (*Project, error) {
	var (
		p                Project
		install          sql.NullString
		created, updated int64
	)
	err := r.Scan(&p.ID, &p.ProjectNumber, &p.Client, &p.ProjectName, &p.ProjectAddress, &p.DateCreated,
		&p.ProjectStatus, &install, &p.InstallDuration, &p.OverallProjectBudget,
		&p.PriorityLevel, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.InstallCommencementDate = install.String
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}
