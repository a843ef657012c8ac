package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) schemaVersion() string {
	var version string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		return ""
	}
	return version
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id                        TEXT PRIMARY KEY,
		project_number            TEXT NOT NULL UNIQUE,
		client                    TEXT NOT NULL,
		project_name              TEXT NOT NULL,
		project_address           TEXT NOT NULL DEFAULT '',
		date_created              TEXT NOT NULL,
		project_status            TEXT NOT NULL DEFAULT 'planning',
		install_commencement_date TEXT,
		install_duration          INTEGER NOT NULL DEFAULT 0,
		overall_project_budget    REAL NOT NULL DEFAULT 0,
		priority_level            TEXT NOT NULL DEFAULT 'medium',
		created_at                INTEGER NOT NULL,
		updated_at                INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(project_status);
	CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);

	CREATE TABLE IF NOT EXISTS project_tasks (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		task_description TEXT NOT NULL,
		is_completed     INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project ON project_tasks(project_id, created_at);

	CREATE TABLE IF NOT EXISTS materials (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		material_name TEXT NOT NULL,
		thickness     REAL NOT NULL DEFAULT 0,
		board_size    TEXT NOT NULL DEFAULT '',
		quantity      INTEGER NOT NULL DEFAULT 0,
		supplier      TEXT NOT NULL DEFAULT '',
		is_ordered    INTEGER NOT NULL DEFAULT 0,
		order_number  TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_materials_project ON materials(project_id, created_at);

	CREATE TABLE IF NOT EXISTS joinery_items (
		id                        TEXT PRIMARY KEY,
		project_id                TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		item_name                 TEXT NOT NULL,
		item_budget               REAL NOT NULL DEFAULT 0,
		install_commencement_date TEXT,
		install_duration          INTEGER NOT NULL DEFAULT 0,
		` + checklistColumnsDDL() + `
		created_at                INTEGER NOT NULL,
		updated_at                INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_project ON joinery_items(project_id, created_at);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

func (s *Store) migrateV2() error {
	if v := s.schemaVersion(); v >= "2" {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS installers (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		contact_info TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_installers (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		installer_id TEXT NOT NULL REFERENCES installers(id) ON DELETE CASCADE,
		created_at   INTEGER NOT NULL,
		UNIQUE (project_id, installer_id)
	);

	CREATE TABLE IF NOT EXISTS voice_turns (
		id          TEXT PRIMARY KEY,
		session_key TEXT NOT NULL,
		utterance   TEXT NOT NULL,
		action      TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL,
		reply       TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON voice_turns(session_key, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

func checklistColumnsDDL() string {
	var b strings.Builder
	for _, step := range ChecklistSteps {
		fmt.Fprintf(&b, "%s INTEGER NOT NULL DEFAULT 0,\n\t\t", step)
	}
	return b.String()
}
