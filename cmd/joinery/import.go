package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
	"github.com/p-blackswan/joinery-agent/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Seed projects from a CSV export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		projects, err := parseProjectsCSV(f)
		if err != nil {
			return err
		}

		st, err := store.New(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		added, skipped, err := importProjects(cmd.Context(), st, projects, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects, skipped %d existing\n", added, skipped)
		return nil
	},
}

var requiredColumns = []string{"project_number", "project_name", "client"}

// parseProjectsCSV reads a header row then one project per line. Unknown
// columns are ignored; blank lines are skipped.
func parseProjectsCSV(r io.Reader) ([]*store.Project, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q: %w", col, jerrors.ErrInvalidInput)
		}
	}

	var out []*store.Project
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if get("project_number") == "" && get("project_name") == "" {
			continue
		}

		p := &store.Project{
			ProjectNumber:           get("project_number"),
			ProjectName:             get("project_name"),
			Client:                  get("client"),
			ProjectAddress:          get("project_address"),
			ProjectStatus:           get("project_status"),
			InstallCommencementDate: get("install_commencement_date"),
		}
		if p.ProjectStatus != "" && !store.ValidStatus(p.ProjectStatus) {
			return nil, fmt.Errorf("line %d: unknown status %q: %w", line, p.ProjectStatus, jerrors.ErrInvalidInput)
		}
		if v := get("overall_project_budget"); v != "" {
			budget, err := strconv.ParseFloat(strings.NewReplacer("$", "", ",", "").Replace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: budget %q: %w", line, v, jerrors.ErrInvalidInput)
			}
			p.OverallProjectBudget = budget
		}
		if v := get("install_duration"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: duration %q: %w", line, v, jerrors.ErrInvalidInput)
			}
			p.InstallDuration = d
		}
		out = append(out, p)
	}
	return out, nil
}

type projectCreator interface {
	CreateProject(ctx context.Context, p *store.Project) error
}

// importProjects inserts each project, counting those whose number already exists.
func importProjects(ctx context.Context, st projectCreator, projects []*store.Project, logger zerolog.Logger) (added, skipped int, err error) {
	for _, p := range projects {
		err := st.CreateProject(ctx, p)
		switch {
		case err == nil:
			added++
		case errors.Is(err, jerrors.ErrConflict):
			skipped++
			logger.Debug().Str("project_number", p.ProjectNumber).Msg("project exists, skipping")
		default:
			return added, skipped, fmt.Errorf("importing %s: %w", p.ProjectNumber, err)
		}
	}
	return added, skipped, nil
}
