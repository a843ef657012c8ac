// Package timeline lays scheduled installs out on a day grid.
package timeline

import (
	"sort"
	"time"

	"github.com/p-blackswan/joinery-agent/internal/store"
)

const (
	dateLayout = "2006-01-02"
	padDays    = 2
)

// Entry is one project's install window. End is the last install day.
type Entry struct {
	ProjectID     string `json:"project_id"`
	ProjectNumber string `json:"project_number"`
	ProjectName   string `json:"project_name"`
	Client        string `json:"client"`
	Status        string `json:"project_status"`
	Start         string `json:"start"`
	End           string `json:"end"`
	DurationDays  int    `json:"duration_days"`
}

// Timeline is the ordered set of install windows plus the padded range a
// chart should cover.
type Timeline struct {
	Entries   []Entry `json:"entries"`
	RangeFrom string  `json:"range_from"`
	RangeTo   string  `json:"range_to"`
	Days      int     `json:"days"`
}

// Options filters what Build includes.
type Options struct {
	// AllStatuses includes completed and on-hold projects.
	AllStatuses bool
}

// Build returns the timeline for projects that have an install date. By
// default only planning and in-progress work is shown. Unparseable dates are
// skipped.
func Build(projects []*store.Project, today time.Time, opts Options) Timeline {
	today = day(today)
	from, to := today, today
	entries := make([]Entry, 0, len(projects))

	for _, p := range projects {
		if p.InstallCommencementDate == "" {
			continue
		}
		if !opts.AllStatuses && p.ProjectStatus != store.StatusPlanning && p.ProjectStatus != store.StatusInProgress {
			continue
		}
		start, err := time.Parse(dateLayout, p.InstallCommencementDate)
		if err != nil {
			continue
		}
		duration := max(p.InstallDuration, 1)
		end := start.AddDate(0, 0, duration-1)

		if start.Before(from) {
			from = start
		}
		if end.After(to) {
			to = end
		}
		entries = append(entries, Entry{
			ProjectID:     p.ID,
			ProjectNumber: p.ProjectNumber,
			ProjectName:   p.ProjectName,
			Client:        p.Client,
			Status:        p.ProjectStatus,
			Start:         start.Format(dateLayout),
			End:           end.Format(dateLayout),
			DurationDays:  duration,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start < entries[j].Start })

	from = from.AddDate(0, 0, -padDays)
	to = to.AddDate(0, 0, padDays)
	return Timeline{
		Entries:   entries,
		RangeFrom: from.Format(dateLayout),
		RangeTo:   to.Format(dateLayout),
		Days:      int(to.Sub(from).Hours()/24) + 1,
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
