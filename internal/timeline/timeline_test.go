package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/joinery-agent/internal/store"
)

var today = time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)

func TestBuild(t *testing.T) {
	projects := []*store.Project{
		{ID: "b", ProjectNumber: "2025-002", ProjectStatus: store.StatusInProgress, InstallCommencementDate: "2025-06-20", InstallDuration: 3},
		{ID: "a", ProjectNumber: "2025-001", ProjectStatus: store.StatusPlanning, InstallCommencementDate: "2025-06-12"},
		{ID: "c", ProjectNumber: "2025-003", ProjectStatus: store.StatusCompleted, InstallCommencementDate: "2025-05-01"},
		{ID: "d", ProjectNumber: "2025-004", ProjectStatus: store.StatusPlanning},
		{ID: "e", ProjectNumber: "2025-005", ProjectStatus: store.StatusPlanning, InstallCommencementDate: "next tuesday"},
	}

	tl := Build(projects, today, Options{})
	require.Len(t, tl.Entries, 2)
	assert.Equal(t, "a", tl.Entries[0].ProjectID, "sorted by start")
	assert.Equal(t, "2025-06-12", tl.Entries[0].End, "zero duration counts as one day")
	assert.Equal(t, 1, tl.Entries[0].DurationDays)
	assert.Equal(t, "2025-06-22", tl.Entries[1].End)

	assert.Equal(t, "2025-06-08", tl.RangeFrom, "today minus padding")
	assert.Equal(t, "2025-06-24", tl.RangeTo, "last end plus padding")
	assert.Equal(t, 17, tl.Days)
}

func TestBuild_AllStatuses(t *testing.T) {
	projects := []*store.Project{
		{ID: "c", ProjectStatus: store.StatusCompleted, InstallCommencementDate: "2025-05-01", InstallDuration: 2},
	}
	tl := Build(projects, today, Options{AllStatuses: true})
	require.Len(t, tl.Entries, 1)
	assert.Equal(t, "2025-04-29", tl.RangeFrom)
	assert.Equal(t, "2025-06-12", tl.RangeTo)
}

func TestBuild_Empty(t *testing.T) {
	tl := Build(nil, today, Options{})
	assert.Empty(t, tl.Entries)
	assert.Equal(t, "2025-06-08", tl.RangeFrom)
	assert.Equal(t, "2025-06-12", tl.RangeTo)
	assert.Equal(t, 5, tl.Days)
}
