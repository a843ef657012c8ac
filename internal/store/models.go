package store

import "time"

// Project statuses.
const (
	StatusPlanning   = "planning"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusOnHold     = "on_hold"
)

// Priority levels.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// ValidStatus reports whether s is a known project status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusCompleted, StatusOnHold:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Project is a joinery job for one client.
type Project struct {
	ID                      string    `json:"id"`
	ProjectNumber           string    `json:"project_number"`
	Client                  string    `json:"client"`
	ProjectName             string    `json:"project_name"`
	ProjectAddress          string    `json:"project_address"`
	DateCreated             string    `json:"date_created"`
	ProjectStatus           string    `json:"project_status"`
	InstallCommencementDate string    `json:"install_commencement_date,omitempty"` // YYYY-MM-DD, empty when unscheduled
	InstallDuration         int       `json:"install_duration"`                    // days
	OverallProjectBudget    float64   `json:"overall_project_budget"`
	PriorityLevel           string    `json:"priority_level"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// ProjectPatch is a partial project update. Nil fields are left alone.
type ProjectPatch struct {
	Client                  *string  `json:"client,omitempty"`
	ProjectName             *string  `json:"project_name,omitempty"`
	ProjectAddress          *string  `json:"project_address,omitempty"`
	ProjectStatus           *string  `json:"project_status,omitempty"`
	InstallCommencementDate *string  `json:"install_commencement_date,omitempty"`
	InstallDuration         *int     `json:"install_duration,omitempty"`
	OverallProjectBudget    *float64 `json:"overall_project_budget,omitempty"`
	PriorityLevel           *string  `json:"priority_level,omitempty"`
}

// Task is a free-text to-do attached to a project.
type Task struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	TaskDescription string    `json:"task_description"`
	IsCompleted     bool      `json:"is_completed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TaskPatch is a partial task update.
type TaskPatch struct {
	TaskDescription *string `json:"task_description,omitempty"`
	IsCompleted     *bool   `json:"is_completed,omitempty"`
}

// Material is a board or sheet line for a project, with its order state.
type Material struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	MaterialName string    `json:"material_name"`
	Thickness    float64   `json:"thickness"`
	BoardSize    string    `json:"board_size"`
	Quantity     int       `json:"quantity"`
	Supplier     string    `json:"supplier"`
	IsOrdered    bool      `json:"is_ordered"`
	OrderNumber  string    `json:"order_number"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaterialPatch is a partial material update.
type MaterialPatch struct {
	MaterialName *string  `json:"material_name,omitempty"`
	Thickness    *float64 `json:"thickness,omitempty"`
	BoardSize    *string  `json:"board_size,omitempty"`
	Quantity     *int     `json:"quantity,omitempty"`
	Supplier     *string  `json:"supplier,omitempty"`
	IsOrdered    *bool    `json:"is_ordered,omitempty"`
	OrderNumber  *string  `json:"order_number,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p MaterialPatch) Empty() bool {
	return p.MaterialName == nil && p.Thickness == nil && p.BoardSize == nil &&
		p.Quantity == nil && p.Supplier == nil && p.IsOrdered == nil && p.OrderNumber == nil
}

// ChecklistSteps lists the manufacturing checklist columns in workshop order.
var ChecklistSteps = []string{
	"shop_drawings_approved",
	"board_ordered",
	"hardware_ordered",
	"site_measured",
	"microvellum_ready_to_process",
	"processed_to_factory",
	"picked_up_from_factory",
	"install_scheduled",
	"plans_printed",
	"assembled",
	"delivered",
	"installed",
	"invoiced",
}

// ValidChecklistStep reports whether step is a checklist column.
func ValidChecklistStep(step string) bool {
	for _, s := range ChecklistSteps {
		if s == step {
			return true
		}
	}
	return false
}

// JoineryItem is one manufactured piece (kitchen, vanity, wardrobe) within a
// project, tracked through the manufacturing checklist.
type JoineryItem struct {
	ID                      string          `json:"id"`
	ProjectID               string          `json:"project_id"`
	ItemName                string          `json:"item_name"`
	ItemBudget              float64         `json:"item_budget"`
	InstallCommencementDate string          `json:"install_commencement_date,omitempty"`
	InstallDuration         int             `json:"install_duration"`
	Checklist               map[string]bool `json:"checklist"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Progress returns the completed share of the checklist as a whole percent.
func (j *JoineryItem) Progress() int {
	done := 0
	for _, step := range ChecklistSteps {
		if j.Checklist[step] {
			done++
		}
	}
	return done * 100 / len(ChecklistSteps)
}

// JoineryItemPatch is a partial joinery item update. Checklist changes go
// through SetChecklistStep.
type JoineryItemPatch struct {
	ItemName                *string  `json:"item_name,omitempty"`
	ItemBudget              *float64 `json:"item_budget,omitempty"`
	InstallCommencementDate *string  `json:"install_commencement_date,omitempty"`
	InstallDuration         *int     `json:"install_duration,omitempty"`
}

// Installer is a person or crew that fits joinery on site.
type Installer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactInfo string    `json:"contact_info"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VoiceTurn is the persisted record of one utterance-and-reply exchange.
type VoiceTurn struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	Utterance  string    `json:"utterance"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Reply      string    `json:"reply"`
	CreatedAt  time.Time `json:"created_at"`
}
