package voice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
	"github.com/p-blackswan/joinery-agent/internal/store"
)

// Repository is the slice of the data store the dispatcher needs.
type Repository interface {
	CreateProject(ctx context.Context, p *store.Project) error
	FindProject(ctx context.Context, q store.Query) (*store.Project, error)
	FindProjects(ctx context.Context, q store.Query) ([]*store.Project, error)
	CreateTask(ctx context.Context, t *store.Task) error
	UpdateMaterials(ctx context.Context, q store.Query, patch store.MaterialPatch) (int64, error)
}

// ProjectNotifier is told about projects created over the phone.
type ProjectNotifier interface {
	ProjectCreated(ctx context.Context, p *store.Project)
}

// Outcome classifies how a dispatched turn ended.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeClarification Outcome = "clarification"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeStoreError    Outcome = "store_error"
	OutcomeUnhandled     Outcome = "unhandled"
)

// Result is a dispatched reply and its outcome.
type Result struct {
	Reply   string
	Outcome Outcome
}

const (
	defaultListLimit    = 5
	maxListLimit        = 20
	projectNumberTries  = 5
	genericClarifyReply = "I understand you want help, but I need more specific information. What would you like me to do?"
)

// Dispatcher runs the store operation behind each Action.
type Dispatcher struct {
	repo     Repository
	notifier ProjectNotifier
	notifies sync.WaitGroup
	now      func() time.Time
	logger   zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNotifier announces voice-created projects.
func WithNotifier(n ProjectNotifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithDispatchClock sets the clock used for project numbers.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher over repo.
func NewDispatcher(repo Repository, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:   repo,
		now:    time.Now,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch performs intent.Action with the effective parameters and returns
// the sentence to speak. Store failures become apology replies.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent, params map[string]string) string {
	return d.Run(ctx, intent, params).Reply
}

// Wait blocks until in-flight project announcements have finished.
func (d *Dispatcher) Wait() {
	d.notifies.Wait()
}

// announce notifies off the caller's turn; the webhook reply does not wait
// on Slack.
func (d *Dispatcher) announce(ctx context.Context, p store.Project) {
	ctx = context.WithoutCancel(ctx)
	d.notifies.Add(1)
	go func() {
		defer d.notifies.Done()
		d.notifier.ProjectCreated(ctx, &p)
	}()
}

// Run is Dispatch with the outcome attached.
func (d *Dispatcher) Run(ctx context.Context, intent Intent, params map[string]string) Result {
	switch intent.Action {
	case ActionCreateProject:
		return d.createProject(ctx, params)
	case ActionGetProject:
		return d.getProject(ctx, params)
	case ActionAddTask:
		return d.addTask(ctx, params)
	case ActionUpdateMaterial:
		return d.updateMaterial(ctx, params)
	case ActionGetStatus:
		return d.getStatus(ctx, params)
	case ActionListProjects:
		return d.listProjects(ctx, params)
	case ActionUnknown:
		return fallback(intent)
	default:
		return fallback(intent)
	}
}

// fallback speaks the model's own reply when there is no operation to run.
func fallback(intent Intent) Result {
	if intent.Reply != "" {
		return Result{Reply: intent.Reply, Outcome: OutcomeUnhandled}
	}
	return Result{Reply: genericClarifyReply, Outcome: OutcomeClarification}
}

func clarify(msg string) Result  { return Result{Reply: msg, Outcome: OutcomeClarification} }
func notFound(msg string) Result { return Result{Reply: msg, Outcome: OutcomeNotFound} }
func ok(msg string) Result       { return Result{Reply: msg, Outcome: OutcomeOK} }

func (d *Dispatcher) trouble(err error, op, reply string) Result {
	d.logger.Error().Err(err).Str("op", op).Msg("store call failed")
	return Result{Reply: reply, Outcome: OutcomeStoreError}
}

func (d *Dispatcher) createProject(ctx context.Context, params map[string]string) Result {
	client := params["client"]
	name := params["project_name"]
	if client == "" {
		return clarify("I need the client name to create a new project. Could you provide the client name?")
	}
	if name == "" {
		return clarify("I need the project name to create a new project. Could you provide the project name?")
	}

	p := &store.Project{
		Client:               client,
		ProjectName:          name,
		ProjectAddress:       params["project_address"],
		ProjectStatus:        store.StatusPlanning,
		PriorityLevel:        store.PriorityMedium,
		OverallProjectBudget: parseBudget(params["budget"]),
	}

	now := d.now()
	suffix := int(now.UnixMilli() % 1000)
	var err error
	for i := 0; i < projectNumberTries; i++ {
		p.ID = ""
		p.ProjectNumber = fmt.Sprintf("%d-%03d", now.Year(), (suffix+i)%1000)
		if err = d.repo.CreateProject(ctx, p); !errors.Is(err, jerrors.ErrConflict) {
			break
		}
		d.logger.Debug().Str("project_number", p.ProjectNumber).Msg("project number taken, bumping")
	}
	if err != nil {
		return d.trouble(err, "create_project", "Sorry, I had trouble creating the project. Please try again.")
	}

	d.logger.Info().Str("project_number", p.ProjectNumber).Str("client", client).Msg("project created by voice")
	if d.notifier != nil {
		d.announce(ctx, *p)
	}
	return ok(fmt.Sprintf("Great! I've created a new project for %s called \"%s\" with project number %s. The project is now in planning status.",
		client, name, p.ProjectNumber))
}

func (d *Dispatcher) getProject(ctx context.Context, params map[string]string) Result {
	var q store.Query
	switch {
	case params["project_number"] != "":
		q = q.Filter(store.Eq("project_number", params["project_number"]))
	case params["project_name"] != "":
		q = q.Filter(store.ILike("project_name", params["project_name"]))
	default:
		return clarify("I need either a project number or project name to look up the project.")
	}

	p, err := d.repo.FindProject(ctx, q)
	if err != nil {
		return d.trouble(err, "get_project", "Sorry, I had trouble finding that project. Please try again.")
	}
	if p == nil {
		return notFound("I couldn't find that project. Could you check the project number or name?")
	}
	return ok(fmt.Sprintf("I found project %s for %s. It's called \"%s\" and is currently %s. The budget is $%s and it has a %s priority.",
		p.ProjectNumber, p.Client, p.ProjectName, spokenStatus(p.ProjectStatus), formatBudget(p.OverallProjectBudget), p.PriorityLevel))
}

// projectQuery picks the first identifier present: number, then name, then
// client. ok is false when none is given.
func projectQuery(params map[string]string) (q store.Query, found bool) {
	switch {
	case params["project_number"] != "":
		return q.Filter(store.Eq("project_number", params["project_number"])), true
	case params["project_name"] != "":
		return q.Filter(store.ILike("project_name", params["project_name"])), true
	case params["client"] != "":
		return q.Filter(store.ILike("client", params["client"])), true
	}
	return q, false
}

func (d *Dispatcher) addTask(ctx context.Context, params map[string]string) Result {
	desc := params["task_description"]
	if desc == "" {
		return clarify("I need the task description to add a task.")
	}
	const which = "I need to know which project to add this task to. Could you provide the project number, name, or client?"

	q, found := projectQuery(params)
	if !found {
		return clarify(which)
	}
	p, err := d.repo.FindProject(ctx, q)
	if err != nil {
		return d.trouble(err, "add_task", "Sorry, I had trouble adding that task. Please try again.")
	}
	if p == nil {
		return clarify(which)
	}

	if err := d.repo.CreateTask(ctx, &store.Task{ProjectID: p.ID, TaskDescription: desc}); err != nil {
		return d.trouble(err, "add_task", "Sorry, I had trouble adding that task. Please try again.")
	}
	return ok(fmt.Sprintf("Perfect! I've added the task \"%s\" to %s.", desc, p.ProjectName))
}

func (d *Dispatcher) updateMaterial(ctx context.Context, params map[string]string) Result {
	name := params["material_name"]
	if name == "" {
		return clarify("I need the material name to update its status.")
	}
	const troubleReply = "Sorry, I had trouble updating that material. Please try again."

	var patch store.MaterialPatch
	orderStatus, hasStatus := params["order_status"]
	ordered := false
	if hasStatus {
		ordered = isOrdered(orderStatus)
		patch.IsOrdered = &ordered
	}
	if n := params["order_number"]; n != "" {
		patch.OrderNumber = &n
	}
	if patch.Empty() {
		return clarify(fmt.Sprintf("Should I mark the %s as ordered, or do you have an order number for it?", name))
	}

	q := store.Query{}.Filter(store.ILike("material_name", name))
	if num := params["project_number"]; num != "" {
		p, err := d.repo.FindProject(ctx, store.Query{}.Filter(store.Eq("project_number", num)))
		if err != nil {
			return d.trouble(err, "update_material", troubleReply)
		}
		if p != nil {
			q = q.Filter(store.Eq("project_id", p.ID))
		}
	}

	n, err := d.repo.UpdateMaterials(ctx, q, patch)
	if err != nil {
		return d.trouble(err, "update_material", troubleReply)
	}
	if n == 0 {
		return notFound(fmt.Sprintf("I couldn't find any material matching %s.", name))
	}
	tail := "The material order status has been updated."
	if ordered {
		tail = "The material is now marked as ordered."
	}
	return ok(fmt.Sprintf("I've updated the order status for %s. %s", name, tail))
}

func (d *Dispatcher) getStatus(ctx context.Context, params map[string]string) Result {
	q, found := projectQuery(params)
	if !found {
		return clarify("I need the project number, name, or client to check the status.")
	}
	p, err := d.repo.FindProject(ctx, q)
	if err != nil {
		return d.trouble(err, "get_status", "Sorry, I had trouble getting the project status. Please try again.")
	}
	if p == nil {
		return notFound("I couldn't find that project. Please check the project number, name, or client.")
	}
	return ok(fmt.Sprintf("Project %s is currently %s. The client is %s and the project is \"%s\". The budget is $%s and it has a %s priority.",
		p.ProjectNumber, spokenStatus(p.ProjectStatus), p.Client, p.ProjectName, formatBudget(p.OverallProjectBudget), p.PriorityLevel))
}

func (d *Dispatcher) listProjects(ctx context.Context, params map[string]string) Result {
	limit := defaultListLimit
	if n, err := strconv.Atoi(params["limit"]); err == nil && n > 0 {
		limit = min(n, maxListLimit)
	}
	q := store.Query{Limit: limit}
	status := normalizeStatus(params["status"])
	if status != "" {
		q = q.Filter(store.Eq("project_status", status))
	}

	projects, err := d.repo.FindProjects(ctx, q)
	if err != nil {
		return d.trouble(err, "list_projects", "Sorry, I had trouble getting the project list. Please try again.")
	}
	if len(projects) == 0 {
		if status != "" {
			return notFound(fmt.Sprintf("I don't see any %s projects in the system.", spokenStatus(status)))
		}
		return notFound("I don't see any projects in the system.")
	}

	parts := make([]string, len(projects))
	for i, p := range projects {
		parts[i] = fmt.Sprintf("%d. Project %s for %s - \"%s\" (%s)", i+1, p.ProjectNumber, p.Client, p.ProjectName, spokenStatus(p.ProjectStatus))
	}
	return ok(fmt.Sprintf("Here are your %d most recent projects: %s", len(projects), strings.Join(parts, ". ")))
}

func spokenStatus(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func isOrdered(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ordered", "true", "yes":
		return true
	}
	return false
}

func parseBudget(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func formatBudget(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
