package voice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
	"github.com/p-blackswan/joinery-agent/internal/llm"
	"github.com/p-blackswan/joinery-agent/internal/metrics"
	"github.com/p-blackswan/joinery-agent/internal/retry"
	"github.com/p-blackswan/joinery-agent/internal/session"
	"github.com/p-blackswan/joinery-agent/internal/store"
)

// scriptedProvider replays canned replies and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []llm.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(p.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	text := p.replies[0]
	p.replies = p.replies[1:]
	return &llm.CompletionResponse{Text: text}, nil
}

func (p *scriptedProvider) ModelID() string { return "scripted" }

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "voice.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var fixedNow = time.Date(2025, 6, 3, 10, 0, 0, 42_000_000, time.UTC)

func newAssistant(t *testing.T, p llm.Provider, repo Repository, opts ...Option) (*Assistant, *session.MemoryStore) {
	t.Helper()
	sessions := session.NewMemoryStore()
	d := NewDispatcher(repo, zerolog.Nop(), WithDispatchClock(func() time.Time { return fixedNow }))
	cfg := Config{Retry: retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}}
	return NewAssistant(cfg, sessions, p, d, zerolog.Nop(), opts...), sessions
}

func peek(t *testing.T, m *session.MemoryStore, key string) *session.Session {
	t.Helper()
	s, ok, err := m.Peek(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "session %s should exist", key)
	return s
}

func TestMergeContext(t *testing.T) {
	ctx := map[string]string{"client": "ABC Construction"}
	eff := MergeContext(ctx, map[string]string{"project_name": "Kitchen"}, map[string]string{"client": "XYZ"})

	assert.Equal(t, map[string]string{"client": "ABC Construction", "project_name": "Kitchen"}, ctx)
	assert.Equal(t, "XYZ", eff["client"], "turn parameters win")
	assert.Equal(t, "Kitchen", eff["project_name"])

	before := map[string]string{"client": "ABC"}
	MergeContext(before, nil, nil)
	MergeContext(before, map[string]string{}, map[string]string{"x": "y"})
	assert.Equal(t, map[string]string{"client": "ABC"}, before, "empty update leaves context unchanged")
}

func TestParseAction(t *testing.T) {
	assert.Equal(t, ActionCreateProject, ParseAction("create_project"))
	assert.Equal(t, ActionListProjects, ParseAction(" LIST_PROJECTS "))
	assert.Equal(t, ActionUnknown, ParseAction("delete_everything"))
	assert.Equal(t, ActionUnknown, ParseAction(""))
	assert.Equal(t, "get_status", ActionGetStatus.String())
	assert.Equal(t, "unknown", Action(99).String())
}

func TestParseIntent(t *testing.T) {
	in, err := ParseIntent(`{"action":"list_projects","parameters":{"limit":3,"status":null,"nested":{"a":1},"urgent":true},"response":"Sure.","updateContext":{"client":"","project_number":"2025-001"}}`)
	require.NoError(t, err)
	assert.Equal(t, ActionListProjects, in.Action)
	assert.Equal(t, map[string]string{"limit": "3", "urgent": "true"}, in.Parameters)
	assert.Equal(t, "Sure.", in.Reply)
	assert.Equal(t, map[string]string{"project_number": "2025-001"}, in.ContextUpdate)

	fenced, err := ParseIntent("```json\n{\"action\":\"get_status\",\"parameters\":{}}\n```")
	require.NoError(t, err)
	assert.Equal(t, ActionGetStatus, fenced.Action)

	_, err = ParseIntent("Sure, which project did you mean?")
	assert.ErrorIs(t, err, ErrNotJSON)

	_, err = ParseIntent(`{"action": "create_project", "parameters": {`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestDispatcher_CreateProject(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st, zerolog.Nop(), WithDispatchClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	reply := d.Dispatch(ctx, Intent{Action: ActionCreateProject}, map[string]string{"client": "ABC Construction"})
	assert.Contains(t, reply, "need the project name")
	all, _ := st.FindProjects(ctx, store.Query{})
	assert.Empty(t, all, "no insert when a field is missing")

	reply = d.Dispatch(ctx, Intent{Action: ActionCreateProject}, map[string]string{"project_name": "Kitchen"})
	assert.Contains(t, reply, "need the client name")

	reply = d.Dispatch(ctx, Intent{Action: ActionCreateProject}, map[string]string{
		"client": "ABC Construction", "project_name": "Kitchen Renovation", "budget": "$12,500",
	})
	assert.Equal(t, `Great! I've created a new project for ABC Construction called "Kitchen Renovation" with project number 2025-042. The project is now in planning status.`, reply)

	p, err := st.FindProject(ctx, store.Query{}.Filter(store.Eq("project_number", "2025-042")))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, store.StatusPlanning, p.ProjectStatus)
	assert.Equal(t, store.PriorityMedium, p.PriorityLevel)
	assert.Equal(t, 12500.0, p.OverallProjectBudget)

	// Same clock again: the number is taken, so the suffix is bumped.
	reply = d.Dispatch(ctx, Intent{Action: ActionCreateProject}, map[string]string{"client": "Jones", "project_name": "Vanity"})
	assert.Contains(t, reply, "project number 2025-043")
}

type notifierFunc func(ctx context.Context, p *store.Project)

func (f notifierFunc) ProjectCreated(ctx context.Context, p *store.Project) { f(ctx, p) }

func TestDispatcher_CreateProjectNotifies(t *testing.T) {
	st := newTestStore(t)
	var got *store.Project
	d := NewDispatcher(st, zerolog.Nop(), WithNotifier(notifierFunc(func(_ context.Context, p *store.Project) { got = p })))

	d.Dispatch(context.Background(), Intent{Action: ActionCreateProject}, map[string]string{"client": "Lee", "project_name": "Study"})
	d.Wait()
	require.NotNil(t, got)
	assert.Equal(t, "Study", got.ProjectName)
}

func TestDispatcher_SlowNotifierDoesNotDelayReply(t *testing.T) {
	st := newTestStore(t)
	release := make(chan struct{})
	var notified atomic.Bool
	slow := notifierFunc(func(ctx context.Context, p *store.Project) {
		<-release
		assert.NoError(t, ctx.Err(), "announcement outlives the turn context")
		notified.Store(true)
	})
	d := NewDispatcher(st, zerolog.Nop(), WithNotifier(slow))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() {
		done <- d.Dispatch(ctx, Intent{Action: ActionCreateProject}, map[string]string{"client": "Lee", "project_name": "Study"})
	}()

	select {
	case reply := <-done:
		assert.Contains(t, reply, "Great! I've created a new project for Lee")
	case <-time.After(2 * time.Second):
		t.Fatal("reply waited on the notifier")
	}
	cancel()
	assert.False(t, notified.Load())

	close(release)
	d.Wait()
	assert.True(t, notified.Load())
}

func seedProjects(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateProject(ctx, &store.Project{
		ProjectNumber: "MJ2501", Client: "ABC Construction", ProjectName: "Kitchen Renovation",
		ProjectStatus: store.StatusInProgress, OverallProjectBudget: 15000, PriorityLevel: store.PriorityHigh,
	}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, st.CreateProject(ctx, &store.Project{
		ProjectNumber: "MJ2502", Client: "Jones Family", ProjectName: "Bathroom Vanity", ProjectStatus: store.StatusOnHold,
	}))
}

func TestDispatcher_GetStatus(t *testing.T) {
	st := newTestStore(t)
	seedProjects(t, st)
	d := NewDispatcher(st, zerolog.Nop())
	ctx := context.Background()

	reply := d.Dispatch(ctx, Intent{Action: ActionGetStatus}, map[string]string{"project_number": "MJ2501"})
	assert.Equal(t, `Project MJ2501 is currently in progress. The client is ABC Construction and the project is "Kitchen Renovation". The budget is $15000 and it has a high priority.`, reply)
	assert.NotContains(t, reply, "in_progress")

	reply = d.Dispatch(ctx, Intent{Action: ActionGetStatus}, map[string]string{"client": "jones"})
	assert.Contains(t, reply, "MJ2502 is currently on hold")

	reply = d.Dispatch(ctx, Intent{Action: ActionGetStatus}, map[string]string{})
	assert.Equal(t, "I need the project number, name, or client to check the status.", reply)

	reply = d.Dispatch(ctx, Intent{Action: ActionGetStatus}, map[string]string{"project_number": "ZZ9999"})
	assert.Contains(t, reply, "couldn't find that project")
}

func TestDispatcher_GetProject(t *testing.T) {
	st := newTestStore(t)
	seedProjects(t, st)
	d := NewDispatcher(st, zerolog.Nop())
	ctx := context.Background()

	reply := d.Dispatch(ctx, Intent{Action: ActionGetProject}, map[string]string{"project_name": "kitchen"})
	assert.Equal(t, `I found project MJ2501 for ABC Construction. It's called "Kitchen Renovation" and is currently in progress. The budget is $15000 and it has a high priority.`, reply)

	reply = d.Dispatch(ctx, Intent{Action: ActionGetProject}, map[string]string{"client": "ABC"})
	assert.Contains(t, reply, "need either a project number or project name")

	reply = d.Dispatch(ctx, Intent{Action: ActionGetProject}, map[string]string{"project_name": "garage"})
	assert.Equal(t, "I couldn't find that project. Could you check the project number or name?", reply)
}

func TestDispatcher_AddTask(t *testing.T) {
	st := newTestStore(t)
	seedProjects(t, st)
	d := NewDispatcher(st, zerolog.Nop())
	ctx := context.Background()

	reply := d.Dispatch(ctx, Intent{Action: ActionAddTask}, map[string]string{"project_number": "MJ2501"})
	assert.Equal(t, "I need the task description to add a task.", reply)

	reply = d.Dispatch(ctx, Intent{Action: ActionAddTask}, map[string]string{"task_description": "Order hinges"})
	assert.Contains(t, reply, "which project")

	reply = d.Dispatch(ctx, Intent{Action: ActionAddTask}, map[string]string{"task_description": "Order hinges", "client": "abc"})
	assert.Equal(t, `Perfect! I've added the task "Order hinges" to Kitchen Renovation.`, reply)

	p, _ := st.FindProject(ctx, store.Query{}.Filter(store.Eq("project_number", "MJ2501")))
	tasks, err := st.FindTasks(ctx, store.Query{}.Filter(store.Eq("project_id", p.ID)))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].IsCompleted)

	reply = d.Dispatch(ctx, Intent{Action: ActionAddTask}, map[string]string{"task_description": "x", "project_name": "nowhere"})
	assert.Contains(t, reply, "which project")
}

func TestDispatcher_UpdateMaterial(t *testing.T) {
	st := newTestStore(t)
	seedProjects(t, st)
	ctx := context.Background()
	a, _ := st.FindProject(ctx, store.Query{}.Filter(store.Eq("project_number", "MJ2501")))
	b, _ := st.FindProject(ctx, store.Query{}.Filter(store.Eq("project_number", "MJ2502")))
	require.NoError(t, st.CreateMaterial(ctx, &store.Material{ProjectID: a.ID, MaterialName: "White Melamine"}))
	require.NoError(t, st.CreateMaterial(ctx, &store.Material{ProjectID: b.ID, MaterialName: "white melamine"}))
	d := NewDispatcher(st, zerolog.Nop())

	reply := d.Dispatch(ctx, Intent{Action: ActionUpdateMaterial}, map[string]string{"order_status": "ordered"})
	assert.Equal(t, "I need the material name to update its status.", reply)

	reply = d.Dispatch(ctx, Intent{Action: ActionUpdateMaterial}, map[string]string{
		"material_name": "melamine", "order_status": "ordered", "order_number": "PO-1", "project_number": "MJ2501",
	})
	assert.Equal(t, "I've updated the order status for melamine. The material is now marked as ordered.", reply)

	mats, err := st.FindMaterials(ctx, store.Query{}.Filter(store.Eq("is_ordered", 1)))
	require.NoError(t, err)
	require.Len(t, mats, 1, "scoped to the resolved project")
	assert.Equal(t, a.ID, mats[0].ProjectID)
	assert.Equal(t, "PO-1", mats[0].OrderNumber)

	reply = d.Dispatch(ctx, Intent{Action: ActionUpdateMaterial}, map[string]string{"material_name": "melamine", "order_status": "not_ordered"})
	assert.Contains(t, reply, "order status has been updated")

	reply = d.Dispatch(ctx, Intent{Action: ActionUpdateMaterial}, map[string]string{"material_name": "walnut", "order_status": "ordered"})
	assert.Contains(t, reply, "couldn't find any material")

	reply = d.Dispatch(ctx, Intent{Action: ActionUpdateMaterial}, map[string]string{"material_name": "melamine"})
	assert.Contains(t, reply, "order number")
}

func TestDispatcher_ListProjects(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st, zerolog.Nop())
	ctx := context.Background()

	reply := d.Dispatch(ctx, Intent{Action: ActionListProjects}, nil)
	assert.Equal(t, "I don't see any projects in the system.", reply)

	seedProjects(t, st)
	reply = d.Dispatch(ctx, Intent{Action: ActionListProjects}, map[string]string{})
	assert.Equal(t, `Here are your 2 most recent projects: 1. Project MJ2502 for Jones Family - "Bathroom Vanity" (on hold). 2. Project MJ2501 for ABC Construction - "Kitchen Renovation" (in progress)`, reply)

	reply = d.Dispatch(ctx, Intent{Action: ActionListProjects}, map[string]string{"status": "in progress", "limit": "1"})
	assert.Equal(t, `Here are your 1 most recent projects: 1. Project MJ2501 for ABC Construction - "Kitchen Renovation" (in progress)`, reply)

	reply = d.Dispatch(ctx, Intent{Action: ActionListProjects}, map[string]string{"status": "completed"})
	assert.Contains(t, reply, "any completed projects")
}

func TestDispatcher_Unknown(t *testing.T) {
	d := NewDispatcher(newTestStore(t), zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, "Got it, ABC Construction.", d.Dispatch(ctx, Intent{Action: ActionUnknown, Reply: "Got it, ABC Construction."}, nil))
	assert.Equal(t, genericClarifyReply, d.Dispatch(ctx, Intent{Action: ActionUnknown}, nil))
	assert.Equal(t, genericClarifyReply, d.Dispatch(ctx, Intent{Action: Action(42)}, nil))
}

// failingRepo fails every call.
type failingRepo struct{}

var errDown = fmt.Errorf("database is locked: %w", jerrors.ErrUnavailable)

func (failingRepo) CreateProject(context.Context, *store.Project) error { return errDown }
func (failingRepo) FindProject(context.Context, store.Query) (*store.Project, error) {
	return nil, errDown
}
func (failingRepo) FindProjects(context.Context, store.Query) ([]*store.Project, error) {
	return nil, errDown
}
func (failingRepo) CreateTask(context.Context, *store.Task) error { return errDown }
func (failingRepo) UpdateMaterials(context.Context, store.Query, store.MaterialPatch) (int64, error) {
	return 0, errDown
}

func TestDispatcher_StoreFailuresBecomeReplies(t *testing.T) {
	d := NewDispatcher(failingRepo{}, zerolog.Nop())
	ctx := context.Background()

	cases := []struct {
		action Action
		params map[string]string
	}{
		{ActionCreateProject, map[string]string{"client": "A", "project_name": "B"}},
		{ActionGetProject, map[string]string{"project_number": "1"}},
		{ActionAddTask, map[string]string{"task_description": "x", "client": "A"}},
		{ActionUpdateMaterial, map[string]string{"material_name": "oak", "order_status": "ordered"}},
		{ActionGetStatus, map[string]string{"client": "A"}},
		{ActionListProjects, nil},
	}
	for _, c := range cases {
		t.Run(c.action.String(), func(t *testing.T) {
			res := d.Run(ctx, Intent{Action: c.action}, c.params)
			assert.Equal(t, OutcomeStoreError, res.Outcome)
			assert.True(t, strings.HasPrefix(res.Reply, "Sorry, I had trouble"), res.Reply)
		})
	}
}

func TestAssistant_EmptyUtteranceGreets(t *testing.T) {
	p := &scriptedProvider{}
	a, _ := newAssistant(t, p, newTestStore(t))

	assert.Equal(t, DefaultGreeting, a.Process(context.Background(), "CA1", "   "))
	assert.Zero(t, p.calls(), "no provider call for an empty utterance")
}

func TestAssistant_ContextCarriesAcrossTurns(t *testing.T) {
	st := newTestStore(t)
	p := &scriptedProvider{replies: []string{
		`{"action":"unknown","parameters":{},"response":"Got it, ABC Construction. What's the project called?","updateContext":{"client":"ABC Construction"}}`,
		`{"action":"create_project","parameters":{},"response":"Creating it.","updateContext":{"project_name":"Kitchen Renovation"}}`,
	}}
	a, sessions := newAssistant(t, p, st)
	ctx := context.Background()

	reply := a.Process(ctx, "CA1", "ABC Construction")
	assert.Equal(t, "Got it, ABC Construction. What's the project called?", reply)

	reply = a.Process(ctx, "CA1", "The project name is Kitchen Renovation")
	assert.Contains(t, reply, "for ABC Construction called \"Kitchen Renovation\"")

	all, err := st.FindProjects(ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ABC Construction", all[0].Client)

	s := peek(t, sessions, "CA1")
	assert.Equal(t, "ABC Construction", s.Context["client"])
	assert.Equal(t, "Kitchen Renovation", s.Context["project_name"])
	require.Len(t, s.History, 4)
	assert.Equal(t, session.RoleAssistant, s.History[3].Role)
	assert.Equal(t, reply, s.History[3].Text)

	// The second request carried the remembered client in the system prompt.
	require.Len(t, p.requests, 2)
	assert.Contains(t, p.requests[1].SystemPrompt, `"client":"ABC Construction"`)
	assert.Len(t, p.requests[1].Messages, 3)
}

func TestAssistant_MissingProjectNameAsksForIt(t *testing.T) {
	st := newTestStore(t)
	p := &scriptedProvider{replies: []string{
		`{"action":"create_project","parameters":{"client":"ABC Construction"},"response":"Sure.","updateContext":{"client":"ABC Construction"}}`,
	}}
	a, _ := newAssistant(t, p, st)

	reply := a.Process(context.Background(), "CA1", "Create a new project for ABC Construction")
	assert.Contains(t, reply, "need the project name")
	all, _ := st.FindProjects(context.Background(), store.Query{})
	assert.Empty(t, all)
}

func TestAssistant_NonJSONPassesThrough(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Which project do you mean, the kitchen or the vanity?"}}
	a, sessions := newAssistant(t, p, failingRepo{})

	reply := a.Process(context.Background(), "CA1", "what's the status")
	assert.Equal(t, "Which project do you mean, the kitchen or the vanity?", reply)

	s := peek(t, sessions, "CA1")
	require.Len(t, s.History, 2)
	assert.Equal(t, reply, s.History[1].Text)
}

func TestAssistant_MalformedJSONNotSpoken(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"action": "get_status", "parameters": {"client": "AB`}}
	a, _ := newAssistant(t, p, failingRepo{})

	reply := a.Process(context.Background(), "CA1", "status for ABC")
	assert.Equal(t, emptyModelReply, reply)
}

func TestAssistant_ProviderFailure(t *testing.T) {
	p := &scriptedProvider{errs: []error{jerrors.NewAPIError("openai", 401, "bad key")}}
	m := metrics.New()
	a, sessions := newAssistant(t, p, failingRepo{}, WithMetrics(m))

	reply := a.Process(context.Background(), "CA1", "list my projects")
	assert.Equal(t, providerFailureReply, reply)
	assert.Equal(t, 1, p.calls(), "auth failures are not retried")

	s := peek(t, sessions, "CA1")
	require.Len(t, s.History, 1, "no assistant turn after a provider failure")
	assert.Equal(t, session.RoleUser, s.History[0].Role)
}

// stallingProvider blocks until the caller gives up.
type stallingProvider struct{ calls atomic.Int32 }

func (p *stallingProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *stallingProvider) ModelID() string { return "stalling" }

func TestAssistant_ProviderWaitIsBounded(t *testing.T) {
	p := &stallingProvider{}
	sessions := session.NewMemoryStore()
	d := NewDispatcher(failingRepo{}, zerolog.Nop())
	a := NewAssistant(Config{Timeout: 50 * time.Millisecond}, sessions, p, d, zerolog.Nop())

	start := time.Now()
	reply := a.Process(context.Background(), "CA1", "what's the status of the Smith job")
	elapsed := time.Since(start)

	assert.Equal(t, providerFailureReply, reply)
	assert.Less(t, elapsed, time.Second, "the turn must not outlast its provider budget by much")
	assert.Equal(t, int32(1), p.calls.Load(), "a spent budget is not retried")

	s := peek(t, sessions, "CA1")
	require.Len(t, s.History, 1, "no assistant turn after a timeout")
	assert.Equal(t, session.RoleUser, s.History[0].Role)
}

func TestAssistant_RetriesTransientProviderError(t *testing.T) {
	p := &scriptedProvider{
		errs:    []error{jerrors.NewAPIError("openai", 503, "overloaded"), nil},
		replies: []string{`{"action":"unknown","response":"Hi there."}`},
	}
	a, _ := newAssistant(t, p, failingRepo{})

	assert.Equal(t, "Hi there.", a.Process(context.Background(), "CA1", "hello"))
	assert.Equal(t, 2, p.calls())
}

func TestAssistant_EmptyModelReply(t *testing.T) {
	p := &scriptedProvider{replies: []string{"   "}}
	a, _ := newAssistant(t, p, failingRepo{})
	assert.Equal(t, emptyModelReply, a.Process(context.Background(), "CA1", "hello"))
}

func TestAssistant_HistoryBounded(t *testing.T) {
	replies := make([]string, 12)
	for i := range replies {
		replies[i] = fmt.Sprintf(`{"action":"unknown","response":"reply %d"}`, i)
	}
	p := &scriptedProvider{replies: replies}
	a, sessions := newAssistant(t, p, failingRepo{})

	for i := 0; i < 12; i++ {
		a.Process(context.Background(), "CA1", fmt.Sprintf("utterance %d", i))
		assert.LessOrEqual(t, len(peek(t, sessions, "CA1").History), session.DefaultHistoryLimit)
	}
	s := peek(t, sessions, "CA1")
	assert.Equal(t, "reply 11", s.History[len(s.History)-1].Text)
	assert.Equal(t, "utterance 7", s.History[0].Text)
}

func TestAssistant_DefaultSessionKey(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"action":"unknown","response":"ok"}`}}
	a, sessions := newAssistant(t, p, failingRepo{})

	a.Process(context.Background(), "", "hello")
	peek(t, sessions, session.DefaultKey)
}

type memRecorder struct {
	mu    sync.Mutex
	turns []*store.VoiceTurn
}

func (r *memRecorder) RecordTurn(_ context.Context, t *store.VoiceTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
	return nil
}

func TestAssistant_RecordsTurns(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Plain words."}}
	rec := &memRecorder{}
	a, _ := newAssistant(t, p, failingRepo{}, WithTurnRecorder(rec))

	a.Process(context.Background(), "CA9", "")
	a.Process(context.Background(), "CA9", "hi")

	require.Len(t, rec.turns, 2)
	assert.Equal(t, string(OutcomeGreeting), rec.turns[0].Outcome)
	assert.Equal(t, string(OutcomeParseFailure), rec.turns[1].Outcome)
	assert.Equal(t, "Plain words.", rec.turns[1].Reply)
	assert.Equal(t, "CA9", rec.turns[1].SessionKey)
}

func TestSystemPrompt(t *testing.T) {
	out := systemPrompt("", map[string]string{"project_number": "2025-001", "client": "Smith"})
	assert.Contains(t, out, `Current context: {"client":"Smith","project_number":"2025-001"}`)

	custom := systemPrompt("Be brief.", nil)
	assert.Equal(t, "Be brief.\n\nCurrent context: {}", custom)
}
