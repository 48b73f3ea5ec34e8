package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

var testNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ map[string]any) {
	p.mu.Lock()
	p.types = append(p.types, eventType)
	p.mu.Unlock()
}

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
	kinds []domain.EventKind
}

func (n *recordingNotifier) NotifyAll(_ context.Context, recipients []domain.User, _ domain.Task, kind domain.EventKind) []notify.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(recipients))
	out := make([]notify.Delivery, 0, len(recipients))
	for _, u := range recipients {
		ids = append(ids, u.ID)
		out = append(out, notify.Delivery{UserID: u.ID, Phone: u.Phone, Kind: kind, Status: notify.StatusSent})
	}
	n.calls = append(n.calls, ids)
	n.kinds = append(n.kinds, kind)
	return out
}

type fixture struct {
	svc      *Service
	store    *store.SQLStore
	events   *recordingPublisher
	notifier *recordingNotifier
	admin    domain.User
	alice    domain.User
	bob      domain.User
}

func newFixture(t require.TestingT) (*fixture, func()) {
	ctx := context.Background()
	clock := func() time.Time { return testNow }
	st, err := store.Open(ctx, "sqlite", ":memory:", store.WithClock(clock))
	require.NoError(t, err)

	f := &fixture{store: st, events: &recordingPublisher{}, notifier: &recordingNotifier{}}
	f.admin, err = st.CreateUser(ctx, domain.User{Name: "Admin", Email: "admin@x.com", Phone: "+100", Role: domain.RoleAdmin, Active: true})
	require.NoError(t, err)
	f.alice, err = st.CreateUser(ctx, domain.User{Name: "Alice", Email: "a@x.com", Phone: "+101", Active: true})
	require.NoError(t, err)
	f.bob, err = st.CreateUser(ctx, domain.User{Name: "Bob", Email: "b@x.com", Phone: "+102", Active: true})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(st, store.NewMemoryLocker(), logger,
		WithPublisher(f.events),
		WithNotifier(f.notifier),
		WithClock(clock),
		WithPageSize(2, 10),
	)
	return f, func() { _ = st.Close() }
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f, cleanup := newFixture(t)
	t.Cleanup(cleanup)
	return f
}

func (f *fixture) task(t require.TestingT, actor domain.User, title string, assignees ...string) domain.Task {
	d, err := f.svc.CreateTask(context.Background(), actor.Actor(), NewTask{Title: title, AssigneeIDs: assignees})
	require.NoError(t, err)
	return d.Task
}

func TestCreateTaskResolvesAssigneeEmails(t *testing.T) {
	f := setup(t)
	due := testNow.Add(48 * time.Hour)
	d, err := f.svc.CreateTask(context.Background(), f.admin.Actor(), NewTask{
		Title:          "  Ship report ",
		DueDate:        &due,
		Priority:       "high",
		Tags:           []string{"Ops", "ops"},
		AssigneeEmails: []string{"A@x.com", "ghost@x.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Ship report", d.Title)
	assert.Equal(t, domain.StatusPending, d.Status)
	assert.Equal(t, domain.PriorityHigh, d.Priority)
	assert.Equal(t, []string{"ops"}, d.Tags)
	require.Len(t, d.Assignees, 1)
	assert.Equal(t, f.alice.ID, d.Assignees[0].ID)

	stored, err := f.store.ListAssignees(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Contains(t, f.events.seen(), events.TaskCreated)
}

func TestCreateTaskAssignsActorWhenNoneResolved(t *testing.T) {
	f := setup(t)
	d, err := f.svc.CreateTask(context.Background(), f.bob.Actor(), NewTask{
		Title:          "Call vendor",
		AssigneeEmails: []string{"nobody@x.com"},
	})
	require.NoError(t, err)
	require.Len(t, d.Assignees, 1)
	assert.Equal(t, f.bob.ID, d.Assignees[0].ID)
	assert.Equal(t, domain.PriorityMedium, d.Priority)
}

func TestCreateTaskRejectsInvalidInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateTask(ctx, f.admin.Actor(), NewTask{Title: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	_, err = f.svc.CreateTask(ctx, f.admin.Actor(), NewTask{Title: "x", Priority: "critical"})
	assert.ErrorIs(t, err, domain.ErrInvalidPriority)

	_, err = f.svc.CreateTask(ctx, f.admin.Actor(), NewTask{Title: "x", AssigneeIDs: []string{"missing"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := f.store.CountTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "failed creates must not leave tasks behind")
}

func TestBlockerLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.task(t, f.admin, "Deploy", f.alice.ID)

	first, err := f.svc.CreateBlocker(ctx, NewBlocker{TaskID: task.ID, ReportedBy: f.alice.ID, Description: "waiting on creds"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, first.Task.Status)
	assert.True(t, first.Change.Changed)
	assert.Equal(t, domain.BlockerOther, first.Blocker.Type)
	assert.Equal(t, domain.SeverityMedium, first.Blocker.Severity)

	second, err := f.svc.CreateBlocker(ctx, NewBlocker{TaskID: task.ID, ReportedBy: f.alice.ID, Description: "vpn down", Severity: "high"})
	require.NoError(t, err)
	assert.False(t, second.Change.Changed)

	res, err := f.svc.ResolveBlocker(ctx, f.bob.Actor(), first.Blocker.ID, "got them")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, res.Task.Status, "one blocker still open")
	assert.Equal(t, f.bob.ID, res.Blocker.ResolvedBy)
	require.NotNil(t, res.Blocker.ResolvedAt)
	assert.Equal(t, "got them", res.Blocker.Resolution)

	res, err = f.svc.ResolveBlocker(ctx, f.alice.Actor(), second.Blocker.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Task.Status)

	open := string(domain.BlockerOpen)
	res, err = f.svc.UpdateBlocker(ctx, f.alice.Actor(), second.Blocker.ID, BlockerUpdate{Status: &open})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, res.Task.Status, "reopening blocks again")
	assert.Empty(t, res.Blocker.ResolvedBy)
	assert.Nil(t, res.Blocker.ResolvedAt)

	_, err = f.svc.DeleteBlocker(ctx, f.bob.Actor(), second.Blocker.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, err = f.svc.DeleteBlocker(ctx, f.alice.Actor(), second.Blocker.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Task.Status)

	assert.Subset(t, f.events.seen(), []string{events.BlockerCreated, events.BlockerUpdated, events.BlockerDeleted, events.TaskStatusChanged})
}

func TestCreateBlockerValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.task(t, f.admin, "Deploy")

	_, err := f.svc.CreateBlocker(ctx, NewBlocker{TaskID: task.ID, Description: ""})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateBlocker(ctx, NewBlocker{TaskID: "missing", Description: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CreateBlocker(ctx, NewBlocker{TaskID: task.ID, Description: "x", Severity: "extreme"})
	assert.ErrorIs(t, err, domain.ErrInvalidSeverity)
}

func TestConcurrentBlockerResolution(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.task(t, f.admin, "Migrate")

	const n = 8
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res, err := f.svc.CreateBlocker(ctx, NewBlocker{TaskID: task.ID, ReportedBy: f.admin.ID, Description: fmt.Sprintf("b%d", i)})
		require.NoError(t, err)
		ids = append(ids, res.Blocker.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.ResolveBlocker(ctx, f.admin.Actor(), id, "")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestUpdateTaskStatusRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.task(t, f.admin, "Audit", f.alice.ID)

	_, err := f.svc.SetStatus(ctx, f.alice.Actor(), task.ID, domain.StatusBlocked)
	assert.ErrorIs(t, err, domain.ErrNoOpenBlockers)

	res, err := f.svc.SetStatus(ctx, f.alice.Actor(), task.ID, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Change.From)
	assert.Equal(t, domain.StatusInProgress, res.Task.Status)

	_, err = f.svc.CreateBlocker(ctx, NewBlocker{TaskID: task.ID, ReportedBy: f.alice.ID, Description: "stuck"})
	require.NoError(t, err)

	completed := string(domain.StatusCompleted)
	_, err = f.svc.UpdateTask(ctx, f.alice.Actor(), task.ID, TaskUpdate{Status: &completed, Override: true})
	assert.ErrorIs(t, err, domain.ErrTaskBlocked, "override is admin only")

	res, err = f.svc.UpdateTask(ctx, f.admin.Actor(), task.ID, TaskUpdate{Status: &completed, Override: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Task.Status)

	bogus := "done"
	_, err = f.svc.UpdateTask(ctx, f.admin.Actor(), task.ID, TaskUpdate{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestUpdateTaskFieldsAndPermissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.task(t, f.admin, "Audit", f.alice.ID)

	title := "Audit Q1"
	_, err := f.svc.UpdateTask(ctx, f.bob.Actor(), task.ID, TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	hours := 3.5
	project := "finance"
	assignees := []string{f.bob.ID}
	res, err := f.svc.UpdateTask(ctx, f.alice.Actor(), task.ID, TaskUpdate{
		Title:       &title,
		Project:     &project,
		ActualHours: &hours,
		AssigneeIDs: &assignees,
	})
	require.NoError(t, err)
	assert.Equal(t, "Audit Q1", res.Task.Title)
	assert.Equal(t, "finance", res.Task.Project)
	assert.InDelta(t, 3.5, res.Task.ActualHours, 0.001)
	assert.True(t, res.AssigneesChanged)

	users, err := f.store.ListAssignees(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, f.bob.ID, users[0].ID)

	_, err = f.svc.UpdateTask(ctx, f.alice.Actor(), task.ID, TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, domain.ErrForbidden, "alice was unassigned")
}

func TestDeleteTaskCascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.task(t, f.alice, "A", f.alice.ID, f.bob.ID)
	b := f.task(t, f.alice, "B")
	c := f.task(t, f.alice, "C")

	_, err := f.svc.CreateBlocker(ctx, NewBlocker{TaskID: a.ID, ReportedBy: f.bob.ID, Description: "x"})
	require.NoError(t, err)
	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: a.ID, BlockedByTaskID: b.ID})
	require.NoError(t, err)
	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: c.ID, BlockedByTaskID: a.ID})
	require.NoError(t, err)
	keep, err := f.svc.CreateDependency(ctx, NewDependency{TaskID: c.ID, BlockedByTaskID: b.ID})
	require.NoError(t, err)

	_, err = f.svc.DeleteTask(ctx, f.bob.Actor(), a.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden, "assignees cannot delete")

	plan, err := f.svc.DeleteTask(ctx, f.alice.Actor(), a.ID)
	require.NoError(t, err)
	assert.Len(t, plan.AssignmentIDs, 2)
	assert.Len(t, plan.BlockerIDs, 1)
	assert.Len(t, plan.DependencyIDs, 2)

	_, err = f.svc.GetTask(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	blockers, err := f.store.FindBlockers(ctx, store.BlockerFilter{TaskID: a.ID})
	require.NoError(t, err)
	assert.Empty(t, blockers)
	deps, err := f.store.FindDependencies(ctx, store.DependencyFilter{})
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, keep.ID, deps[0].ID)
}

func TestDependencyValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.task(t, f.admin, "A")
	b := f.task(t, f.admin, "B")

	_, err := f.svc.CreateDependency(ctx, NewDependency{TaskID: a.ID, BlockedByTaskID: a.ID})
	assert.ErrorIs(t, err, domain.ErrSelfDependency)

	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: a.ID, BlockedByTaskID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	dep, err := f.svc.CreateDependency(ctx, NewDependency{TaskID: a.ID, BlockedByTaskID: b.ID, CreatedBy: f.admin.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.FinishToStart, dep.Type)

	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: a.ID, BlockedByTaskID: b.ID})
	assert.ErrorIs(t, err, domain.ErrDuplicateDependency)

	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: b.ID, BlockedByTaskID: a.ID})
	assert.ErrorIs(t, err, domain.ErrCircularDependency)
	assert.ErrorIs(t, err, domain.ErrRejected)

	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: b.ID, BlockedByTaskID: a.ID, Type: "sideways"})
	assert.ErrorIs(t, err, domain.ErrInvalidDependencyType)

	assert.ErrorIs(t, f.svc.DeleteDependency(ctx, f.bob.Actor(), dep.ID), domain.ErrForbidden)
	require.NoError(t, f.svc.DeleteDependency(ctx, f.admin.Actor(), dep.ID))
	_, err = f.svc.CreateDependency(ctx, NewDependency{TaskID: b.ID, BlockedByTaskID: a.ID})
	assert.NoError(t, err, "mirror is allowed once the original link is gone")
}

func TestResolveTitle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.task(t, f.admin, "Review documents", f.alice.ID)
	f.task(t, f.admin, "Review budget", f.alice.ID)
	f.task(t, f.admin, "Review hiring plan", f.bob.ID)

	_, err := f.svc.ResolveTitle(ctx, "review", f.alice.ID)
	var amb *domain.AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)

	got, err := f.svc.ResolveTitle(ctx, "BUDGET", f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review budget", got.Title)

	_, err = f.svc.ResolveTitle(ctx, "hiring", f.alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "scoped to alice's tasks")

	got, err = f.svc.ResolveTitle(ctx, "hiring", "")
	require.NoError(t, err)
	assert.Equal(t, "Review hiring plan", got.Title)

	found, err := f.svc.FindByTitle(ctx, "  ", "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindByTitleNonASCII(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.task(t, f.admin, "ÜBERPRÜFUNG Budget", f.alice.ID)
	f.task(t, f.admin, "Überprüfung Vertrag", f.bob.ID)

	found, err := f.svc.FindByTitle(ctx, "überprüfung", f.alice.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ÜBERPRÜFUNG Budget", found[0].Title)

	found, err = f.svc.FindByTitle(ctx, "ÜBERPRÜFUNG", "")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	got, err := f.svc.ResolveTitle(ctx, "überprüfung budget", "")
	require.NoError(t, err)
	assert.Equal(t, "ÜBERPRÜFUNG Budget", got.Title)
}

func TestListTasksScopesAndPaginates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.task(t, f.admin, fmt.Sprintf("alice %d", i), f.alice.ID)
	}
	f.task(t, f.admin, "bob only", f.bob.ID)

	page, err := f.svc.ListTasks(ctx, f.alice.Actor(), store.TaskFilter{}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 3, Pages: 2}, page.Pagination)
	assert.Len(t, page.Tasks, 2)

	page, err = f.svc.ListTasks(ctx, f.alice.Actor(), store.TaskFilter{AssigneeID: f.bob.ID}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pagination.Total, "non-admin filter is forced to self")
	assert.Len(t, page.Tasks, 1)

	page, err = f.svc.ListTasks(ctx, f.admin.Actor(), store.TaskFilter{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, page.Pagination.Limit)
	assert.Equal(t, 4, page.Pagination.Total)
	for _, d := range page.Tasks {
		assert.NotEmpty(t, d.Assignees)
	}
}

func TestGetTaskDetailPermissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.task(t, f.admin, "A", f.alice.ID)

	_, err := f.svc.GetTaskDetail(ctx, f.bob.Actor(), a.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	d, err := f.svc.GetTaskDetail(ctx, f.alice.Actor(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", d.Title)
	assert.Len(t, d.Assignees, 1)
}

func TestUpcomingOverdueAndStats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := func(d time.Duration) *time.Time { v := testNow.Add(d); return &v }

	for _, nt := range []NewTask{
		{Title: "later", DueDate: in(5 * 24 * time.Hour)},
		{Title: "soon", DueDate: in(24 * time.Hour)},
		{Title: "far", DueDate: in(30 * 24 * time.Hour)},
		{Title: "late", DueDate: in(-24 * time.Hour)},
		{Title: "undated"},
	} {
		nt.AssigneeIDs = []string{f.alice.ID}
		_, err := f.svc.CreateTask(ctx, f.admin.Actor(), nt)
		require.NoError(t, err)
	}

	upcoming, err := f.svc.UpcomingTasks(ctx, f.alice.ID, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "soon", upcoming[0].Title)
	assert.Equal(t, "later", upcoming[1].Title)

	overdue, err := f.svc.OverdueTasks(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "late", overdue[0].Title)
	assert.Len(t, overdue[0].Assignees, 1)

	stats, err := f.svc.Stats(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 1, stats.Overdue)

	stats, err = f.svc.Stats(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestNotifyAssigneesSkipsActorExceptOnCompletion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.task(t, f.admin, "Ship", f.alice.ID, f.bob.ID)

	deliveries, err := f.svc.NotifyAssignees(ctx, task, domain.EventUpdated, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, f.bob.ID, deliveries[0].UserID)

	deliveries, err = f.svc.NotifyAssignees(ctx, task, domain.EventCompleted, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)

	assert.Equal(t, []domain.EventKind{domain.EventUpdated, domain.EventCompleted}, f.notifier.kinds)
}

func TestNotifyWithoutNotifier(t *testing.T) {
	f := setup(t)
	f.svc.notifier = nil
	task := f.task(t, f.admin, "Ship", f.alice.ID)
	deliveries, err := f.svc.NotifyAssignees(context.Background(), task, domain.EventCreated, "")
	require.NoError(t, err)
	assert.Nil(t, deliveries)
}

func TestSetDueDate(t *testing.T) {
	f := setup(t)
	task := f.task(t, f.admin, "Ship")
	due := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	got, err := f.svc.SetDueDate(context.Background(), f.bob.ID, task.ID, &due)
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
}
