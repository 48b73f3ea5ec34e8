package reminders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// Monday 2025-01-06 09:00 UTC.
var testNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s stubSummarizer) Summarize(context.Context, []domain.Task, string) (string, error) {
	return s.summary, s.err
}

func (s stubSummarizer) Suggest(context.Context, []domain.Task) (string, error) {
	return s.summary, s.err
}

type fixture struct {
	clock     *testClock
	store     *store.SQLStore
	tasks     *tasks.Service
	transport *notify.LogTransport
	sender    *notify.Dispatcher
	logger    *slog.Logger

	sam, alice, carol, dave domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		clock:  &testClock{t: testNow},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	st, err := store.Open(ctx, "sqlite", ":memory:", store.WithClock(f.clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	f.store = st
	f.transport = notify.NewLogTransport(f.logger)
	f.sender = notify.NewDispatcher(f.transport, f.logger)
	f.tasks = tasks.NewService(st, nil, f.logger, tasks.WithNotifier(f.sender), tasks.WithClock(f.clock.Now))

	user := func(name, phone string, active bool) domain.User {
		u, err := st.CreateUser(ctx, domain.User{Name: name, Email: name + "@x.com", Phone: phone, Active: active})
		require.NoError(t, err)
		return u
	}
	f.sam = user("sam", "+15550001", true)
	f.alice = user("alice", "+15550002", true)
	f.carol = user("carol", "+15550003", false)
	f.dave = user("dave", "", true)
	return f
}

func (f *fixture) jobs(s Summarizer) *Reminders {
	return New(f.tasks, f.sender, s, f.logger, Settings{})
}

func (f *fixture) task(t *testing.T, title string, due *time.Time, assignees ...domain.User) domain.Task {
	t.Helper()
	ids := make([]string, 0, len(assignees))
	for _, u := range assignees {
		ids = append(ids, u.ID)
	}
	d, err := f.tasks.CreateTask(context.Background(), f.sam.Actor(), tasks.NewTask{Title: title, DueDate: due, AssigneeIDs: ids})
	require.NoError(t, err)
	return d.Task
}

func (f *fixture) complete(t *testing.T, task domain.Task) {
	t.Helper()
	_, err := f.tasks.SetStatus(context.Background(), f.sam.Actor(), task.ID, domain.StatusCompleted)
	require.NoError(t, err)
}

func at(days int) *time.Time {
	d := testNow.AddDate(0, 0, days)
	return &d
}

func recipientsOf(rep JobReport) []string {
	out := make([]string, 0, len(rep.Deliveries))
	for _, d := range rep.Deliveries {
		out = append(out, d.UserID+"/"+string(d.Kind))
	}
	sort.Strings(out)
	return out
}

func TestOverdueSkipsUnreachableAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.task(t, "Late report", at(-1), f.alice, f.carol, f.dave)
	done := f.task(t, "Late but done", at(-2), f.alice)
	f.complete(t, done)
	f.task(t, "Not yet due", at(2), f.alice)

	jobs := f.jobs(nil)
	first, err := jobs.Overdue(context.Background())
	require.NoError(t, err)
	second, err := jobs.TriggerOverdue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{f.alice.ID + "/overdue"}, recipientsOf(first))
	assert.Equal(t, recipientsOf(first), recipientsOf(second))
	assert.Zero(t, first.Failed())

	sent := f.transport.Sent()
	require.Len(t, sent, 2)
	assert.True(t, strings.HasPrefix(sent[0].Text, "⚠️ Task Overdue"))
	assert.Contains(t, sent[0].Text, "Late report")
}

func TestUpcomingSendsOneMessagePerUser(t *testing.T) {
	f := newFixture(t)
	f.task(t, "Tomorrow", at(1), f.sam)
	f.task(t, "Day after", at(2), f.sam)
	f.task(t, "Next week", at(5), f.sam)
	done := f.task(t, "Done already", at(1), f.sam)
	f.complete(t, done)

	rep, err := f.jobs(nil).Upcoming(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	assert.Equal(t, f.sam.ID, rep.Deliveries[0].UserID)

	sent := f.transport.Sent()
	require.Len(t, sent, 1)
	text := sent[0].Text
	assert.True(t, strings.HasPrefix(text, "🌅 Good morning! You have 2 task(s) due in the next 3 days:"))
	assert.Less(t, strings.Index(text, "Tomorrow"), strings.Index(text, "Day after"))
	assert.NotContains(t, text, "Next week")
	assert.True(t, strings.HasSuffix(text, "Have a productive day! 💪"))
}

func TestTriggerUpcoming(t *testing.T) {
	f := newFixture(t)
	f.task(t, "Tomorrow", at(1), f.sam)
	f.task(t, "Next week", at(5), f.sam)
	jobs := f.jobs(nil)

	rep, err := jobs.TriggerUpcoming(context.Background(), f.sam.ID, 0)
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	sent := f.transport.Sent()
	assert.True(t, strings.HasPrefix(sent[0].Text, "📅 Upcoming Tasks (Next 7 days):"))
	assert.Contains(t, sent[0].Text, "🔥 Priority: medium")

	rep, err = jobs.TriggerUpcoming(context.Background(), f.alice.ID, 3)
	require.NoError(t, err)
	assert.Empty(t, rep.Deliveries)

	_, err = jobs.TriggerUpcoming(context.Background(), f.dave.ID, 3)
	assert.ErrorIs(t, err, ErrNoPhone)
	_, err = jobs.TriggerUpcoming(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWeeklySummaryDegradesToStats(t *testing.T) {
	f := newFixture(t)
	f.task(t, "One", nil, f.sam)
	done := f.task(t, "Two", nil, f.sam)
	f.complete(t, done)

	stats := "📊 Weekly Stats:\n• Total: 2\n• Completed: 1 (50%)\n• In Progress: 0\n• Pending: 1\n• Blocked: 0"

	rep, err := f.jobs(stubSummarizer{err: errors.New("model down")}).WeeklySummary(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	assert.Empty(t, rep.Errors)
	assert.Equal(t, stats, f.transport.Sent()[0].Text)

	rep, err = f.jobs(stubSummarizer{summary: "A steady week."}).TriggerWeeklySummary(context.Background(), f.sam.ID)
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	assert.Equal(t, stats+"\n\nA steady week.", f.transport.Sent()[1].Text)
}

func TestBlockedCheckEscalatesAfterThreeDays(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "Vendor contract", nil, f.alice, f.dave)
	_, err := f.tasks.CreateBlocker(context.Background(), tasks.NewBlocker{
		TaskID: task.ID, ReportedBy: f.sam.ID, Description: "legal", Type: "other", Severity: "high",
	})
	require.NoError(t, err)
	jobs := f.jobs(nil)

	f.clock.Advance(2 * 24 * time.Hour)
	rep, err := jobs.BlockedCheck(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Deliveries)

	f.clock.Advance(2*24*time.Hour + time.Hour)
	rep, err = jobs.BlockedCheck(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	assert.Equal(t, f.alice.ID, rep.Deliveries[0].UserID)
	assert.Equal(t,
		"🚨 Attention Required!\n\n📋 \"Vendor contract\" has been blocked for 4 days.\n\nPlease review the blockers and take action to unblock this task.",
		f.transport.Sent()[0].Text)
}

func TestDailySummaryCountsToday(t *testing.T) {
	f := newFixture(t)
	f.task(t, "Old", nil, f.sam)
	f.clock.Advance(24 * time.Hour)
	done := f.task(t, "Finished today", nil, f.sam)
	f.complete(t, done)
	f.task(t, "Started today", nil, f.sam)
	f.clock.Advance(9 * time.Hour)

	rep, err := f.jobs(nil).DailySummary(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	assert.Equal(t,
		"🌅 Daily Summary\n\n✅ Completed today: 1\n📋 Active tasks: 1\n\nGreat progress today! 🎉\n\nSee you tomorrow!",
		f.transport.Sent()[0].Text)
}

func TestMonthlyOptimization(t *testing.T) {
	f := newFixture(t)
	f.task(t, "One", nil, f.sam)

	rep, err := f.jobs(nil).MonthlyOptimization(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Deliveries)

	rep, err = f.jobs(stubSummarizer{err: errors.New("model down")}).MonthlyOptimization(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Deliveries)
	assert.Len(t, rep.Errors, 1)

	rep, err = f.jobs(stubSummarizer{summary: "Batch small tasks."}).MonthlyOptimization(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Deliveries, 1)
	assert.Equal(t, "🚀 Monthly Productivity Insights\n\nBatch small tasks.\n\nKeep optimizing your workflow! 📈", f.transport.Sent()[0].Text)
}

func TestJobsReturnStoreFailures(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())
	jobs := f.jobs(nil)
	for _, run := range []JobFunc{jobs.Overdue, jobs.Upcoming, jobs.WeeklySummary, jobs.BlockedCheck, jobs.DailySummary} {
		_, err := run(context.Background())
		assert.Error(t, err)
	}
}
