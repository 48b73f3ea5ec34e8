package rules

import (
	"testing"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func at(days int) *time.Time {
	t := now.AddDate(0, 0, days)
	return &t
}

func TestBlockerCreationAlwaysBlocks(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted, domain.StatusBlocked} {
		c := BlockerCreation(domain.Task{Status: s})
		assert.Equal(t, domain.StatusBlocked, c.To)
		assert.Equal(t, s != domain.StatusBlocked, c.Changed)
	}
}

func TestBlockerResolution(t *testing.T) {
	blocked := domain.Task{Status: domain.StatusBlocked}

	c := BlockerResolution(blocked, 0)
	assert.True(t, c.Changed)
	assert.Equal(t, domain.StatusPending, c.To)

	c = BlockerResolution(blocked, 1)
	assert.False(t, c.Changed)
	assert.Equal(t, domain.StatusBlocked, c.To)

	// a task someone already moved on stays where it is
	c = BlockerResolution(domain.Task{Status: domain.StatusInProgress}, 0)
	assert.False(t, c.Changed)
	assert.Equal(t, domain.StatusInProgress, c.To)
}

func TestReconcile(t *testing.T) {
	assert.Equal(t, domain.StatusBlocked, Reconcile(domain.Task{Status: domain.StatusCompleted}, 2).To)
	assert.Equal(t, domain.StatusPending, Reconcile(domain.Task{Status: domain.StatusBlocked}, 0).To)
	assert.Equal(t, domain.StatusInProgress, Reconcile(domain.Task{Status: domain.StatusInProgress}, 0).To)
}

func TestStatusUpdate(t *testing.T) {
	task := domain.Task{Status: domain.StatusPending}

	_, err := StatusUpdate(task, domain.StatusBlocked, 0, false)
	assert.ErrorIs(t, err, domain.ErrNoOpenBlockers)

	_, err = StatusUpdate(task, domain.StatusBlocked, 0, true)
	assert.ErrorIs(t, err, domain.ErrNoOpenBlockers)

	blocked := domain.Task{Status: domain.StatusBlocked}
	_, err = StatusUpdate(blocked, domain.StatusCompleted, 1, false)
	assert.ErrorIs(t, err, domain.ErrTaskBlocked)

	c, err := StatusUpdate(blocked, domain.StatusCompleted, 1, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, c.To)

	c, err = StatusUpdate(task, domain.StatusInProgress, 0, false)
	require.NoError(t, err)
	assert.True(t, c.Changed)

	c, err = StatusUpdate(task, domain.StatusPending, 0, false)
	require.NoError(t, err)
	assert.False(t, c.Changed)

	_, err = StatusUpdate(task, "done", 0, false)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestValidateDependency(t *testing.T) {
	existing := []domain.Dependency{{TaskID: "a", BlockedByTaskID: "b"}}

	assert.ErrorIs(t, ValidateDependency("b", "a", existing), domain.ErrCircularDependency)
	assert.ErrorIs(t, ValidateDependency("a", "b", existing), domain.ErrDuplicateDependency)
	assert.ErrorIs(t, ValidateDependency("a", "a", nil), domain.ErrSelfDependency)
	assert.NoError(t, ValidateDependency("a", "c", existing))

	// only the direct mirror is caught; a -> b -> c -> a is allowed
	chain := []domain.Dependency{{TaskID: "a", BlockedByTaskID: "b"}, {TaskID: "b", BlockedByTaskID: "c"}}
	assert.NoError(t, ValidateDependency("c", "a", chain))
}

func TestCascadeDelete(t *testing.T) {
	plan := CascadeDelete("t1",
		[]domain.Assignment{{ID: "as1", TaskID: "t1"}, {ID: "as2", TaskID: "t2"}},
		[]domain.Blocker{{ID: "b1", TaskID: "t1"}, {ID: "b2", TaskID: "t3"}},
		[]domain.Dependency{
			{ID: "d1", TaskID: "t1", BlockedByTaskID: "t2"},
			{ID: "d2", TaskID: "t3", BlockedByTaskID: "t1"},
			{ID: "d3", TaskID: "t2", BlockedByTaskID: "t3"},
		},
	)
	assert.Equal(t, []string{"as1"}, plan.AssignmentIDs)
	assert.Equal(t, []string{"b1"}, plan.BlockerIDs)
	assert.Equal(t, []string{"d1", "d2"}, plan.DependencyIDs)
}

func TestPermissions(t *testing.T) {
	task := domain.Task{CreatedBy: "creator"}
	admin := domain.Actor{ID: "boss", Role: domain.RoleAdmin}
	creator := domain.Actor{ID: "creator", Role: domain.RoleTeamMember}
	member := domain.Actor{ID: "m", Role: domain.RoleTeamMember}

	assert.True(t, CanMutateTask(task, admin, false))
	assert.True(t, CanMutateTask(task, creator, false))
	assert.True(t, CanMutateTask(task, member, true))
	assert.False(t, CanMutateTask(task, member, false))

	assert.True(t, CanDeleteTask(task, admin))
	assert.True(t, CanDeleteTask(task, creator))
	assert.False(t, CanDeleteTask(task, member))
}

func TestRecipients(t *testing.T) {
	users := []domain.User{
		{ID: "actor", Phone: "+1", Active: true},
		{ID: "u2", Phone: "+2", Active: true},
		{ID: "u3", Active: true},
		{ID: "u4", Phone: "+4"},
		{ID: "u2", Phone: "+2", Active: true},
	}

	got := Recipients(users, "actor", domain.EventUpdated)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].ID)

	got = Recipients(users, "actor", domain.EventCompleted)
	require.Len(t, got, 2)
	assert.Equal(t, "actor", got[0].ID)
}

func TestNotificationKind(t *testing.T) {
	assert.Equal(t, domain.EventCompleted, NotificationKind(domain.StatusCompleted))
	assert.Equal(t, domain.EventBlocked, NotificationKind(domain.StatusBlocked))
	assert.Equal(t, domain.EventUpdated, NotificationKind(domain.StatusInProgress))
}

func TestTimeRules(t *testing.T) {
	overdue := domain.Task{DueDate: at(-1), Status: domain.StatusPending}
	done := domain.Task{DueDate: at(-1), Status: domain.StatusCompleted}
	soon := domain.Task{DueDate: at(2), Status: domain.StatusInProgress}
	later := domain.Task{DueDate: at(5), Status: domain.StatusPending}

	assert.True(t, IsOverdue(overdue, now))
	assert.False(t, IsOverdue(done, now))
	assert.False(t, IsOverdue(domain.Task{Status: domain.StatusPending}, now))

	window := 3 * 24 * time.Hour
	assert.True(t, DueWithin(soon, now, window))
	assert.False(t, DueWithin(later, now, window))
	assert.False(t, DueWithin(overdue, now, window))

	stuck := domain.Task{Status: domain.StatusBlocked, UpdatedAt: now.Add(-73 * time.Hour)}
	assert.Equal(t, 3, BlockedDays(stuck, now))
	assert.True(t, NeedsEscalation(stuck, now, 3))

	fresh := domain.Task{Status: domain.StatusBlocked, UpdatedAt: now.Add(-71 * time.Hour)}
	assert.Equal(t, 2, BlockedDays(fresh, now))
	assert.False(t, NeedsEscalation(fresh, now, 3))
}

func TestStats(t *testing.T) {
	tasks := []domain.Task{
		{Status: domain.StatusCompleted},
		{Status: domain.StatusCompleted},
		{Status: domain.StatusPending, DueDate: at(-2)},
		{Status: domain.StatusBlocked},
		{Status: domain.StatusInProgress},
		{Status: domain.StatusInProgress},
	}
	s := Stats(tasks, now)
	assert.Equal(t, domain.TaskStats{Total: 6, Pending: 1, InProgress: 2, Completed: 2, Blocked: 1, Overdue: 1, CompletionRate: 33}, s)
	assert.Equal(t, 0, Stats(nil, now).CompletionRate)
}

func TestMatchTitle(t *testing.T) {
	tasks := []domain.Task{{ID: "1", Title: "Ship report"}, {ID: "2", Title: "Review REPORT draft"}, {ID: "3", Title: "Deploy"}}
	assert.Len(t, MatchTitle(tasks, "report"), 2)
	assert.Len(t, MatchTitle(tasks, "  deploy "), 1)
	assert.Empty(t, MatchTitle(tasks, ""))
}

func TestSortByDue(t *testing.T) {
	tasks := []domain.Task{{ID: "none"}, {ID: "late", DueDate: at(4)}, {ID: "early", DueDate: at(1)}}
	SortByDue(tasks)
	assert.Equal(t, "early", tasks[0].ID)
	assert.Equal(t, "late", tasks[1].ID)
	assert.Equal(t, "none", tasks[2].ID)
}
