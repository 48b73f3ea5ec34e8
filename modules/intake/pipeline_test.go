package intake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/notify"
)

type people struct {
	sam, alice, bob domain.User
}

func setup(t *testing.T) (*harness, people) {
	t.Helper()
	h, err := openHarness()
	require.NoError(t, err)
	t.Cleanup(h.close)
	var p people
	p.sam, err = h.addUser("sam", "sam@x.com", "+15550001", domain.RoleTeamMember)
	require.NoError(t, err)
	p.alice, err = h.addUser("alice", "a@x.com", "+15550002", domain.RoleTeamMember)
	require.NoError(t, err)
	p.bob, err = h.addUser("bob", "b@x.com", "", domain.RoleTeamMember)
	require.NoError(t, err)
	return h, p
}

const shipReportMessage = "Create task: Ship report by 2025-01-10, assign to a@x.com, high priority"

func TestIngestCreatesTaskFromMessage(t *testing.T) {
	h, p := setup(t)
	h.script.on(shipReportMessage, "```json\n"+
		`{"action":"create_task","title":"Ship report","dueDate":"2025-01-10","priority":"high","assignees":["a@x.com"]}`+
		"\n```")

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: shipReportMessage, Phone: "+15550001"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]

	assert.Equal(t, KindCreated, res.Kind)
	assert.Equal(t, intent.ActionCreateTask, res.Action)
	require.NotNil(t, res.Task)
	assert.Equal(t, "Ship report", res.Task.Title)
	assert.Equal(t, domain.PriorityHigh, res.Task.Priority)
	assert.Equal(t, "2025-01-10", domain.FormatDate(res.Task.DueDate, ""))
	assert.Equal(t, p.sam.ID, res.Task.CreatedBy)

	assignees, err := h.store.ListAssignees(context.Background(), res.Task.ID)
	require.NoError(t, err)
	require.Len(t, assignees, 1)
	assert.Equal(t, p.alice.ID, assignees[0].ID)

	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, notify.StatusSent, res.Deliveries[0].Status)
	assert.Equal(t, "+15550002", res.Deliveries[0].Phone)
	assert.Contains(t, res.Reply, `✅ Task created successfully: "Ship report"`)
	assert.Contains(t, res.Reply, "Due: 2025-01-10")
}

func TestIngestCreateWithUnknownAssigneeFallsBackToSender(t *testing.T) {
	h, p := setup(t)
	h.script.on("assign to ghost", `{"action":"create_task","title":"Ship report","assignees":["ghost@x.com"]}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "Ship report, assign to ghost", UserID: p.sam.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindCreated, results[0].Kind)

	assignees, err := h.store.ListAssignees(context.Background(), results[0].Task.ID)
	require.NoError(t, err)
	require.Len(t, assignees, 1)
	assert.Equal(t, p.sam.ID, assignees[0].ID)
	assert.Empty(t, results[0].Deliveries, "the sender is not notified of their own task")
}

func TestIngestAmbiguousUpdateMutatesNothing(t *testing.T) {
	h, p := setup(t)
	first, err := h.addTask("Ship report", p.sam, p.sam)
	require.NoError(t, err)
	second, err := h.addTask("Ship report appendix", p.sam, p.sam)
	require.NoError(t, err)
	h.script.on("Update task: Ship report to completed", `{"action":"update_status","title":"Ship report","status":"completed"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "Update task: Ship report to completed", Phone: "+15550001"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindAmbiguous, results[0].Kind)
	assert.Len(t, results[0].Candidates, 2)
	assert.True(t, strings.HasPrefix(results[0].Reply, "🤔 Multiple tasks found."))

	for _, id := range []string{first.ID, second.ID} {
		got, err := h.store.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
	}
}

func TestIngestUpdateStatusIsScopedToSender(t *testing.T) {
	h, p := setup(t)
	_, err := h.addTask("Quarterly audit", p.alice, p.alice)
	require.NoError(t, err)
	h.script.on("audit done", `{"action":"update_status","title":"audit","status":"completed"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "audit done", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindNotFound, results[0].Kind)
	assert.Equal(t, `❌ No task found with title "audit". Please check the task name.`, results[0].Reply)
}

func TestIngestCompletionNotifiesEveryAssignee(t *testing.T) {
	h, p := setup(t)
	task, err := h.addTask("Quarterly audit", p.alice, p.sam, p.alice)
	require.NoError(t, err)
	h.script.on("audit done", `{"action":"update_status","title":"audit","status":"completed"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "audit done", UserID: p.sam.ID})
	require.NoError(t, err)
	res := results[0]
	assert.Equal(t, KindUpdated, res.Kind)
	assert.Equal(t, `✅ Task "Quarterly audit" status updated from "pending" to "completed"`, res.Reply)
	assert.Len(t, res.Deliveries, 2, "completion includes the sender")

	got, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	h.script.on("audit progress", `{"action":"update_status","title":"audit","status":"in progress"}`)
	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "audit progress", UserID: p.sam.ID})
	require.NoError(t, err)
	require.Len(t, results[0].Deliveries, 1, "other updates skip the sender")
	assert.Equal(t, p.alice.ID, results[0].Deliveries[0].UserID)
}

func TestIngestStatusQueryAndUnchanged(t *testing.T) {
	h, p := setup(t)
	_, err := h.addTask("Quarterly audit", p.sam, p.sam)
	require.NoError(t, err)
	h.script.on("status of audit", `{"action":"update_status","title":"audit"}`)
	h.script.on("audit pending", `{"action":"update_status","title":"audit","status":"pending"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "status of audit", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindQuery, results[0].Kind)
	assert.Equal(t, `📋 Current status of "Quarterly audit": pending`, results[0].Reply)

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "audit pending", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindUnchanged, results[0].Kind)
	assert.Empty(t, results[0].Deliveries)
}

func TestIngestBlockedStatusNeedsBlocker(t *testing.T) {
	h, p := setup(t)
	_, err := h.addTask("Quarterly audit", p.sam, p.sam)
	require.NoError(t, err)
	h.script.on("audit blocked", `{"action":"update_status","title":"audit","status":"blocked"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "audit blocked", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindRejected, results[0].Kind)
	assert.Contains(t, results[0].Reply, "no open blockers")
}

func TestIngestReportBlockerSearchesAllTasks(t *testing.T) {
	h, p := setup(t)
	task, err := h.addTask("Vendor contract", p.alice, p.alice)
	require.NoError(t, err)
	h.script.on("contract stuck", `{"action":"report_blocker","title":"vendor","blockerReason":"legal review pending"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "contract stuck", UserID: p.sam.ID})
	require.NoError(t, err)
	res := results[0]
	assert.Equal(t, KindBlocked, res.Kind)
	require.NotNil(t, res.Blocker)
	assert.Equal(t, "legal review pending", res.Blocker.Description)
	assert.Equal(t, domain.BlockerOther, res.Blocker.Type)
	assert.Equal(t, domain.SeverityMedium, res.Blocker.Severity)
	assert.Equal(t, p.sam.ID, res.Blocker.ReportedBy)
	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, domain.EventBlocked, res.Deliveries[0].Kind)

	got, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, got.Status)
}

func TestIngestChangeDeadline(t *testing.T) {
	h, p := setup(t)
	task, err := h.addTask("Vendor contract", p.alice, p.alice)
	require.NoError(t, err)
	h.script.on("push contract", `{"action":"change_deadline","title":"contract","dueDate":"2025-02-01"}`)
	h.script.on("contract later", `{"action":"change_deadline","title":"contract"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "push contract", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindDeadlineUpdated, results[0].Kind)
	assert.Equal(t, `📅 Deadline for "Vendor contract" moved to 2025-02-01`, results[0].Reply)

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "contract later", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindUnchanged, results[0].Kind)

	got, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", domain.FormatDate(got.DueDate, ""))
}

func TestIngestReassign(t *testing.T) {
	h, p := setup(t)
	task, err := h.addTask("Vendor contract", p.sam, p.sam)
	require.NoError(t, err)
	h.script.on("give contract to alice", `{"action":"reassign","title":"contract","assignees":["A@x.com"]}`)
	h.script.on("give contract to nobody", `{"action":"reassign","title":"contract","assignees":["ghost@x.com"]}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "give contract to nobody", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindRejected, results[0].Kind)

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "give contract to alice", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindReassigned, results[0].Kind)
	assert.Contains(t, results[0].Reply, "alice")

	assignees, err := h.store.ListAssignees(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, assignees, 1)
	assert.Equal(t, p.alice.ID, assignees[0].ID)

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "give contract to alice", UserID: p.bob.ID})
	require.NoError(t, err)
	assert.Equal(t, KindUnauthorized, results[0].Kind, "bob neither created nor holds the task")
}

func TestIngestQuerySummary(t *testing.T) {
	h, p := setup(t)
	h.script.on("show my tasks", `{"action":"query_tasks"}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "show my tasks", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, "📋 You have no tasks assigned at the moment.", results[0].Reply)

	for _, title := range []string{"one", "two", "three", "four"} {
		_, err := h.addTask(title, p.sam, p.sam)
		require.NoError(t, err)
	}
	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "show my tasks", UserID: p.sam.ID})
	require.NoError(t, err)
	reply := results[0].Reply
	assert.Equal(t, KindQuery, results[0].Kind)
	assert.True(t, strings.HasPrefix(reply, "📋 Your Tasks Summary (Total: 4)"))
	assert.Contains(t, reply, "⏳ Pending (4):")
	assert.Equal(t, 3, strings.Count(reply, "• "))
}

func TestIngestUnknownSender(t *testing.T) {
	h, _ := setup(t)
	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "show my tasks", Phone: "+19999999"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindUnauthorized, results[0].Kind)
	assert.Contains(t, results[0].Reply, "You're not registered")
	assert.Zero(t, h.script.callCount(), "nothing is parsed for unknown senders")

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, KindUnauthorized, results[0].Kind)
}

func TestIngestDegradesToHelp(t *testing.T) {
	h, p := setup(t)
	h.script.on("gibberish", "I am not JSON at all")

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "gibberish", UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindHelp, results[0].Kind)
	assert.Equal(t, HelpText, results[0].Reply)
	assert.NotEmpty(t, results[0].Error)

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: strings.Repeat("x", 501), UserID: p.sam.ID})
	require.NoError(t, err)
	assert.Equal(t, KindRejected, results[0].Kind)
}

func TestIngestBulkUpload(t *testing.T) {
	h, p := setup(t)
	_, err := h.addTask("Vendor contract", p.sam, p.sam)
	require.NoError(t, err)
	h.script.on("weekly notes", `{"updates":[
		{"type":"new_task","taskTitle":"Draft newsletter","priority":"low"},
		{"type":"status_update","taskTitle":"Vendor contract","status":"in_progress"},
		{"type":"blocker","taskTitle":"Unknown thing","blockerReason":"x"}
	]}`)

	results, err := h.pipeline.Ingest(context.Background(), Request{Text: "weekly notes", UserID: p.sam.ID, Bulk: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, KindCreated, results[0].Kind)
	assert.Equal(t, KindUpdated, results[1].Kind)
	assert.Equal(t, KindNotFound, results[2].Kind)

	results, err = h.pipeline.Ingest(context.Background(), Request{Text: "nothing useful", UserID: p.sam.ID, Bulk: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindHelp, results[0].Kind)
}

func TestIngestReturnsStoreFailures(t *testing.T) {
	h, p := setup(t)
	require.NoError(t, h.store.Close())
	_, err := h.pipeline.Ingest(context.Background(), Request{Text: "show my tasks", UserID: p.sam.ID})
	assert.Error(t, err)
}
