package intake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// HelpText is sent for Help results.
const HelpText = "🤖 WhatsApp Task Manager Help\n\n" +
	"📝 Create Tasks:\n\"Create task: Review documents by Friday, assign to john@company.com, high priority\"\n\n" +
	"📊 Update Status:\n\"Update task: Review documents to completed\"\n\"Task status: [task name] in progress\"\n\n" +
	"📋 View Tasks:\n\"Show my tasks\"\n\"List pending tasks\"\n\n" +
	"🆘 Get Help:\n\"Help\" or \"?\"\n\n" +
	"💡 Tips:\n• Be specific with task names\n• Use email addresses for assignments\n• Include deadlines when possible\n• Mention priority (low, medium, high, urgent)"

const (
	replyUnregistered    = "❌ You're not registered in the system. Please contact your admin to add your phone number to your account."
	replyCreateFailed    = "❌ I couldn't create the task. Please check the format and try again."
	replyWhichTask       = "❌ Please specify which task you want to update."
	replyNoAssignees     = "❌ None of those people are registered. Use the email addresses they signed up with."
	replyNothingInUpload = "❌ I couldn't find any task updates in that text."
	replyNoTasks         = "📋 You have no tasks assigned at the moment."
	replyTooLong         = "❌ That message is too long. Please split it up."
	defaultBlockerReason = "Reported via message"
)

func createdReply(t domain.Task) string {
	return fmt.Sprintf("✅ Task created successfully: %q\n\nDue: %s\nPriority: %s\nStatus: %s",
		t.Title, domain.FormatDate(t.DueDate, "Not set"), t.Priority, t.Status)
}

func notFoundReply(title string) string {
	return fmt.Sprintf("❌ No task found with title %q. Please check the task name.", title)
}

func forbiddenReply(title string) string {
	return fmt.Sprintf("❌ You're not allowed to change %q.", title)
}

func ambiguousReply(candidates []domain.Task) string {
	var b strings.Builder
	b.WriteString("🤔 Multiple tasks found. Please be more specific:\n\n")
	for i, t := range candidates {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, t.Title, t.Status)
	}
	return b.String()
}

func currentStatusReply(t domain.Task) string {
	return fmt.Sprintf("📋 Current status of %q: %s", t.Title, t.Status)
}

func alreadyStatusReply(t domain.Task) string {
	return fmt.Sprintf("📋 Task %q is already %q", t.Title, t.Status)
}

func statusUpdatedReply(t domain.Task, from domain.Status) string {
	return fmt.Sprintf("✅ Task %q status updated from %q to %q", t.Title, from, t.Status)
}

func statusRejectedReply(t domain.Task, target domain.Status, err error) string {
	switch {
	case errors.Is(err, domain.ErrTaskBlocked):
		return fmt.Sprintf("🚫 %q still has open blockers. Resolve them before moving it to %q.", t.Title, target)
	case errors.Is(err, domain.ErrNoOpenBlockers):
		return fmt.Sprintf("❌ %q has no open blockers. Report a blocker instead of setting it to blocked.", t.Title)
	default:
		return ""
	}
}

func reassignedReply(t domain.Task, users []domain.User) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return fmt.Sprintf("👥 %q is now assigned to %s", t.Title, strings.Join(names, ", "))
}

func blockedReply(t domain.Task, b domain.Blocker) string {
	return fmt.Sprintf("🚫 Blocker reported on %q: %s\n\nThe task is now blocked.", t.Title, b.Description)
}

func noDeadlineReply(t domain.Task) string {
	return fmt.Sprintf("📅 No new deadline given for %q, nothing changed.", t.Title)
}

func deadlineReply(t domain.Task) string {
	return fmt.Sprintf("📅 Deadline for %q moved to %s", t.Title, domain.FormatDate(t.DueDate, "Not set"))
}

// SummaryReply groups tasks by status: up to three pending, in progress
// and blocked tasks and the two most recent completions.
func SummaryReply(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return replyNoTasks
	}
	by := make(map[domain.Status][]domain.Task, 4)
	for _, t := range tasks {
		by[t.Status] = append(by[t.Status], t)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Your Tasks Summary (Total: %d)\n\n", len(tasks))
	section := func(header string, list []domain.Task, limit int, withDue bool) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d):\n", header, len(list))
		if len(list) > limit {
			list = list[:limit]
		}
		for _, t := range list {
			b.WriteString("• " + t.Title)
			if withDue && t.DueDate != nil {
				fmt.Fprintf(&b, " (Due: %s)", domain.FormatDate(t.DueDate, ""))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	section("⏳ Pending", by[domain.StatusPending], 3, true)
	section("🔄 In Progress", by[domain.StatusInProgress], 3, true)
	section("🚫 Blocked", by[domain.StatusBlocked], 3, false)
	section("✅ Recently Completed", by[domain.StatusCompleted], 2, false)
	b.WriteString("💡 Reply with task name for details, or \"help\" for commands.")
	return b.String()
}
