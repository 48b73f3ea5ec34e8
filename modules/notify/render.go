package notify

import (
	"fmt"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// Render formats the message sent to assignees for kind. Unknown kinds use
// the created template.
func Render(task domain.Task, kind domain.EventKind) string {
	switch kind {
	case domain.EventUpdated:
		return fmt.Sprintf("📝 Task Updated\n\n📋 %s\n📊 Status: %s\n🔥 Priority: %s\n📅 Due: %s",
			task.Title, task.Status, task.Priority, domain.FormatDate(task.DueDate, "Not set"))
	case domain.EventCompleted:
		return fmt.Sprintf("✅ Task Completed\n\n📋 %s\n🎉 Great work! This task has been marked as completed.",
			task.Title)
	case domain.EventOverdue:
		return fmt.Sprintf("⚠️ Task Overdue\n\n📋 %s\n📅 Was due: %s\n🔥 Priority: %s\n\nPlease update the status or extend the deadline.",
			task.Title, domain.FormatDate(task.DueDate, "Unknown"), task.Priority)
	case domain.EventBlocked:
		return fmt.Sprintf("🚫 Task Blocked\n\n📋 %s\n❌ This task is currently blocked and needs attention.\n\nPlease check the blocker details in the system.",
			task.Title)
	case domain.EventReminder:
		return fmt.Sprintf("⏰ Task Reminder\n\n📋 %s\n📅 Due: %s\n🔥 Priority: %s\n📊 Status: %s\n\n%s",
			task.Title, domain.FormatDate(task.DueDate, "Not set"), task.Priority, task.Status, task.Description)
	default:
		return fmt.Sprintf("🆕 New Task Created\n\n📋 %s\n📅 Due: %s\n🔥 Priority: %s\n\n%s",
			task.Title, domain.FormatDate(task.DueDate, "Not set"), task.Priority, task.Description)
	}
}
