package reminders

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

func morningMessage(due []domain.Task, days int) string {
	items := make([]string, 0, len(due))
	for _, t := range due {
		items = append(items, fmt.Sprintf("📋 %s\n📅 Due: %s\n🔥 %s", t.Title, domain.FormatDate(t.DueDate, "Not set"), t.Priority))
	}
	return fmt.Sprintf("🌅 Good morning! You have %d task(s) due in the next %d days:\n\n%s\n\nHave a productive day! 💪",
		len(due), days, strings.Join(items, "\n\n"))
}

func upcomingMessage(due []domain.Task, days int) string {
	items := make([]string, 0, len(due))
	for _, t := range due {
		items = append(items, fmt.Sprintf("📋 %s\n📅 Due: %s\n🔥 Priority: %s", t.Title, domain.FormatDate(t.DueDate, "Not set"), t.Priority))
	}
	return fmt.Sprintf("📅 Upcoming Tasks (Next %d days):\n\n%s", days, strings.Join(items, "\n\n"))
}

func weeklyStatsMessage(s domain.TaskStats) string {
	return fmt.Sprintf("📊 Weekly Stats:\n• Total: %d\n• Completed: %d (%d%%)\n• In Progress: %d\n• Pending: %d\n• Blocked: %d",
		s.Total, s.Completed, s.CompletionRate, s.InProgress, s.Pending, s.Blocked)
}

func escalationMessage(t domain.Task, blockedDays int) string {
	return fmt.Sprintf("🚨 Attention Required!\n\n📋 %q has been blocked for %d days.\n\nPlease review the blockers and take action to unblock this task.",
		t.Title, blockedDays)
}

func dailyMessage(completed, active int) string {
	cheer := "Keep pushing forward! 💪"
	if completed > 0 {
		cheer = "Great progress today! 🎉"
	}
	return fmt.Sprintf("🌅 Daily Summary\n\n✅ Completed today: %d\n📋 Active tasks: %d\n\n%s\n\nSee you tomorrow!", completed, active, cheer)
}

func optimizationMessage(suggestions string) string {
	return fmt.Sprintf("🚀 Monthly Productivity Insights\n\n%s\n\nKeep optimizing your workflow! 📈", suggestions)
}
