package intent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

const messagePrompt = `Parse the following WhatsApp message and extract task information. Today is %s.
Return only JSON with the following structure:
{
  "action": "create_task|update_status|query_tasks|report_blocker|change_deadline|reassign|help",
  "title": "task title, or the part of an existing task title the message refers to",
  "description": "detailed description or null",
  "dueDate": "YYYY-MM-DD or null",
  "priority": "low|medium|high|urgent or null",
  "status": "pending|in_progress|completed|blocked or null",
  "assignees": ["email1", "email2"] or [],
  "project": "project name or null",
  "tags": ["tag1", "tag2"] or [],
  "blockerReason": "why the task is blocked, or null"
}

Message: %q

Common patterns:
- "Create task: [title] by [date], assign to [email], [priority] priority"
- "Update task: [title] to [status]"
- "Task status: [title] completed"
- "Show my tasks", "List pending tasks"
- "[title] is blocked because [reason]"
- "Move [title] deadline to [date]"
- "Reassign [title] to [email]"
- "Help" or "?"

If this doesn't look like a task-related command, return {"action": "help"}.`

const bulkPrompt = `Analyze the following text (meeting notes, chat log, email, etc.) and extract any task updates, new tasks, status changes, or action items. Today is %s.

Return only JSON with this structure:
{
  "updates": [
    {
      "type": "status_update|new_task|reassign|blocker|deadline_change",
      "taskTitle": "existing task title or new task title",
      "details": "specific details about the update",
      "assignee": "email or null",
      "status": "pending|in_progress|completed|blocked",
      "dueDate": "YYYY-MM-DD or null",
      "priority": "low|medium|high|urgent",
      "project": "project name or null",
      "blockerReason": "reason if type is blocker"
    }
  ]
}

Text: %q

Look for:
- Action items and TODO mentions
- Status updates (completed, started, blocked)
- Assignment changes
- Deadline mentions
- Priority indicators
- Project references

If no task-related information is found, return {"updates": []}.`

const summaryPrompt = `Generate a concise %sly task summary report based on the following task data:

%s

Create a WhatsApp-friendly summary including:
1. Overall progress overview
2. Key completed items
3. Upcoming deadlines
4. Blocked or overdue items
5. Priority recommendations

Keep it under 500 words and use emojis for readability.`

const suggestPrompt = `Analyze the following user task data and provide optimization suggestions:

%s

Provide WhatsApp-friendly suggestions for:
1. Time management improvements
2. Priority adjustments
3. Deadline optimization
4. Productivity patterns

Keep response under 300 words with actionable advice.`

type taskDigest struct {
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	DueDate        string   `json:"dueDate,omitempty"`
	Project        string   `json:"project,omitempty"`
	EstimatedHours *float64 `json:"estimatedHours,omitempty"`
	ActualHours    *float64 `json:"actualHours,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
}

func digest(tasks []domain.Task, withEffort bool) string {
	out := make([]taskDigest, 0, len(tasks))
	for _, t := range tasks {
		d := taskDigest{
			Title:    t.Title,
			Status:   string(t.Status),
			Priority: string(t.Priority),
			DueDate:  domain.FormatDate(t.DueDate, ""),
			Project:  t.Project,
		}
		if withEffort {
			est, act := t.EstimatedHours, t.ActualHours
			d.EstimatedHours, d.ActualHours = &est, &act
			d.CreatedAt = t.CreatedAt.Format(domain.DateLayout)
		}
		out = append(out, d)
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	return string(b)
}

func today(now time.Time) string {
	return fmt.Sprintf("%s (%s)", now.Format(domain.DateLayout), now.Weekday())
}
