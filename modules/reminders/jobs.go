package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// Job names.
const (
	JobOverdue             = "overdue-notifications"
	JobUpcoming            = "upcoming-reminders"
	JobWeeklySummary       = "weekly-summary"
	JobBlockedCheck        = "blocked-tasks-check"
	JobDailySummary        = "daily-summary"
	JobMonthlyOptimization = "monthly-optimization"
)

// Specs holds the cron expression of each job.
type Specs struct {
	Overdue             string `json:"overdue" yaml:"overdue" env:"REMINDERS_OVERDUE_SPEC" default:"0 9 * * *"`
	Upcoming            string `json:"upcoming" yaml:"upcoming" env:"REMINDERS_UPCOMING_SPEC" default:"0 8 * * *"`
	WeeklySummary       string `json:"weeklySummary" yaml:"weeklySummary" env:"REMINDERS_WEEKLY_SPEC" default:"0 9 * * MON"`
	BlockedCheck        string `json:"blockedCheck" yaml:"blockedCheck" env:"REMINDERS_BLOCKED_SPEC" default:"0 */4 * * *"`
	DailySummary        string `json:"dailySummary" yaml:"dailySummary" env:"REMINDERS_DAILY_SPEC" default:"0 18 * * MON-FRI"`
	MonthlyOptimization string `json:"monthlyOptimization" yaml:"monthlyOptimization" env:"REMINDERS_MONTHLY_SPEC" default:"0 9 1 * *"`
}

// DefaultSpecs returns the stock schedule.
func DefaultSpecs() Specs {
	return Specs{
		Overdue:             "0 9 * * *",
		Upcoming:            "0 8 * * *",
		WeeklySummary:       "0 9 * * MON",
		BlockedCheck:        "0 */4 * * *",
		DailySummary:        "0 18 * * MON-FRI",
		MonthlyOptimization: "0 9 1 * *",
	}
}

func (s Specs) withDefaults() Specs {
	d := DefaultSpecs()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Overdue, d.Overdue)
	fill(&s.Upcoming, d.Upcoming)
	fill(&s.WeeklySummary, d.WeeklySummary)
	fill(&s.BlockedCheck, d.BlockedCheck)
	fill(&s.DailySummary, d.DailySummary)
	fill(&s.MonthlyOptimization, d.MonthlyOptimization)
	return s
}

// JobReport lists what one run sent. Errors holds per-user failures that
// did not stop the run.
type JobReport struct {
	Job        string            `json:"job"`
	Deliveries []notify.Delivery `json:"deliveries"`
	Errors     []string          `json:"errors,omitempty"`
}

// Failed counts failed deliveries.
func (r JobReport) Failed() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Failed() {
			n++
		}
	}
	return n
}

func (r *JobReport) fail(userID string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("user %s: %v", userID, err))
}

// Sender delivers notifications.
type Sender interface {
	NotifyAll(ctx context.Context, recipients []domain.User, task domain.Task, kind domain.EventKind) []notify.Delivery
	SendTo(ctx context.Context, user domain.User, text string) notify.Delivery
}

// Summarizer writes the prose parts of the summaries.
type Summarizer interface {
	Summarize(ctx context.Context, tasks []domain.Task, period string) (string, error)
	Suggest(ctx context.Context, tasks []domain.Task) (string, error)
}

// Settings tunes the jobs.
type Settings struct {
	// Location decides where "today" starts for the daily summary.
	Location       *time.Location
	UpcomingDays   int
	EscalationDays int
}

// Reminders implements the jobs.
type Reminders struct {
	tasks      *tasks.Service
	sender     Sender
	summarizer Summarizer
	logger     modular.Logger
	settings   Settings
}

// New creates the jobs. summarizer may be nil: summaries are then sent
// without prose and the monthly optimization job sends nothing.
func New(svc *tasks.Service, sender Sender, summarizer Summarizer, logger modular.Logger, settings Settings) *Reminders {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.UpcomingDays <= 0 {
		settings.UpcomingDays = 3
	}
	if settings.EscalationDays <= 0 {
		settings.EscalationDays = 3
	}
	return &Reminders{
		tasks:      svc,
		sender:     sender,
		summarizer: summarizer,
		logger:     logger,
		settings:   settings,
	}
}

// Register schedules every job on h.
func (r *Reminders) Register(h *Handle, specs Specs) error {
	specs = specs.withDefaults()
	jobs := []struct {
		name string
		spec string
		fn   JobFunc
	}{
		{JobOverdue, specs.Overdue, r.Overdue},
		{JobUpcoming, specs.Upcoming, r.Upcoming},
		{JobWeeklySummary, specs.WeeklySummary, r.WeeklySummary},
		{JobBlockedCheck, specs.BlockedCheck, r.BlockedCheck},
		{JobDailySummary, specs.DailySummary, r.DailySummary},
		{JobMonthlyOptimization, specs.MonthlyOptimization, r.MonthlyOptimization},
	}
	for _, j := range jobs {
		if err := h.Schedule(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// recipients lists active users with a phone number.
func (r *Reminders) recipients(ctx context.Context) ([]domain.User, error) {
	return r.tasks.Store().FindUsers(ctx, store.UserFilter{ActiveOnly: true, RequirePhone: true})
}

func (r *Reminders) user(ctx context.Context, userID string) (domain.User, error) {
	u, err := r.tasks.Store().GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.Phone == "" {
		return domain.User{}, fmt.Errorf("%w: %s", ErrNoPhone, userID)
	}
	return u, nil
}

// Overdue notifies the assignees of every incomplete task past its due
// date.
func (r *Reminders) Overdue(ctx context.Context) (JobReport, error) {
	overdue, err := r.tasks.OverdueTasks(ctx)
	if err != nil {
		return JobReport{Job: JobOverdue}, err
	}
	rep := JobReport{Job: JobOverdue}
	for _, d := range overdue {
		to := rules.Recipients(d.Assignees, "", domain.EventOverdue)
		rep.Deliveries = append(rep.Deliveries, r.sender.NotifyAll(ctx, to, d.Task, domain.EventOverdue)...)
	}
	r.logger.Debug("Overdue scan finished", "tasks", len(overdue), "deliveries", len(rep.Deliveries))
	return rep, nil
}

// TriggerOverdue runs the overdue scan outside its schedule.
func (r *Reminders) TriggerOverdue(ctx context.Context) (JobReport, error) {
	return r.Overdue(ctx)
}

// Upcoming sends each user one message listing their tasks due soon.
func (r *Reminders) Upcoming(ctx context.Context) (JobReport, error) {
	rep := JobReport{Job: JobUpcoming}
	users, err := r.recipients(ctx)
	if err != nil {
		return rep, err
	}
	for _, u := range users {
		due, err := r.tasks.UpcomingTasks(ctx, u.ID, days(r.settings.UpcomingDays))
		if err != nil {
			rep.fail(u.ID, err)
			continue
		}
		if len(due) == 0 {
			continue
		}
		rep.Deliveries = append(rep.Deliveries, r.sender.SendTo(ctx, u, morningMessage(due, r.settings.UpcomingDays)))
	}
	return rep, nil
}

// TriggerUpcoming sends userID their tasks due within n days (7 when n is
// not positive). Nothing is sent when no task is due.
func (r *Reminders) TriggerUpcoming(ctx context.Context, userID string, n int) (JobReport, error) {
	if n <= 0 {
		n = 7
	}
	rep := JobReport{Job: JobUpcoming}
	u, err := r.user(ctx, userID)
	if err != nil {
		return rep, err
	}
	due, err := r.tasks.UpcomingTasks(ctx, u.ID, days(n))
	if err != nil {
		return rep, err
	}
	if len(due) > 0 {
		rep.Deliveries = append(rep.Deliveries, r.sender.SendTo(ctx, u, upcomingMessage(due, n)))
	}
	return rep, nil
}

// WeeklySummary sends each user with tasks their stats and, when the
// summarizer answers, a prose summary.
func (r *Reminders) WeeklySummary(ctx context.Context) (JobReport, error) {
	rep := JobReport{Job: JobWeeklySummary}
	users, err := r.recipients(ctx)
	if err != nil {
		return rep, err
	}
	for _, u := range users {
		if err := r.weekly(ctx, u, &rep); err != nil {
			rep.fail(u.ID, err)
		}
	}
	return rep, nil
}

// TriggerWeeklySummary sends one user's weekly summary now.
func (r *Reminders) TriggerWeeklySummary(ctx context.Context, userID string) (JobReport, error) {
	rep := JobReport{Job: JobWeeklySummary}
	u, err := r.user(ctx, userID)
	if err != nil {
		return rep, err
	}
	return rep, r.weekly(ctx, u, &rep)
}

func (r *Reminders) weekly(ctx context.Context, u domain.User, rep *JobReport) error {
	list, err := r.tasks.UserTasks(ctx, u.ID, store.TaskFilter{})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	text := weeklyStatsMessage(rules.Stats(list, r.tasks.Now()))
	if r.summarizer != nil {
		summary, err := r.summarizer.Summarize(ctx, list, "week")
		if err != nil {
			r.logger.Warn("Weekly summary prose unavailable, sending stats only", "user", u.ID, "error", err)
		} else {
			text += "\n\n" + summary
		}
	}
	rep.Deliveries = append(rep.Deliveries, r.sender.SendTo(ctx, u, text))
	return nil
}

// BlockedCheck escalates tasks blocked for EscalationDays or longer to
// their assignees.
func (r *Reminders) BlockedCheck(ctx context.Context) (JobReport, error) {
	rep := JobReport{Job: JobBlockedCheck}
	blocked, err := r.tasks.BlockedTasks(ctx)
	if err != nil {
		return rep, err
	}
	now := r.tasks.Now()
	for _, d := range blocked {
		if !rules.NeedsEscalation(d.Task, now, r.settings.EscalationDays) {
			continue
		}
		text := escalationMessage(d.Task, rules.BlockedDays(d.Task, now))
		for _, u := range rules.Recipients(d.Assignees, "", domain.EventBlocked) {
			rep.Deliveries = append(rep.Deliveries, r.sender.SendTo(ctx, u, text))
		}
	}
	return rep, nil
}

// DailySummary sends each user a count of today's completed and active
// tasks, counting only tasks touched since midnight.
func (r *Reminders) DailySummary(ctx context.Context) (JobReport, error) {
	rep := JobReport{Job: JobDailySummary}
	users, err := r.recipients(ctx)
	if err != nil {
		return rep, err
	}
	now := r.tasks.Now().In(r.settings.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.settings.Location)
	for _, u := range users {
		today, err := r.tasks.UserTasks(ctx, u.ID, store.TaskFilter{UpdatedSince: &midnight})
		if err != nil {
			rep.fail(u.ID, err)
			continue
		}
		if len(today) == 0 {
			continue
		}
		completed := 0
		for _, t := range today {
			if t.Status == domain.StatusCompleted {
				completed++
			}
		}
		rep.Deliveries = append(rep.Deliveries, r.sender.SendTo(ctx, u, dailyMessage(completed, len(today)-completed)))
	}
	return rep, nil
}

// MonthlyOptimization sends each user the summarizer's suggestions.
func (r *Reminders) MonthlyOptimization(ctx context.Context) (JobReport, error) {
	rep := JobReport{Job: JobMonthlyOptimization}
	if r.summarizer == nil {
		r.logger.Info("Monthly optimization skipped, no summarizer configured")
		return rep, nil
	}
	users, err := r.recipients(ctx)
	if err != nil {
		return rep, err
	}
	for _, u := range users {
		list, err := r.tasks.UserTasks(ctx, u.ID, store.TaskFilter{})
		if err != nil {
			rep.fail(u.ID, err)
			continue
		}
		if len(list) == 0 {
			continue
		}
		suggestions, err := r.summarizer.Suggest(ctx, list)
		if err != nil {
			rep.fail(u.ID, err)
			continue
		}
		rep.Deliveries = append(rep.Deliveries, r.sender.SendTo(ctx, u, optimizationMessage(suggestions)))
	}
	return rep, nil
}
