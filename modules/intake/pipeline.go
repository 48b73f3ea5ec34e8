// Package intake applies parsed messages to the task store. One message
// yields one Result; a bulk upload yields one Result per parsed update.
//
// Parser and transport failures never surface as errors: they become Help
// results or failed deliveries. Only store failures are returned.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// Kind classifies a Result.
type Kind string

const (
	KindCreated         Kind = "created"
	KindUpdated         Kind = "updated"
	KindBlocked         Kind = "blocked"
	KindDeadlineUpdated Kind = "deadline_updated"
	KindReassigned      Kind = "reassigned"
	KindUnchanged       Kind = "unchanged"
	KindQuery           Kind = "query"
	KindHelp            Kind = "help"
	KindNotFound        Kind = "not_found"
	KindAmbiguous       Kind = "ambiguous"
	KindUnauthorized    Kind = "unauthorized"
	KindRejected        Kind = "rejected"
)

// Request is one unit of inbound text. Either UserID or Phone identifies
// the sender; UserID wins when both are set.
type Request struct {
	Text   string `json:"text"`
	UserID string `json:"userId,omitempty"`
	Phone  string `json:"phone,omitempty"`
	// Bulk parses Text as a pasted report that may hold many updates.
	Bulk bool `json:"bulk,omitempty"`
}

// Result is the outcome of one parsed intent.
type Result struct {
	Kind       Kind              `json:"kind"`
	Action     string            `json:"action,omitempty"`
	Reply      string            `json:"reply"`
	Task       *domain.Task      `json:"task,omitempty"`
	Blocker    *domain.Blocker   `json:"blocker,omitempty"`
	Candidates []domain.Task     `json:"candidates,omitempty"`
	Deliveries []notify.Delivery `json:"deliveries,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Parser is the part of *intent.Parser the pipeline uses.
type Parser interface {
	Parse(ctx context.Context, text string) intent.Intent
	ParseBulk(ctx context.Context, text string) []intent.Intent
}

// Pipeline resolves the sender, parses the text and applies each intent.
type Pipeline struct {
	parser    Parser
	tasks     *tasks.Service
	logger    modular.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	maxText   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithMaxTextLength rejects longer input before it reaches the parser.
// Zero disables the limit.
func WithMaxTextLength(n int) Option {
	return func(p *Pipeline) { p.maxText = n }
}

// NewPipeline creates a pipeline.
func NewPipeline(parser Parser, svc *tasks.Service, logger modular.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		parser:    parser,
		tasks:     svc,
		logger:    logger,
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest processes req. An unknown or inactive sender yields a single
// unauthorized result and nothing is parsed.
func (p *Pipeline) Ingest(ctx context.Context, req Request) ([]Result, error) {
	actor, err := p.resolveSender(ctx, req)
	if errors.Is(err, domain.ErrUnauthorized) {
		res := Result{Kind: KindUnauthorized, Reply: replyUnregistered, Error: err.Error()}
		p.record(ctx, req, "", []Result{res})
		return []Result{res}, nil
	}
	if err != nil {
		return nil, err
	}

	if p.maxText > 0 && utf8.RuneCountInString(req.Text) > p.maxText {
		res := Result{Kind: KindRejected, Reply: replyTooLong, Error: ErrTextTooLong.Error()}
		p.record(ctx, req, actor.ID, []Result{res})
		return []Result{res}, nil
	}

	var intents []intent.Intent
	if req.Bulk {
		intents = p.parser.ParseBulk(ctx, req.Text)
		if len(intents) == 0 {
			res := Result{Kind: KindHelp, Action: intent.ActionHelp, Reply: replyNothingInUpload}
			p.record(ctx, req, actor.ID, []Result{res})
			return []Result{res}, nil
		}
	} else {
		intents = []intent.Intent{p.parser.Parse(ctx, req.Text)}
	}

	results := make([]Result, 0, len(intents))
	for _, in := range intents {
		res, err := p.apply(ctx, actor, in)
		if err != nil {
			p.logger.Error("Intake aborted on store failure", "action", actionOf(in), "error", err)
			p.record(ctx, req, actor.ID, results)
			return results, err
		}
		res.Action = actionOf(in)
		results = append(results, res)
	}
	p.record(ctx, req, actor.ID, results)
	return results, nil
}

func (p *Pipeline) resolveSender(ctx context.Context, req Request) (domain.User, error) {
	st := p.tasks.Store()
	var (
		u   domain.User
		err error
	)
	switch {
	case req.UserID != "":
		u, err = st.GetUser(ctx, req.UserID)
	case strings.TrimSpace(req.Phone) != "":
		u, err = st.FindUserByPhone(ctx, req.Phone)
	default:
		return domain.User{}, fmt.Errorf("%w: no sender identity", domain.ErrUnauthorized)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("%w: sender not registered", domain.ErrUnauthorized)
	}
	if err != nil {
		return domain.User{}, err
	}
	if !u.Active {
		return domain.User{}, fmt.Errorf("%w: sender is inactive", domain.ErrUnauthorized)
	}
	return u, nil
}

func (p *Pipeline) apply(ctx context.Context, actor domain.User, in intent.Intent) (Result, error) {
	switch in := in.(type) {
	case intent.CreateTask:
		return p.createTask(ctx, actor, in)
	case intent.UpdateStatus:
		return p.updateStatus(ctx, actor, in)
	case intent.Query:
		return p.query(ctx, actor, in)
	case intent.Reassign:
		return p.reassign(ctx, actor, in)
	case intent.ReportBlocker:
		return p.reportBlocker(ctx, actor, in)
	case intent.ChangeDeadline:
		return p.changeDeadline(ctx, actor, in)
	case intent.Help:
		return Result{Kind: KindHelp, Reply: HelpText, Error: in.Reason}, nil
	default:
		return Result{Kind: KindHelp, Reply: HelpText}, nil
	}
}

func (p *Pipeline) createTask(ctx context.Context, actor domain.User, in intent.CreateTask) (Result, error) {
	detail, err := p.tasks.CreateTask(ctx, actor.Actor(), tasks.NewTask{
		Title:          in.Title,
		Description:    in.Description,
		DueDate:        in.DueDate,
		Priority:       string(in.Priority),
		Project:        in.Project,
		Tags:           in.Tags,
		AssigneeEmails: in.Assignees,
	})
	if err != nil {
		return p.failure(err, in.Title, replyCreateFailed)
	}
	deliveries, err := p.tasks.NotifyAssignees(ctx, detail.Task, domain.EventCreated, actor.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:       KindCreated,
		Reply:      createdReply(detail.Task),
		Task:       &detail.Task,
		Deliveries: deliveries,
	}, nil
}

func (p *Pipeline) updateStatus(ctx context.Context, actor domain.User, in intent.UpdateStatus) (Result, error) {
	if strings.TrimSpace(in.TaskTitle) == "" {
		return Result{Kind: KindRejected, Reply: replyWhichTask}, nil
	}
	task, err := p.tasks.ResolveTitle(ctx, in.TaskTitle, actor.ID)
	if err != nil {
		return p.failure(err, in.TaskTitle, "")
	}
	if in.Status == "" {
		return Result{Kind: KindQuery, Reply: currentStatusReply(task), Task: &task}, nil
	}
	res, err := p.tasks.SetStatus(ctx, actor.Actor(), task.ID, in.Status)
	if err != nil {
		return p.failure(err, task.Title, statusRejectedReply(task, in.Status, err))
	}
	if !res.Change.Changed {
		return Result{Kind: KindUnchanged, Reply: alreadyStatusReply(res.Task), Task: &res.Task}, nil
	}
	deliveries, err := p.tasks.NotifyAssignees(ctx, res.Task, rules.NotificationKind(res.Change.To), actor.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:       KindUpdated,
		Reply:      statusUpdatedReply(res.Task, res.Change.From),
		Task:       &res.Task,
		Deliveries: deliveries,
	}, nil
}

func (p *Pipeline) query(ctx context.Context, actor domain.User, in intent.Query) (Result, error) {
	var f store.TaskFilter
	if in.Status != "" {
		f.Statuses = []domain.Status{in.Status}
	}
	found, err := p.tasks.UserTasks(ctx, actor.ID, f)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindQuery, Reply: SummaryReply(found)}, nil
}

func (p *Pipeline) reassign(ctx context.Context, actor domain.User, in intent.Reassign) (Result, error) {
	task, err := p.tasks.ResolveTitle(ctx, in.TaskTitle, "")
	if err != nil {
		return p.failure(err, in.TaskTitle, "")
	}
	users, err := p.tasks.Store().FindUsersByEmails(ctx, in.Assignees)
	if err != nil {
		return Result{}, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.Active {
			ids = append(ids, u.ID)
		}
	}
	if len(ids) == 0 {
		return Result{Kind: KindRejected, Reply: replyNoAssignees, Task: &task}, nil
	}
	assigned, err := p.tasks.ReplaceAssignees(ctx, actor.Actor(), task.ID, ids)
	if err != nil {
		return p.failure(err, task.Title, "")
	}
	deliveries, err := p.tasks.NotifyAssignees(ctx, task, domain.EventCreated, actor.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:       KindReassigned,
		Reply:      reassignedReply(task, assigned),
		Task:       &task,
		Deliveries: deliveries,
	}, nil
}

func (p *Pipeline) reportBlocker(ctx context.Context, actor domain.User, in intent.ReportBlocker) (Result, error) {
	task, err := p.tasks.ResolveTitle(ctx, in.TaskTitle, "")
	if err != nil {
		return p.failure(err, in.TaskTitle, "")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = defaultBlockerReason
	}
	res, err := p.tasks.CreateBlocker(ctx, tasks.NewBlocker{
		TaskID:      task.ID,
		ReportedBy:  actor.ID,
		Description: reason,
		Type:        string(domain.BlockerOther),
		Severity:    string(domain.SeverityMedium),
	})
	if err != nil {
		return p.failure(err, task.Title, "")
	}
	deliveries, err := p.tasks.NotifyAssignees(ctx, res.Task, domain.EventBlocked, actor.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:       KindBlocked,
		Reply:      blockedReply(res.Task, res.Blocker),
		Task:       &res.Task,
		Blocker:    &res.Blocker,
		Deliveries: deliveries,
	}, nil
}

func (p *Pipeline) changeDeadline(ctx context.Context, actor domain.User, in intent.ChangeDeadline) (Result, error) {
	task, err := p.tasks.ResolveTitle(ctx, in.TaskTitle, "")
	if err != nil {
		return p.failure(err, in.TaskTitle, "")
	}
	if in.DueDate == nil {
		return Result{Kind: KindUnchanged, Reply: noDeadlineReply(task), Task: &task}, nil
	}
	updated, err := p.tasks.SetDueDate(ctx, actor.ID, task.ID, in.DueDate)
	if err != nil {
		return p.failure(err, task.Title, "")
	}
	deliveries, err := p.tasks.NotifyAssignees(ctx, updated, domain.EventUpdated, actor.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:       KindDeadlineUpdated,
		Reply:      deadlineReply(updated),
		Task:       &updated,
		Deliveries: deliveries,
	}, nil
}

// failure maps a taxonomy error to its result. Anything outside the
// taxonomy is a store failure and is returned as is.
func (p *Pipeline) failure(err error, title, rejectedReply string) (Result, error) {
	var amb *domain.AmbiguousError
	switch {
	case errors.As(err, &amb):
		return Result{Kind: KindAmbiguous, Reply: ambiguousReply(amb.Candidates), Candidates: amb.Candidates, Error: err.Error()}, nil
	case errors.Is(err, domain.ErrNotFound):
		return Result{Kind: KindNotFound, Reply: notFoundReply(title), Error: err.Error()}, nil
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrUnauthorized):
		return Result{Kind: KindUnauthorized, Reply: forbiddenReply(title), Error: err.Error()}, nil
	case errors.Is(err, domain.ErrRejected), errors.Is(err, domain.ErrValidation):
		if rejectedReply == "" {
			rejectedReply = "❌ " + err.Error()
		}
		return Result{Kind: KindRejected, Reply: rejectedReply, Error: err.Error()}, nil
	default:
		return Result{}, err
	}
}

func (p *Pipeline) record(ctx context.Context, req Request, actorID string, results []Result) {
	kinds := make([]string, 0, len(results))
	for _, r := range results {
		p.metrics.IntakeResult(string(r.Kind))
		kinds = append(kinds, string(r.Kind))
	}
	p.publisher.Publish(ctx, events.IntakeProcessed, map[string]any{
		"actor":   actorID,
		"bulk":    req.Bulk,
		"results": kinds,
	})
	p.logger.Debug("Intake processed", "actor", actorID, "bulk", req.Bulk, "results", kinds)
}

func actionOf(in intent.Intent) string {
	if in == nil {
		return intent.ActionHelp
	}
	return in.Action()
}
