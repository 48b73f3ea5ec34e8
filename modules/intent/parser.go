package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// Prompt is one completion request.
type Prompt struct {
	Text        string
	Temperature float64
	MaxTokens   int
}

// Completer is the external model: prompt in, reply text out. It may be
// slow, fail, or return anything at all.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Parser converts text into intents.
type Parser struct {
	completer Completer
	timeout   time.Duration
	logger    modular.Logger
	schemas   *schemas
	now       func() time.Time
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithTimeout bounds every completion call.
func WithTimeout(d time.Duration) ParserOption {
	return func(p *Parser) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock sets the clock used for "today" in prompts.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.now = now }
}

// NewParser creates a parser. A nil completer makes every Parse return Help.
func NewParser(completer Completer, logger modular.Logger, opts ...ParserOption) (*Parser, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	p := &Parser{
		completer: completer,
		timeout:   15 * time.Second,
		logger:    logger,
		schemas:   s,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// HasCompleter reports whether a model is configured.
func (p *Parser) HasCompleter() bool {
	return p.completer != nil
}

// complete calls the model and returns within the timeout even if the
// completer ignores cancellation.
func (p *Parser) complete(ctx context.Context, prompt Prompt) (string, error) {
	if p.completer == nil {
		return "", ErrNoCompleter
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := p.completer.Complete(ctx, prompt)
		ch <- reply{text, err}
	}()
	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("completion timed out after %s: %w", p.timeout, ctx.Err())
	}
}

// Parse classifies one message. It never fails: errors and timeouts are
// reported as Help with the reason.
func (p *Parser) Parse(ctx context.Context, text string) Intent {
	if strings.TrimSpace(text) == "" {
		return Help{Reason: "empty message"}
	}
	reply, err := p.complete(ctx, Prompt{
		Text:        fmt.Sprintf(messagePrompt, today(p.now()), text),
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		p.logger.Warn("Intent completion failed", "error", err)
		return Help{Reason: err.Error()}
	}
	in, err := p.decodeMessage(reply)
	if err != nil {
		p.logger.Warn("Intent reply rejected", "error", err)
		return Help{Reason: err.Error()}
	}
	p.logger.Debug("Intent parsed", "action", in.Action())
	return in
}

type messageReply struct {
	Action        string   `json:"action"`
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	DueDate       *string  `json:"dueDate"`
	Priority      *string  `json:"priority"`
	Status        *string  `json:"status"`
	Assignees     []string `json:"assignees"`
	Project       *string  `json:"project"`
	Tags          []string `json:"tags"`
	BlockerReason *string  `json:"blockerReason"`
}

func (p *Parser) decodeMessage(reply string) (Intent, error) {
	data, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	if err := validate(p.schemas.message, data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var r messageReply
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}

	title := strings.TrimSpace(deref(r.Title))
	switch r.Action {
	case ActionCreateTask:
		due, err := parseDate(deref(r.DueDate))
		if err != nil {
			return nil, err
		}
		prio, err := domain.ParsePriority(deref(r.Priority))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
		return CreateTask{
			Title:       title,
			Description: strings.TrimSpace(deref(r.Description)),
			DueDate:     due,
			Priority:    prio,
			Assignees:   emails(r.Assignees),
			Project:     strings.TrimSpace(deref(r.Project)),
			Tags:        domain.NormalizeTags(r.Tags),
		}, nil
	case ActionUpdateStatus:
		var status domain.Status
		if s := deref(r.Status); s != "" {
			if status, err = domain.ParseStatus(s); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
			}
		}
		return UpdateStatus{TaskTitle: title, Status: status}, nil
	case ActionQuery:
		var status domain.Status
		if s := deref(r.Status); s != "" {
			if status, err = domain.ParseStatus(s); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
			}
		}
		return Query{Status: status}, nil
	case ActionReportBlocker:
		reason := strings.TrimSpace(deref(r.BlockerReason))
		if reason == "" {
			reason = strings.TrimSpace(deref(r.Description))
		}
		return ReportBlocker{TaskTitle: title, Reason: reason}, nil
	case ActionChangeDeadline:
		due, err := parseDate(deref(r.DueDate))
		if err != nil {
			return nil, err
		}
		return ChangeDeadline{TaskTitle: title, DueDate: due}, nil
	case ActionReassign:
		return Reassign{TaskTitle: title, Assignees: emails(r.Assignees)}, nil
	default:
		return Help{}, nil
	}
}

// ParseBulk extracts every update from a longer text. Any failure of the
// whole reply yields no intents; individual invalid items are skipped.
func (p *Parser) ParseBulk(ctx context.Context, text string) []Intent {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	reply, err := p.complete(ctx, Prompt{
		Text:        fmt.Sprintf(bulkPrompt, today(p.now()), text),
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		p.logger.Warn("Bulk completion failed", "error", err)
		return nil
	}
	out, err := p.decodeBulk(reply)
	if err != nil {
		p.logger.Warn("Bulk reply rejected", "error", err)
		return nil
	}
	return out
}

type bulkReply struct {
	Updates []bulkItem `json:"updates"`
}

type bulkItem struct {
	Type          string  `json:"type"`
	TaskTitle     string  `json:"taskTitle"`
	Details       *string `json:"details"`
	Assignee      *string `json:"assignee"`
	Status        *string `json:"status"`
	DueDate       *string `json:"dueDate"`
	Priority      *string `json:"priority"`
	Project       *string `json:"project"`
	BlockerReason *string `json:"blockerReason"`
}

func (p *Parser) decodeBulk(reply string) ([]Intent, error) {
	data, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	if err := validate(p.schemas.bulk, data); err != nil {
		return nil, err
	}
	var r bulkReply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	out := make([]Intent, 0, len(r.Updates))
	for i, item := range r.Updates {
		in, err := item.intent()
		if err != nil {
			p.logger.Debug("Skipping bulk update", "index", i, "type", item.Type, "error", err)
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (b bulkItem) intent() (Intent, error) {
	title := strings.TrimSpace(b.TaskTitle)
	assignees := emails([]string{deref(b.Assignee)})
	switch b.Type {
	case "status_update":
		status, err := domain.ParseStatus(deref(b.Status))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
		return UpdateStatus{TaskTitle: title, Status: status}, nil
	case "new_task":
		due, err := parseDate(deref(b.DueDate))
		if err != nil {
			return nil, err
		}
		prio, err := domain.ParsePriority(deref(b.Priority))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
		return CreateTask{
			Title:       title,
			Description: strings.TrimSpace(deref(b.Details)),
			DueDate:     due,
			Priority:    prio,
			Assignees:   assignees,
			Project:     strings.TrimSpace(deref(b.Project)),
		}, nil
	case "reassign":
		if len(assignees) == 0 {
			return nil, fmt.Errorf("%w: reassign without assignee", ErrInvalidField)
		}
		return Reassign{TaskTitle: title, Assignees: assignees}, nil
	case "blocker":
		reason := strings.TrimSpace(deref(b.BlockerReason))
		if reason == "" {
			reason = strings.TrimSpace(deref(b.Details))
		}
		return ReportBlocker{TaskTitle: title, Reason: reason}, nil
	case "deadline_change":
		due, err := parseDate(deref(b.DueDate))
		if err != nil {
			return nil, err
		}
		return ChangeDeadline{TaskTitle: title, DueDate: due}, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrInvalidField, b.Type)
}

// Summarize asks the model for a prose summary of tasks over period
// ("week", "day").
func (p *Parser) Summarize(ctx context.Context, tasks []domain.Task, period string) (string, error) {
	return p.prose(ctx, Prompt{
		Text:        fmt.Sprintf(summaryPrompt, period, digest(tasks, false)),
		Temperature: 0.3,
		MaxTokens:   600,
	})
}

// Suggest asks the model for productivity suggestions on a user's tasks.
func (p *Parser) Suggest(ctx context.Context, tasks []domain.Task) (string, error) {
	return p.prose(ctx, Prompt{
		Text:        fmt.Sprintf(suggestPrompt, digest(tasks, true)),
		Temperature: 0.5,
		MaxTokens:   400,
	})
}

func (p *Parser) prose(ctx context.Context, prompt Prompt) (string, error) {
	reply, err := p.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

// parseDate accepts YYYY-MM-DD and RFC 3339. Empty and "null" mean no date.
func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "null") {
		return nil, nil
	}
	if t, err := time.Parse(domain.DateLayout, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: dueDate %q", ErrInvalidField, v)
	}
	t = t.UTC()
	return &t, nil
}

func emails(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || e == "null" || !strings.Contains(e, "@") || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IsHelp reports whether in is Help or nil.
func IsHelp(in Intent) bool {
	_, ok := in.(Help)
	return ok || in == nil
}
