package intake

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// IntakeBDDTestContext holds state for the intake scenarios.
type IntakeBDDTestContext struct {
	h       *harness
	results []Result
	err     error
}

func (ctx *IntakeBDDTestContext) resetContext() error {
	if ctx.h != nil {
		ctx.h.close()
	}
	h, err := openHarness()
	if err != nil {
		return err
	}
	ctx.h = h
	ctx.results = nil
	ctx.err = nil
	return nil
}

func (ctx *IntakeBDDTestContext) aRegisteredUser(name, email, phone string) error {
	_, err := ctx.h.addUser(name, email, phone, domain.RoleTeamMember)
	return err
}

func (ctx *IntakeBDDTestContext) aTaskAssignedTo(title, name string) error {
	u, ok := ctx.h.users[name]
	if !ok {
		return fmt.Errorf("unknown user %q", name)
	}
	_, err := ctx.h.addTask(title, u, u)
	return err
}

func (ctx *IntakeBDDTestContext) theModelReadsAs(message string, reply *godog.DocString) error {
	ctx.h.script.on(message, reply.Content)
	return nil
}

func (ctx *IntakeBDDTestContext) phoneSends(phone, text string) error {
	ctx.results, ctx.err = ctx.h.pipeline.Ingest(context.Background(), Request{Text: text, Phone: phone})
	return nil
}

func (ctx *IntakeBDDTestContext) lastResult() (Result, error) {
	if ctx.err != nil {
		return Result{}, fmt.Errorf("ingest failed: %w", ctx.err)
	}
	if len(ctx.results) != 1 {
		return Result{}, fmt.Errorf("expected one result, got %d", len(ctx.results))
	}
	return ctx.results[0], nil
}

func (ctx *IntakeBDDTestContext) theReplyKindIs(kind string) error {
	res, err := ctx.lastResult()
	if err != nil {
		return err
	}
	if string(res.Kind) != kind {
		return fmt.Errorf("expected kind %q, got %q (reply: %s)", kind, res.Kind, res.Reply)
	}
	return nil
}

func (ctx *IntakeBDDTestContext) theReplyListsCandidates(n int) error {
	res, err := ctx.lastResult()
	if err != nil {
		return err
	}
	if len(res.Candidates) != n {
		return fmt.Errorf("expected %d candidates, got %d", n, len(res.Candidates))
	}
	return nil
}

func (ctx *IntakeBDDTestContext) taskHasPriorityAndDue(title, priority, due string) error {
	t, err := ctx.h.taskByTitle(title)
	if err != nil {
		return err
	}
	if string(t.Priority) != priority {
		return fmt.Errorf("expected priority %q, got %q", priority, t.Priority)
	}
	if got := domain.FormatDate(t.DueDate, ""); got != due {
		return fmt.Errorf("expected due %q, got %q", due, got)
	}
	return nil
}

func (ctx *IntakeBDDTestContext) taskHasStatus(title, status string) error {
	t, err := ctx.h.taskByTitle(title)
	if err != nil {
		return err
	}
	if string(t.Status) != status {
		return fmt.Errorf("expected status %q, got %q", status, t.Status)
	}
	return nil
}

func (ctx *IntakeBDDTestContext) taskIsAssignedTo(title, name string) error {
	t, err := ctx.h.taskByTitle(title)
	if err != nil {
		return err
	}
	assignees, err := ctx.h.store.ListAssignees(context.Background(), t.ID)
	if err != nil {
		return err
	}
	if len(assignees) != 1 || assignees[0].ID != ctx.h.users[name].ID {
		return fmt.Errorf("expected %q to be the only assignee of %q, got %v", name, title, assignees)
	}
	return nil
}

func (ctx *IntakeBDDTestContext) notificationsWereSent(n int) error {
	if got := len(ctx.h.transport.Sent()); got != n {
		return fmt.Errorf("expected %d notifications, got %d", n, got)
	}
	return nil
}

func (ctx *IntakeBDDTestContext) theModelWasNotConsulted() error {
	if calls := ctx.h.script.callCount(); calls != 0 {
		return fmt.Errorf("expected no model calls, got %d", calls)
	}
	return nil
}

func TestIntakeBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(s *godog.ScenarioContext) {
			testCtx := &IntakeBDDTestContext{}

			s.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
				return c, testCtx.resetContext()
			})
			s.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
				if testCtx.h != nil {
					testCtx.h.close()
					testCtx.h = nil
				}
				return c, nil
			})

			s.Given(`^a registered user "([^"]*)" with email "([^"]*)" and phone "([^"]*)"$`, testCtx.aRegisteredUser)
			s.Given(`^a task "([^"]*)" assigned to "([^"]*)"$`, testCtx.aTaskAssignedTo)
			s.Given(`^the model reads "([^"]*)" as:$`, testCtx.theModelReadsAs)

			s.When(`^"([^"]*)" sends "([^"]*)"$`, testCtx.phoneSends)

			s.Then(`^the reply kind is "([^"]*)"$`, testCtx.theReplyKindIs)
			s.Then(`^the reply lists (\d+) candidates$`, testCtx.theReplyListsCandidates)
			s.Then(`^task "([^"]*)" has priority "([^"]*)" and is due "([^"]*)"$`, testCtx.taskHasPriorityAndDue)
			s.Then(`^task "([^"]*)" has status "([^"]*)"$`, testCtx.taskHasStatus)
			s.Then(`^task "([^"]*)" is assigned to "([^"]*)"$`, testCtx.taskIsAssignedTo)
			s.Then(`^(\d+) notifications? (?:was|were) sent$`, testCtx.notificationsWereSent)
			s.Then(`^the model was not consulted$`, testCtx.theModelWasNotConsulted)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
