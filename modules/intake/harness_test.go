package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

var harnessNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// script answers completion prompts that contain a known message.
type script struct {
	mu      sync.Mutex
	replies map[string]string
	calls   int
}

func newScript() *script {
	return &script{replies: make(map[string]string)}
}

func (s *script) on(message, reply string) {
	s.mu.Lock()
	s.replies[message] = reply
	s.mu.Unlock()
}

func (s *script) Complete(_ context.Context, p intent.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for msg, reply := range s.replies {
		if strings.Contains(p.Text, msg) {
			return reply, nil
		}
	}
	return "", errors.New("no scripted reply")
}

func (s *script) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// harness wires a pipeline over an in-memory store.
type harness struct {
	store     *store.SQLStore
	tasks     *tasks.Service
	pipeline  *Pipeline
	script    *script
	transport *notify.LogTransport
	users     map[string]domain.User
}

func openHarness() (*harness, error) {
	ctx := context.Background()
	clock := func() time.Time { return harnessNow }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(ctx, "sqlite", ":memory:", store.WithClock(clock))
	if err != nil {
		return nil, err
	}
	h := &harness{
		store:     st,
		script:    newScript(),
		transport: notify.NewLogTransport(logger),
		users:     make(map[string]domain.User),
	}
	dispatcher := notify.NewDispatcher(h.transport, logger)
	h.tasks = tasks.NewService(st, store.NewMemoryLocker(), logger,
		tasks.WithNotifier(dispatcher),
		tasks.WithClock(clock),
	)
	parser, err := intent.NewParser(h.script, logger, intent.WithClock(clock), intent.WithTimeout(time.Second))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	h.pipeline = NewPipeline(parser, h.tasks, logger, WithMaxTextLength(500))
	return h, nil
}

func (h *harness) close() {
	_ = h.store.Close()
}

func (h *harness) addUser(name, email, phone string, role domain.Role) (domain.User, error) {
	u, err := h.store.CreateUser(context.Background(), domain.User{
		Name: name, Email: email, Phone: phone, Role: role, Active: true,
	})
	if err != nil {
		return domain.User{}, err
	}
	h.users[name] = u
	return u, nil
}

func (h *harness) addTask(title string, creator domain.User, assignees ...domain.User) (domain.Task, error) {
	ids := make([]string, 0, len(assignees))
	for _, u := range assignees {
		ids = append(ids, u.ID)
	}
	d, err := h.tasks.CreateTask(context.Background(), creator.Actor(), tasks.NewTask{Title: title, AssigneeIDs: ids})
	return d.Task, err
}

func (h *harness) taskByTitle(title string) (domain.Task, error) {
	found, err := h.store.FindTasks(context.Background(), store.TaskFilter{TitleContains: title})
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range found {
		if t.Title == title {
			return t, nil
		}
	}
	return domain.Task{}, domain.NotFound("task", title)
}
