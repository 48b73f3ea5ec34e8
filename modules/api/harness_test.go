package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/intake"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/reminders"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

const (
	testSecret     = "test-secret"
	testHookSecret = "hook-secret"
)

// Monday 2025-01-06 09:00 UTC.
var testNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type scripted struct {
	mu      sync.Mutex
	replies map[string]string
}

func (s *scripted) on(message, reply string) {
	s.mu.Lock()
	s.replies[message] = reply
	s.mu.Unlock()
}

func (s *scripted) Complete(_ context.Context, p intent.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for msg, reply := range s.replies {
		if strings.Contains(p.Text, msg) {
			return reply, nil
		}
	}
	return "", errors.New("no scripted reply")
}

type testEnv struct {
	store     *store.SQLStore
	tasks     *tasks.Service
	transport *notify.LogTransport
	model     *scripted
	handle    *reminders.Handle
	router    chi.Router

	admin, alice, bob, carol domain.User
}

type envOption func(*Config, *Deps)

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return testNow }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(ctx, "sqlite", ":memory:", store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &testEnv{
		store:     st,
		transport: notify.NewLogTransport(logger),
		model:     &scripted{replies: map[string]string{}},
	}
	dispatcher := notify.NewDispatcher(e.transport, logger)
	e.tasks = tasks.NewService(st, nil, logger, tasks.WithNotifier(dispatcher), tasks.WithClock(clock))
	parser, err := intent.NewParser(e.model, logger, intent.WithClock(clock), intent.WithTimeout(time.Second))
	require.NoError(t, err)
	pipeline := intake.NewPipeline(parser, e.tasks, logger)

	m := metrics.New("test")
	e.handle = reminders.NewHandle(logger, reminders.WithHandleClock(clock), reminders.WithMetrics(m))
	jobs := reminders.New(e.tasks, dispatcher, nil, logger, reminders.Settings{})
	require.NoError(t, jobs.Register(e.handle, reminders.Specs{}))

	user := func(name, phone string, role domain.Role, active bool) domain.User {
		u, err := st.CreateUser(ctx, domain.User{
			Name: name, Email: name + "@x.com", Phone: phone, Role: role, Active: active,
		})
		require.NoError(t, err)
		return u
	}
	e.admin = user("admin", "+15550000", domain.RoleAdmin, true)
	e.alice = user("alice", "+15550001", domain.RoleTeamMember, true)
	e.bob = user("bob", "+15550002", domain.RoleTeamMember, true)
	e.carol = user("carol", "+15550003", domain.RoleTeamMember, false)

	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret
	deps := Deps{
		Tasks:     e.tasks,
		Intake:    pipeline,
		Notifier:  dispatcher,
		Webhook:   notify.NewWebhook(testHookSecret),
		Scheduler: e.handle,
		Jobs:      jobs,
		Metrics:   m,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}
	e.router, err = NewRouter(cfg, deps, logger)
	require.NoError(t, err)
	return e
}

func signToken(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) token(t *testing.T, u domain.User) string {
	return signToken(t, Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(testNow),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, testSecret)
}

func (e *testEnv) request(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	case []byte:
		rdr = strings.NewReader(string(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			panic(err)
		}
		rdr = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createTask(t *testing.T, as domain.User, body map[string]any) domain.Task {
	t.Helper()
	rec := e.request(http.MethodPost, "/api/tasks", e.token(t, as), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody[struct {
		Task domain.Task `json:"task"`
	}](t, rec)
	return out.Task
}
