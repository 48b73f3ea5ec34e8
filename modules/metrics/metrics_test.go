package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("tf")
	m.IntakeResult("created")
	m.IntakeResult("created")
	m.Notification(domain.EventBlocked, "failed")
	m.JobRun("overdue-notifications", nil, 10*time.Millisecond)
	m.JobRun("overdue-notifications", errors.New("x"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.intake.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("blocked", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("overdue-notifications", "failure")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IntakeResult("created")
	m.Notification(domain.EventCreated, "sent")
	m.JobRun("x", nil, 0)
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}

func TestTaskCollector(t *testing.T) {
	m := New("tf")
	c := NewTaskCollector("tf", func(context.Context) (domain.TaskStats, error) {
		return domain.TaskStats{Total: 4, Pending: 1, InProgress: 1, Completed: 1, Blocked: 1, Overdue: 2, CompletionRate: 25}, nil
	})
	require.NoError(t, m.Registry().Register(c))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	assert.Contains(t, text, `tf_tasks{status="blocked"} 1`)
	assert.Contains(t, text, "tf_tasks_overdue 2")
	assert.Contains(t, text, "tf_tasks_completion_rate 25")
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
