package reminders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	_ "time/tzdata"

	"github.com/GoCodeAlone/modular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/httpclient"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

func TestModuleRegistersJobs(t *testing.T) {
	originalFeeders := modular.ConfigFeeders
	modular.ConfigFeeders = []modular.Feeder{}
	t.Cleanup(func() { modular.ConfigFeeders = originalFeeders })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := modular.NewObservableApplication(modular.NewStdConfigProvider(struct{}{}), logger)
	app.RegisterConfigSection(store.ModuleName, modular.NewStdConfigProvider(&store.Config{
		Driver: "sqlite",
		DSN:    ":memory:",
		Lock:   store.LockConfig{Backend: "memory"},
	}))
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		Enabled:  false,
		Timezone: "Europe/Berlin",
		Specs:    Specs{Overdue: "30 7 * * *"},
	}))

	m := NewModule()
	app.RegisterModule(store.NewModule())
	app.RegisterModule(httpclient.NewModule())
	app.RegisterModule(metrics.NewModule())
	app.RegisterModule(notify.NewModule(notify.NewLogTransport(logger)))
	app.RegisterModule(intent.NewModule(nil))
	app.RegisterModule(tasks.NewModule())
	app.RegisterModule(m)
	require.NoError(t, app.Init())
	assert.Equal(t, []string{events.JobCompleted, events.JobFailed}, m.GetRegisteredEventTypes())

	var h *Handle
	require.NoError(t, app.GetService(ServiceName, &h))
	assert.Same(t, m.Handle(), h)
	var jobs *Reminders
	require.NoError(t, app.GetService(JobsServiceName, &jobs))
	assert.Same(t, m.Reminders(), jobs)
	assert.Nil(t, jobs.summarizer, "no model configured")
	assert.Equal(t, "Europe/Berlin", h.location.String())

	list := h.List()
	require.Len(t, list, 6)
	st, err := h.Status(JobOverdue)
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * *", st.Spec)

	rep, err := h.Run(context.Background(), JobMonthlyOptimization)
	require.NoError(t, err)
	assert.Empty(t, rep.Deliveries)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
}

func TestConfigRejectsUnknownTimezone(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, DefaultSpecs(), cfg.Specs)
}
