package httpclient

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateDefaults(t *testing.T) {
	c := &Config{RedactHeaders: []string{"x-secret"}}
	require.NoError(t, c.Validate())
	assert.Equal(t, 50, c.MaxIdleConns)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, []string{"X-Secret"}, c.RedactHeaders)

	c = &Config{MaxIdleConns: 2, MaxIdleConnsPerHost: 5}
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}

func TestClientRedactsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := &Config{LogHeaders: true}
	require.NoError(t, cfg.Validate())
	client := New(cfg, logger)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v2/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, "Outgoing request")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "status=202")
	assert.NotContains(t, out, "secret-token")
}

func TestClientLogsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	client := New(cfg, slog.New(slog.NewTextHandler(&buf, nil)))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, buf.String(), "Request returned error status")
}

func TestModuleProvidesClient(t *testing.T) {
	originalFeeders := modular.ConfigFeeders
	modular.ConfigFeeders = []modular.Feeder{}
	t.Cleanup(func() { modular.ConfigFeeders = originalFeeders })

	app := modular.NewStdApplication(modular.NewStdConfigProvider(struct{}{}), slog.New(slog.NewTextHandler(io.Discard, nil)))
	m := NewModule()
	app.RegisterModule(m)
	require.NoError(t, app.Init())

	var client *http.Client
	require.NoError(t, app.GetService(ServiceName, &client))
	assert.Same(t, m.Client(), client)
	assert.Equal(t, 30*time.Second, client.Timeout)
}
