package httpclient

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/GoCodeAlone/modular"
)

// loggingTransport logs each outbound request with its outcome and timing.
// Bodies are never logged: they carry message text and user phone numbers.
type loggingTransport struct {
	Transport  http.RoundTripper
	Logger     modular.Logger
	Verbose    bool
	LogHeaders bool
	Redact     []string
}

func (t *loggingTransport) log(msg string, args ...any) {
	if t.Verbose {
		t.Logger.Info(msg, args...)
		return
	}
	t.Logger.Debug(msg, args...)
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := fmt.Sprintf("%p", req)
	start := time.Now()

	args := []any{"id", requestID, "method", req.Method, "host", req.URL.Host, "path", req.URL.Path}
	if t.LogHeaders {
		args = append(args, "headers", t.headers(req.Header))
	}
	t.log("Outgoing request", args...)

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		t.Logger.Error("Request failed",
			"id", requestID,
			"method", req.Method,
			"host", req.URL.Host,
			"path", req.URL.Path,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return resp, fmt.Errorf("http request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.Logger.Warn("Request returned error status",
			"id", requestID,
			"host", req.URL.Host,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		)
		return resp, nil
	}
	t.log("Request completed",
		"id", requestID,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return resp, nil
}

func (t *loggingTransport) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if slices.Contains(t.Redact, http.CanonicalHeaderKey(key)) {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = values[0]
	}
	return out
}
