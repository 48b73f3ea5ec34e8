package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/google/uuid"
)

// Transport delivers one text message and returns the provider's message ID.
type Transport interface {
	Send(ctx context.Context, phone, text string) (string, error)
}

const (
	telnyxBaseURL      = "https://api.telnyx.com"
	telnyxMaxRetries   = 3
	telnyxInitialDelay = 500 * time.Millisecond
)

// TelnyxTransport sends WhatsApp text messages through the Telnyx
// messaging API.
type TelnyxTransport struct {
	apiKey       string
	profileID    string
	baseURL      string
	client       *http.Client
	maxRetries   int
	initialDelay time.Duration
}

type telnyxRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type telnyxResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type telnyxError struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// NewTelnyxTransport creates a transport. A nil client falls back to
// http.DefaultClient.
func NewTelnyxTransport(apiKey, profileID, baseURL string, client *http.Client) (*TelnyxTransport, error) {
	if apiKey == "" || profileID == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = telnyxBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TelnyxTransport{
		apiKey:       apiKey,
		profileID:    profileID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		maxRetries:   telnyxMaxRetries,
		initialDelay: telnyxInitialDelay,
	}, nil
}

// Send posts the message, retrying rate limits and server errors with
// exponential backoff.
func (t *TelnyxTransport) Send(ctx context.Context, phone, text string) (string, error) {
	to := store.NormalizePhone(phone)
	if to == "" {
		return "", ErrEmptyPhone
	}
	body, err := json.Marshal(telnyxRequest{From: t.profileID, To: to, Text: text, Type: "text"})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * t.initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v2/messages", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("telnyx request failed: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			var apiErr telnyxError
			if json.Unmarshal(respBody, &apiErr) == nil && len(apiErr.Errors) > 0 {
				e := apiErr.Errors[0]
				lastErr = fmt.Errorf("telnyx API error (%d): %s %s", resp.StatusCode, e.Title, e.Detail)
			} else {
				lastErr = fmt.Errorf("telnyx API error (%d): %s", resp.StatusCode, string(respBody))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return "", lastErr
		}

		var out telnyxResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		return out.Data.ID, nil
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", t.maxRetries, lastErr)
}

// LogTransport writes messages to the logger instead of sending them. It is
// used when no provider is configured and keeps the last messages for
// inspection.
type LogTransport struct {
	logger modular.Logger

	mu   sync.Mutex
	sent []Message
}

// Message is one message captured by LogTransport.
type Message struct {
	ID    string
	Phone string
	Text  string
}

func NewLogTransport(logger modular.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, phone, text string) (string, error) {
	to := store.NormalizePhone(phone)
	if to == "" {
		return "", ErrEmptyPhone
	}
	id := uuid.NewString()
	preview := text
	if r := []rune(preview); len(r) > 50 {
		preview = string(r[:50]) + "..."
	}
	if t.logger != nil {
		t.logger.Info("Message not sent, no transport configured", "to", to, "id", id, "text", preview)
	}
	t.mu.Lock()
	t.sent = append(t.sent, Message{ID: id, Phone: to, Text: text})
	t.mu.Unlock()
	return id, nil
}

// Sent returns a copy of the captured messages.
func (t *LogTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}
