package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/intake"
	"github.com/GoCodeAlone/taskflow/modules/notify"
)

// SignatureHeader carries the hex HMAC-SHA256 of an inbound webhook body.
const SignatureHeader = "X-Webhook-Signature"

const eventMessageReceived = "message.received"

type inboundEvent struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			Text *struct {
				Body string `json:"body"`
			} `json:"text"`
			From *struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
		} `json:"payload"`
	} `json:"data"`
}

type intakeResponse struct {
	Message    string            `json:"message"`
	Results    []intake.Result   `json:"results"`
	Deliveries []notify.Delivery `json:"deliveries,omitempty"`
}

// verifyWebhook echoes the provider's challenge.
func (s *server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		challenge = "OK"
	}
	_, _ = io.WriteString(w, challenge)
}

func (s *server) inboundWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := s.deps.Webhook.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		s.logger.Warn("Rejected webhook", "error", err, "remote", r.RemoteAddr)
		s.writeError(w, r, err)
		return
	}

	var ev inboundEvent
	if err := decodeBytes(body, &ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	if ev.Data.EventType != eventMessageReceived {
		s.logger.Debug("Ignoring webhook event", "eventType", ev.Data.EventType)
		s.writeJSON(w, http.StatusOK, message{Message: "Webhook processed successfully"})
		return
	}
	p := ev.Data.Payload
	if p.Text == nil || p.From == nil || strings.TrimSpace(p.Text.Body) == "" || p.From.PhoneNumber == "" {
		s.writeError(w, r, fmt.Errorf("%w: text and from", ErrMissingField))
		return
	}

	phone := p.From.PhoneNumber
	s.logger.Info("Inbound message received", "from", phone)
	results, err := s.deps.Intake.Ingest(r.Context(), intake.Request{Text: p.Text.Body, Phone: phone})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	deliveries := s.reply(r.Context(), phone, results)
	s.writeJSON(w, http.StatusOK, intakeResponse{
		Message:    "Webhook processed successfully",
		Results:    results,
		Deliveries: deliveries,
	})
}

type queryRequest struct {
	Phone string `json:"phone"`
	Query string `json:"query"`
}

// whatsappQuery runs a message on behalf of a phone number and sends the
// replies there. Non-admins may only use their own number.
func (s *server) whatsappQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, r, fmt.Errorf("%w: query", ErrMissingField))
		return
	}
	user, _ := UserFrom(r.Context())
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = user.Phone
	}
	if phone == "" {
		s.writeError(w, r, fmt.Errorf("%w: phone", ErrMissingField))
		return
	}
	if !user.Actor().IsAdmin() && phone != user.Phone {
		s.writeError(w, r, fmt.Errorf("%w: cannot query for another number", domain.ErrForbidden))
		return
	}

	results, err := s.deps.Intake.Ingest(r.Context(), intake.Request{Text: req.Query, Phone: phone})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	deliveries := s.reply(r.Context(), phone, results)
	s.writeJSON(w, http.StatusOK, intakeResponse{
		Message:    "Query processed and response sent",
		Results:    results,
		Deliveries: deliveries,
	})
}

func (s *server) reply(ctx context.Context, phone string, results []intake.Result) []notify.Delivery {
	var out []notify.Delivery
	for _, res := range results {
		if res.Reply == "" {
			continue
		}
		out = append(out, s.deps.Notifier.Send(ctx, phone, res.Reply))
	}
	return out
}

func (s *server) sendReminder(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Tasks.GetTaskDetail(r.Context(), actorFrom(r), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	deliveries := s.deps.Tasks.NotifyUsers(r.Context(), detail.Assignees, detail.Task, domain.EventReminder)
	if deliveries == nil {
		deliveries = []notify.Delivery{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Reminders processed",
		"task":          detail.Title,
		"notifications": deliveries,
	})
}

type uploadRequest struct {
	Text string `json:"text"`
}

func (s *server) uploadText(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, fmt.Errorf("%w: text", ErrMissingField))
		return
	}
	results, err := s.deps.Intake.Ingest(r.Context(), intake.Request{
		Text:   req.Text,
		UserID: actorFrom(r).ID,
		Bulk:   true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("Text processed", "actions", len(results))
	s.writeJSON(w, http.StatusOK, intakeResponse{Message: "Text processed successfully", Results: results})
}
