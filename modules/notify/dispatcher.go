package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
)

// KindMessage labels free-form messages sent with Dispatcher.Send.
const KindMessage domain.EventKind = "message"

// Delivery outcomes.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Delivery is the outcome of one send attempt.
type Delivery struct {
	UserID    string           `json:"userId,omitempty"`
	Phone     string           `json:"phone"`
	Kind      domain.EventKind `json:"kind"`
	Status    string           `json:"status"`
	MessageID string           `json:"messageId,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Failed reports whether the attempt did not reach the transport.
func (d Delivery) Failed() bool { return d.Status == StatusFailed }

// Dispatcher formats and sends notifications. Transport errors never
// escape: every attempt ends as a Delivery.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	logger    modular.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each send. Zero disables the bound.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

func WithPublisher(p events.Publisher) DispatcherOption {
	return func(disp *Dispatcher) {
		if p != nil {
			disp.publisher = p
		}
	}
}

// NewDispatcher creates a dispatcher over transport.
func NewDispatcher(transport Transport, logger modular.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		timeout:   10 * time.Second,
		logger:    logger,
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify renders the template for kind and sends it to phone.
func (d *Dispatcher) Notify(ctx context.Context, phone string, task domain.Task, kind domain.EventKind) Delivery {
	del := d.deliver(ctx, phone, Render(task, kind), kind)
	d.record(ctx, del, task.ID)
	return del
}

// Send delivers free-form text, such as an intake reply or a summary.
func (d *Dispatcher) Send(ctx context.Context, phone, text string) Delivery {
	del := d.deliver(ctx, phone, text, KindMessage)
	d.record(ctx, del, "")
	return del
}

// SendTo is Send with the recipient's user ID recorded on the delivery.
func (d *Dispatcher) SendTo(ctx context.Context, user domain.User, text string) Delivery {
	del := d.deliver(ctx, user.Phone, text, KindMessage)
	del.UserID = user.ID
	d.record(ctx, del, "")
	return del
}

// NotifyAll sends to every recipient concurrently and waits for all
// attempts. Results are in recipient order.
func (d *Dispatcher) NotifyAll(ctx context.Context, recipients []domain.User, task domain.Task, kind domain.EventKind) []Delivery {
	if len(recipients) == 0 {
		return nil
	}
	text := Render(task, kind)
	out := make([]Delivery, len(recipients))
	var wg sync.WaitGroup
	for i, u := range recipients {
		wg.Add(1)
		go func(i int, u domain.User) {
			defer wg.Done()
			del := d.deliver(ctx, u.Phone, text, kind)
			del.UserID = u.ID
			out[i] = del
		}(i, u)
	}
	wg.Wait()
	for _, del := range out {
		d.record(ctx, del, task.ID)
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, phone, text string, kind domain.EventKind) Delivery {
	del := Delivery{Phone: phone, Kind: kind}
	if phone == "" {
		del.Status, del.Error = StatusFailed, ErrEmptyPhone.Error()
		return del
	}
	if text == "" {
		del.Status, del.Error = StatusFailed, ErrEmptyMessage.Error()
		return del
	}
	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	id, err := d.send(sendCtx, phone, text)
	if err != nil {
		del.Status, del.Error = StatusFailed, err.Error()
		return del
	}
	del.Status, del.MessageID = StatusSent, id
	return del
}

// send calls the transport, reporting a panic as ErrTransportPanic.
func (d *Dispatcher) send(ctx context.Context, phone, text string) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransportPanic, r)
			if d.logger != nil {
				d.logger.Error("Transport panicked", "phone", phone, "panic", r)
			}
		}
	}()
	return d.transport.Send(ctx, phone, text)
}

func (d *Dispatcher) record(ctx context.Context, del Delivery, taskID string) {
	d.metrics.Notification(del.Kind, del.Status)
	data := map[string]any{
		"kind":   string(del.Kind),
		"userId": del.UserID,
		"status": del.Status,
	}
	if taskID != "" {
		data["taskId"] = taskID
	}
	if del.Failed() {
		data["error"] = del.Error
		if d.logger != nil {
			d.logger.Warn("Notification failed", "kind", del.Kind, "userId", del.UserID, "taskId", taskID, "error", del.Error)
		}
		d.publisher.Publish(ctx, events.NotificationFailed, data)
		return
	}
	data["messageId"] = del.MessageID
	d.publisher.Publish(ctx, events.NotificationSent, data)
}
