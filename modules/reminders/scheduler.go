// Package reminders runs the periodic notification jobs: overdue and
// upcoming reminders, blocked-task escalation and the daily, weekly and
// monthly summaries.
//
// Jobs are registered by name on a Handle, which owns one cron entry per
// job. A job can be paused, resumed, removed, replaced or run on demand.
// Jobs only read task state and send messages, so running one twice
// without a state change sends the same set of messages.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
)

// JobFunc is the body of a job.
type JobFunc func(ctx context.Context) (JobReport, error)

// JobInfo describes a registered job.
type JobInfo struct {
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	Paused    bool       `json:"paused"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Runs      int        `json:"runs"`
}

type job struct {
	name     string
	spec     string
	schedule cron.Schedule
	fn       JobFunc
	entry    cron.EntryID
	paused   bool
	running  bool
	lastRun  time.Time
	lastErr  string
	runs     int
}

// Handle owns the cron entries of the registered jobs.
type Handle struct {
	cron      *cron.Cron
	location  *time.Location
	logger    modular.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	started bool

	ctx    context.Context
	cancel context.CancelFunc
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithLocation sets the timezone cron specs are evaluated in.
func WithLocation(loc *time.Location) HandleOption {
	return func(h *Handle) {
		if loc != nil {
			h.location = loc
		}
	}
}

func WithMetrics(m *metrics.Metrics) HandleOption {
	return func(h *Handle) { h.metrics = m }
}

func WithPublisher(p events.Publisher) HandleOption {
	return func(h *Handle) {
		if p != nil {
			h.publisher = p
		}
	}
}

// WithHandleClock sets the clock used for run timestamps and next-run
// estimates.
func WithHandleClock(now func() time.Time) HandleOption {
	return func(h *Handle) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandle creates a stopped handle.
func NewHandle(logger modular.Logger, opts ...HandleOption) *Handle {
	h := &Handle{
		location:  time.UTC,
		logger:    logger,
		publisher: events.Nop{},
		now:       time.Now,
		jobs:      make(map[string]*job),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	cl := cronLogger{logger: logger}
	h.cron = cron.New(
		cron.WithLocation(h.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return h
}

// Schedule registers fn under name, replacing any job with that name.
func (h *Handle) Schedule(name, spec string, fn JobFunc) error {
	if name == "" {
		return ErrEmptyJobName
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilJob, name)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidSpec, spec, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.jobs[name]; ok {
		h.cron.Remove(old.entry)
	}
	j := &job{name: name, spec: spec, schedule: schedule, fn: fn}
	h.addEntry(j)
	h.jobs[name] = j
	h.logger.Info("Scheduled job", "name", name, "spec", spec)
	return nil
}

// addEntry registers j with cron. Callers hold h.mu.
func (h *Handle) addEntry(j *job) {
	name := j.name
	j.entry = h.cron.Schedule(j.schedule, cron.FuncJob(func() {
		if _, err := h.Run(h.ctx, name); err != nil && !errors.Is(err, ErrJobRunning) {
			h.logger.Error("Scheduled job failed", "name", name, "error", err)
		}
	}))
}

// Pause stops future runs of name until Resume.
func (h *Handle) Pause(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.paused {
		return nil
	}
	h.cron.Remove(j.entry)
	j.paused = true
	h.logger.Info("Paused job", "name", name)
	return nil
}

// Resume re-enables a paused job.
func (h *Handle) Resume(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if !j.paused {
		return nil
	}
	h.addEntry(j)
	j.paused = false
	h.logger.Info("Resumed job", "name", name)
	return nil
}

// Remove unregisters name.
func (h *Handle) Remove(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	h.cron.Remove(j.entry)
	delete(h.jobs, name)
	h.logger.Info("Removed job", "name", name)
	return nil
}

// List returns every job ordered by name.
func (h *Handle) List() []JobInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobInfo, 0, len(h.jobs))
	for _, j := range h.jobs {
		out = append(out, h.info(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Status describes one job.
func (h *Handle) Status(name string) (JobInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[name]
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return h.info(j), nil
}

func (h *Handle) info(j *job) JobInfo {
	info := JobInfo{
		Name:      j.name,
		Spec:      j.spec,
		Paused:    j.paused,
		Running:   j.running,
		LastError: j.lastErr,
		Runs:      j.runs,
	}
	if !j.lastRun.IsZero() {
		last := j.lastRun
		info.LastRun = &last
	}
	if !j.paused {
		next := j.schedule.Next(h.now().In(h.location))
		info.NextRun = &next
	}
	return info
}

// Run executes name now. A run that overlaps another run of the same job
// fails with ErrJobRunning.
func (h *Handle) Run(ctx context.Context, name string) (report JobReport, err error) {
	h.mu.Lock()
	j, ok := h.jobs[name]
	if !ok {
		h.mu.Unlock()
		return JobReport{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.running {
		h.mu.Unlock()
		return JobReport{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	j.running = true
	fn := j.fn
	h.mu.Unlock()

	start := h.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		h.finish(ctx, j, start, report, err)
	}()

	h.logger.Info("Running job", "name", name)
	report, err = fn(ctx)
	report.Job = name
	return report, err
}

func (h *Handle) finish(ctx context.Context, j *job, start time.Time, report JobReport, err error) {
	took := h.now().Sub(start)

	h.mu.Lock()
	j.running = false
	j.lastRun = start
	j.runs++
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	h.mu.Unlock()

	h.metrics.JobRun(j.name, err, took)
	data := map[string]any{
		"job":        j.name,
		"deliveries": len(report.Deliveries),
		"failed":     report.Failed(),
		"errors":     len(report.Errors),
		"durationMs": took.Milliseconds(),
	}
	if err != nil {
		data["error"] = err.Error()
		h.publisher.Publish(ctx, events.JobFailed, data)
		h.logger.Error("Job failed", "name", j.name, "error", err)
		return
	}
	h.publisher.Publish(ctx, events.JobCompleted, data)
	h.logger.Info("Job completed", "name", j.name, "deliveries", len(report.Deliveries), "errors", len(report.Errors))
}

// Start begins firing cron entries.
func (h *Handle) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.cron.Start()
	h.started = true
	h.logger.Info("Reminder scheduler started", "jobs", len(h.jobs), "location", h.location.String())
}

// Shutdown stops firing entries, cancels running jobs and waits for them
// until ctx is done.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		h.cancel()
		return nil
	}
	h.started = false
	h.mu.Unlock()

	h.cancel()
	stopped := h.cron.Stop()
	select {
	case <-stopped.Done():
		h.logger.Info("Reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Reminder scheduler shutdown timed out")
		return fmt.Errorf("reminder scheduler shutdown: %w", ctx.Err())
	}
}

// cronLogger adapts modular.Logger to cron.Logger.
type cronLogger struct {
	logger modular.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
