// Package api exposes the task service, intake pipeline and scheduler over
// HTTP with a chi router.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/taskflow/modules/intake"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/reminders"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// Deps are the services the routes call. Scheduler, Jobs, Webhook and
// Metrics are optional; their routes answer 503 when absent.
type Deps struct {
	Tasks     *tasks.Service
	Intake    *intake.Pipeline
	Notifier  *notify.Dispatcher
	Webhook   *notify.Webhook
	Scheduler *reminders.Handle
	Jobs      *reminders.Reminders
	Metrics   *metrics.Metrics
}

type server struct {
	config *Config
	deps   Deps
	auth   *Authenticator
	logger modular.Logger
}

// NewRouter builds the API router.
func NewRouter(cfg *Config, deps Deps, logger modular.Logger) (chi.Router, error) {
	if deps.Tasks == nil || deps.Intake == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("%w: tasks, intake and notifier are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT secret not configured, authenticated routes will reject every request")
	}
	s := &server{
		config: cfg,
		deps:   deps,
		auth:   NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, deps.Tasks.Store(), deps.Tasks.Now),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/whatsapp", func(r chi.Router) {
			r.Get("/webhook", s.verifyWebhook)
			r.Post("/webhook", s.inboundWebhook)
			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Post("/query", s.whatsappQuery)
				r.Post("/reminder/{taskID}", s.sendReminder)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.listTasks)
				r.Post("/", s.createTask)
				r.Get("/stats", s.taskStats)
				r.Get("/upcoming", s.upcomingTasks)
				r.Get("/{taskID}", s.getTask)
				r.Put("/{taskID}", s.updateTask)
				r.Delete("/{taskID}", s.deleteTask)
			})
			r.Route("/blockers", func(r chi.Router) {
				r.Get("/", s.listBlockers)
				r.Post("/", s.createBlocker)
				r.Get("/{blockerID}", s.getBlocker)
				r.Put("/{blockerID}", s.updateBlocker)
				r.Delete("/{blockerID}", s.deleteBlocker)
			})
			r.Route("/dependencies", func(r chi.Router) {
				r.Get("/", s.listDependencies)
				r.Post("/", s.createDependency)
				r.Delete("/{dependencyID}", s.deleteDependency)
			})
			r.Post("/upload/text", s.uploadText)

			r.Route("/scheduler", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/jobs", s.listJobs)
				r.Get("/jobs/{name}", s.getJob)
				r.Post("/jobs/{name}/run", s.runJob)
				r.Post("/jobs/{name}/pause", s.pauseJob)
				r.Post("/jobs/{name}/resume", s.resumeJob)
				r.Post("/trigger/overdue", s.triggerOverdue)
				r.Post("/trigger/upcoming", s.triggerUpcoming)
				r.Post("/trigger/weekly-summary", s.triggerWeeklySummary)
			})
		})
	})
	return r, nil
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("Request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if len(s.config.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.config.AllowedMethods, ", "))
			}
			if len(s.config.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.config.AllowedHeaders, ", "))
			}
			if s.config.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if s.config.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.config.MaxAge))
			}
		}

		// Preflight
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "OK",
		"timestamp": s.deps.Tasks.Now().UTC().Format(time.RFC3339),
	}
	if err := s.deps.Tasks.Store().Ping(r.Context()); err != nil {
		s.logger.Warn("Health check failed", "error", err)
		body["status"] = "UNAVAILABLE"
		s.writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}
