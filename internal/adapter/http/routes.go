package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/DealWatch/internal/middleware"
)

// apiTimeout bounds a single API request. /ws is mounted outside it.
const apiTimeout = 30 * time.Second

// RouteOptions configures the cross-cutting guards of MountRoutes.
type RouteOptions struct {
	// HookSecret returns the shared secret for signed hook calls. An empty
	// secret disables the hook endpoints with 503.
	HookSecret func() string
	// RateLimiter throttles the API per client IP. Nil disables it.
	RateLimiter *middleware.RateLimiter
	// WebSocket serves the browser push session on /ws. Nil leaves it unmounted.
	WebSocket http.HandlerFunc
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Get("/health", h.Health)
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket)
	}

	hookSecret := opts.HookSecret
	if hookSecret == nil {
		hookSecret = func() string { return "" }
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Handler)
		}

		// Signed hooks for external schedulers (no X-User-ID)
		r.With(middleware.WebhookHMAC(hookSecret, middleware.HeaderSignature)).
			Post("/hooks/run-job", h.HookRunJob)

		r.Group(func(r chi.Router) {
			r.Use(middleware.UserID)

			// Monitoring rules
			r.Get("/rules", handleList(h.Rules.List))
			r.Post("/rules", handleCreate(h.Rules.Create))
			r.Get("/rules/{id}", handleGet(h.Rules.Get, "rule not found"))
			r.Put("/rules/{id}", handleUpdate(h.Rules.Update, "rule not found"))
			r.Delete("/rules/{id}", handleDelete(h.Rules.Delete, "rule not found"))
			r.Post("/rules/{id}/toggle", handleToggle(h.Rules.Toggle, "rule not found"))
			r.Get("/rules/{id}/deals", handleListByID(h.Deals.ListByRule, "rule not found"))

			// Deals
			r.Get("/deals", h.ListDeals)

			// Push alerts
			r.Get("/alerts", handleList(h.Alerts.List))
			r.Post("/alerts", handleCreate(h.Alerts.Create))
			r.Put("/alerts/{id}", handleUpdate(h.Alerts.Update, "alert not found"))
			r.Delete("/alerts/{id}", handleDelete(h.Alerts.Delete, "alert not found"))
			r.Post("/alerts/{id}/toggle", handleToggle(h.Alerts.Toggle, "alert not found"))

			// Jobs
			r.Get("/jobs/logs", h.ListJobLogs)
			r.Post("/jobs/run", h.RunJob)
		})
	})
}
