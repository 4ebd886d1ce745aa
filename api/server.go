/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the scheduling front end

ROUTE GROUPS:
  /api/scheduled-packages/*   Recurring schedules, exceptions, lifecycle
  /api/evv-events             Check-in/check-out capture
  /api/caregivers/*           Pay rates, per-caregiver timesheets
  /api/timesheets/*           Timesheet lookup and approval
  /api/payroll/run            Pay run over all caregivers
  /api/pay-periods/current    Current pay period

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultCORSOrigins is used when NewRouter gets no origins.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/scheduled-packages", func(r chi.Router) {
			r.Get("/", h.ListScheduledPackages)
			r.Post("/", h.CreateScheduledPackage)
			r.Get("/{id}", h.GetScheduledPackage)
			r.Get("/{id}/occurrences", h.GetOccurrences)
			r.Post("/{id}/exceptions", h.AddException)
			r.Delete("/{id}/exceptions/{date}", h.RemoveException)
			r.Post("/{id}/pause", h.PauseScheduledPackage)
			r.Post("/{id}/resume", h.ResumeScheduledPackage)
			r.Post("/{id}/cancel", h.CancelScheduledPackage)
		})

		r.Post("/evv-events", h.RecordEVVEvent)

		r.Route("/caregivers", func(r chi.Router) {
			r.Put("/{id}/pay-rate", h.SetPayRate)
			r.Post("/{id}/timesheets", h.CalculateTimeSheet)
		})

		r.Route("/timesheets", func(r chi.Router) {
			r.Get("/", h.ListTimeSheets)
			r.Get("/{id}", h.GetTimeSheet)
			r.Post("/{id}/approve", h.ApproveTimeSheet)
		})

		r.Post("/payroll/run", h.RunPayroll)
		r.Get("/pay-periods/current", h.CurrentPayPeriod)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
