/*
handlers.go - HTTP API handlers for scheduling and payroll

PURPOSE:
  Exposes the schedule expander and payroll calculator via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  the schedule and payroll services.

ENDPOINTS:
  Scheduled packages:
    GET    /api/scheduled-packages                         List (filter by customer_id, caregiver_id)
    POST   /api/scheduled-packages                         Create
    GET    /api/scheduled-packages/{id}                    Get
    GET    /api/scheduled-packages/{id}/occurrences        Expand over ?from=&to=
    POST   /api/scheduled-packages/{id}/exceptions         Add/replace exception
    DELETE /api/scheduled-packages/{id}/exceptions/{date}  Remove exception
    POST   /api/scheduled-packages/{id}/pause|resume|cancel

  Payroll:
    POST   /api/evv-events                    Record check-in/check-out
    PUT    /api/caregivers/{id}/pay-rate      Set pay rate
    POST   /api/caregivers/{id}/timesheets    Calculate one caregiver
    POST   /api/payroll/run                   Calculate all caregivers
    GET    /api/timesheets                    List (?pay_period_id=)
    GET    /api/timesheets/{id}               Get
    POST   /api/timesheets/{id}/approve       Approve (freezes values)
    GET    /api/pay-periods/current           Current pay period

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Invalid state transition (resume after cancel, approve twice)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/payroll"
	"github.com/warp/care-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Schedules *schedule.Service
	Payroll   *payroll.Service
	Logger    *zap.Logger
}

// NewHandler creates a new handler. A nil logger discards output.
func NewHandler(schedules *schedule.Service, pay *payroll.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Schedules: schedules, Payroll: pay, Logger: logger}
}

// =============================================================================
// SCHEDULED PACKAGE HANDLERS
// =============================================================================

// ListScheduledPackages returns packages, optionally filtered.
func (h *Handler) ListScheduledPackages(w http.ResponseWriter, r *http.Request) {
	filter := schedule.Filter{
		CustomerID:  r.URL.Query().Get("customer_id"),
		CaregiverID: r.URL.Query().Get("caregiver_id"),
	}
	packages, err := h.Schedules.List(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list scheduled packages", err)
		return
	}

	dtos := make([]ScheduledPackageDTO, len(packages))
	for i, p := range packages {
		dtos[i] = schedule.ToRecord(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateScheduledPackage creates a package from its wire record.
func (h *Handler) CreateScheduledPackage(w http.ResponseWriter, r *http.Request) {
	var req ScheduledPackageDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := schedule.FromRecord(req)
	if err != nil {
		h.writeDomainError(w, r, "Invalid scheduled package", err)
		return
	}
	created, err := h.Schedules.Create(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create scheduled package", err)
		return
	}

	h.Logger.Info("scheduled package created",
		zap.String("id", created.ID),
		zap.String("customer_id", created.CustomerID),
		zap.String("frequency", created.Frequency.Name()))
	writeJSON(w, http.StatusCreated, schedule.ToRecord(created))
}

// GetScheduledPackage returns a single package.
func (h *Handler) GetScheduledPackage(w http.ResponseWriter, r *http.Request) {
	p, err := h.Schedules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get scheduled package", err)
		return
	}
	writeJSON(w, http.StatusOK, schedule.ToRecord(p))
}

// GetOccurrences expands a package over [from, to].
// GET /api/scheduled-packages/{id}/occurrences?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetOccurrences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, err := generic.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := generic.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	occurrences, err := h.Schedules.Occurrences(r.Context(), id, from, to)
	if err != nil {
		h.writeDomainError(w, r, "Failed to expand occurrences", err)
		return
	}
	writeJSON(w, http.StatusOK, OccurrencesResponse{
		ScheduledPackageID: id,
		From:               from.String(),
		To:                 to.String(),
		Occurrences:        occurrences,
	})
}

// AddException adds or replaces the exception for a date.
func (h *Handler) AddException(w http.ResponseWriter, r *http.Request) {
	var req AddExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	p, err := h.Schedules.AddException(r.Context(), chi.URLParam(r, "id"), date,
		schedule.ExceptionAction(req.Action), req.NewDateTime)
	if err != nil {
		h.writeDomainError(w, r, "Failed to add exception", err)
		return
	}
	writeJSON(w, http.StatusOK, schedule.ToRecord(p))
}

// RemoveException removes the exception for a date.
func (h *Handler) RemoveException(w http.ResponseWriter, r *http.Request) {
	date, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	p, err := h.Schedules.RemoveException(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.writeDomainError(w, r, "Failed to remove exception", err)
		return
	}
	writeJSON(w, http.StatusOK, schedule.ToRecord(p))
}

func (h *Handler) PauseScheduledPackage(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause", h.Schedules.Pause)
}

func (h *Handler) ResumeScheduledPackage(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resume", h.Schedules.Resume)
}

func (h *Handler) CancelScheduledPackage(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", h.Schedules.Cancel)
}

type transitionFunc func(ctx context.Context, id string) (schedule.ScheduledPackage, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, fn transitionFunc) {
	id := chi.URLParam(r, "id")
	p, err := fn(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to "+name+" scheduled package", err)
		return
	}
	h.Logger.Info("scheduled package "+name,
		zap.String("id", id),
		zap.String("status", string(p.Status)))
	writeJSON(w, http.StatusOK, schedule.ToRecord(p))
}

// =============================================================================
// EVV & PAY RATE HANDLERS
// =============================================================================

// RecordEVVEvent stores a check-in/check-out event.
func (h *Handler) RecordEVVEvent(w http.ResponseWriter, r *http.Request) {
	var req EVVEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	e, err := h.Payroll.RecordEvent(r.Context(), payroll.EVVEvent{
		ID:            req.ID,
		CaregiverID:   req.CaregiverID,
		AppointmentID: req.AppointmentID,
		CheckIn:       req.CheckInTime,
		CheckOut:      req.CheckOutTime,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to record EVV event", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// SetPayRate sets a caregiver's hourly and overtime rate.
func (h *Handler) SetPayRate(w http.ResponseWriter, r *http.Request) {
	var req PayRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rate := payroll.PayRate{
		CaregiverID:  chi.URLParam(r, "id"),
		HourlyRate:   req.HourlyRate,
		OvertimeRate: req.OvertimeRate,
	}
	if err := h.Payroll.SetPayRate(r.Context(), rate); err != nil {
		h.writeDomainError(w, r, "Failed to set pay rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

// CalculateTimeSheet (re)calculates one caregiver's timesheet.
// POST /api/caregivers/{id}/timesheets
func (h *Handler) CalculateTimeSheet(w http.ResponseWriter, r *http.Request) {
	date, ok := h.requestDate(w, r)
	if !ok {
		return
	}
	caregiverID := chi.URLParam(r, "id")
	ts, err := h.Payroll.CalculateForCaregiver(r.Context(), caregiverID, date)
	if err != nil {
		h.writeDomainError(w, r, "Failed to calculate timesheet", err)
		return
	}
	if len(ts.Anomalies) > 0 {
		h.Logger.Warn("timesheet calculated with anomalies",
			zap.String("caregiver_id", caregiverID),
			zap.String("pay_period_id", ts.PayPeriodID),
			zap.Int("anomalies", len(ts.Anomalies)))
	}
	writeJSON(w, http.StatusOK, toTimeSheetDTO(ts))
}

// RunPayroll calculates every caregiver for the period containing the date.
// POST /api/payroll/run
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	date, ok := h.requestDate(w, r)
	if !ok {
		return
	}
	result, err := h.Payroll.CalculateAll(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, r, "Failed to run payroll", err)
		return
	}

	resp := PayRunResponse{
		PayPeriod:  toPayPeriodDTO(result.Period),
		TimeSheets: make([]TimeSheetDTO, len(result.Calculated)),
		Skipped:    result.Skipped,
	}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	for i, ts := range result.Calculated {
		resp.TimeSheets[i] = toTimeSheetDTO(ts)
	}
	h.Logger.Info("payroll run",
		zap.String("pay_period_id", result.Period.ID()),
		zap.Int("calculated", len(result.Calculated)),
		zap.Int("skipped", len(result.Skipped)))
	writeJSON(w, http.StatusOK, resp)
}

// ListTimeSheets returns timesheets, optionally for one pay period.
func (h *Handler) ListTimeSheets(w http.ResponseWriter, r *http.Request) {
	periodID := r.URL.Query().Get("pay_period_id")
	if periodID != "" {
		if _, err := generic.ParsePeriodID(periodID); err != nil {
			h.writeDomainError(w, r, "Invalid pay_period_id", err)
			return
		}
	}
	sheets, err := h.Payroll.ListByPeriod(r.Context(), periodID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list timesheets", err)
		return
	}
	dtos := make([]TimeSheetDTO, len(sheets))
	for i, ts := range sheets {
		dtos[i] = toTimeSheetDTO(ts)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTimeSheet returns one timesheet.
func (h *Handler) GetTimeSheet(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Payroll.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get timesheet", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeSheetDTO(ts))
}

// ApproveTimeSheet freezes a calculated timesheet.
func (h *Handler) ApproveTimeSheet(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ts, err := h.Payroll.Approve(r.Context(), chi.URLParam(r, "id"), req.ApprovedBy)
	if err != nil {
		h.writeDomainError(w, r, "Failed to approve timesheet", err)
		return
	}
	h.Logger.Info("timesheet approved",
		zap.String("id", ts.ID),
		zap.String("caregiver_id", ts.CaregiverID),
		zap.String("approved_by", ts.ApprovedBy))
	writeJSON(w, http.StatusOK, toTimeSheetDTO(ts))
}

// CurrentPayPeriod returns the pay period containing today.
func (h *Handler) CurrentPayPeriod(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPayPeriodDTO(h.Payroll.PeriodFor(h.Payroll.Today())))
}

// requestDate reads an optional {"date": "YYYY-MM-DD"} body, defaulting to today.
func (h *Handler) requestDate(w http.ResponseWriter, r *http.Request) (generic.Date, bool) {
	var req CalculateRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return generic.Date{}, false
		}
	}
	if req.Date == "" {
		return h.Payroll.Today(), true
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return generic.Date{}, false
	}
	return date, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
