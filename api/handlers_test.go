/*
handlers_test.go - HTTP-level tests for the API handlers

Tests for:
- Scheduled package CRUD, exceptions and lifecycle over HTTP
- Payroll flow: pay rate, EVV events, timesheet, approval, pay run
- Error taxonomy mapping (400 / 404 / 409)
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/care-engine/api"
	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/payroll"
	"github.com/warp/care-engine/schedule"
	"github.com/warp/care-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var wednesday = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	pay := payroll.NewService(store, generic.PeriodConfig{
		Type:   generic.PeriodBiweekly,
		Anchor: generic.NewDate(2024, time.January, 1),
	})
	pay.Now = func() time.Time { return wednesday }

	h := api.NewHandler(schedule.NewService(store), pay, zap.NewNop())
	return api.NewRouter(h, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func weeklyRequest() map[string]any {
	return map[string]any{
		"customer_id":      "cust-1",
		"package_id":       "pkg-1",
		"caregiver_id":     "cg-1",
		"frequency":        "weekly",
		"start_date":       "2024-01-01",
		"start_time":       "09:00",
		"duration_minutes": 120,
	}
}

func createPackage(t *testing.T, h http.Handler) string {
	rec := do(t, h, http.MethodPost, "/api/scheduled-packages", weeklyRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.ScheduledPackageDTO](t, rec)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func occurrenceCount(t *testing.T, h http.Handler, id string) int {
	rec := do(t, h, http.MethodGet, "/api/scheduled-packages/"+id+"/occurrences?from=2024-01-01&to=2024-01-22", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return len(decode[api.OccurrencesResponse](t, rec).Occurrences)
}

// =============================================================================
// SCHEDULED PACKAGES
// =============================================================================

func TestScheduledPackages_CreateAndExpand(t *testing.T) {
	h := newTestRouter(t)
	id := createPackage(t, h)

	rec := do(t, h, http.MethodGet, "/api/scheduled-packages/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.ScheduledPackageDTO](t, rec)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "09:00", got.StartTime)

	rec = do(t, h, http.MethodGet, "/api/scheduled-packages/"+id+"/occurrences?from=2024-01-01&to=2024-01-22", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.OccurrencesResponse](t, rec)
	require.Len(t, resp.Occurrences, 4)
	assert.Equal(t, id, resp.ScheduledPackageID)
	assert.Equal(t, time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC), resp.Occurrences[1].Start.UTC())
}

func TestScheduledPackages_Exceptions(t *testing.T) {
	h := newTestRouter(t)
	id := createPackage(t, h)

	rec := do(t, h, http.MethodPost, "/api/scheduled-packages/"+id+"/exceptions",
		map[string]any{"date": "2024-01-08", "action": "skip"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[api.ScheduledPackageDTO](t, rec).Exceptions, 1)
	assert.Equal(t, 3, occurrenceCount(t, h, id))

	rec = do(t, h, http.MethodPost, "/api/scheduled-packages/"+id+"/exceptions",
		map[string]any{"date": "2024-01-15", "action": "reschedule", "new_date_time": "2024-01-16T13:00:00Z"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, occurrenceCount(t, h, id))

	rec = do(t, h, http.MethodDelete, "/api/scheduled-packages/"+id+"/exceptions/2024-01-08", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, occurrenceCount(t, h, id))
}

func TestScheduledPackages_ListFilter(t *testing.T) {
	h := newTestRouter(t)
	createPackage(t, h)
	other := weeklyRequest()
	other["customer_id"] = "cust-2"
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/scheduled-packages", other).Code)

	rec := do(t, h, http.MethodGet, "/api/scheduled-packages?customer_id=cust-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ScheduledPackageDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "cust-2", list[0].CustomerID)
}

func TestScheduledPackages_Lifecycle(t *testing.T) {
	h := newTestRouter(t)
	id := createPackage(t, h)

	rec := do(t, h, http.MethodPost, "/api/scheduled-packages/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decode[api.ScheduledPackageDTO](t, rec).Status)
	assert.Equal(t, 0, occurrenceCount(t, h, id))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/scheduled-packages/"+id+"/resume", nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/scheduled-packages/"+id+"/cancel", nil).Code)

	rec = do(t, h, http.MethodPost, "/api/scheduled-packages/"+id+"/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, "cannot resume from state cancelled")
}

func TestScheduledPackages_Errors(t *testing.T) {
	h := newTestRouter(t)
	id := createPackage(t, h)

	bad := weeklyRequest()
	bad["frequency"] = "hourly"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown frequency", http.MethodPost, "/api/scheduled-packages", bad, http.StatusBadRequest},
		{"missing package", http.MethodGet, "/api/scheduled-packages/missing", nil, http.StatusNotFound},
		{"bad window date", http.MethodGet, "/api/scheduled-packages/" + id + "/occurrences?from=jan&to=2024-01-31", nil, http.StatusBadRequest},
		{"inverted window", http.MethodGet, "/api/scheduled-packages/" + id + "/occurrences?from=2024-01-31&to=2024-01-01", nil, http.StatusBadRequest},
		{"exception off cadence", http.MethodPost, "/api/scheduled-packages/" + id + "/exceptions", map[string]any{"date": "2024-01-09", "action": "skip"}, http.StatusBadRequest},
		{"exception before start", http.MethodPost, "/api/scheduled-packages/" + id + "/exceptions", map[string]any{"date": "2023-12-25", "action": "skip"}, http.StatusBadRequest},
		{"reschedule without time", http.MethodPost, "/api/scheduled-packages/" + id + "/exceptions", map[string]any{"date": "2024-01-08", "action": "reschedule"}, http.StatusBadRequest},
		{"exception on missing package", http.MethodPost, "/api/scheduled-packages/missing/exceptions", map[string]any{"date": "2024-01-08", "action": "skip"}, http.StatusNotFound},
		{"pause missing", http.MethodPost, "/api/scheduled-packages/missing/pause", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

// =============================================================================
// PAYROLL
// =============================================================================

func recordVisit(t *testing.T, h http.Handler, caregiverID, in, out string) {
	rec := do(t, h, http.MethodPost, "/api/evv-events", map[string]any{
		"caregiver_id":   caregiverID,
		"check_in_time":  in,
		"check_out_time": out,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestPayroll_CalculateApproveFlow(t *testing.T) {
	// GIVEN: A caregiver at $20/h with an 8h and a 9h visit
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPut, "/api/caregivers/cg-1/pay-rate", map[string]any{"hourly_rate": "20"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recordVisit(t, h, "cg-1", "2024-01-02T08:00:00Z", "2024-01-02T16:00:00Z")
	recordVisit(t, h, "cg-1", "2024-01-03T08:00:00Z", "2024-01-03T17:00:00Z")

	// WHEN: Calculating the current period
	rec = do(t, h, http.MethodPost, "/api/caregivers/cg-1/timesheets", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sheet := decode[map[string]any](t, rec)

	// THEN: Hours and pay are in the body as exact decimal strings
	assert.Equal(t, "2024-01-01_2024-01-14", sheet["pay_period_id"])
	assert.Equal(t, "2024-01-01", sheet["period_start"])
	assert.Equal(t, "17", sheet["regular_hours"])
	assert.Equal(t, "340", sheet["gross_pay"])
	assert.Equal(t, "256.19", sheet["net_pay"])
	assert.Equal(t, "calculated", sheet["status"])
	id := sheet["id"].(string)

	// AND: Approval freezes the sheet
	rec = do(t, h, http.MethodPost, "/api/timesheets/"+id+"/approve", map[string]any{"approved_by": "supervisor-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decode[map[string]any](t, rec)["status"])

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/timesheets/"+id+"/approve", map[string]any{"approved_by": "supervisor-2"}).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/caregivers/cg-1/timesheets", nil).Code)

	rec = do(t, h, http.MethodGet, "/api/timesheets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "supervisor-1", decode[map[string]any](t, rec)["approved_by"])
}

func TestPayroll_AnomaliesReported(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/caregivers/cg-1/pay-rate", map[string]any{"hourly_rate": 20}).Code)
	recordVisit(t, h, "cg-1", "2024-01-02T17:00:00Z", "2024-01-02T09:00:00Z")

	rec := do(t, h, http.MethodPost, "/api/caregivers/cg-1/timesheets", map[string]any{"date": "2024-01-05"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sheet := decode[api.TimeSheetDTO](t, rec)
	require.Len(t, sheet.Anomalies, 1)
	assert.Equal(t, generic.AnomalyCheckOutBeforeCheckIn, sheet.Anomalies[0].Kind)
	assert.True(t, sheet.GrossPay.IsZero())
}

func TestPayroll_RunAndList(t *testing.T) {
	h := newTestRouter(t)
	for _, id := range []string{"cg-1", "cg-2"} {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/caregivers/"+id+"/pay-rate", map[string]any{"hourly_rate": "20"}).Code)
		recordVisit(t, h, id, "2024-01-02T08:00:00Z", "2024-01-02T16:00:00Z")
	}

	rec := do(t, h, http.MethodPost, "/api/payroll/run", map[string]any{"date": "2024-01-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[api.PayRunResponse](t, rec)
	assert.Equal(t, "2024-01-01_2024-01-14", run.PayPeriod.ID)
	assert.Len(t, run.TimeSheets, 2)
	assert.Empty(t, run.Skipped)

	rec = do(t, h, http.MethodGet, "/api/timesheets?pay_period_id=2024-01-01_2024-01-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.TimeSheetDTO](t, rec), 2)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/timesheets?pay_period_id=last-week", nil).Code)
}

func TestPayroll_Errors(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"no pay rate", http.MethodPost, "/api/caregivers/cg-9/timesheets", nil, http.StatusNotFound},
		{"zero pay rate", http.MethodPut, "/api/caregivers/cg-1/pay-rate", map[string]any{"hourly_rate": 0}, http.StatusBadRequest},
		{"event without times", http.MethodPost, "/api/evv-events", map[string]any{"caregiver_id": "cg-1"}, http.StatusBadRequest},
		{"event without caregiver", http.MethodPost, "/api/evv-events", map[string]any{"check_in_time": "2024-01-02T08:00:00Z"}, http.StatusBadRequest},
		{"bad run date", http.MethodPost, "/api/payroll/run", map[string]any{"date": "10/01/2024"}, http.StatusBadRequest},
		{"missing timesheet", http.MethodGet, "/api/timesheets/missing", nil, http.StatusNotFound},
		{"approve missing", http.MethodPost, "/api/timesheets/missing/approve", map[string]any{"approved_by": "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPayroll_RunWithChunkedBody(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/caregivers/cg-1/pay-rate", map[string]any{"hourly_rate": "20"}).Code)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payroll/run", strings.NewReader(body))
		req.ContentLength = -1 // chunked transfer, length unknown
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// An empty chunked body falls back to today
	rec := send("")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-01-01_2024-01-14", decode[api.PayRunResponse](t, rec).PayPeriod.ID)

	// A chunked body still carries the date
	rec = send(`{"date": "2024-01-20"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-01-15_2024-01-28", decode[api.PayRunResponse](t, rec).PayPeriod.ID)

	// Malformed JSON is still rejected
	assert.Equal(t, http.StatusBadRequest, send(`{"date":`).Code)
}

func TestCurrentPayPeriod(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/pay-periods/current", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.PayPeriodDTO{ID: "2024-01-01_2024-01-14", Start: "2024-01-01", End: "2024-01-14"},
		decode[api.PayPeriodDTO](t, rec))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/scheduled-packages", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
