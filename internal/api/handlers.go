package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slotbook/internal/export"
	"slotbook/internal/models"
	"slotbook/internal/service"
	"slotbook/internal/worker"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	msgInternal      = "internal server error"
	msgInvalidBody   = "invalid JSON body"
	msgDateRequired  = "date is required"
	msgEmailRequired = "email is required"
	msgCodeRequired  = "code is required"
	msgInvalidAction = "invalid action"
	msgCodeSent      = "verification code sent"
	msgInvalidID     = "invalid id"

	maxBodyBytes = 64 << 10
)

type availabilityAPI interface {
	Resolve(ctx context.Context, date string) ([]string, error)
	ResolveMany(ctx context.Context, dates []string) (map[string][]string, error)
	SetOverride(ctx context.Context, date string, slots []string) (*models.AvailabilityOverride, error)
	Overrides(ctx context.Context) ([]models.AvailabilityOverride, error)
}

type bookingAPI interface {
	Book(ctx context.Context, req service.BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsByDate(ctx context.Context, date string) ([]models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error)
}

type verificationAPI interface {
	RequestCode(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
}

type outboxAPI interface {
	FailedTasks(ctx context.Context) ([]models.OutboxTask, error)
	Requeue(ctx context.Context, id int64) (*models.OutboxTask, error)
}

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// GET /availability?date=YYYY-MM-DD
func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, msgDateRequired)
		return
	}

	slots, err := s.availability.Resolve(r.Context(), date)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// POST /availability {date, slots}
func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(body.Date) == "" || body.Slots == nil {
		writeError(w, http.StatusBadRequest, "date and slots are required")
		return
	}

	override, err := s.availability.SetOverride(r.Context(), strings.TrimSpace(body.Date), body.Slots)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "availability": override})
}

// GET /availability/overrides
func (s *HTTPServer) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.availability.Overrides(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

// POST /availability/bulk {dates}
func (s *HTTPServer) handleAvailabilityBulk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Dates []string `json:"dates"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	dates := make([]string, 0, len(body.Dates))
	for _, d := range body.Dates {
		if d = strings.TrimSpace(d); d != "" {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		writeError(w, http.StatusBadRequest, "dates is required")
		return
	}

	byDate, err := s.availability.ResolveMany(r.Context(), dates)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	results := make([]map[string]any, 0, len(dates))
	for _, d := range dates {
		results = append(results, map[string]any{"date": d, "slots": byDate[d]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// POST /book
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req service.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	booking, err := s.bookings.Book(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": booking})
}

// POST /verify-email {email, action: send|verify, code}
func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email  string `json:"email"`
		Action string `json:"action"`
		Code   string `json:"code"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, msgEmailRequired)
		return
	}

	switch body.Action {
	case "send":
		if err := s.verification.RequestCode(r.Context(), body.Email); err != nil {
			respondServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msgCodeSent})
	case "verify":
		if strings.TrimSpace(body.Code) == "" {
			writeError(w, http.StatusBadRequest, msgCodeRequired)
			return
		}
		if err := s.verification.Verify(r.Context(), body.Email, body.Code); err != nil {
			respondServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "verified": true})
	default:
		writeError(w, http.StatusBadRequest, msgInvalidAction)
	}
}

// GET /bookings?date= or ?from=&to=
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		list []models.Booking
		err  error
	)
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		list, err = s.bookings.ListBookingsByDate(r.Context(), date)
	} else {
		from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
		if from == "" || to == "" {
			writeError(w, http.StatusBadRequest, "date or from and to are required")
			return
		}
		list, err = s.bookings.GetBookingsByDateRange(r.Context(), from, to)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// GET /bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

// GET /outbox/failed
func (s *HTTPServer) handleFailedTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.outbox.FailedTasks(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// POST /outbox/{id}/requeue
func (s *HTTPServer) handleRequeueTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := s.outbox.Requeue(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Int64("task_id", id).Msg("outbox task requeued by operator")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// GET /bookings/export?from=&to=
func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	from, to := strings.TrimSpace(r.URL.Query().Get("from")), strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	list, err := s.bookings.GetBookingsByDateRange(r.Context(), from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	f, err := export.BookingsXLSX(list, from, to)
	if err != nil {
		respondServiceError(w, r, fmt.Errorf("build export: %w", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bookings_%s_to_%s.xlsx"`, from, to))
	if err := f.Write(w); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("write export")
	}
}

// GET /healthz
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, hc := range s.health {
		if err := hc.Check(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("component", hc.Name).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": hc.Name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondServiceError maps service sentinels to status codes; anything else is a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrSlotNotOffered),
		errors.Is(err, service.ErrCodeInvalid),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrSlotTaken),
		errors.Is(err, worker.ErrTaskNotRequeueable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTooManyRequests):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
