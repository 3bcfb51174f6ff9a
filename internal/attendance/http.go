package attendance

import (
	"log/slog"
	"net/http"

	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the staff endpoints. The router is expected to be behind auth.StaffOnly.
func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/attendance/check-in", h.CheckIn)
	router.Post("/attendance/check-out", h.CheckOut)
	router.Post("/attendance/absences", h.MarkAbsent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httputil.RespondWithErrorDetails(w, http.StatusBadRequest, "Invalid or missing fields.", err.Error())
		return false
	}
	return true
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	staff, err := auth.RequireStaff(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	var req StudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.service.CheckIn(r.Context(), staff, req.StudentID)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusCreated, record)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	staff, err := auth.RequireStaff(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	var req StudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.service.CheckOut(r.Context(), staff, req.StudentID)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, record)
}

func (h *Handler) MarkAbsent(w http.ResponseWriter, r *http.Request) {
	staff, err := auth.RequireStaff(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	var req AbsenceRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.service.MarkAbsent(r.Context(), staff, req.StudentID, req.Reason)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "absence recorded", "student_id", record.StudentID, "staff_id", staff.StaffID)
	httputil.RespondWithJSON(w, http.StatusCreated, record)
}
