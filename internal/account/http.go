package account

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
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

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/accounts", h.ListAdmins)
	router.Post("/accounts", h.CreateAdmin)
	router.Put("/accounts/{id}", h.UpdateAdmin)
	router.Delete("/accounts/{id}", h.DeleteAdmin)

	router.Get("/staff", h.ListStaff)
	router.Post("/staff", h.CreateStaff)
	router.Get("/staff/{id}", h.GetStaff)
	router.Put("/staff/{id}", h.UpdateStaff)
	router.Delete("/staff/{id}", h.DeleteStaff)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("id", "Invalid ID.")
	}
	return id, nil
}

// decode reads and validates the body, writing the 400 itself on failure.
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

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.service.ListAdmins(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, admins)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminRequest
	if !h.decode(w, r, &req) {
		return
	}

	admin, err := h.service.CreateAdmin(r.Context(), req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin account created", "username", admin.Username)
	httputil.RespondWithJSON(w, http.StatusCreated, admin)
}

func (h *Handler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	var req UpdateAdminRequest
	if !h.decode(w, r, &req) {
		return
	}

	admin, err := h.service.UpdateAdmin(r.Context(), id, req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, admin)
}

func (h *Handler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	actor, err := auth.RequireAdmin(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteAdmin(r.Context(), actor, id); err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin account deleted", "admin_id", id, "by", actor.Username)
	httputil.RespondWithMessage(w, http.StatusOK, "Admin account deleted successfully.")
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.ListStaff(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, staff)
}

func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	staff, err := h.service.GetStaff(r.Context(), id)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, staff)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if !h.decode(w, r, &req) {
		return
	}

	staff, err := h.service.CreateStaff(r.Context(), req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "staff account created", "staff_id", staff.StaffID)
	httputil.RespondWithJSON(w, http.StatusCreated, staff)
}

func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	var req UpdateStaffRequest
	if !h.decode(w, r, &req) {
		return
	}

	staff, err := h.service.UpdateStaff(r.Context(), id, req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, staff)
}

func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteStaff(r.Context(), id); err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "staff account deleted", "id", id)
	httputil.RespondWithMessage(w, http.StatusOK, "Staff account deleted successfully.")
}
