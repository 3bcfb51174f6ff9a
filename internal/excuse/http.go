package excuse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

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
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:  service,
		validate: validate,
		logger:   logger,
	}
}

// RegisterAdminRoutes mounts listing and adjudication behind auth.AdminOnly.
func (h *Handler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/excuses", h.List)
	router.Post("/excuses/{id}/{action}", h.Adjudicate)
}

// RegisterClientRoutes mounts submission for any staff and adjudication for teachers.
func (h *Handler) RegisterClientRoutes(router chi.Router) {
	router.Post("/excuses", h.Submit)
	router.With(auth.TeacherOnly).Post("/excuses/{id}/{action}", h.Adjudicate)
}

// fieldError turns the first validation failure into a field-level message.
func fieldError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperr.Invalid("body", "Invalid request body")
	}
	fe := errs[0]
	if fe.Tag() == "required" {
		return apperr.Invalid(fe.Field(), fmt.Sprintf("Missing required field: %s.", fe.Field()))
	}
	return apperr.Invalid(fe.Field(), fmt.Sprintf("Invalid value for %s.", fe.Field()))
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	requester, err := auth.RequireStaff(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	var req SubmitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, fieldError(err))
		return
	}

	created, err := h.service.Submit(r.Context(), requester, req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	message := "Excuse request submitted successfully."
	if created.Result == ResultExcused {
		message = "Excuse request submitted and approved."
	}
	httputil.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message": message,
		"request": created,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	result, err := ParseResult(r.URL.Query().Get("status"))
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	views, err := h.service.List(r.Context(), result)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, views)
}

func (h *Handler) Adjudicate(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.RespondWithServiceError(w, r, h.logger, apperr.Unauthenticated("Unauthorized. Please log in."))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, apperr.Invalid("id", "Invalid excuse request ID."))
		return
	}

	updated, err := h.service.Adjudicate(r.Context(), caller, id, chi.URLParam(r, "action"))
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Excuse request has been %s.", updated.Result),
		"request": updated,
	})
}
