package settings

import (
	"log/slog"
	"net/http"

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
	router.Get("/configuration", h.Get)
	router.Post("/configuration", h.Save)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, cfg)
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var cfg Configuration
	if err := httputil.DecodeJSON(r, &cfg); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(cfg); err != nil {
		httputil.RespondWithErrorDetails(w, http.StatusBadRequest, "School name and country code are required.", err.Error())
		return
	}

	saved, err := h.service.Save(r.Context(), &cfg)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "school configuration saved", "school_name", saved.SchoolName)
	httputil.RespondWithJSON(w, http.StatusOK, saved)
}
