package report

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Mizumo-prjkt/openattendance/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/attendance-logs", h.UnifiedLog)
	router.Get("/attendance-logs/export", h.Export)
	router.Get("/dashboard-stats", h.DashboardStats)
	router.Get("/students/{id}/attendance", h.StudentSummary)
}

func (h *Handler) RegisterClientRoutes(router chi.Router) {
	router.Get("/students/{id}/attendance", h.StudentSummary)
}

func filterFrom(r *http.Request) LogFilter {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	return LogFilter{
		DateFrom:      q.Get("dateFrom"),
		DateTo:        q.Get("dateTo"),
		Status:        q.Get("status"),
		StudentSearch: q.Get("studentSearch"),
		Limit:         limit,
	}
}

func (h *Handler) UnifiedLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.UnifiedLog(r.Context(), filterFrom(r))
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.service.ExportLog(r.Context(), filterFrom(r))
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "attendance log exported", "rows", export.Rows)

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(export.Body.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := export.Body.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write export", "error", err)
	}
}

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, stats)
}

// StudentSummary serves /students/{id}/attendance where id is the student code.
func (h *Handler) StudentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StudentSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, summary)
}
