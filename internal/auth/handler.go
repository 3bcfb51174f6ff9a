package auth

import (
	"log/slog"
	"net/http"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service      *Service
	logger       *slog.Logger
	validator    *validator.Validate
	cookieSecure bool
}

func NewHandler(service *Service, logger *slog.Logger, cookieSecure bool) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		validator:    validator.New(),
		cookieSecure: cookieSecure,
	}
}

// RegisterAdminRoutes mounts the admin session endpoints; they sit outside the AdminOnly group.
func (h *Handler) RegisterAdminRoutes(router chi.Router) {
	router.Post("/login", h.AdminLogin)
	router.Post("/logout", h.Logout)
	router.Get("/auth-status", h.AuthStatus)
}

func (h *Handler) RegisterStaffLogin(router chi.Router) {
	router.Post("/login", h.StaffLogin)
}

func (h *Handler) RegisterClientRoutes(router chi.Router) {
	router.Post("/logout", h.Logout)
	router.With(StaffOnly).Get("/me", h.Me)
}

type LoginResponse struct {
	Message string   `json:"message"`
	User    Identity `json:"user"`
}

type AuthStatusResponse struct {
	Authenticated bool      `json:"isAuthenticated"`
	User          *Identity `json:"user,omitempty"`
}

func (h *Handler) decodeLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "Username and password are required.")
		return req, false
	}
	return req, true
}

// AdminLogin authenticates an administrator
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLogin(w, r)
	if !ok {
		return
	}

	session, err := h.service.LoginAdmin(r.Context(), req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin logged in", "username", session.Identity.Username)
	SetSessionCookie(w, session.Token, session.Identity.ExpiresAt, h.cookieSecure)
	httputil.RespondWithJSON(w, http.StatusOK, LoginResponse{Message: "Login successful.", User: session.Identity})
}

// StaffLogin authenticates a staff member for the client panel
func (h *Handler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLogin(w, r)
	if !ok {
		return
	}

	session, err := h.service.LoginStaff(r.Context(), req)
	if err != nil {
		httputil.RespondWithServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "staff logged in", "staff_id", session.Identity.StaffID)
	SetSessionCookie(w, session.Token, session.Identity.ExpiresAt, h.cookieSecure)
	httputil.RespondWithJSON(w, http.StatusOK, LoginResponse{Message: "Login successful.", User: session.Identity})
}

// Logout revokes the current session, if any, and clears the cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := IdentityFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), id); err != nil {
			h.logger.ErrorContext(r.Context(), "logout failed", "error", err)
			httputil.RespondWithError(w, http.StatusInternalServerError, "Could not log out. Please try again.")
			return
		}
	}

	ClearSessionCookie(w, h.cookieSecure)
	httputil.RespondWithMessage(w, http.StatusOK, "Logged out successfully.")
}

func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	id, err := RequireAdmin(r.Context())
	if err != nil {
		httputil.RespondWithJSON(w, http.StatusOK, AuthStatusResponse{Authenticated: false})
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, AuthStatusResponse{Authenticated: true, User: &id})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		httputil.RespondWithServiceError(w, r, h.logger, apperr.Unauthenticated("Unauthorized. Please log in."))
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, id)
}
