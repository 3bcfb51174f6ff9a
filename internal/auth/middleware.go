package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/httputil"
)

const SessionCookieName = "session"

// Authenticate resolves the session cookie into an Identity on the request context. Requests
// without a usable session continue anonymously; the gate middlewares decide what that means.
func Authenticate(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := service.Resolve(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) || errors.Is(err, apperr.ErrNotFound) {
					logger.DebugContext(r.Context(), "ignoring session", "path", r.URL.Path, "error", err)
				} else {
					logger.ErrorContext(r.Context(), "failed to resolve session", "path", r.URL.Path, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireAdmin(r.Context()); err != nil {
			httputil.RespondWithError(w, httputil.StatusFor(err), err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func StaffOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireStaff(r.Context()); err != nil {
			httputil.RespondWithError(w, httputil.StatusFor(err), err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TeacherOnly answers 401 without a session and 403 for admins and staff who advise no class.
func TeacherOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := RequireStaff(r.Context())
		if err == nil {
			_, err = RequireTeacher(id)
		}
		if err != nil {
			httputil.RespondWithError(w, httputil.StatusFor(err), err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie stores the session token in an HttpOnly cookie that expires with the token.
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	sameSite := http.SameSiteStrictMode
	if !secure {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
