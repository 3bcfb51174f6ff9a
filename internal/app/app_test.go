package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/Mizumo-prjkt/openattendance/internal/app"
	"github.com/Mizumo-prjkt/openattendance/internal/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env: "test",
		Server: config.ServerConfig{
			Port:        "0",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		},
		Session: config.SessionConfig{
			Secret:     "test-secret",
			TTLMinutes: 60,
		},
		Events:    config.EventsConfig{Driver: "none"},
		Reporting: config.ReportingConfig{Timezone: "UTC", LogPageSize: 100, LogMaxPageSize: 500},
		Bootstrap: config.BootstrapConfig{AdminUsername: "admin", AdminPassword: "change-me-now"},
	}
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, base string) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: base, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
		reader = &buf
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestServerRoutes(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	application, err := app.Build(ctx, testConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	server := httptest.NewServer(application.Handler())
	defer server.Close()

	anon := newClient(t, server.URL)
	admin := newClient(t, server.URL)
	teacher := newClient(t, server.URL)

	t.Run("health is public", func(t *testing.T) {
		status, body := anon.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("admin group requires a session", func(t *testing.T) {
		status, _ := anon.do(http.MethodGet, "/api/admin/students", nil)
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _ = anon.do(http.MethodPost, "/api/client/attendance/check-in", map[string]string{"student_id": "S-1"})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("bootstrap admin can log in and set up the school", func(t *testing.T) {
		status, _ := admin.do(http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "change-me-now"})
		require.Equal(t, http.StatusOK, status)

		status, body := admin.do(http.MethodGet, "/api/admin/auth-status", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["isAuthenticated"])

		status, _ = admin.do(http.MethodPost, "/api/admin/students", map[string]string{
			"student_id":        "S-1",
			"first_name":        "Ana",
			"last_name":         "Santos",
			"classroom_section": "10-A",
		})
		require.Equal(t, http.StatusCreated, status)

		status, _ = admin.do(http.MethodPost, "/api/admin/staff", map[string]string{
			"staff_id":     "T-1",
			"name":         "Maria Cruz",
			"staff_type":   "teacher",
			"adviser_unit": "10-A",
			"username":     "mcruz",
			"password":     "teacher-pass",
		})
		require.Equal(t, http.StatusCreated, status)
	})

	t.Run("sessions of the other kind are forbidden", func(t *testing.T) {
		status, _ := teacher.do(http.MethodPost, "/api/login", map[string]string{"username": "mcruz", "password": "teacher-pass"})
		require.Equal(t, http.StatusOK, status)

		status, _ = teacher.do(http.MethodGet, "/api/admin/students", nil)
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = admin.do(http.MethodPost, "/api/client/attendance/check-in", map[string]string{"student_id": "S-1"})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("staff record attendance and excuses that reach the reports", func(t *testing.T) {
		status, _ := teacher.do(http.MethodPost, "/api/client/attendance/check-in", map[string]string{"student_id": "S-1"})
		require.Equal(t, http.StatusCreated, status)

		status, _ = teacher.do(http.MethodPost, "/api/client/excuses", map[string]interface{}{
			"student_id":   "S-1",
			"absence_date": "2024-01-09",
			"reason":       "Fever",
		})
		require.Equal(t, http.StatusCreated, status)

		status, body := admin.do(http.MethodGet, "/api/admin/dashboard-stats", nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 1, body["totalStudents"])
		assert.EqualValues(t, 1, body["totalStaff"])
		assert.EqualValues(t, 1, body["todaysAttendance"])

		status, body = teacher.do(http.MethodGet, "/api/client/students/S-1/attendance", nil)
		require.Equal(t, http.StatusOK, status)
		require.Contains(t, body, "stats")
	})

	t.Run("logout ends the session", func(t *testing.T) {
		status, _ := teacher.do(http.MethodPost, "/api/client/logout", nil)
		require.Equal(t, http.StatusOK, status)

		status, _ = teacher.do(http.MethodGet, "/api/client/me", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}
