package attendance_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/attendance"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
	"github.com/Mizumo-prjkt/openattendance/internal/events"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/student"
	"github.com/Mizumo-prjkt/openattendance/internal/testdb"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var staff = auth.Identity{
	Kind:      auth.KindStaff,
	StaffID:   "G-1",
	Username:  "guard",
	StaffType: auth.StaffTypeSecurity,
}

type fixture struct {
	service attendance.Service
	router  chi.Router
	now     *time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	bunDB := testdb.New(t)
	m := metrics.NewMock()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	manila := time.FixedZone("UTC+8", 8*60*60)
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) // 08:00 local
	cal := calendar.New(manila, func() time.Time { return now })

	students := student.NewService(bunDB, student.NewRepository(bunDB, m))
	_, err := students.CreateStudent(context.Background(), &student.Student{StudentID: "S-100", FirstName: "Ana", LastName: "Santos"})
	require.NoError(t, err)

	service := attendance.NewService(bunDB, attendance.NewRepository(bunDB, m), students, events.NoopPublisher{}, m, logger, cal)

	router := chi.NewRouter()
	attendance.NewHandler(service, logger).RegisterRoutes(router)

	return &fixture{service: service, router: router, now: &now}
}

func (f *fixture) post(t *testing.T, id auth.Identity, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	if id.Kind != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), id))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAttendanceStore(t *testing.T) {
	ctx := context.Background()

	t.Run("check-in then check-out closes the record", func(t *testing.T) {
		f := setup(t)

		in, err := f.service.CheckIn(ctx, staff, "S-100")
		require.NoError(t, err)
		assert.True(t, in.Open())
		assert.Equal(t, "G-1", in.StaffID)

		*f.now = f.now.Add(8 * time.Hour)
		out, err := f.service.CheckOut(ctx, staff, "S-100")
		require.NoError(t, err)
		require.NotNil(t, out.TimeOut)
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, *f.now, *out.TimeOut)

		records, err := f.service.ListPresence(ctx, "S-100")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Open())
	})

	t.Run("second open check-in on the same day is a conflict", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.CheckIn(ctx, staff, "S-100")
		require.NoError(t, err)

		*f.now = f.now.Add(time.Hour)
		_, err = f.service.CheckIn(ctx, staff, "S-100")
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("check-in after check-out on the same day is allowed", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.CheckIn(ctx, staff, "S-100")
		require.NoError(t, err)
		_, err = f.service.CheckOut(ctx, staff, "S-100")
		require.NoError(t, err)

		_, err = f.service.CheckIn(ctx, staff, "S-100")
		assert.NoError(t, err)
	})

	t.Run("an open record from yesterday does not block today", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.CheckIn(ctx, staff, "S-100")
		require.NoError(t, err)

		*f.now = f.now.Add(24 * time.Hour)
		_, err = f.service.CheckIn(ctx, staff, "S-100")
		assert.NoError(t, err)
	})

	t.Run("check-out without an open record is not found", func(t *testing.T) {
		f := setup(t)
		_, err := f.service.CheckOut(ctx, staff, "S-100")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("unknown students are not found", func(t *testing.T) {
		f := setup(t)
		_, err := f.service.CheckIn(ctx, staff, "S-404")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("absence requires a reason", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.MarkAbsent(ctx, staff, "S-100", " ")
		assert.ErrorIs(t, err, apperr.ErrValidation)

		a, err := f.service.MarkAbsent(ctx, staff, "S-100", "Fever")
		require.NoError(t, err)
		assert.Equal(t, "Fever", a.Reason)

		records, err := f.service.ListAbsences(ctx, "S-100")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestAttendanceHandlers(t *testing.T) {
	t.Run("check-in returns 201 then 409", func(t *testing.T) {
		f := setup(t)

		w := f.post(t, staff, "/attendance/check-in", map[string]string{"student_id": "S-100"})
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = f.post(t, staff, "/attendance/check-in", map[string]string{"student_id": "S-100"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing student id is 400", func(t *testing.T) {
		f := setup(t)
		w := f.post(t, staff, "/attendance/absences", map[string]string{"reason": "Fever"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("anonymous callers get 401", func(t *testing.T) {
		f := setup(t)
		w := f.post(t, auth.Identity{}, "/attendance/check-out", map[string]string{"student_id": "S-100"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
