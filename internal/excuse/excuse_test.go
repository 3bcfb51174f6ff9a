package excuse_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/account"
	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
	"github.com/Mizumo-prjkt/openattendance/internal/events"
	"github.com/Mizumo-prjkt/openattendance/internal/excuse"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/student"
	"github.com/Mizumo-prjkt/openattendance/internal/systemlog"
	"github.com/Mizumo-prjkt/openattendance/internal/testdb"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var (
	teacher = auth.Identity{
		Kind:        auth.KindStaff,
		StaffID:     "T-1",
		Username:    "mreyes",
		StaffType:   auth.StaffTypeTeacher,
		AdviserUnit: "10-A",
	}
	otherTeacher = auth.Identity{
		Kind:        auth.KindStaff,
		StaffID:     "T-2",
		Username:    "jcruz",
		StaffType:   auth.StaffTypeTeacher,
		AdviserUnit: "10-B",
	}
	guard = auth.Identity{
		Kind:      auth.KindStaff,
		StaffID:   "G-1",
		Username:  "guard",
		StaffType: auth.StaffTypeSecurity,
	}
	admin = auth.Identity{
		Kind:      auth.KindAdmin,
		AdminID:   1,
		Username:  "root",
		Privilege: account.PrivilegeSuperAdmin,
	}
)

type fixture struct {
	db        *bun.DB
	service   excuse.Service
	audit     systemlog.Repository
	publisher *recordingPublisher
	router    chi.Router
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	bunDB := testdb.New(t)
	m := metrics.NewMock()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	cal := calendar.New(time.UTC, func() time.Time { return now })

	students := student.NewService(bunDB, student.NewRepository(bunDB, m))
	for _, s := range []*student.Student{
		{StudentID: "S-100", FirstName: "Ana", LastName: "Santos", ClassroomSection: "10-A"},
		{StudentID: "S-200", FirstName: "Ben", LastName: "Lopez", ClassroomSection: "10-B"},
	} {
		_, err := students.CreateStudent(ctx, s)
		require.NoError(t, err)
	}

	accounts := account.NewRepository(bunDB, m)
	require.NoError(t, accounts.CreateAdmin(ctx, &account.AdminAccount{Username: "root", Password: "x", Privilege: account.PrivilegeSuperAdmin}))
	require.NoError(t, accounts.CreateStaff(ctx, &account.StaffAccount{StaffID: "T-1", Name: "Maria Reyes", StaffType: auth.StaffTypeTeacher, AdviserUnit: "10-A", Active: true}))
	require.NoError(t, accounts.CreateStaff(ctx, &account.StaffAccount{StaffID: "G-1", Name: "Gate Guard", StaffType: auth.StaffTypeSecurity, Active: true}))

	audit := systemlog.NewRepository(bunDB, m)
	publisher := &recordingPublisher{}
	service := excuse.NewService(excuse.Deps{
		DB:        bunDB,
		Repo:      excuse.NewRepository(bunDB, m),
		Audit:     audit,
		Students:  students,
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
		Calendar:  cal,
	})

	handler := excuse.NewHandler(service, logger)
	router := chi.NewRouter()
	router.Route("/admin", handler.RegisterAdminRoutes)
	router.Route("/client", handler.RegisterClientRoutes)

	return &fixture{db: bunDB, service: service, audit: audit, publisher: publisher, router: router}
}

func (f *fixture) do(t *testing.T, id auth.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id.Kind != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), id))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func submit(t *testing.T, f *fixture, approveNow bool) *excuse.Request {
	t.Helper()
	req, err := f.service.Submit(context.Background(), teacher, excuse.SubmitRequest{
		StudentID:   "S-100",
		AbsenceDate: "2024-01-09",
		Reason:      "Flu",
		ApproveNow:  approveNow,
	})
	require.NoError(t, err)
	return req
}

func assertVerdictInvariant(t *testing.T, req excuse.Request) {
	t.Helper()
	assert.Contains(t, []excuse.Result{excuse.ResultPending, excuse.ResultExcused, excuse.ResultRejected}, req.Result)
	if req.Result == excuse.ResultPending {
		assert.Nil(t, req.VerdictDatetime)
		assert.Nil(t, req.ProcessorID)
		assert.Nil(t, req.ProcessorType)
	} else {
		assert.NotNil(t, req.VerdictDatetime)
		assert.NotNil(t, req.ProcessorID)
		assert.NotNil(t, req.ProcessorType)
	}
}

func ids(views []excuse.View) []int64 {
	out := make([]int64, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func TestExcuseWorkflow(t *testing.T) {
	ctx := context.Background()
	pending := excuse.ResultPending
	excused := excuse.ResultExcused

	t.Run("submit creates a pending request without verdict fields", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		assert.Equal(t, excuse.ResultPending, req.Result)
		assert.Equal(t, "2024-01-09", req.AbsenceDate)
		assert.Equal(t, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), req.RequestDatetime)
		assertVerdictInvariant(t, *req)
		assert.Equal(t, []string{events.TypeExcuseSubmitted}, f.publisher.types())
	})

	t.Run("stored instants read back in UTC", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, true)
		assert.Equal(t, time.UTC, req.RequestDatetime.Location())

		stored, err := excuse.NewRepository(f.db, metrics.NewMock()).GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, stored.RequestDatetime.Location())
		require.NotNil(t, stored.VerdictDatetime)
		assert.Equal(t, time.UTC, stored.VerdictDatetime.Location())
		assert.Equal(t, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), *stored.VerdictDatetime)

		list, err := f.service.List(ctx, &excused)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, time.UTC, list[0].RequestDatetime.Location())
	})

	t.Run("approve now creates an excused request processed by the requester", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, true)

		assert.Equal(t, excuse.ResultExcused, req.Result)
		require.NotNil(t, req.ProcessorType)
		assert.Equal(t, excuse.ProcessorStaff, *req.ProcessorType)
		require.NotNil(t, req.ProcessorID)
		assert.Equal(t, "T-1", *req.ProcessorID)
		assertVerdictInvariant(t, *req)

		list, err := f.service.List(ctx, &pending)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("only teachers may approve on submission", func(t *testing.T) {
		f := setup(t)
		_, err := f.service.Submit(ctx, guard, excuse.SubmitRequest{
			StudentID: "S-100", AbsenceDate: "2024-01-09", Reason: "Flu", ApproveNow: true,
		})
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		_, err = f.service.Submit(ctx, guard, excuse.SubmitRequest{
			StudentID: "S-100", AbsenceDate: "2024-01-09", Reason: "Flu",
		})
		assert.NoError(t, err)
	})

	t.Run("submit validates fields and the student", func(t *testing.T) {
		f := setup(t)
		cases := []excuse.SubmitRequest{
			{AbsenceDate: "2024-01-09", Reason: "Flu"},
			{StudentID: "S-100", Reason: "Flu"},
			{StudentID: "S-100", AbsenceDate: "2024-01-09", Reason: "  "},
			{StudentID: "S-100", AbsenceDate: "01/09/2024", Reason: "Flu"},
		}
		for _, c := range cases {
			_, err := f.service.Submit(ctx, teacher, c)
			assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", c)
		}

		_, err := f.service.Submit(ctx, teacher, excuse.SubmitRequest{StudentID: "S-999", AbsenceDate: "2024-01-09", Reason: "Flu"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("round trip moves a request from pending to excused", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		list, err := f.service.List(ctx, &pending)
		require.NoError(t, err)
		assert.Contains(t, ids(list), req.ID)

		updated, err := f.service.Adjudicate(ctx, admin, req.ID, "approve")
		require.NoError(t, err)
		assert.Equal(t, excuse.ResultExcused, updated.Result)
		assertVerdictInvariant(t, *updated)

		list, err = f.service.List(ctx, &pending)
		require.NoError(t, err)
		assert.NotContains(t, ids(list), req.ID)

		list, err = f.service.List(ctx, &excused)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, req.ID, list[0].ID)
		assert.Equal(t, "Ana Santos", list[0].StudentName)
		assert.Equal(t, "Maria Reyes", list[0].RequesterName)
		assert.Equal(t, "root", list[0].ProcessorName)
	})

	t.Run("second adjudication is a conflict", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		_, err := f.service.Adjudicate(ctx, admin, req.ID, "reject")
		require.NoError(t, err)

		_, err = f.service.Adjudicate(ctx, admin, req.ID, "approve")
		assert.ErrorIs(t, err, apperr.ErrConflict)

		current, err := excuse.NewRepository(f.db, metrics.NewMock()).GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, excuse.ResultRejected, current.Result)
	})

	t.Run("concurrent adjudications have exactly one winner", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				action := "approve"
				if i%2 == 1 {
					action = "reject"
				}
				_, errs[i] = f.service.Adjudicate(ctx, admin, req.ID, action)
			}(i)
		}
		wg.Wait()

		won := 0
		for _, err := range errs {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, apperr.ErrConflict)
			}
		}
		assert.Equal(t, 1, won)
	})

	t.Run("adjudicate rejects unknown ids and actions", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		_, err := f.service.Adjudicate(ctx, admin, 9999, "approve")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = f.service.Adjudicate(ctx, admin, req.ID, "maybe")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("teachers adjudicate only their advisory class", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		_, err := f.service.Adjudicate(ctx, otherTeacher, req.ID, "approve")
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		_, err = f.service.Adjudicate(ctx, guard, req.ID, "approve")
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		updated, err := f.service.Adjudicate(ctx, teacher, req.ID, "reject")
		require.NoError(t, err)
		require.NotNil(t, updated.ProcessorType)
		assert.Equal(t, excuse.ProcessorStaff, *updated.ProcessorType)
		assert.Equal(t, "T-1", *updated.ProcessorID)
	})

	t.Run("teachers approve on submission only for their advisory class", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.Submit(ctx, teacher, excuse.SubmitRequest{
			StudentID:   "S-200",
			AbsenceDate: "2024-01-09",
			Reason:      "Flu",
			ApproveNow:  true,
		})
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		list, err := f.service.List(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.Empty(t, f.publisher.types())

		req, err := f.service.Submit(ctx, teacher, excuse.SubmitRequest{
			StudentID:   "S-200",
			AbsenceDate: "2024-01-09",
			Reason:      "Flu",
		})
		require.NoError(t, err)
		assert.Equal(t, excuse.ResultPending, req.Result)
	})

	t.Run("submit and adjudicate write audit rows", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)
		_, err := f.service.Adjudicate(ctx, admin, req.ID, "approve")
		require.NoError(t, err)

		entries, total, err := f.audit.List(ctx, systemlog.Filter{Page: 1, Limit: 10, Source: "excuse"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, e := range entries {
			assert.Equal(t, systemlog.LevelAudit, e.Level)
		}
		assert.Equal(t, []string{events.TypeExcuseSubmitted, events.TypeExcuseAdjudicated}, f.publisher.types())
	})

	t.Run("pending for student lists only pending requests", func(t *testing.T) {
		f := setup(t)
		submit(t, f, true)
		req := submit(t, f, false)

		got, err := f.service.PendingForStudent(ctx, "S-100")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, req.ID, got[0].ID)
		assert.Equal(t, "Flu", got[0].Reason)
	})
}

func TestExcuseHandlers(t *testing.T) {
	t.Run("POST /client/excuses returns 201", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, teacher, http.MethodPost, "/client/excuses", map[string]interface{}{
			"student_id": "S-100", "absence_date": "2024-01-10", "reason": "Flu", "approve_now": false,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var body struct {
			Message string         `json:"message"`
			Request excuse.Request `json:"request"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Excuse request submitted successfully.", body.Message)
		assert.Equal(t, excuse.ResultPending, body.Request.Result)
	})

	t.Run("missing fields return 400 naming the field", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, teacher, http.MethodPost, "/client/excuses", map[string]interface{}{
			"student_id": "S-100", "absence_date": "2024-01-10",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "reason")
	})

	t.Run("anonymous submit is 401", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, auth.Identity{}, http.MethodPost, "/client/excuses", map[string]interface{}{
			"student_id": "S-100", "absence_date": "2024-01-10", "reason": "Flu",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin submit on the client route is 403", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, admin, http.MethodPost, "/client/excuses", map[string]interface{}{
			"student_id": "S-100", "absence_date": "2024-01-10", "reason": "Flu",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)

		_, err := f.service.Submit(context.Background(), admin, excuse.SubmitRequest{StudentID: "S-100", AbsenceDate: "2024-01-10", Reason: "Flu"})
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("admin adjudication maps errors to status codes", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)

		w := f.do(t, admin, http.MethodPost, "/admin/excuses/9999/approve", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = f.do(t, admin, http.MethodPost, "/admin/excuses/1/dance", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		path := "/admin/excuses/" + itoa(req.ID) + "/approve"
		w = f.do(t, admin, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "excused")

		w = f.do(t, admin, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("client adjudication requires a teacher", func(t *testing.T) {
		f := setup(t)
		req := submit(t, f, false)
		path := "/client/excuses/" + itoa(req.ID) + "/reject"

		w := f.do(t, guard, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(t, auth.Identity{}, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = f.do(t, teacher, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("GET /admin/excuses filters by status", func(t *testing.T) {
		f := setup(t)
		submit(t, f, false)
		submit(t, f, true)

		var all, onlyPending []excuse.View
		w := f.do(t, admin, http.MethodGet, "/admin/excuses", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
		assert.Len(t, all, 2)

		w = f.do(t, admin, http.MethodGet, "/admin/excuses?status=pending", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &onlyPending))
		require.Len(t, onlyPending, 1)
		assert.Equal(t, excuse.ResultPending, onlyPending[0].Result)

		w = f.do(t, admin, http.MethodGet, "/admin/excuses?status=lost", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
