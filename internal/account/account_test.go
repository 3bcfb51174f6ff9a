package account_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mizumo-prjkt/openattendance/internal/account"
	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/testdb"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	repo    account.Repository
	service account.Service
	router  chi.Router
}

func setup(t *testing.T) *fixture {
	t.Helper()

	bunDB := testdb.New(t)
	repo := account.NewRepository(bunDB, metrics.NewMock())
	service := account.NewServiceWithCost(bunDB, repo, bcrypt.MinCost)

	router := chi.NewRouter()
	account.NewHandler(service, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterRoutes(router)

	return &fixture{repo: repo, service: service, router: router}
}

func (f *fixture) request(t *testing.T, id auth.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if id.Kind != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), id))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func teacherRequest(code, username string) account.CreateStaffRequest {
	return account.CreateStaffRequest{
		StaffID:     code,
		Name:        "Maria Cruz",
		StaffType:   auth.StaffTypeTeacher,
		AdviserUnit: " 10-A ",
		Username:    username,
		Password:    "teacher-pass",
	}
}

func TestAdminAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("passwords are stored hashed", func(t *testing.T) {
		f := setup(t)

		admin, err := f.service.CreateAdmin(ctx, account.CreateAdminRequest{Username: "root", Password: "secret-pass"})
		require.NoError(t, err)
		assert.Equal(t, account.PrivilegeAdmin, admin.Privilege)

		stored, err := f.repo.GetAdminByUsername(ctx, "root")
		require.NoError(t, err)
		assert.NotEqual(t, "secret-pass", stored.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret-pass")))
	})

	t.Run("duplicate usernames conflict", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.CreateAdmin(ctx, account.CreateAdminRequest{Username: "root", Password: "secret-pass"})
		require.NoError(t, err)
		_, err = f.service.CreateAdmin(ctx, account.CreateAdminRequest{Username: "root", Password: "other-pass"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("an admin cannot delete themselves", func(t *testing.T) {
		f := setup(t)

		admin, err := f.service.CreateAdmin(ctx, account.CreateAdminRequest{Username: "root", Password: "secret-pass"})
		require.NoError(t, err)
		actor := auth.Identity{Kind: auth.KindAdmin, AdminID: admin.AdminID, Username: "root"}

		err = f.service.DeleteAdmin(ctx, actor, admin.AdminID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		other, err := f.service.CreateAdmin(ctx, account.CreateAdminRequest{Username: "second", Password: "secret-pass"})
		require.NoError(t, err)
		require.NoError(t, f.service.DeleteAdmin(ctx, actor, other.AdminID))

		err = f.service.DeleteAdmin(ctx, actor, other.AdminID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update keeps the password unless one is given", func(t *testing.T) {
		f := setup(t)

		admin, err := f.service.CreateAdmin(ctx, account.CreateAdminRequest{Username: "root", Password: "secret-pass"})
		require.NoError(t, err)

		_, err = f.service.UpdateAdmin(ctx, admin.AdminID, account.UpdateAdminRequest{Username: "renamed", Privilege: account.PrivilegeSuperAdmin})
		require.NoError(t, err)

		stored, err := f.repo.GetAdminByUsername(ctx, "renamed")
		require.NoError(t, err)
		assert.Equal(t, account.PrivilegeSuperAdmin, stored.Privilege)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret-pass")))
	})

	t.Run("bootstrap admin is only seeded into an empty table", func(t *testing.T) {
		f := setup(t)

		created, err := f.service.EnsureAdmin(ctx, "admin", "")
		require.NoError(t, err)
		assert.False(t, created)

		created, err = f.service.EnsureAdmin(ctx, "admin", "change-me-now")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = f.service.EnsureAdmin(ctx, "another", "change-me-now")
		require.NoError(t, err)
		assert.False(t, created)

		admins, err := f.service.ListAdmins(ctx)
		require.NoError(t, err)
		require.Len(t, admins, 1)
		assert.Equal(t, account.PrivilegeSuperAdmin, admins[0].Privilege)
	})
}

func TestStaffAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("profile and login are created together", func(t *testing.T) {
		f := setup(t)

		staff, err := f.service.CreateStaff(ctx, teacherRequest("T-1", "mcruz"))
		require.NoError(t, err)
		assert.True(t, staff.Active)
		assert.Equal(t, "10-A", staff.AdviserUnit)

		got, err := f.service.GetStaff(ctx, staff.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Login)
		assert.Equal(t, "mcruz", got.Login.Username)

		creds, err := account.NewCredentialStore(f.repo).StaffByUsername(ctx, "mcruz")
		require.NoError(t, err)
		assert.Equal(t, "T-1", creds.StaffID)
		assert.Equal(t, "10-A", creds.AdviserUnit)
	})

	t.Run("a duplicate login username rolls back the profile", func(t *testing.T) {
		f := setup(t)

		_, err := f.service.CreateStaff(ctx, teacherRequest("T-1", "mcruz"))
		require.NoError(t, err)

		_, err = f.service.CreateStaff(ctx, teacherRequest("T-2", "mcruz"))
		assert.ErrorIs(t, err, apperr.ErrConflict)

		_, err = f.repo.GetStaffByCode(ctx, "T-2")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		n, err := f.service.CountStaff(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("adviser units are kept on teachers only", func(t *testing.T) {
		f := setup(t)

		req := teacherRequest("G-1", "guard")
		req.StaffType = auth.StaffTypeSecurity
		staff, err := f.service.CreateStaff(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, staff.AdviserUnit)
	})

	t.Run("update rewrites profile and login", func(t *testing.T) {
		f := setup(t)

		staff, err := f.service.CreateStaff(ctx, teacherRequest("T-1", "mcruz"))
		require.NoError(t, err)

		inactive := false
		updated, err := f.service.UpdateStaff(ctx, staff.ID, account.UpdateStaffRequest{
			Name:        "Maria C. Cruz",
			StaffType:   auth.StaffTypeTeacher,
			AdviserUnit: "11-B",
			Active:      &inactive,
			Username:    "mariacruz",
		})
		require.NoError(t, err)
		assert.Equal(t, "11-B", updated.AdviserUnit)
		assert.False(t, updated.Active)
		require.NotNil(t, updated.Login)
		assert.Equal(t, "mariacruz", updated.Login.Username)
	})

	t.Run("delete removes the login too", func(t *testing.T) {
		f := setup(t)

		staff, err := f.service.CreateStaff(ctx, teacherRequest("T-1", "mcruz"))
		require.NoError(t, err)
		require.NoError(t, f.service.DeleteStaff(ctx, staff.ID))

		_, err = account.NewCredentialStore(f.repo).StaffByUsername(ctx, "mcruz")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = f.service.CreateStaff(ctx, teacherRequest("T-1", "mcruz"))
		assert.NoError(t, err)
	})
}

func TestAccountHandlers(t *testing.T) {
	admin := auth.Identity{Kind: auth.KindAdmin, AdminID: 1, Username: "root"}

	t.Run("create admin validates and conflicts", func(t *testing.T) {
		f := setup(t)

		w := f.request(t, admin, http.MethodPost, "/accounts", map[string]string{"username": "ab", "password": "short"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		body := map[string]string{"username": "root", "password": "secret-pass"}
		w = f.request(t, admin, http.MethodPost, "/accounts", body)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.NotContains(t, w.Body.String(), "secret-pass")

		w = f.request(t, admin, http.MethodPost, "/accounts", body)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("deleting your own account is forbidden", func(t *testing.T) {
		f := setup(t)

		w := f.request(t, admin, http.MethodDelete, "/accounts/1", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.request(t, admin, http.MethodDelete, "/accounts/zero", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("staff create rejects unknown staff types", func(t *testing.T) {
		f := setup(t)

		req := teacherRequest("T-1", "mcruz")
		req.StaffType = "janitor"
		w := f.request(t, admin, http.MethodPost, "/staff", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.request(t, admin, http.MethodPost, "/staff", teacherRequest("T-1", "mcruz"))
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = f.request(t, admin, http.MethodGet, "/staff", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var staff []account.StaffAccount
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &staff))
		assert.Len(t, staff, 1)
	})
}
