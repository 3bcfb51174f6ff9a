package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/uptrace/bun"
)

var (
	ErrAdminNotFound = apperr.NotFound("Admin account not found.")
	ErrStaffNotFound = apperr.NotFound("Staff account not found.")
)

type Repository interface {
	WithTx(tx bun.Tx) Repository

	ListAdmins(ctx context.Context) ([]AdminAccount, error)
	GetAdmin(ctx context.Context, id int64) (*AdminAccount, error)
	GetAdminByUsername(ctx context.Context, username string) (*AdminAccount, error)
	CreateAdmin(ctx context.Context, admin *AdminAccount) error
	UpdateAdmin(ctx context.Context, admin *AdminAccount, columns ...string) error
	DeleteAdmin(ctx context.Context, id int64) error

	ListStaff(ctx context.Context) ([]StaffAccount, error)
	GetStaff(ctx context.Context, id int64) (*StaffAccount, error)
	GetStaffByCode(ctx context.Context, code string) (*StaffAccount, error)
	GetStaffByUsername(ctx context.Context, username string) (*StaffAccount, error)
	CreateStaff(ctx context.Context, staff *StaffAccount) error
	UpdateStaff(ctx context.Context, staff *StaffAccount) error
	DeleteStaff(ctx context.Context, id int64) error
	CountStaff(ctx context.Context) (int, error)

	CreateStaffLogin(ctx context.Context, login *StaffLogin) error
	UpdateStaffLogin(ctx context.Context, login *StaffLogin, columns ...string) error
	DeleteStaffLogin(ctx context.Context, staffID string) error
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{db: db, metrics: m}
}

func (r *repository) WithTx(tx bun.Tx) Repository {
	return &repository{db: tx, metrics: r.metrics}
}

func (r *repository) record(ctx context.Context, op, table string, start time.Time, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	r.metrics.Database.RecordQuery(ctx, op, table, time.Since(start), err)
}

func (r *repository) ListAdmins(ctx context.Context) ([]AdminAccount, error) {
	start := time.Now()
	admins := []AdminAccount{}
	err := r.db.NewSelect().Model(&admins).OrderExpr("aa.username ASC").Scan(ctx)
	r.record(ctx, "select", "admin_accounts", start, err)
	return admins, err
}

func (r *repository) getAdmin(ctx context.Context, where string, arg interface{}) (*AdminAccount, error) {
	start := time.Now()
	admin := new(AdminAccount)
	err := r.db.NewSelect().Model(admin).Where(where, arg).Scan(ctx)
	r.record(ctx, "select", "admin_accounts", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return admin, nil
}

func (r *repository) GetAdmin(ctx context.Context, id int64) (*AdminAccount, error) {
	return r.getAdmin(ctx, "aa.admin_id = ?", id)
}

func (r *repository) GetAdminByUsername(ctx context.Context, username string) (*AdminAccount, error) {
	return r.getAdmin(ctx, "aa.username = ?", username)
}

func (r *repository) CreateAdmin(ctx context.Context, admin *AdminAccount) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(admin).Returning("*").Exec(ctx)
	r.record(ctx, "insert", "admin_accounts", start, err)
	return err
}

func (r *repository) UpdateAdmin(ctx context.Context, admin *AdminAccount, columns ...string) error {
	start := time.Now()
	res, err := r.db.NewUpdate().Model(admin).Column(columns...).WherePK().Exec(ctx)
	r.record(ctx, "update", "admin_accounts", start, err)
	return affected(res, err, ErrAdminNotFound)
}

func (r *repository) DeleteAdmin(ctx context.Context, id int64) error {
	start := time.Now()
	res, err := r.db.NewDelete().Model((*AdminAccount)(nil)).Where("admin_id = ?", id).Exec(ctx)
	r.record(ctx, "delete", "admin_accounts", start, err)
	return affected(res, err, ErrAdminNotFound)
}

func (r *repository) ListStaff(ctx context.Context) ([]StaffAccount, error) {
	start := time.Now()
	staff := []StaffAccount{}
	err := r.db.NewSelect().
		Model(&staff).
		Relation("Login").
		OrderExpr("sa.name ASC").
		Scan(ctx)
	r.record(ctx, "select", "staff_accounts", start, err)
	return staff, err
}

func (r *repository) getStaff(ctx context.Context, where string, arg interface{}) (*StaffAccount, error) {
	start := time.Now()
	staff := new(StaffAccount)
	err := r.db.NewSelect().
		Model(staff).
		Relation("Login").
		Where(where, arg).
		Scan(ctx)
	r.record(ctx, "select", "staff_accounts", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return staff, nil
}

func (r *repository) GetStaff(ctx context.Context, id int64) (*StaffAccount, error) {
	return r.getStaff(ctx, "sa.id = ?", id)
}

func (r *repository) GetStaffByCode(ctx context.Context, code string) (*StaffAccount, error) {
	return r.getStaff(ctx, "sa.staff_id = ?", code)
}

func (r *repository) GetStaffByUsername(ctx context.Context, username string) (*StaffAccount, error) {
	return r.getStaff(ctx, "login.username = ?", username)
}

func (r *repository) CreateStaff(ctx context.Context, staff *StaffAccount) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(staff).Returning("*").Exec(ctx)
	r.record(ctx, "insert", "staff_accounts", start, err)
	return err
}

func (r *repository) UpdateStaff(ctx context.Context, staff *StaffAccount) error {
	start := time.Now()
	res, err := r.db.NewUpdate().
		Model(staff).
		Column("name", "email_address", "staff_type", "adviser_unit", "profile_image_path", "active").
		WherePK().
		Exec(ctx)
	r.record(ctx, "update", "staff_accounts", start, err)
	return affected(res, err, ErrStaffNotFound)
}

func (r *repository) DeleteStaff(ctx context.Context, id int64) error {
	start := time.Now()
	res, err := r.db.NewDelete().Model((*StaffAccount)(nil)).Where("id = ?", id).Exec(ctx)
	r.record(ctx, "delete", "staff_accounts", start, err)
	return affected(res, err, ErrStaffNotFound)
}

func (r *repository) CountStaff(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.db.NewSelect().Model((*StaffAccount)(nil)).Count(ctx)
	r.record(ctx, "count", "staff_accounts", start, err)
	return n, err
}

func (r *repository) CreateStaffLogin(ctx context.Context, login *StaffLogin) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(login).Returning("*").Exec(ctx)
	r.record(ctx, "insert", "staff_logins", start, err)
	return err
}

func (r *repository) UpdateStaffLogin(ctx context.Context, login *StaffLogin, columns ...string) error {
	start := time.Now()
	res, err := r.db.NewUpdate().
		Model(login).
		Column(columns...).
		Where("staff_id = ?", login.StaffID).
		Exec(ctx)
	r.record(ctx, "update", "staff_logins", start, err)
	return affected(res, err, ErrStaffNotFound)
}

func (r *repository) DeleteStaffLogin(ctx context.Context, staffID string) error {
	start := time.Now()
	_, err := r.db.NewDelete().Model((*StaffLogin)(nil)).Where("staff_id = ?", staffID).Exec(ctx)
	r.record(ctx, "delete", "staff_logins", start, err)
	return err
}

func affected(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
