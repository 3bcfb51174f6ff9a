package account

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/db"

	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	ListAdmins(ctx context.Context) ([]AdminAccount, error)
	CreateAdmin(ctx context.Context, req CreateAdminRequest) (*AdminAccount, error)
	UpdateAdmin(ctx context.Context, id int64, req UpdateAdminRequest) (*AdminAccount, error)
	DeleteAdmin(ctx context.Context, actor auth.Identity, id int64) error
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)

	ListStaff(ctx context.Context) ([]StaffAccount, error)
	GetStaff(ctx context.Context, id int64) (*StaffAccount, error)
	CreateStaff(ctx context.Context, req CreateStaffRequest) (*StaffAccount, error)
	UpdateStaff(ctx context.Context, id int64, req UpdateStaffRequest) (*StaffAccount, error)
	DeleteStaff(ctx context.Context, id int64) error
	CountStaff(ctx context.Context) (int, error)
}

// TxRunner is satisfied by *bun.DB.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

type service struct {
	db       TxRunner
	repo     Repository
	hashCost int
}

func NewService(db TxRunner, repo Repository) Service {
	return NewServiceWithCost(db, repo, bcrypt.DefaultCost)
}

// NewServiceWithCost lets tests hash with bcrypt.MinCost.
func NewServiceWithCost(db TxRunner, repo Repository, cost int) Service {
	return &service{db: db, repo: repo, hashCost: cost}
}

func (s *service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

func (s *service) ListAdmins(ctx context.Context) ([]AdminAccount, error) {
	return s.repo.ListAdmins(ctx)
}

func (s *service) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*AdminAccount, error) {
	hashed, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	admin := &AdminAccount{
		Username:  strings.TrimSpace(req.Username),
		Password:  hashed,
		Privilege: privilegeOrDefault(req.Privilege),
	}
	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Username %q is already taken.", admin.Username)
		}
		return nil, err
	}
	return admin, nil
}

func (s *service) UpdateAdmin(ctx context.Context, id int64, req UpdateAdminRequest) (*AdminAccount, error) {
	admin := &AdminAccount{
		AdminID:   id,
		Username:  strings.TrimSpace(req.Username),
		Privilege: privilegeOrDefault(req.Privilege),
	}
	columns := []string{"username", "privilege"}
	if req.Password != "" {
		hashed, err := s.hash(req.Password)
		if err != nil {
			return nil, err
		}
		admin.Password = hashed
		columns = append(columns, "password")
	}

	if err := s.repo.UpdateAdmin(ctx, admin, columns...); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Username %q is already taken.", admin.Username)
		}
		return nil, err
	}
	return s.repo.GetAdmin(ctx, id)
}

// EnsureAdmin creates a superadmin when no admin account exists yet. It reports whether one was
// created.
func (s *service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	admins, err := s.repo.ListAdmins(ctx)
	if err != nil {
		return false, err
	}
	if len(admins) > 0 || password == "" {
		return false, nil
	}
	_, err = s.CreateAdmin(ctx, CreateAdminRequest{
		Username:  username,
		Password:  password,
		Privilege: PrivilegeSuperAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) DeleteAdmin(ctx context.Context, actor auth.Identity, id int64) error {
	if actor.IsAdmin() && actor.AdminID == id {
		return apperr.Forbidden("You cannot delete your own account.")
	}
	return s.repo.DeleteAdmin(ctx, id)
}

func (s *service) ListStaff(ctx context.Context) ([]StaffAccount, error) {
	return s.repo.ListStaff(ctx)
}

func (s *service) GetStaff(ctx context.Context, id int64) (*StaffAccount, error) {
	return s.repo.GetStaff(ctx, id)
}

// CreateStaff inserts the profile and its login together; a failing login insert rolls the
// profile back.
func (s *service) CreateStaff(ctx context.Context, req CreateStaffRequest) (*StaffAccount, error) {
	hashed, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	staff := &StaffAccount{
		StaffID:          strings.TrimSpace(req.StaffID),
		Name:             strings.TrimSpace(req.Name),
		EmailAddress:     strings.TrimSpace(req.EmailAddress),
		StaffType:        req.StaffType,
		AdviserUnit:      adviserUnitFor(req.StaffType, req.AdviserUnit),
		ProfileImagePath: req.ProfileImagePath,
		Active:           req.Active == nil || *req.Active,
	}
	login := &StaffLogin{
		StaffID:  staff.StaffID,
		Username: strings.TrimSpace(req.Username),
		Password: hashed,
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateStaff(ctx, staff); err != nil {
			return err
		}
		return repo.CreateStaffLogin(ctx, login)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Staff ID, email address or username already exists.")
		}
		return nil, err
	}

	staff.Login = login
	return staff, nil
}

// UpdateStaff rewrites the profile and login in one transaction. The staff code is immutable.
func (s *service) UpdateStaff(ctx context.Context, id int64, req UpdateStaffRequest) (*StaffAccount, error) {
	var hashed string
	if req.Password != "" {
		h, err := s.hash(req.Password)
		if err != nil {
			return nil, err
		}
		hashed = h
	}

	var updated *StaffAccount
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetStaff(ctx, id)
		if err != nil {
			return err
		}

		existing.Name = strings.TrimSpace(req.Name)
		existing.EmailAddress = strings.TrimSpace(req.EmailAddress)
		existing.StaffType = req.StaffType
		existing.AdviserUnit = adviserUnitFor(req.StaffType, req.AdviserUnit)
		existing.ProfileImagePath = req.ProfileImagePath
		if req.Active != nil {
			existing.Active = *req.Active
		}
		if err := repo.UpdateStaff(ctx, existing); err != nil {
			return err
		}

		login := &StaffLogin{StaffID: existing.StaffID, Username: strings.TrimSpace(req.Username)}
		columns := []string{"username"}
		if hashed != "" {
			login.Password = hashed
			columns = append(columns, "password")
		}
		if err := repo.UpdateStaffLogin(ctx, login, columns...); err != nil {
			return err
		}

		updated, err = repo.GetStaff(ctx, id)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Email address or username already exists.")
		}
		return nil, err
	}
	return updated, nil
}

// DeleteStaff removes the profile and its login. Attendance rows keep the staff code.
func (s *service) DeleteStaff(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetStaff(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteStaffLogin(ctx, existing.StaffID); err != nil {
			return err
		}
		return repo.DeleteStaff(ctx, id)
	})
}

func (s *service) CountStaff(ctx context.Context) (int, error) {
	return s.repo.CountStaff(ctx)
}

func privilegeOrDefault(p string) string {
	if p == "" {
		return PrivilegeAdmin
	}
	return p
}

// adviserUnitFor keeps adviser units on teachers only.
func adviserUnitFor(t auth.StaffType, unit string) string {
	if t != auth.StaffTypeTeacher {
		return ""
	}
	return strings.TrimSpace(unit)
}
