package account

import (
	"github.com/Mizumo-prjkt/openattendance/internal/auth"

	"github.com/uptrace/bun"
)

const (
	PrivilegeAdmin      = "admin"
	PrivilegeSuperAdmin = "superadmin"
)

type AdminAccount struct {
	bun.BaseModel `bun:"table:admin_accounts,alias:aa"`

	AdminID   int64  `bun:"admin_id,pk,autoincrement" json:"admin_id"`
	Username  string `bun:"username,notnull,unique" json:"username"`
	Password  string `bun:"password,notnull" json:"-"`
	Privilege string `bun:"privilege,notnull" json:"privilege"`
}

type StaffAccount struct {
	bun.BaseModel `bun:"table:staff_accounts,alias:sa"`

	ID               int64          `bun:"id,pk,autoincrement" json:"id"`
	StaffID          string         `bun:"staff_id,notnull,unique" json:"staff_id"`
	Name             string         `bun:"name,notnull" json:"name"`
	EmailAddress     string         `bun:"email_address,nullzero,unique" json:"email_address"`
	StaffType        auth.StaffType `bun:"staff_type,notnull" json:"staff_type"`
	AdviserUnit      string         `bun:"adviser_unit,nullzero" json:"adviser_unit"`
	ProfileImagePath string         `bun:"profile_image_path" json:"profile_image_path"`
	Active           bool           `bun:"active,notnull" json:"active"`

	Login *StaffLogin `bun:"rel:has-one,join:staff_id=staff_id" json:"login,omitempty"`
}

// StaffLogin is the credential owned 1:1 by a staff account, keyed by the staff code.
type StaffLogin struct {
	bun.BaseModel `bun:"table:staff_logins,alias:sl"`

	ID       int64  `bun:"id,pk,autoincrement" json:"-"`
	StaffID  string `bun:"staff_id,notnull,unique" json:"-"`
	Username string `bun:"username,notnull,unique" json:"username"`
	Password string `bun:"password,notnull" json:"-"`
}

type CreateAdminRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Privilege string `json:"privilege" validate:"omitempty,oneof=admin superadmin"`
}

type UpdateAdminRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"omitempty,min=8,max=72"`
	Privilege string `json:"privilege" validate:"omitempty,oneof=admin superadmin"`
}

type CreateStaffRequest struct {
	StaffID          string         `json:"staff_id" validate:"required,max=64"`
	Name             string         `json:"name" validate:"required,max=200"`
	EmailAddress     string         `json:"email_address" validate:"omitempty,email"`
	StaffType        auth.StaffType `json:"staff_type" validate:"required,oneof=teacher student_council security"`
	AdviserUnit      string         `json:"adviser_unit" validate:"max=64"`
	ProfileImagePath string         `json:"profile_image_path"`
	Active           *bool          `json:"active"`
	Username         string         `json:"username" validate:"required,min=3,max=64"`
	Password         string         `json:"password" validate:"required,min=8,max=72"`
}

type UpdateStaffRequest struct {
	Name             string         `json:"name" validate:"required,max=200"`
	EmailAddress     string         `json:"email_address" validate:"omitempty,email"`
	StaffType        auth.StaffType `json:"staff_type" validate:"required,oneof=teacher student_council security"`
	AdviserUnit      string         `json:"adviser_unit" validate:"max=64"`
	ProfileImagePath string         `json:"profile_image_path"`
	Active           *bool          `json:"active"`
	Username         string         `json:"username" validate:"required,min=3,max=64"`
	Password         string         `json:"password" validate:"omitempty,min=8,max=72"`
}
