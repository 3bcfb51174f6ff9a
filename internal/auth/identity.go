package auth

import (
	"context"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
)

// Kind tells which panel an identity belongs to.
type Kind string

const (
	KindAdmin Kind = "admin"
	KindStaff Kind = "staff"
)

type StaffType string

const (
	StaffTypeTeacher        StaffType = "teacher"
	StaffTypeStudentCouncil StaffType = "student_council"
	StaffTypeSecurity       StaffType = "security"
)

func (t StaffType) Valid() bool {
	switch t {
	case StaffTypeTeacher, StaffTypeStudentCouncil, StaffTypeSecurity:
		return true
	}
	return false
}

// Identity is the caller of a request, resolved once by Authenticate.
type Identity struct {
	Kind        Kind      `json:"kind"`
	AdminID     int64     `json:"admin_id,omitempty"`
	StaffID     string    `json:"staff_id,omitempty"`
	Username    string    `json:"username"`
	Name        string    `json:"name,omitempty"`
	Privilege   string    `json:"privilege,omitempty"`
	StaffType   StaffType `json:"staff_type,omitempty"`
	AdviserUnit string    `json:"adviser_unit,omitempty"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

func (i Identity) IsAdmin() bool {
	return i.Kind == KindAdmin
}

func (i Identity) IsStaff() bool {
	return i.Kind == KindStaff
}

// IsTeacher reports whether the staff member advises a classroom section.
func (i Identity) IsTeacher() bool {
	return i.Kind == KindStaff && i.StaffType == StaffTypeTeacher && i.AdviserUnit != ""
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireAdmin answers Unauthenticated without a session and Forbidden for a staff session.
func RequireAdmin(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	switch {
	case !ok || id.Kind == "":
		return Identity{}, apperr.Unauthenticated("Unauthorized. Please log in as an administrator.")
	case !id.IsAdmin():
		return Identity{}, apperr.Forbidden("Administrator access required.")
	}
	return id, nil
}

// RequireStaff answers Unauthenticated without a session and Forbidden for an admin session.
func RequireStaff(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	switch {
	case !ok || id.Kind == "":
		return Identity{}, apperr.Unauthenticated("Unauthorized. Please log in.")
	case !id.IsStaff():
		return Identity{}, apperr.Forbidden("Staff access required.")
	}
	return id, nil
}

func RequireTeacher(id Identity) (Identity, error) {
	if !id.IsTeacher() {
		return Identity{}, apperr.Forbidden("You are not a teacher with an assigned advisory class.")
	}
	return id, nil
}
