package account

import (
	"context"

	"github.com/Mizumo-prjkt/openattendance/internal/auth"
)

// CredentialStore serves the session layer from the account tables.
type CredentialStore struct {
	repo Repository
}

func NewCredentialStore(repo Repository) *CredentialStore {
	return &CredentialStore{repo: repo}
}

func (c *CredentialStore) AdminByUsername(ctx context.Context, username string) (*auth.AdminCredentials, error) {
	admin, err := c.repo.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return adminCredentials(admin), nil
}

func (c *CredentialStore) AdminByID(ctx context.Context, id int64) (*auth.AdminCredentials, error) {
	admin, err := c.repo.GetAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	return adminCredentials(admin), nil
}

func (c *CredentialStore) StaffByUsername(ctx context.Context, username string) (*auth.StaffCredentials, error) {
	staff, err := c.repo.GetStaffByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return staffCredentials(staff)
}

func (c *CredentialStore) StaffByCode(ctx context.Context, staffID string) (*auth.StaffCredentials, error) {
	staff, err := c.repo.GetStaffByCode(ctx, staffID)
	if err != nil {
		return nil, err
	}
	return staffCredentials(staff)
}

func adminCredentials(a *AdminAccount) *auth.AdminCredentials {
	return &auth.AdminCredentials{
		AdminID:      a.AdminID,
		Username:     a.Username,
		PasswordHash: a.Password,
		Privilege:    a.Privilege,
	}
}

func staffCredentials(s *StaffAccount) (*auth.StaffCredentials, error) {
	if s.Login == nil || s.Login.Username == "" {
		return nil, ErrStaffNotFound
	}
	return &auth.StaffCredentials{
		StaffID:      s.StaffID,
		Username:     s.Login.Username,
		PasswordHash: s.Login.Password,
		Name:         s.Name,
		StaffType:    s.StaffType,
		AdviserUnit:  s.AdviserUnit,
		Active:       s.Active,
	}, nil
}
