package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = apperr.Unauthenticated("Invalid credentials.")

type AdminCredentials struct {
	AdminID      int64
	Username     string
	PasswordHash string
	Privilege    string
}

type StaffCredentials struct {
	StaffID      string
	Username     string
	PasswordHash string
	Name         string
	StaffType    StaffType
	AdviserUnit  string
	Active       bool
}

// CredentialStore looks up accounts. Lookups of missing accounts return an apperr.ErrNotFound error.
type CredentialStore interface {
	AdminByUsername(ctx context.Context, username string) (*AdminCredentials, error)
	AdminByID(ctx context.Context, id int64) (*AdminCredentials, error)
	StaffByUsername(ctx context.Context, username string) (*StaffCredentials, error)
	StaffByCode(ctx context.Context, staffID string) (*StaffCredentials, error)
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is a freshly issued token and the identity it stands for.
type Session struct {
	Token    string
	Identity Identity
}

type Service struct {
	store       CredentialStore
	tokens      *TokenManager
	revocations RevocationStore
	metrics     *metrics.DomainMetrics
	logger      *slog.Logger
}

func NewService(store CredentialStore, tokens *TokenManager, revocations RevocationStore, m *metrics.DomainMetrics, logger *slog.Logger) *Service {
	if revocations == nil {
		revocations = NoopRevocationStore{}
	}
	return &Service{
		store:       store,
		tokens:      tokens,
		revocations: revocations,
		metrics:     m,
		logger:      logger,
	}
}

func (s *Service) LoginAdmin(ctx context.Context, req LoginRequest) (*Session, error) {
	admin, err := s.store.AdminByUsername(ctx, req.Username)
	if err != nil {
		s.metrics.RecordLogin(ctx, string(KindAdmin), false)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(ctx, string(KindAdmin), false)
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(KindAdmin, strconv.FormatInt(admin.AdminID, 10))
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(ctx, string(KindAdmin), true)
	id := adminIdentity(admin)
	id.TokenID = claims.ID
	id.ExpiresAt = claims.ExpiresAt.Time
	return &Session{Token: token, Identity: id}, nil
}

func (s *Service) LoginStaff(ctx context.Context, req LoginRequest) (*Session, error) {
	staff, err := s.store.StaffByUsername(ctx, req.Username)
	if err != nil {
		s.metrics.RecordLogin(ctx, string(KindStaff), false)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(ctx, string(KindStaff), false)
		return nil, ErrInvalidCredentials
	}

	if !staff.Active {
		s.metrics.RecordLogin(ctx, string(KindStaff), false)
		return nil, apperr.Forbidden("This staff account is inactive.")
	}

	token, claims, err := s.tokens.Issue(KindStaff, staff.StaffID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(ctx, string(KindStaff), true)
	id := staffIdentity(staff)
	id.TokenID = claims.ID
	id.ExpiresAt = claims.ExpiresAt.Time
	return &Session{Token: token, Identity: id}, nil
}

// Resolve turns a session token into the current identity. Accounts are re-read on every call,
// so deleted admins and deactivated staff lose access immediately.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}

	var id Identity
	switch claims.Role {
	case KindAdmin:
		adminID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
		}
		admin, err := s.store.AdminByID(ctx, adminID)
		if err != nil {
			return Identity{}, err
		}
		id = adminIdentity(admin)
	case KindStaff:
		staff, err := s.store.StaffByCode(ctx, claims.Subject)
		if err != nil {
			return Identity{}, err
		}
		if !staff.Active {
			return Identity{}, fmt.Errorf("%w: staff inactive", ErrInvalidToken)
		}
		id = staffIdentity(staff)
	}

	id.TokenID = claims.ID
	id.ExpiresAt = claims.ExpiresAt.Time
	return id, nil
}

// Logout revokes the token behind id for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, id Identity) error {
	if id.TokenID == "" {
		return nil
	}
	return s.revocations.Revoke(ctx, id.TokenID, id.ExpiresAt)
}

func adminIdentity(a *AdminCredentials) Identity {
	return Identity{
		Kind:      KindAdmin,
		AdminID:   a.AdminID,
		Username:  a.Username,
		Privilege: a.Privilege,
	}
}

func staffIdentity(s *StaffCredentials) Identity {
	return Identity{
		Kind:        KindStaff,
		StaffID:     s.StaffID,
		Username:    s.Username,
		Name:        s.Name,
		StaffType:   s.StaffType,
		AdviserUnit: s.AdviserUnit,
	}
}
