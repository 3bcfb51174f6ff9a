package settings

import (
	"context"
	"strings"

	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
)

type Service interface {
	Get(ctx context.Context) (*Configuration, error)
	Save(ctx context.Context, cfg *Configuration) (*Configuration, error)
}

type service struct {
	repo Repository
	cal  calendar.Calendar
}

func NewService(repo Repository, cal calendar.Calendar) Service {
	return &service{repo: repo, cal: cal}
}

func (s *service) Get(ctx context.Context) (*Configuration, error) {
	return s.repo.Get(ctx)
}

func (s *service) Save(ctx context.Context, cfg *Configuration) (*Configuration, error) {
	cfg.SchoolName = strings.TrimSpace(cfg.SchoolName)
	cfg.CountryCode = strings.ToUpper(strings.TrimSpace(cfg.CountryCode))
	cfg.CreatedConfigDate = s.cal.Now()

	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx)
}
