// Package systemlog stores operational and audit messages that admins browse and clear from the
// dashboard.
package systemlog

import (
	"context"
	"strings"

	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
)

type Service interface {
	Record(ctx context.Context, req CreateRequest) (*Entry, error)
	List(ctx context.Context, filter Filter) (*Page, error)
	Clear(ctx context.Context) (int64, error)
}

type service struct {
	repo Repository
	cal  calendar.Calendar
}

func NewService(repo Repository, cal calendar.Calendar) Service {
	return &service{repo: repo, cal: cal}
}

// Audit builds the entry written next to a domain change, in the same transaction.
func Audit(cal calendar.Calendar, source, message, details string) *Entry {
	return &Entry{
		Level:     LevelAudit,
		Message:   message,
		Source:    source,
		Details:   details,
		Timestamp: cal.Now(),
	}
}

func (s *service) Record(ctx context.Context, req CreateRequest) (*Entry, error) {
	entry := &Entry{
		Level:     req.Level,
		Message:   strings.TrimSpace(req.Message),
		Source:    strings.TrimSpace(req.Source),
		Details:   req.Details,
		Timestamp: s.cal.Now(),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) List(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &Page{
		Logs: entries,
		Pagination: Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: (total + filter.Limit - 1) / filter.Limit,
		},
	}, nil
}

func (s *service) Clear(ctx context.Context) (int64, error) {
	return s.repo.Clear(ctx)
}
