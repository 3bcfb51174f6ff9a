package attendance

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
	"github.com/Mizumo-prjkt/openattendance/internal/events"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/student"

	"github.com/uptrace/bun"
)

// StudentLookup resolves a student code. It must not be called inside a transaction on a
// single-connection store.
type StudentLookup interface {
	GetStudentByCode(ctx context.Context, code string) (*student.Student, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

type Service interface {
	CheckIn(ctx context.Context, staff auth.Identity, studentID string) (*Presence, error)
	CheckOut(ctx context.Context, staff auth.Identity, studentID string) (*Presence, error)
	MarkAbsent(ctx context.Context, staff auth.Identity, studentID, reason string) (*Absence, error)
	ListPresence(ctx context.Context, studentID string) ([]Presence, error)
	ListAbsences(ctx context.Context, studentID string) ([]Absence, error)
}

type service struct {
	db        TxRunner
	repo      Repository
	students  StudentLookup
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cal       calendar.Calendar
}

func NewService(db TxRunner, repo Repository, students StudentLookup, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger, cal calendar.Calendar) Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &service{
		db:        db,
		repo:      repo,
		students:  students,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cal:       cal,
	}
}

func (s *service) lookup(ctx context.Context, studentID string) (string, error) {
	code := strings.TrimSpace(studentID)
	if code == "" {
		return "", apperr.Invalid("student_id", "Student ID is required.")
	}
	st, err := s.students.GetStudentByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return st.StudentID, nil
}

func (s *service) CheckIn(ctx context.Context, staff auth.Identity, studentID string) (*Presence, error) {
	code, err := s.lookup(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.cal.Now()
	from, to := s.cal.DayRange(now)
	record := &Presence{StudentID: code, StaffID: staff.StaffID, TimeIn: now}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		open, err := repo.FindOpenPresence(ctx, code, from, to)
		if err != nil {
			return err
		}
		if open != nil {
			return apperr.Conflict("Student %s is already checked in today.", code)
		}
		return repo.CreatePresence(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Domain.RecordAttendanceEvent(ctx, "check_in")
	s.logger.InfoContext(ctx, "student checked in", "student_id", code, "staff_id", staff.StaffID)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeCheckIn,
		Key:        code,
		OccurredAt: now,
		Payload:    record,
	})
	return record, nil
}

func (s *service) CheckOut(ctx context.Context, staff auth.Identity, studentID string) (*Presence, error) {
	code, err := s.lookup(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.cal.Now()
	from, to := s.cal.DayRange(now)
	var record *Presence

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		open, err := repo.FindOpenPresence(ctx, code, from, to)
		if err != nil {
			return err
		}
		if open == nil {
			return apperr.NotFound("Student %s has no open check-in today.", code)
		}
		if err := repo.ClosePresence(ctx, open.ID, now); err != nil {
			return err
		}
		open.TimeOut = &now
		record = open
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Domain.RecordAttendanceEvent(ctx, "check_out")
	s.logger.InfoContext(ctx, "student checked out", "student_id", code, "staff_id", staff.StaffID)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeCheckOut,
		Key:        code,
		OccurredAt: now,
		Payload:    record,
	})
	return record, nil
}

func (s *service) MarkAbsent(ctx context.Context, staff auth.Identity, studentID, reason string) (*Absence, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "Reason is required.")
	}
	code, err := s.lookup(ctx, studentID)
	if err != nil {
		return nil, err
	}

	record := &Absence{
		StudentID: code,
		StaffID:   staff.StaffID,
		AbsentAt:  s.cal.Now(),
		Reason:    reason,
	}
	if err := s.repo.CreateAbsence(ctx, record); err != nil {
		return nil, err
	}

	s.metrics.Domain.RecordAttendanceEvent(ctx, "absence")
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeAbsence,
		Key:        code,
		OccurredAt: record.AbsentAt,
		Payload:    record,
	})
	return record, nil
}

func (s *service) ListPresence(ctx context.Context, studentID string) ([]Presence, error) {
	return s.repo.ListPresence(ctx, strings.TrimSpace(studentID))
}

func (s *service) ListAbsences(ctx context.Context, studentID string) ([]Absence, error) {
	return s.repo.ListAbsences(ctx, strings.TrimSpace(studentID))
}
