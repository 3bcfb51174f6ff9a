// Package excuse implements the excuse request workflow: staff submit a request for a student's
// absence, and an admin or the student's adviser moves it from pending to excused or rejected.
// Terminal requests cannot be adjudicated again.
package excuse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
	"github.com/Mizumo-prjkt/openattendance/internal/events"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/student"
	"github.com/Mizumo-prjkt/openattendance/internal/systemlog"

	"github.com/uptrace/bun"
)

type StudentLookup interface {
	GetStudentByCode(ctx context.Context, code string) (*student.Student, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

type Service interface {
	Submit(ctx context.Context, requester auth.Identity, req SubmitRequest) (*Request, error)
	Adjudicate(ctx context.Context, processor auth.Identity, id int64, action string) (*Request, error)
	List(ctx context.Context, result *Result) ([]View, error)
	PendingForStudent(ctx context.Context, studentID string) ([]Request, error)
}

type service struct {
	db        TxRunner
	repo      Repository
	audit     systemlog.Repository
	students  StudentLookup
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cal       calendar.Calendar
}

type Deps struct {
	DB        TxRunner
	Repo      Repository
	Audit     systemlog.Repository
	Students  StudentLookup
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Calendar  calendar.Calendar
}

func NewService(d Deps) Service {
	if d.Publisher == nil {
		d.Publisher = events.NoopPublisher{}
	}
	return &service{
		db:        d.DB,
		repo:      d.Repo,
		audit:     d.Audit,
		students:  d.Students,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cal:       d.Calendar,
	}
}

func validateSubmit(req *SubmitRequest) error {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.AbsenceDate = strings.TrimSpace(req.AbsenceDate)
	req.Reason = strings.TrimSpace(req.Reason)

	switch {
	case req.StudentID == "":
		return apperr.Invalid("student_id", "Student ID is required.")
	case req.AbsenceDate == "":
		return apperr.Invalid("absence_date", "Absence date is required.")
	case req.Reason == "":
		return apperr.Invalid("reason", "Reason is required.")
	}
	if _, err := calendar.ParseDate(req.AbsenceDate); err != nil {
		return apperr.Invalid("absence_date", "Absence date must be YYYY-MM-DD.")
	}
	return nil
}

// Submit files a request. With ApproveNow the request is created already excused, with the
// requester recorded as processor; only the student's adviser may do that.
func (s *service) Submit(ctx context.Context, requester auth.Identity, req SubmitRequest) (*Request, error) {
	switch {
	case requester.Kind == "":
		return nil, apperr.Unauthenticated("Unauthorized. Please log in.")
	case !requester.IsStaff():
		return nil, apperr.Forbidden("Only staff may submit excuse requests.")
	}
	if err := validateSubmit(&req); err != nil {
		return nil, err
	}
	if req.ApproveNow && !requester.IsTeacher() {
		return nil, apperr.Forbidden("Only teachers may approve a request on submission.")
	}

	st, err := s.students.GetStudentByCode(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if req.ApproveNow && st.ClassroomSection != requester.AdviserUnit {
		return nil, apperr.Forbidden("You can only approve requests for students in your advisory class.")
	}

	now := s.cal.Now()
	request := &Request{
		StudentID:        st.StudentID,
		RequesterStaffID: requester.StaffID,
		Reason:           req.Reason,
		AbsenceDate:      req.AbsenceDate,
		RequestDatetime:  now,
		Result:           ResultPending,
	}
	if req.ApproveNow {
		request.setVerdict(ResultExcused, StaffProcessor(requester.StaffID), now)
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return err
		}
		entry := systemlog.Audit(s.cal, "excuse",
			fmt.Sprintf("Excuse request %d submitted for student %s (%s)", request.ID, request.StudentID, request.Result),
			fmt.Sprintf("requester=%s absence_date=%s", requester.StaffID, request.AbsenceDate),
		)
		return s.audit.WithTx(tx).Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Domain.RecordExcuseSubmitted(ctx, req.ApproveNow)
	s.logger.InfoContext(ctx, "excuse request submitted",
		"id", request.ID,
		"student_id", request.StudentID,
		"result", request.Result,
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeExcuseSubmitted,
		Key:        request.StudentID,
		OccurredAt: now,
		Payload:    request,
	})
	return request, nil
}

// Adjudicate approves or rejects a pending request. Teachers may only adjudicate requests for
// students in their own advisory class.
func (s *service) Adjudicate(ctx context.Context, caller auth.Identity, id int64, action string) (*Request, error) {
	act, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, apperr.Invalid("id", "Invalid excuse request ID.")
	}
	switch {
	case caller.IsAdmin():
	case caller.IsStaff():
		if _, err := auth.RequireTeacher(caller); err != nil {
			return nil, err
		}
		// Read outside the transaction: a request's student_id and a student's code never change.
		if err := s.checkAdvisory(ctx, caller, id); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Unauthenticated("Unauthorized. Please log in.")
	}

	processor := ProcessorFor(caller)
	now := s.cal.Now()
	var resolved *Request

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Resolve(ctx, id, act.Result(), processor, now)
		if err != nil {
			return err
		}
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("Excuse request %d has already been %s.", id, current.Result)
		}
		resolved = current

		entry := systemlog.Audit(s.cal, "excuse",
			fmt.Sprintf("Excuse request %d %s for student %s", id, current.Result, current.StudentID),
			fmt.Sprintf("processor_type=%s processor_id=%s", processor.Kind, processor.ID),
		)
		return s.audit.WithTx(tx).Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Domain.RecordExcuseAdjudicated(ctx, string(resolved.Result), string(processor.Kind))
	s.logger.InfoContext(ctx, "excuse request adjudicated",
		"id", id,
		"result", resolved.Result,
		"processor_type", processor.Kind,
		"processor_id", processor.ID,
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeExcuseAdjudicated,
		Key:        resolved.StudentID,
		OccurredAt: now,
		Payload:    resolved,
	})
	return resolved, nil
}

func (s *service) checkAdvisory(ctx context.Context, teacher auth.Identity, id int64) error {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	st, err := s.students.GetStudentByCode(ctx, req.StudentID)
	if err != nil {
		return err
	}
	if st.ClassroomSection != teacher.AdviserUnit {
		return apperr.Forbidden("You can only adjudicate requests for students in your advisory class.")
	}
	return nil
}

// List returns requests newest first with student, requester and processor names filled in.
func (s *service) List(ctx context.Context, result *Result) ([]View, error) {
	views, err := s.repo.ListViews(ctx, result)
	if err != nil {
		return nil, err
	}

	processors := make([]Processor, 0, len(views))
	for i := range views {
		if p, ok := views[i].Processor(); ok {
			processors = append(processors, p)
		}
	}
	names, err := s.repo.ResolveProcessors(ctx, processors)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if p, ok := views[i].Processor(); ok {
			views[i].ProcessorName = names[p]
		}
	}
	return views, nil
}

func (s *service) PendingForStudent(ctx context.Context, studentID string) ([]Request, error) {
	pending := ResultPending
	return s.repo.ListByStudent(ctx, strings.TrimSpace(studentID), &pending)
}
