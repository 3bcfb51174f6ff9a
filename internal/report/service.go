// Package report aggregates the attendance tables into the unified log, the admin dashboard and
// per-student summaries. Every query is read-only; reads that make up one response are not
// taken from a single snapshot.
package report

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
	"github.com/Mizumo-prjkt/openattendance/internal/config"
	"github.com/Mizumo-prjkt/openattendance/internal/excuse"
	"github.com/Mizumo-prjkt/openattendance/internal/student"

	"golang.org/x/sync/errgroup"
)

const trendDays = 7

type StudentLookup interface {
	GetStudentByCode(ctx context.Context, code string) (*student.Student, error)
}

type PendingLister interface {
	PendingForStudent(ctx context.Context, studentID string) ([]excuse.Request, error)
}

type Service interface {
	UnifiedLog(ctx context.Context, filter LogFilter) ([]LogEntry, error)
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	StudentSummary(ctx context.Context, studentID string) (*StudentSummary, error)
	ExportLog(ctx context.Context, filter LogFilter) (*Export, error)
}

type service struct {
	repo     Repository
	students StudentLookup
	excuses  PendingLister
	cal      calendar.Calendar
	cfg      config.ReportingConfig
	logger   *slog.Logger
}

func NewService(repo Repository, students StudentLookup, excuses PendingLister, cal calendar.Calendar, cfg config.ReportingConfig, logger *slog.Logger) Service {
	return &service{
		repo:     repo,
		students: students,
		excuses:  excuses,
		cal:      cal,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *service) limit(requested int) int {
	switch {
	case requested <= 0:
		return s.cfg.LogPageSize
	case requested > s.cfg.LogMaxPageSize:
		return s.cfg.LogMaxPageSize
	}
	return requested
}

func (s *service) resolve(filter LogFilter) (logQuery, Status, error) {
	status, err := ParseStatus(filter.Status)
	if err != nil {
		return logQuery{}, "", err
	}

	q := logQuery{
		Search: strings.TrimSpace(filter.StudentSearch),
		Limit:  s.limit(filter.Limit),
	}

	var from, to time.Time
	if filter.DateFrom != "" {
		if from, err = calendar.ParseDate(filter.DateFrom); err != nil {
			return logQuery{}, "", apperr.Invalid("dateFrom", "dateFrom must be YYYY-MM-DD.")
		}
		q.FromDate = filter.DateFrom
	}
	if filter.DateTo != "" {
		if to, err = calendar.ParseDate(filter.DateTo); err != nil {
			return logQuery{}, "", apperr.Invalid("dateTo", "dateTo must be YYYY-MM-DD.")
		}
		q.ToDate = filter.DateTo
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return logQuery{}, "", apperr.Invalid("dateTo", "dateTo must not be before dateFrom.")
	}
	q.Start, q.End = s.cal.Range(from, to)

	return q, status, nil
}

func (s *service) clock(t time.Time) string {
	return t.In(s.cal.Location()).Format("15:04")
}

// UnifiedLog merges presence, absence and excused rows. Each source is read already ordered and
// capped at the limit, so the merged top rows are exact.
func (s *service) UnifiedLog(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	q, status, err := s.resolve(filter)
	if err != nil {
		return nil, err
	}

	entries := make([]LogEntry, 0, q.Limit)

	if status == "" || status == StatusPresent {
		rows, err := s.repo.PresenceLog(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			e := LogEntry{
				ID:        row.ID,
				StudentID: row.StudentID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Date:      s.cal.DateOf(row.TimeIn),
				TimeIn:    s.clock(row.TimeIn),
				Status:    StatusPresent,
				Reason:    "N/A",
				at:        row.TimeIn,
			}
			if row.TimeOut != nil {
				e.TimeOut = s.clock(*row.TimeOut)
			}
			entries = append(entries, e)
		}
	}

	if status == "" || status == StatusAbsent {
		rows, err := s.repo.AbsenceLog(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			entries = append(entries, LogEntry{
				ID:        row.ID,
				StudentID: row.StudentID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Date:      s.cal.DateOf(row.AbsentAt),
				Status:    StatusAbsent,
				Reason:    row.Reason,
				at:        row.AbsentAt,
			})
		}
	}

	if status == "" || status == StatusExcused {
		rows, err := s.repo.ExcusedLog(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			entries = append(entries, LogEntry{
				ID:        row.ID,
				StudentID: row.StudentID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Date:      row.AbsenceDate,
				Status:    StatusExcused,
				Reason:    row.Reason,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

// DashboardStats runs the scalar counts and both series concurrently.
func (s *service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	now := s.cal.Now()
	today := s.cal.DateOf(now)
	dayStart, dayEnd := s.cal.DayRange(now)

	local := now.In(s.cal.Location())
	trendStart := s.cal.Midnight(local.AddDate(0, 0, -(trendDays - 1)))
	monthFirst := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.cal.Location())
	monthStart := s.cal.Midnight(monthFirst)

	stats := &DashboardStats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalStudents, err = s.repo.CountStudents(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalStaff, err = s.repo.CountStaff(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TodaysAttendance, err = s.repo.DistinctPresent(gctx, dayStart, dayEnd)
		return err
	})
	g.Go(func() (err error) {
		stats.TodaysAbsences, err = s.repo.DistinctAbsent(gctx, dayStart, dayEnd)
		return err
	})
	g.Go(func() (err error) {
		stats.TodaysExcused, err = s.repo.DistinctExcused(gctx, today)
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.PresenceSince(gctx, trendStart, dayEnd)
		if err != nil {
			return err
		}
		stats.WeeklyTrend = s.weeklyTrend(local, rows)
		return nil
	})
	g.Go(func() error {
		overview, err := s.monthlyOverview(gctx, monthStart, dayEnd, monthFirst.Format(calendar.DateLayout), today)
		if err != nil {
			return err
		}
		stats.MonthlyOverview = overview
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// weeklyTrend counts distinct present students per day over the trailing week, oldest first.
func (s *service) weeklyTrend(today time.Time, rows []studentInstant) []DayCount {
	seen := make(map[string]map[string]bool, trendDays)
	for _, row := range rows {
		date := s.cal.DateOf(row.At)
		if seen[date] == nil {
			seen[date] = make(map[string]bool)
		}
		seen[date][row.StudentID] = true
	}

	trend := make([]DayCount, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		date := day.Format(calendar.DateLayout)
		trend = append(trend, DayCount{
			Date:      date,
			DayOfWeek: day.Weekday().String(),
			Count:     len(seen[date]),
		})
	}
	return trend
}

// monthlyOverview counts rows of each kind per week since the first of the month.
func (s *service) monthlyOverview(ctx context.Context, start, end time.Time, fromDate, toDate string) ([]WeekCount, error) {
	presence, err := s.repo.PresenceSince(ctx, start, end)
	if err != nil {
		return nil, err
	}
	absences, err := s.repo.AbsenceSince(ctx, start, end)
	if err != nil {
		return nil, err
	}
	excused, err := s.repo.ExcusedSince(ctx, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	weeks := make(map[string]*WeekCount)
	bucket := func(date time.Time) *WeekCount {
		label := calendar.WeekLabel(date)
		w, ok := weeks[label]
		if !ok {
			w = &WeekCount{Week: label}
			weeks[label] = w
		}
		return w
	}

	for _, row := range presence {
		bucket(row.At.In(s.cal.Location())).Present++
	}
	for _, at := range absences {
		bucket(at.In(s.cal.Location())).Absent++
	}
	for _, date := range excused {
		d, err := calendar.ParseDate(date)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping excuse with malformed absence date", "absence_date", date)
			continue
		}
		bucket(d).Excused++
	}

	overview := make([]WeekCount, 0, len(weeks))
	for _, w := range weeks {
		overview = append(overview, *w)
	}
	sort.Slice(overview, func(i, j int) bool { return overview[i].Week < overview[j].Week })
	return overview, nil
}

func (s *service) StudentSummary(ctx context.Context, studentID string) (*StudentSummary, error) {
	st, err := s.students.GetStudentByCode(ctx, studentID)
	if err != nil {
		return nil, err
	}
	code := st.StudentID

	summary := &StudentSummary{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		summary.Stats.PresentCount, err = s.repo.CountPresence(gctx, code)
		return err
	})
	g.Go(func() (err error) {
		summary.Stats.AbsentCount, err = s.repo.CountAbsences(gctx, code)
		return err
	})
	g.Go(func() (err error) {
		summary.Stats.ExcusedCount, err = s.repo.CountExcused(gctx, code)
		return err
	})
	g.Go(func() (err error) {
		summary.Excuses, err = s.excuses.PendingForStudent(gctx, code)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
