package report

import (
	"context"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/account"
	"github.com/Mizumo-prjkt/openattendance/internal/attendance"
	"github.com/Mizumo-prjkt/openattendance/internal/db"
	"github.com/Mizumo-prjkt/openattendance/internal/excuse"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/student"

	"github.com/uptrace/bun"
)

// logQuery is a resolved LogFilter: instant bounds for presence and absence rows, date bounds
// for excuse rows. Zero values do not filter.
type logQuery struct {
	Start, End       time.Time
	FromDate, ToDate string
	Search           string
	Limit            int
}

type presenceRow struct {
	ID        int64      `bun:"id"`
	StudentID string     `bun:"student_id"`
	FirstName string     `bun:"first_name"`
	LastName  string     `bun:"last_name"`
	TimeIn    time.Time  `bun:"time_in"`
	TimeOut   *time.Time `bun:"time_out"`
}

type absenceRow struct {
	ID        int64     `bun:"id"`
	StudentID string    `bun:"student_id"`
	FirstName string    `bun:"first_name"`
	LastName  string    `bun:"last_name"`
	AbsentAt  time.Time `bun:"absent_at"`
	Reason    string    `bun:"reason"`
}

type excusedRow struct {
	ID          int64  `bun:"id"`
	StudentID   string `bun:"student_id"`
	FirstName   string `bun:"first_name"`
	LastName    string `bun:"last_name"`
	AbsenceDate string `bun:"absence_date"`
	Reason      string `bun:"reason"`
}

type studentInstant struct {
	StudentID string    `bun:"student_id"`
	At        time.Time `bun:"at"`
}

// Repository holds the read-only aggregation queries.
type Repository interface {
	PresenceLog(ctx context.Context, q logQuery) ([]presenceRow, error)
	AbsenceLog(ctx context.Context, q logQuery) ([]absenceRow, error)
	ExcusedLog(ctx context.Context, q logQuery) ([]excusedRow, error)

	CountStudents(ctx context.Context) (int, error)
	CountStaff(ctx context.Context) (int, error)
	DistinctPresent(ctx context.Context, start, end time.Time) (int, error)
	DistinctAbsent(ctx context.Context, start, end time.Time) (int, error)
	DistinctExcused(ctx context.Context, date string) (int, error)
	PresenceSince(ctx context.Context, start, end time.Time) ([]studentInstant, error)
	AbsenceSince(ctx context.Context, start, end time.Time) ([]time.Time, error)
	ExcusedSince(ctx context.Context, fromDate, toDate string) ([]string, error)

	CountPresence(ctx context.Context, studentID string) (int, error)
	CountAbsences(ctx context.Context, studentID string) (int, error)
	CountExcused(ctx context.Context, studentID string) (int, error)
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{db: db, metrics: m}
}

func (r *repository) PresenceLog(ctx context.Context, q logQuery) ([]presenceRow, error) {
	var preds db.Predicates
	if !q.Start.IsZero() {
		preds.Add("pr.time_in >= ?", q.Start)
	}
	if !q.End.IsZero() {
		preds.Add("pr.time_in < ?", q.End)
	}
	preds.AnyLike(q.Search, "s.first_name", "s.last_name", "pr.student_id")

	start := time.Now()
	rows := []presenceRow{}
	sel := r.db.NewSelect().
		Model((*attendance.Presence)(nil)).
		ColumnExpr("pr.id, pr.student_id, pr.time_in, pr.time_out").
		ColumnExpr("COALESCE(s.first_name, '') AS first_name").
		ColumnExpr("COALESCE(s.last_name, '') AS last_name").
		Join("LEFT JOIN students AS s ON s.student_id = pr.student_id")
	err := preds.Apply(sel).
		OrderExpr("pr.time_in DESC").
		OrderExpr("pr.id DESC").
		Limit(q.Limit).
		Scan(ctx, &rows)

	r.metrics.Database.RecordQuery(ctx, "select", "presence_records", time.Since(start), err)

	return rows, err
}

func (r *repository) AbsenceLog(ctx context.Context, q logQuery) ([]absenceRow, error) {
	var preds db.Predicates
	if !q.Start.IsZero() {
		preds.Add("ar.absent_at >= ?", q.Start)
	}
	if !q.End.IsZero() {
		preds.Add("ar.absent_at < ?", q.End)
	}
	preds.AnyLike(q.Search, "s.first_name", "s.last_name", "ar.student_id")

	start := time.Now()
	rows := []absenceRow{}
	sel := r.db.NewSelect().
		Model((*attendance.Absence)(nil)).
		ColumnExpr("ar.id, ar.student_id, ar.absent_at, ar.reason").
		ColumnExpr("COALESCE(s.first_name, '') AS first_name").
		ColumnExpr("COALESCE(s.last_name, '') AS last_name").
		Join("LEFT JOIN students AS s ON s.student_id = ar.student_id")
	err := preds.Apply(sel).
		OrderExpr("ar.absent_at DESC").
		OrderExpr("ar.id DESC").
		Limit(q.Limit).
		Scan(ctx, &rows)

	r.metrics.Database.RecordQuery(ctx, "select", "absence_records", time.Since(start), err)

	return rows, err
}

// ExcusedLog reads only excused requests; pending and rejected ones never reach the log.
func (r *repository) ExcusedLog(ctx context.Context, q logQuery) ([]excusedRow, error) {
	var preds db.Predicates
	preds.Add("er.result = ?", excuse.ResultExcused)
	if q.FromDate != "" {
		preds.Add("er.absence_date >= ?", q.FromDate)
	}
	if q.ToDate != "" {
		preds.Add("er.absence_date <= ?", q.ToDate)
	}
	preds.AnyLike(q.Search, "s.first_name", "s.last_name", "er.student_id")

	start := time.Now()
	rows := []excusedRow{}
	sel := r.db.NewSelect().
		Model((*excuse.Request)(nil)).
		ColumnExpr("er.id, er.student_id, er.absence_date, er.reason").
		ColumnExpr("COALESCE(s.first_name, '') AS first_name").
		ColumnExpr("COALESCE(s.last_name, '') AS last_name").
		Join("LEFT JOIN students AS s ON s.student_id = er.student_id")
	err := preds.Apply(sel).
		OrderExpr("er.absence_date DESC").
		OrderExpr("er.id DESC").
		Limit(q.Limit).
		Scan(ctx, &rows)

	r.metrics.Database.RecordQuery(ctx, "select", "excuse_requests", time.Since(start), err)

	return rows, err
}

func (r *repository) count(ctx context.Context, table string, q *bun.SelectQuery) (int, error) {
	start := time.Now()
	n, err := q.Count(ctx)

	r.metrics.Database.RecordQuery(ctx, "count", table, time.Since(start), err)

	return n, err
}

func (r *repository) CountStudents(ctx context.Context) (int, error) {
	return r.count(ctx, "students", r.db.NewSelect().Model((*student.Student)(nil)))
}

func (r *repository) CountStaff(ctx context.Context) (int, error) {
	return r.count(ctx, "staff_accounts", r.db.NewSelect().Model((*account.StaffAccount)(nil)))
}

func (r *repository) distinct(ctx context.Context, table string, q *bun.SelectQuery) (int, error) {
	start := time.Now()
	var n int
	err := q.Scan(ctx, &n)

	r.metrics.Database.RecordQuery(ctx, "count", table, time.Since(start), err)

	return n, err
}

func (r *repository) DistinctPresent(ctx context.Context, from, to time.Time) (int, error) {
	return r.distinct(ctx, "presence_records", r.db.NewSelect().
		Model((*attendance.Presence)(nil)).
		ColumnExpr("COUNT(DISTINCT pr.student_id)").
		Where("pr.time_in >= ?", from).
		Where("pr.time_in < ?", to))
}

func (r *repository) DistinctAbsent(ctx context.Context, from, to time.Time) (int, error) {
	return r.distinct(ctx, "absence_records", r.db.NewSelect().
		Model((*attendance.Absence)(nil)).
		ColumnExpr("COUNT(DISTINCT ar.student_id)").
		Where("ar.absent_at >= ?", from).
		Where("ar.absent_at < ?", to))
}

func (r *repository) DistinctExcused(ctx context.Context, date string) (int, error) {
	return r.distinct(ctx, "excuse_requests", r.db.NewSelect().
		Model((*excuse.Request)(nil)).
		ColumnExpr("COUNT(DISTINCT er.student_id)").
		Where("er.result = ?", excuse.ResultExcused).
		Where("er.absence_date = ?", date))
}

func (r *repository) PresenceSince(ctx context.Context, from, to time.Time) ([]studentInstant, error) {
	start := time.Now()
	rows := []studentInstant{}
	err := r.db.NewSelect().
		Model((*attendance.Presence)(nil)).
		ColumnExpr("pr.student_id, pr.time_in AS at").
		Where("pr.time_in >= ?", from).
		Where("pr.time_in < ?", to).
		Scan(ctx, &rows)

	r.metrics.Database.RecordQuery(ctx, "select", "presence_records", time.Since(start), err)

	return rows, err
}

func (r *repository) AbsenceSince(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	start := time.Now()
	var instants []time.Time
	err := r.db.NewSelect().
		Model((*attendance.Absence)(nil)).
		Column("absent_at").
		Where("ar.absent_at >= ?", from).
		Where("ar.absent_at < ?", to).
		Scan(ctx, &instants)

	r.metrics.Database.RecordQuery(ctx, "select", "absence_records", time.Since(start), err)

	return instants, err
}

func (r *repository) ExcusedSince(ctx context.Context, fromDate, toDate string) ([]string, error) {
	start := time.Now()
	var dates []string
	err := r.db.NewSelect().
		Model((*excuse.Request)(nil)).
		Column("absence_date").
		Where("er.result = ?", excuse.ResultExcused).
		Where("er.absence_date >= ?", fromDate).
		Where("er.absence_date <= ?", toDate).
		Scan(ctx, &dates)

	r.metrics.Database.RecordQuery(ctx, "select", "excuse_requests", time.Since(start), err)

	return dates, err
}

func (r *repository) CountPresence(ctx context.Context, studentID string) (int, error) {
	return r.count(ctx, "presence_records", r.db.NewSelect().
		Model((*attendance.Presence)(nil)).
		Where("pr.student_id = ?", studentID))
}

func (r *repository) CountAbsences(ctx context.Context, studentID string) (int, error) {
	return r.count(ctx, "absence_records", r.db.NewSelect().
		Model((*attendance.Absence)(nil)).
		Where("ar.student_id = ?", studentID))
}

func (r *repository) CountExcused(ctx context.Context, studentID string) (int, error) {
	return r.count(ctx, "excuse_requests", r.db.NewSelect().
		Model((*excuse.Request)(nil)).
		Where("er.student_id = ?", studentID).
		Where("er.result = ?", excuse.ResultExcused))
}
