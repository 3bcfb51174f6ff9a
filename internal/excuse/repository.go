package excuse

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/uptrace/bun"
)

var ErrRequestNotFound = apperr.NotFound("Excuse request not found.")

type Repository interface {
	WithTx(tx bun.Tx) Repository
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id int64) (*Request, error)
	// Resolve moves a pending request to result. It reports false when the row is missing or no
	// longer pending.
	Resolve(ctx context.Context, id int64, result Result, p Processor, at time.Time) (bool, error)
	ListViews(ctx context.Context, result *Result) ([]View, error)
	ListByStudent(ctx context.Context, studentID string, result *Result) ([]Request, error)
	ResolveProcessors(ctx context.Context, processors []Processor) (map[Processor]string, error)
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{db: db, metrics: m}
}

func (r *repository) WithTx(tx bun.Tx) Repository {
	return &repository{db: tx, metrics: r.metrics}
}

func (r *repository) Create(ctx context.Context, req *Request) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(req).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "excuse_requests", time.Since(start), err)

	return err
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Request, error) {
	start := time.Now()
	req := new(Request)
	err := r.db.NewSelect().Model(req).Where("er.id = ?", id).Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "excuse_requests", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *repository) Resolve(ctx context.Context, id int64, result Result, p Processor, at time.Time) (bool, error) {
	start := time.Now()
	res, err := r.db.NewUpdate().
		Model((*Request)(nil)).
		Set("result = ?", result).
		Set("processor_id = ?", p.ID).
		Set("processor_type = ?", p.Kind).
		Set("verdict_datetime = ?", at).
		Where("id = ?", id).
		Where("result = ?", ResultPending).
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "update", "excuse_requests", time.Since(start), err)

	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) ListViews(ctx context.Context, result *Result) ([]View, error) {
	start := time.Now()
	views := []View{}

	q := r.db.NewSelect().
		Model(&views).
		ColumnExpr("er.*").
		ColumnExpr("TRIM(COALESCE(s.first_name, '') || ' ' || COALESCE(s.last_name, '')) AS student_name").
		ColumnExpr("COALESCE(sa.name, '') AS requester_name").
		Join("LEFT JOIN students AS s ON s.student_id = er.student_id").
		Join("LEFT JOIN staff_accounts AS sa ON sa.staff_id = er.requester_staff_id")
	if result != nil {
		q = q.Where("er.result = ?", *result)
	}

	err := q.
		OrderExpr("er.request_datetime DESC").
		OrderExpr("er.id DESC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "excuse_requests", time.Since(start), err)

	return views, err
}

func (r *repository) ListByStudent(ctx context.Context, studentID string, result *Result) ([]Request, error) {
	start := time.Now()
	requests := []Request{}

	q := r.db.NewSelect().Model(&requests).Where("er.student_id = ?", studentID)
	if result != nil {
		q = q.Where("er.result = ?", *result)
	}

	err := q.
		OrderExpr("er.request_datetime DESC").
		OrderExpr("er.id DESC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "excuse_requests", time.Since(start), err)

	return requests, err
}

type processorRow struct {
	Kind string `bun:"kind"`
	ID   string `bun:"id"`
	Name string `bun:"name"`
}

// ResolveProcessors looks up display names for admin and staff processors in one round trip.
// Processors that no longer exist are absent from the map.
func (r *repository) ResolveProcessors(ctx context.Context, processors []Processor) (map[Processor]string, error) {
	names := make(map[Processor]string, len(processors))

	var adminIDs []int64
	var staffIDs []string
	seen := make(map[Processor]bool, len(processors))
	for _, p := range processors {
		if seen[p] {
			continue
		}
		seen[p] = true
		switch p.Kind {
		case ProcessorAdmin:
			id, err := strconv.ParseInt(p.ID, 10, 64)
			if err == nil {
				adminIDs = append(adminIDs, id)
			}
		case ProcessorStaff:
			staffIDs = append(staffIDs, p.ID)
		}
	}

	var parts []*bun.SelectQuery
	if len(adminIDs) > 0 {
		parts = append(parts, r.db.NewSelect().
			TableExpr("admin_accounts AS aa").
			ColumnExpr("? AS kind", string(ProcessorAdmin)).
			ColumnExpr("CAST(aa.admin_id AS TEXT) AS id").
			ColumnExpr("aa.username AS name").
			Where("aa.admin_id IN (?)", bun.In(adminIDs)))
	}
	if len(staffIDs) > 0 {
		parts = append(parts, r.db.NewSelect().
			TableExpr("staff_accounts AS sa").
			ColumnExpr("? AS kind", string(ProcessorStaff)).
			ColumnExpr("sa.staff_id AS id").
			ColumnExpr("sa.name AS name").
			Where("sa.staff_id IN (?)", bun.In(staffIDs)))
	}
	if len(parts) == 0 {
		return names, nil
	}

	q := parts[0]
	for _, part := range parts[1:] {
		q = q.UnionAll(part)
	}

	start := time.Now()
	var rows []processorRow
	err := q.Scan(ctx, &rows)

	r.metrics.Database.RecordQuery(ctx, "select", "processors", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[Processor{Kind: ProcessorKind(row.Kind), ID: row.ID}] = row.Name
	}
	return names, nil
}
