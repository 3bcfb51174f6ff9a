package systemlog

import (
	"context"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/uptrace/bun"
)

type Repository interface {
	WithTx(tx bun.Tx) Repository
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
	Clear(ctx context.Context) (int64, error)
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

func (r *repository) Create(ctx context.Context, entry *Entry) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(entry).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "system_logs", time.Since(start), err)

	return err
}

// List returns one page, newest first, and the total row count matching the filter.
func (r *repository) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	start := time.Now()
	entries := []Entry{}

	q := r.db.NewSelect().Model(&entries)
	if filter.Level != "" {
		q = q.Where("lg.level = ?", filter.Level)
	}
	if filter.Source != "" {
		q = q.Where("lg.source = ?", filter.Source)
	}

	total, err := q.
		OrderExpr("lg.timestamp DESC").
		OrderExpr("lg.id DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		ScanAndCount(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "system_logs", time.Since(start), err)

	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) Clear(ctx context.Context) (int64, error) {
	start := time.Now()
	res, err := r.db.NewDelete().Model((*Entry)(nil)).Where("1 = 1").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "delete", "system_logs", time.Since(start), err)

	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
