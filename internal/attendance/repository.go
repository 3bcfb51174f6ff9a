package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/uptrace/bun"
)

type Repository interface {
	WithTx(tx bun.Tx) Repository
	CreatePresence(ctx context.Context, p *Presence) error
	// FindOpenPresence returns the newest open record with time_in in [from, to), or nil.
	FindOpenPresence(ctx context.Context, studentID string, from, to time.Time) (*Presence, error)
	ClosePresence(ctx context.Context, id int64, at time.Time) error
	CreateAbsence(ctx context.Context, a *Absence) error
	ListPresence(ctx context.Context, studentID string) ([]Presence, error)
	ListAbsences(ctx context.Context, studentID string) ([]Absence, error)
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

func (r *repository) CreatePresence(ctx context.Context, p *Presence) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(p).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "presence_records", time.Since(start), err)

	return err
}

func (r *repository) FindOpenPresence(ctx context.Context, studentID string, from, to time.Time) (*Presence, error) {
	start := time.Now()
	p := new(Presence)
	err := r.db.NewSelect().
		Model(p).
		Where("pr.student_id = ?", studentID).
		Where("pr.time_out IS NULL").
		Where("pr.time_in >= ?", from).
		Where("pr.time_in < ?", to).
		OrderExpr("pr.time_in DESC").
		Limit(1).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		r.metrics.Database.RecordQuery(ctx, "select", "presence_records", time.Since(start), nil)
		return nil, nil
	}
	r.metrics.Database.RecordQuery(ctx, "select", "presence_records", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) ClosePresence(ctx context.Context, id int64, at time.Time) error {
	start := time.Now()
	_, err := r.db.NewUpdate().
		Model((*Presence)(nil)).
		Set("time_out = ?", at).
		Where("id = ?", id).
		Where("time_out IS NULL").
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "update", "presence_records", time.Since(start), err)

	return err
}

func (r *repository) CreateAbsence(ctx context.Context, a *Absence) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(a).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "absence_records", time.Since(start), err)

	return err
}

func (r *repository) ListPresence(ctx context.Context, studentID string) ([]Presence, error) {
	start := time.Now()
	records := []Presence{}
	err := r.db.NewSelect().
		Model(&records).
		Where("pr.student_id = ?", studentID).
		OrderExpr("pr.time_in DESC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "presence_records", time.Since(start), err)

	return records, err
}

func (r *repository) ListAbsences(ctx context.Context, studentID string) ([]Absence, error) {
	start := time.Now()
	records := []Absence{}
	err := r.db.NewSelect().
		Model(&records).
		Where("ar.student_id = ?", studentID).
		OrderExpr("ar.absent_at DESC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "absence_records", time.Since(start), err)

	return records, err
}
