package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/db"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/uptrace/bun"
)

var (
	ErrStudentNotFound = apperr.NotFound("Student not found.")
	ErrDuplicateCode   = apperr.Conflict("A student with this Student ID already exists.")
)

// referencingTables hold rows keyed by the student code.
var referencingTables = []string{"presence_records", "absence_records", "excuse_requests"}

type Repository interface {
	WithTx(tx bun.Tx) Repository
	Create(ctx context.Context, student *Student) (*Student, error)
	GetAll(ctx context.Context) ([]Student, error)
	GetByID(ctx context.Context, id int64) (*Student, error)
	GetByCode(ctx context.Context, code string) (*Student, error)
	Update(ctx context.Context, student *Student) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Student, error)
	ListByClassroom(ctx context.Context, section string) ([]Student, error)
	Classrooms(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	CountReferences(ctx context.Context, code string) (int, error)
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) WithTx(tx bun.Tx) Repository {
	return &repository{db: tx, metrics: r.metrics}
}

func (r *repository) Create(ctx context.Context, student *Student) (*Student, error) {
	start := time.Now()
	_, err := r.db.NewInsert().Model(student).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "students", time.Since(start), err)

	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}
	return student, nil
}

func (r *repository) GetAll(ctx context.Context) ([]Student, error) {
	start := time.Now()
	students := []Student{}
	err := r.db.NewSelect().
		Model(&students).
		OrderExpr("s.last_name ASC, s.first_name ASC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	return students, err
}

func (r *repository) getOne(ctx context.Context, where string, value interface{}) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.db.NewSelect().Model(student).Where(where, value).Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Student, error) {
	return r.getOne(ctx, "s.id = ?", id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Student, error) {
	return r.getOne(ctx, "s.student_id = ?", code)
}

func (r *repository) Update(ctx context.Context, student *Student) error {
	start := time.Now()
	result, err := r.db.NewUpdate().Model(student).WherePK().Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "update", "students", time.Since(start), err)

	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	student := &Student{ID: id}
	result, err := r.db.NewDelete().Model(student).WherePK().Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "delete", "students", time.Since(start), err)

	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Student, error) {
	var preds db.Predicates
	preds.AnyLike(filter.Term, "s.first_name", "s.last_name", "s.student_id")
	if filter.Classroom != "" {
		preds.Add("s.classroom_section = ?", filter.Classroom)
	}

	limit := filter.Limit
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}

	start := time.Now()
	students := []Student{}
	q := r.db.NewSelect().Model(&students)
	err := preds.Apply(q).
		OrderExpr("s.last_name ASC, s.first_name ASC").
		Limit(limit).
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	return students, err
}

func (r *repository) ListByClassroom(ctx context.Context, section string) ([]Student, error) {
	start := time.Now()
	students := []Student{}
	err := r.db.NewSelect().
		Model(&students).
		Where("s.classroom_section = ?", section).
		OrderExpr("s.last_name ASC, s.first_name ASC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	return students, err
}

func (r *repository) Classrooms(ctx context.Context) ([]string, error) {
	start := time.Now()
	sections := []string{}
	err := r.db.NewSelect().
		Model((*Student)(nil)).
		ColumnExpr("DISTINCT s.classroom_section").
		Where("s.classroom_section IS NOT NULL").
		Where("s.classroom_section <> ''").
		OrderExpr("s.classroom_section ASC").
		Scan(ctx, &sections)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	return sections, err
}

func (r *repository) Count(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.db.NewSelect().Model((*Student)(nil)).Count(ctx)

	r.metrics.Database.RecordQuery(ctx, "count", "students", time.Since(start), err)

	return n, err
}

func (r *repository) CountReferences(ctx context.Context, code string) (int, error) {
	total := 0
	for _, table := range referencingTables {
		start := time.Now()
		n, err := r.db.NewSelect().TableExpr(table).Where("student_id = ?", code).Count(ctx)

		r.metrics.Database.RecordQuery(ctx, "count", table, time.Since(start), err)

		if err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}
