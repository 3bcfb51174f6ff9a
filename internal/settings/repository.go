package settings

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/uptrace/bun"
)

var ErrNotConfigured = apperr.NotFound("School configuration has not been set up yet.")

type Repository interface {
	Get(ctx context.Context) (*Configuration, error)
	Upsert(ctx context.Context, cfg *Configuration) error
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{db: db, metrics: m}
}

func (r *repository) Get(ctx context.Context) (*Configuration, error) {
	start := time.Now()
	cfg := new(Configuration)
	err := r.db.NewSelect().Model(cfg).Where("cfg.config_id = ?", SingletonID).Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		r.metrics.Database.RecordQuery(ctx, "select", "configurations", time.Since(start), nil)
		return nil, ErrNotConfigured
	}
	r.metrics.Database.RecordQuery(ctx, "select", "configurations", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Upsert writes row SingletonID. created_config_date keeps its first value.
func (r *repository) Upsert(ctx context.Context, cfg *Configuration) error {
	start := time.Now()
	cfg.ConfigID = SingletonID
	_, err := r.db.NewInsert().
		Model(cfg).
		On("CONFLICT (config_id) DO UPDATE").
		Set("school_name = EXCLUDED.school_name").
		Set("school_type = EXCLUDED.school_type").
		Set("address = EXCLUDED.address").
		Set("organization_hotline = EXCLUDED.organization_hotline").
		Set("country_code = EXCLUDED.country_code").
		Set("logo_directory = EXCLUDED.logo_directory").
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "upsert", "configurations", time.Since(start), err)

	return err
}
