package settings

import (
	"context"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/calendar"

	"github.com/uptrace/bun"
)

// SingletonID is the only configuration row.
const SingletonID = 1

type Configuration struct {
	bun.BaseModel `bun:"table:configurations,alias:cfg"`

	ConfigID            int64     `bun:"config_id,pk" json:"config_id"`
	SchoolName          string    `bun:"school_name,notnull" json:"school_name" validate:"required,max=200"`
	SchoolType          string    `bun:"school_type" json:"school_type" validate:"max=100"`
	Address             string    `bun:"address" json:"address"`
	OrganizationHotline string    `bun:"organization_hotline" json:"organization_hotline" validate:"max=32"`
	CountryCode         string    `bun:"country_code,notnull" json:"country_code" validate:"required,max=8"`
	LogoDirectory       string    `bun:"logo_directory" json:"logo_directory"`
	CreatedConfigDate   time.Time `bun:"created_config_date,notnull" json:"created_config_date"`
}

var _ bun.AfterScanRowHook = (*Configuration)(nil)

func (c *Configuration) AfterScanRow(ctx context.Context) error {
	c.CreatedConfigDate = calendar.Normalize(c.CreatedConfigDate)
	return nil
}
