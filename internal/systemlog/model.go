package systemlog

import (
	"context"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/calendar"

	"github.com/uptrace/bun"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelAudit Level = "audit"
)

// Entry is one append-only system log row.
type Entry struct {
	bun.BaseModel `bun:"table:system_logs,alias:lg"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Level     Level     `bun:"level,notnull" json:"level"`
	Message   string    `bun:"message,notnull" json:"message"`
	Source    string    `bun:"source" json:"source"`
	Details   string    `bun:"details" json:"details"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
}

var _ bun.AfterScanRowHook = (*Entry)(nil)

func (e *Entry) AfterScanRow(ctx context.Context) error {
	e.Timestamp = calendar.Normalize(e.Timestamp)
	return nil
}

type CreateRequest struct {
	Level   Level  `json:"level" validate:"required,oneof=info warn error audit"`
	Message string `json:"message" validate:"required"`
	Source  string `json:"source" validate:"max=100"`
	Details string `json:"details"`
}

type Filter struct {
	Page   int
	Limit  int
	Level  string
	Source string
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Page struct {
	Logs       []Entry    `json:"logs"`
	Pagination Pagination `json:"pagination"`
}
