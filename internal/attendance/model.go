package attendance

import (
	"context"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/calendar"

	"github.com/uptrace/bun"
)

// Presence is one check-in, closed by a check-out.
type Presence struct {
	bun.BaseModel `bun:"table:presence_records,alias:pr"`

	ID        int64      `bun:"id,pk,autoincrement" json:"id"`
	StudentID string     `bun:"student_id,notnull" json:"student_id"`
	StaffID   string     `bun:"staff_id,notnull" json:"staff_id"`
	TimeIn    time.Time  `bun:"time_in,notnull" json:"time_in"`
	TimeOut   *time.Time `bun:"time_out" json:"time_out"`
}

var (
	_ bun.AfterScanRowHook = (*Presence)(nil)
	_ bun.AfterScanRowHook = (*Absence)(nil)
)

func (p *Presence) AfterScanRow(ctx context.Context) error {
	p.TimeIn = calendar.Normalize(p.TimeIn)
	if p.TimeOut != nil {
		out := calendar.Normalize(*p.TimeOut)
		p.TimeOut = &out
	}
	return nil
}

func (p *Presence) Open() bool {
	return p.TimeOut == nil
}

type Absence struct {
	bun.BaseModel `bun:"table:absence_records,alias:ar"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	StudentID string    `bun:"student_id,notnull" json:"student_id"`
	StaffID   string    `bun:"staff_id,notnull" json:"staff_id"`
	AbsentAt  time.Time `bun:"absent_at,notnull" json:"absent_at"`
	Reason    string    `bun:"reason,notnull" json:"reason"`
}

func (a *Absence) AfterScanRow(ctx context.Context) error {
	a.AbsentAt = calendar.Normalize(a.AbsentAt)
	return nil
}

type StudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

type AbsenceRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}
