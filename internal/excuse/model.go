package excuse

import (
	"context"
	"strconv"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"

	"github.com/uptrace/bun"
)

// Result is the state of a request: pending until adjudicated, then excused or rejected for good.
type Result string

const (
	ResultPending  Result = "pending"
	ResultExcused  Result = "excused"
	ResultRejected Result = "rejected"
)

func (r Result) Terminal() bool {
	return r == ResultExcused || r == ResultRejected
}

// ParseResult reads a status filter. An empty string or "all" means no filter.
func ParseResult(s string) (*Result, error) {
	switch Result(s) {
	case "", "all":
		return nil, nil
	case ResultPending, ResultExcused, ResultRejected:
		r := Result(s)
		return &r, nil
	}
	return nil, apperr.Invalid("status", "Status must be one of pending, excused, rejected.")
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject:
		return Action(s), nil
	}
	return "", apperr.Invalid("action", "Invalid action. Must be 'approve' or 'reject'.")
}

// Result is the state an action moves a pending request to.
func (a Action) Result() Result {
	if a == ActionApprove {
		return ResultExcused
	}
	return ResultRejected
}

type ProcessorKind string

const (
	ProcessorAdmin ProcessorKind = "admin"
	ProcessorStaff ProcessorKind = "staff"
)

// Processor is whoever adjudicated a request: an admin account by numeric id or a staff member
// by staff code.
type Processor struct {
	Kind ProcessorKind
	ID   string
}

func AdminProcessor(adminID int64) Processor {
	return Processor{Kind: ProcessorAdmin, ID: strconv.FormatInt(adminID, 10)}
}

func StaffProcessor(staffID string) Processor {
	return Processor{Kind: ProcessorStaff, ID: staffID}
}

// ProcessorFor maps a caller to the processor recorded on a verdict.
func ProcessorFor(id auth.Identity) Processor {
	if id.IsAdmin() {
		return AdminProcessor(id.AdminID)
	}
	return StaffProcessor(id.StaffID)
}

// Request is an excuse request for one student's absence on AbsenceDate.
// VerdictDatetime, ProcessorID and ProcessorType are set exactly when Result is not pending.
type Request struct {
	bun.BaseModel `bun:"table:excuse_requests,alias:er"`

	ID               int64          `bun:"id,pk,autoincrement" json:"id"`
	StudentID        string         `bun:"student_id,notnull" json:"student_id"`
	RequesterStaffID string         `bun:"requester_staff_id,notnull" json:"requester_staff_id"`
	ProcessorID      *string        `bun:"processor_id" json:"processor_id"`
	ProcessorType    *ProcessorKind `bun:"processor_type" json:"processor_type"`
	Reason           string         `bun:"reason,notnull" json:"reason"`
	AbsenceDate      string         `bun:"absence_date,notnull" json:"absence_date"`
	RequestDatetime  time.Time      `bun:"request_datetime,notnull" json:"request_datetime"`
	VerdictDatetime  *time.Time     `bun:"verdict_datetime" json:"verdict_datetime"`
	Result           Result         `bun:"result,notnull" json:"result"`
}

var _ bun.AfterScanRowHook = (*Request)(nil)

// AfterScanRow keeps instants in UTC whatever zone the driver read them back in.
func (r *Request) AfterScanRow(ctx context.Context) error {
	r.RequestDatetime = calendar.Normalize(r.RequestDatetime)
	if r.VerdictDatetime != nil {
		at := calendar.Normalize(*r.VerdictDatetime)
		r.VerdictDatetime = &at
	}
	return nil
}

// Processor returns the adjudicator, if any.
func (r *Request) Processor() (Processor, bool) {
	if r.ProcessorID == nil || r.ProcessorType == nil {
		return Processor{}, false
	}
	return Processor{Kind: *r.ProcessorType, ID: *r.ProcessorID}, true
}

func (r *Request) setVerdict(result Result, p Processor, at time.Time) {
	kind, id := p.Kind, p.ID
	r.Result = result
	r.ProcessorType = &kind
	r.ProcessorID = &id
	r.VerdictDatetime = &at
}

// View is a request joined with display names for listing.
type View struct {
	Request `bun:",extend"`

	StudentName   string `bun:"student_name" json:"student_name"`
	RequesterName string `bun:"requester_name" json:"requester_name"`
	ProcessorName string `bun:"-" json:"processor_name,omitempty"`
}

type SubmitRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	AbsenceDate string `json:"absence_date" validate:"required,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"required"`
	ApproveNow  bool   `json:"approve_now"`
}
