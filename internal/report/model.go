package report

import (
	"strings"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/excuse"
)

type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusExcused Status = "Excused"
)

// ParseStatus accepts a status filter in any case. Empty means all statuses.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", nil
	case "present":
		return StatusPresent, nil
	case "absent":
		return StatusAbsent, nil
	case "excused":
		return StatusExcused, nil
	}
	return "", apperr.Invalid("status", "Status must be one of Present, Absent, Excused.")
}

// LogFilter narrows the unified log. Dates are logical dates (YYYY-MM-DD); empty fields do not
// filter. Limit <= 0 selects the configured page size.
type LogFilter struct {
	DateFrom      string
	DateTo        string
	Status        string
	StudentSearch string
	Limit         int
}

// LogEntry is one row of the unified log. TimeIn and TimeOut are only set for Present rows.
type LogEntry struct {
	ID        int64  `json:"id"`
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Date      string `json:"date"`
	TimeIn    string `json:"time_in"`
	TimeOut   string `json:"time_out"`
	Status    Status `json:"status"`
	Reason    string `json:"reason"`

	at time.Time
}

func (e LogEntry) rank() int {
	switch e.Status {
	case StatusPresent:
		return 0
	case StatusAbsent:
		return 1
	default:
		return 2
	}
}

// less orders by date desc, then rows with a time-in before those without, then instant desc,
// then Present, Absent, Excused, then id desc.
func less(a, b LogEntry) bool {
	if a.Date != b.Date {
		return a.Date > b.Date
	}
	aIn, bIn := a.TimeIn != "", b.TimeIn != ""
	if aIn != bIn {
		return aIn
	}
	if !a.at.Equal(b.at) {
		return a.at.After(b.at)
	}
	if a.rank() != b.rank() {
		return a.rank() < b.rank()
	}
	return a.ID > b.ID
}

type DayCount struct {
	Date      string `json:"date"`
	DayOfWeek string `json:"day_of_week"`
	Count     int    `json:"count"`
}

type WeekCount struct {
	Week    string `json:"week"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Excused int    `json:"excused"`
}

type DashboardStats struct {
	TotalStudents    int         `json:"totalStudents"`
	TotalStaff       int         `json:"totalStaff"`
	TodaysAttendance int         `json:"todaysAttendance"`
	TodaysAbsences   int         `json:"todaysAbsences"`
	TodaysExcused    int         `json:"todaysExcused"`
	WeeklyTrend      []DayCount  `json:"weeklyTrend"`
	MonthlyOverview  []WeekCount `json:"monthlyOverview"`
}

type SummaryStats struct {
	PresentCount int `json:"present_count"`
	AbsentCount  int `json:"absent_count"`
	ExcusedCount int `json:"excused_count"`
}

type StudentSummary struct {
	Stats   SummaryStats     `json:"stats"`
	Excuses []excuse.Request `json:"excuses"`
}
