// Package schema lists every table and secondary index the service owns.
package schema

import (
	"context"

	"github.com/Mizumo-prjkt/openattendance/internal/account"
	"github.com/Mizumo-prjkt/openattendance/internal/attendance"
	"github.com/Mizumo-prjkt/openattendance/internal/db"
	"github.com/Mizumo-prjkt/openattendance/internal/excuse"
	"github.com/Mizumo-prjkt/openattendance/internal/settings"
	"github.com/Mizumo-prjkt/openattendance/internal/student"
	"github.com/Mizumo-prjkt/openattendance/internal/systemlog"

	"github.com/uptrace/bun"
)

func Models() []interface{} {
	return []interface{}{
		(*student.Student)(nil),
		(*account.AdminAccount)(nil),
		(*account.StaffAccount)(nil),
		(*account.StaffLogin)(nil),
		(*attendance.Presence)(nil),
		(*attendance.Absence)(nil),
		(*excuse.Request)(nil),
		(*systemlog.Entry)(nil),
		(*settings.Configuration)(nil),
	}
}

func Indexes() []db.Index {
	return []db.Index{
		{Name: "idx_presence_student_time_in", Model: (*attendance.Presence)(nil), Columns: []string{"student_id", "time_in"}},
		{Name: "idx_absence_student_absent_at", Model: (*attendance.Absence)(nil), Columns: []string{"student_id", "absent_at"}},
		{Name: "idx_excuse_student_result", Model: (*excuse.Request)(nil), Columns: []string{"student_id", "result"}},
		{Name: "idx_excuse_result_requested", Model: (*excuse.Request)(nil), Columns: []string{"result", "request_datetime"}},
		{Name: "idx_system_logs_timestamp", Model: (*systemlog.Entry)(nil), Columns: []string{"timestamp"}},
	}
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, bunDB *bun.DB) error {
	if err := db.RunMigrations(ctx, bunDB, Models()...); err != nil {
		return err
	}
	return db.CreateIndexes(ctx, bunDB, Indexes()...)
}
