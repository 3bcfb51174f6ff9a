package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Attendance Log"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Export struct {
	Filename string
	Body     *bytes.Buffer
	Rows     int
}

var exportHeader = []interface{}{"Date", "Student ID", "First Name", "Last Name", "Status", "Time In", "Time Out", "Reason"}

// ExportLog renders the unified log for filter as an xlsx workbook.
func (s *service) ExportLog(ctx context.Context, filter LogFilter) (*Export, error) {
	entries, err := s.UnifiedLog(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.WarnContext(ctx, "failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{e.Date, e.StudentID, e.FirstName, e.LastName, string(e.Status), e.TimeIn, e.TimeOut, e.Reason}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(exportSheet, "A", "G", 14); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "H", "H", 40); err != nil {
		return nil, err
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	return &Export{
		Filename: fmt.Sprintf("attendance-log-%s.xlsx", s.cal.Today()),
		Body:     buf,
		Rows:     len(entries),
	}, nil
}
