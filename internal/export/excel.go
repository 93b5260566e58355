package export

import (
	"bytes"
	"fmt"

	"neckcare-posture/internal/models"

	"github.com/xuri/excelize/v2"
)

// WeeklyReportHeader 周报表头
var WeeklyReportHeader = []string{
	"Date",
	"Measured Minutes",
	"Avg Angle (deg)",
	"Warning Count",
	"Good Day",
	"Good Days Total",
}

const weeklySheetName = "Weekly Posture Report"

// GenerateWeeklyReport 生成周报 Excel 文件
// days 为按日期升序的每日汇总行，空列表只生成表头
func GenerateWeeklyReport(days []models.DailySummary) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	index, err := f.NewSheet(weeklySheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range WeeklyReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(weeklySheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(weeklySheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	columnWidths := []float64{14, 18, 16, 15, 10, 16}
	for i := range WeeklyReportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(weeklySheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	prevGoodDay := 0
	if len(days) > 0 {
		// 第一行是否"好日子"从其计数变化无法得知，按告警数判断
		prevGoodDay = days[0].GoodDay
		if days[0].Count <= models.GoodDayMaxWarnings {
			prevGoodDay--
		}
	}

	for rowIdx, day := range days {
		row := rowIdx + 2

		values := []interface{}{
			day.Date,
			fmt.Sprintf("%.1f", day.WeightSeconds/60),
			"",
			day.Count,
			"No",
			day.GoodDay,
		}
		if day.AvgAngle != nil {
			values[2] = fmt.Sprintf("%.1f", *day.AvgAngle)
		}
		if day.GoodDay > prevGoodDay {
			values[4] = "Yes"
		}
		prevGoodDay = day.GoodDay

		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(weeklySheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(weeklySheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}
