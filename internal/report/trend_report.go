package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"wisefido-oximetry/internal/models"
)

// TrendReportHeader 趋势报表表头
var TrendReportHeader = []string{
	"Minute",
	"SpO2",
	"Reserve",
	"Delta",
	"Drop",
	"Alert",
	"Reason",
	"Note",
}

// trendReportColumnWidths 各列宽度
var trendReportColumnWidths = []float64{
	10, // Minute
	10, // SpO2
	12, // Reserve
	12, // Delta
	12, // Drop
	10, // Alert
	22, // Reason
	60, // Note
}

// GenerateTrendReport 生成趋势决策行 Excel 报表
// rows: 引擎输出的决策行，按分钟升序；报警行（ON/ON*）高亮显示
func GenerateTrendReport(deviceName, mode string, rows []models.TrendRow) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "SpO2 Trend"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close() // Close on error
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
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

	// 报警行高亮样式
	alertStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FFC7CE"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create alert style: %w", err)
	}

	// 写入表头
	for col, header := range TrendReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 设置列宽
	for i := range TrendReportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, trendReportColumnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 写入决策行
	for rowIdx, row := range rows {
		excelRow := rowIdx + 2 // 从第2行开始（第1行是表头）

		values := []interface{}{
			row.Minute,
			row.SpO2,
			row.Reserve,
			floatOrEmpty(row.Delta),
			floatOrEmpty(row.Drop),
			row.Alert,
			row.Reason,
			row.Note,
		}
		for colIdx, value := range values {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, excelRow)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value %s: %w", cell, err)
			}
		}

		// 报警行整行高亮
		if row.Asserted() {
			startCell, _ := excelize.CoordinatesToCellName(1, excelRow)
			endCell, _ := excelize.CoordinatesToCellName(len(TrendReportHeader), excelRow)
			if err := f.SetCellStyle(sheetName, startCell, endCell, alertStyle); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set alert style: %w", err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
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

	// 文档属性记录设备与引擎模式
	if deviceName != "" || mode != "" {
		title := fmt.Sprintf("SpO2 Trend Report - %s (%s)", deviceName, mode)
		if err := f.SetDocProps(&excelize.DocProperties{Title: title}); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set doc properties: %w", err)
		}
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	// Close file after writing
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// floatOrEmpty 可空浮点转单元格值（nil 时单元格留空）
func floatOrEmpty(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
