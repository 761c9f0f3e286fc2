package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"wisefido-oximetry/internal/models"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestGenerateTrendReport_Success(t *testing.T) {
	rows := []models.TrendRow{
		{Minute: 1, SpO2: 93, Reserve: 0.5556, Delta: nil, Drop: nil, Alert: "OFF", Reason: "NO_TRIGGER", Note: "first sample"},
		{Minute: 2, SpO2: 91, Reserve: 0.3056, Delta: floatPtr(-0.25), Drop: floatPtr(0.25), Alert: "OFF", Reason: "NO_TRIGGER", Note: ""},
		{Minute: 3, SpO2: 88, Reserve: 0, Delta: floatPtr(-0.3056), Drop: floatPtr(0.3056), Alert: "ON*", Reason: "FLOOR_LIMIT", Note: ""},
	}

	data, err := GenerateTrendReport("Oximeter A", "streak_hold", rows)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// 默认 Sheet1 已删除，只保留趋势表
	assert.Equal(t, []string{"SpO2 Trend"}, f.GetSheetList())

	// 表头
	for col, header := range TrendReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		require.NoError(t, err)
		value, err := f.GetCellValue("SpO2 Trend", cell)
		require.NoError(t, err)
		assert.Equal(t, header, value)
	}

	// 首行：delta/drop 留空
	minute, _ := f.GetCellValue("SpO2 Trend", "A2")
	assert.Equal(t, "1", minute)
	spo2, _ := f.GetCellValue("SpO2 Trend", "B2")
	assert.Equal(t, "93", spo2)
	reserve, _ := f.GetCellValue("SpO2 Trend", "C2")
	assert.Equal(t, "0.5556", reserve)
	delta, _ := f.GetCellValue("SpO2 Trend", "D2")
	assert.Equal(t, "", delta)
	drop, _ := f.GetCellValue("SpO2 Trend", "E2")
	assert.Equal(t, "", drop)
	note, _ := f.GetCellValue("SpO2 Trend", "H2")
	assert.Equal(t, "first sample", note)

	// 第二行：delta 为负值
	delta2, _ := f.GetCellValue("SpO2 Trend", "D3")
	assert.Equal(t, "-0.25", delta2)

	// 第三行：触底报警
	alert3, _ := f.GetCellValue("SpO2 Trend", "F4")
	assert.Equal(t, "ON*", alert3)
	reason3, _ := f.GetCellValue("SpO2 Trend", "G4")
	assert.Equal(t, "FLOOR_LIMIT", reason3)
	reserve3, _ := f.GetCellValue("SpO2 Trend", "C4")
	assert.Equal(t, "0", reserve3)
}

func TestGenerateTrendReport_Empty(t *testing.T) {
	data, err := GenerateTrendReport("Oximeter A", "floor_window", nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// 只有表头
	value, err := f.GetCellValue("SpO2 Trend", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Minute", value)
	value, err = f.GetCellValue("SpO2 Trend", "A2")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestGenerateTrendReport_AlertRowHighlight(t *testing.T) {
	rows := []models.TrendRow{
		{Minute: 1, SpO2: 99, Reserve: 1, Alert: "OFF", Reason: "NO_TRIGGER", Note: "first sample"},
		{Minute: 2, SpO2: 88, Reserve: 0, Delta: floatPtr(-1), Drop: floatPtr(1), Alert: "ON*", Reason: "FLOOR_LIMIT"},
	}

	data, err := GenerateTrendReport("", "streak_hold", rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// 报警行有填充样式，正常行没有
	normalStyle, err := f.GetCellStyle("SpO2 Trend", "A2")
	require.NoError(t, err)
	alertStyle, err := f.GetCellStyle("SpO2 Trend", "A3")
	require.NoError(t, err)
	assert.NotEqual(t, normalStyle, alertStyle)
}
