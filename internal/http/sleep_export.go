package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"mhealth-data/internal/domain"

	"github.com/xuri/excelize/v2"
)

// SleepExportHeader 睡眠记录导出表头
var SleepExportHeader = []string{
	"Sleep ID",
	"Start Time",
	"End Time",
	"Duration (ms)",
	"Type",
	"Segments",
	"Awakenings",
	"Night Awakenings",
}

// ExportSleeps 导出患者睡眠记录为 Excel
// GET /v1/patients/{patient_id}/sleep/export?start_date=yyyy-MM-dd&end_date=yyyy-MM-dd
func (h *SleepHandler) ExportSleeps(w http.ResponseWriter, r *http.Request, patientID string) {
	q, err := sleepQueryFromRequest(r, patientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter.", err.Error())
		return
	}
	// 导出不分页
	q.Page = 1
	q.Size = 10000

	records, _, err := h.sleepService.ListSleeps(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := generateSleepExcel(records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate export file.", "")
		return
	}

	filename := fmt.Sprintf("sleep-%s-%s.xlsx", patientID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// generateSleepExcel 生成睡眠记录导出 Excel 文件
func generateSleepExcel(records []*domain.SleepRecord) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Sleep Records"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range SleepExportHeader {
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

	for i, rec := range records {
		row := []any{
			rec.ID,
			rec.StartTime,
			rec.EndTime,
			derefInt64(rec.Duration),
			string(rec.Type),
			segmentCount(rec),
			len(rec.Awakenings),
			len(rec.NightAwakenings),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func segmentCount(rec *domain.SleepRecord) int {
	if rec.Pattern == nil {
		return 0
	}
	return len(rec.Pattern.DataSet)
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
