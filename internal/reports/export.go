package reports

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alerts "classroom-sentinel/internal/alerts/domain"
)

// Summary aggregates an alert list for export headers.
type Summary struct {
	RoomID      string
	From        time.Time
	To          time.Time
	GeneratedAt time.Time
	Total       int
	ByType      map[alerts.AlertType]int
}

// Summarize computes per-type counts over an alert list.
func Summarize(list []alerts.Alert, roomID string, from, to, generatedAt time.Time) Summary {
	summary := Summary{
		RoomID:      roomID,
		From:        from,
		To:          to,
		GeneratedAt: generatedAt.UTC(),
		Total:       len(list),
		ByType:      make(map[alerts.AlertType]int),
	}
	for _, alert := range list {
		summary.ByType[alert.Type]++
	}
	return summary
}

func (s Summary) typeRows() [][2]string {
	types := make([]alerts.AlertType, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	rows := make([][2]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, [2]string{string(t), fmt.Sprintf("%d", s.ByType[t])})
	}
	return rows
}

func (s Summary) scopeLabel() string {
	if s.RoomID == "" {
		return "all rooms"
	}
	return "room " + s.RoomID
}

func (s Summary) rangeLabel() string {
	if s.From.IsZero() && s.To.IsZero() {
		return "full history"
	}
	from, to := "...", "..."
	if !s.From.IsZero() {
		from = s.From.Format("2006-01-02 15:04")
	}
	if !s.To.IsZero() {
		to = s.To.Format("2006-01-02 15:04")
	}
	return from + " to " + to
}

func formatMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for i, key := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%v", key, metadata[key])
	}
	return buf.String()
}

// BuildAlertsPDF renders an alert report as PDF.
func BuildAlertsPDF(summary Summary, list []alerts.Alert) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Classroom Alert Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Scope: %s", summary.scopeLabel()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Range: %s", summary.rangeLabel()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", summary.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Alerts: %d", summary.Total))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range summary.typeRows() {
		pdf.CellFormat(60, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, row[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Room", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Fired At", "1", 0, "C", false, 0, "")
	pdf.CellFormat(85, 6, "Details", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, alert := range list {
		pdf.CellFormat(25, 6, alert.RoomID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(alert.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, alert.Timestamp.Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(85, 6, formatMetadata(alert.Metadata), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlertsXLSX renders an alert report as XLSX.
func BuildAlertsXLSX(summary Summary, list []alerts.Alert) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	alertsSheet := "alerts"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(alertsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Classroom Alert Report")
	_ = f.SetCellValue(summarySheet, "A3", "Scope")
	_ = f.SetCellValue(summarySheet, "B3", summary.scopeLabel())
	_ = f.SetCellValue(summarySheet, "A4", "Range")
	_ = f.SetCellValue(summarySheet, "B4", summary.rangeLabel())
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", summary.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Total Alerts")
	_ = f.SetCellValue(summarySheet, "B6", summary.Total)
	for i, row := range summary.typeRows() {
		line := i + 8
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", line), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", line), summary.ByType[alerts.AlertType(row[0])])
	}

	_ = f.SetCellValue(alertsSheet, "A1", "ID")
	_ = f.SetCellValue(alertsSheet, "B1", "Room")
	_ = f.SetCellValue(alertsSheet, "C1", "Type")
	_ = f.SetCellValue(alertsSheet, "D1", "Fired At")
	_ = f.SetCellValue(alertsSheet, "E1", "Snapshot")
	_ = f.SetCellValue(alertsSheet, "F1", "Details")
	for i, alert := range list {
		row := i + 2
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("A%d", row), alert.ID)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("B%d", row), alert.RoomID)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("C%d", row), string(alert.Type))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("D%d", row), alert.Timestamp.Format(time.RFC3339))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("E%d", row), alert.SnapshotRef)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("F%d", row), formatMetadata(alert.Metadata))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
