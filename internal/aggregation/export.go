package aggregation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the digest rows are written to.
const SheetName = "Digest"

var workbookHeader = []string{
	"House",
	"Room",
	"Serial Number",
	"Device Type",
	"Status",
	"Breached",
	"Alerts",
	"Last Seen",
}

// WorkbookExporter writes each digest as digest-YYYY-MM-DD.xlsx.
type WorkbookExporter struct {
	dir  string
	unit inventory.TemperatureUnit
}

func NewWorkbookExporter(dir string, unit inventory.TemperatureUnit) *WorkbookExporter {
	return &WorkbookExporter{dir: dir, unit: unit}
}

// Export writes the workbook and returns its path.
func (e *WorkbookExporter) Export(s *Summary) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := buildWorkbook(s, e.unit)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, fmt.Sprintf("digest-%s.xlsx", s.PeriodEnd.Format("2006-01-02")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save digest workbook: %w", err)
	}
	return path, nil
}

func buildWorkbook(s *Summary, unit inventory.TemperatureUnit) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	params := s.ValueParameters()
	headers := append([]string{}, workbookHeader...)
	for _, p := range params {
		label := p.Label()
		if u := strings.TrimSpace(p.Unit(unit)); u != "" {
			label += " (" + u + ")"
		}
		headers = append(headers, label)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	row := 2
	for _, h := range s.Houses {
		for _, r := range h.Rooms {
			for _, d := range r.Devices {
				values := []any{
					h.Name,
					r.Name,
					d.Serial,
					d.Type,
					deviceStatus(d),
					joinParameters(d.Breached),
					d.Alerts,
					formatLastSeen(d.LastSeen),
				}
				for _, p := range params {
					if v, ok := d.Values[p]; ok {
						values = append(values, v)
					} else {
						values = append(values, "")
					}
				}
				if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &values); err != nil {
					f.Close()
					return nil, fmt.Errorf("failed to write row %d: %w", row, err)
				}
				row++
			}
		}
	}

	if err := f.SetColWidth(SheetName, "A", "D", 18); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	return f, nil
}

func deviceStatus(d DeviceSummary) string {
	switch {
	case d.Healthy():
		return "ok"
	case d.Misconfigured:
		return "misconfigured"
	case d.Stale:
		return "stale"
	default:
		return "breached"
	}
}

func joinParameters(ps []inventory.Parameter) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}
