package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders a workbook as text: a "# <sheet>" heading per non-empty sheet followed
// by one line per row, cells joined by " | ". Blank cells at the ends of a row and rows with no
// content are dropped so that chunk windows are not spent on padding.
func extractExcel(content []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var sheets []string
	for _, name := range wb.GetSheetList() {
		lines, err := sheetLines(wb, name)
		if err != nil {
			return "", err
		}
		if len(lines) == 0 {
			continue
		}
		sheets = append(sheets, "# "+name+"\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(sheets, "\n\n"), nil
}

func sheetLines(wb *excelize.File, sheet string) ([]string, error) {
	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row in sheet %q: %w", sheet, err)
		}
		if line := rowLine(cells); line != "" {
			lines = append(lines, line)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return lines, nil
}

func rowLine(cells []string) string {
	start, end := 0, len(cells)
	for start < end && strings.TrimSpace(cells[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	out := make([]string, 0, end-start)
	for _, c := range cells[start:end] {
		out = append(out, strings.TrimSpace(c))
	}
	return strings.Join(out, " | ")
}
