package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as a "Sheet: <name>" header line followed by its rows
// as CSV. Sheets are separated by a blank line.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", corrupt("xlsx", err)
	}
	defer f.Close()

	sheets := make([]string, 0, len(f.GetSheetList()))
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", corrupt("xlsx", fmt.Errorf("get rows for sheet %q: %w", sheet, err))
		}
		var buf bytes.Buffer
		buf.WriteString("Sheet: " + sheet + "\n")
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return "", fmt.Errorf("render sheet %q: %w", sheet, err)
		}
		sheets = append(sheets, strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(sheets, "\n\n"), nil
}
