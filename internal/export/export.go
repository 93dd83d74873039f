// Package export writes result tables to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/housing-cli/internal/table"
)

// DefaultSheet is the worksheet name used by WriteXLSX.
const DefaultSheet = "Sheet1"

// Format identifies an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFor infers the format from a file extension. Unknown extensions
// default to CSV.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Write writes t to path in the format implied by its extension.
func Write(path string, t *table.Table) error {
	if FormatFor(path) == FormatXLSX {
		return WriteXLSX(path, t, DefaultSheet)
	}
	return WriteCSV(path, t)
}

// WriteCSV writes t with a header row to path, creating parent directories.
func WriteCSV(path string, t *table.Table) error {
	if err := mkParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := EncodeCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// EncodeCSV writes t with a header row to w.
func EncodeCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i := range t.Len() {
		if err := cw.Write(t.Row(i)); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes t as a single worksheet. All cells are stored as text so
// identifiers keep their leading zeros.
func WriteXLSX(path string, t *table.Table, sheetName string) error {
	if sheetName == "" {
		sheetName = DefaultSheet
	}
	if err := mkParent(path); err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %q", sheetName)
	}
	addRow(sheet, t.Columns())
	for i := range t.Len() {
		addRow(sheet, t.Row(i))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadXLSX loads a worksheet into a table, treating the first row as the
// header. An empty sheet name selects the first sheet.
func ReadXLSX(path, sheetName string) (*table.Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("export: sheet %q not found in %s", sheetName, path)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("export: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("export: sheet %q in %s has no header row", sheet.Name, path)
	}

	header := cellStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, r := range sheet.Rows[1:] {
		rows = append(rows, cellStrings(r))
	}
	t, err := table.New(header, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "export: load %s", path)
	}
	return t, nil
}

func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func mkParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return eris.Wrapf(os.MkdirAll(dir, 0o755), "export: create directory %s", dir)
}
