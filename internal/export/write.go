package export

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/leads"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// SheetName is the worksheet written to XLSX reports.
const SheetName = "Matches"

// WriteFile writes rows to path in the given format. An empty format is
// inferred from the file extension.
func WriteFile(path, format string, columns []string, rows []leads.Row) error {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", dir)
		}
	}

	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(path, columns, rows)
	case FormatXLSX:
		err = WriteXLSX(path, columns, rows)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
	if err != nil {
		return err
	}

	zap.L().Info("export: report written",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("rows", len(rows)),
	)
	return nil
}

func writeCSV(path string, columns []string, rows []leads.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := leads.WriteCSV(f, ',', columns, rows); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "export: write csv")
	}
	return eris.Wrap(f.Close(), "export: close csv")
}

// WriteXLSX writes a single-sheet workbook. Numeric report columns are
// stored as numbers so spreadsheet filters and sums work.
func WriteXLSX(path string, columns []string, rows []leads.Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}

	for _, row := range rows {
		xr := sheet.AddRow()
		for _, col := range columns {
			cell := xr.AddCell()
			v := row[col]
			if numericColumns[col] && v != "" {
				if n, perr := strconv.ParseFloat(v, 64); perr == nil {
					cell.SetFloat(n)
					continue
				}
			}
			cell.SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
