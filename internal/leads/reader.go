package leads

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/probate-link/internal/config"
)

// Row is one input row keyed by lower-cased header name.
type Row map[string]string

// Get returns the first non-blank value among keys. Spreadsheet exports
// write missing values as "nan", which is treated as blank.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(r[k])
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		return v
	}
	return ""
}

// ReadFile loads rows from a CSV or XLSX file, chosen by extension.
func ReadFile(ctx context.Context, path string, cfg config.LeadsConfig) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, cfg.Sheet)
	default:
		f, err := os.Open(path) // #nosec G304 -- path is an operator-supplied input file
		if err != nil {
			return nil, eris.Wrapf(err, "leads: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		delim, err := parseDelimiter(cfg.Delimiter)
		if err != nil {
			return nil, err
		}
		return ReadCSV(ctx, f, delim)
	}
}

func parseDelimiter(s string) (rune, error) {
	if s == "" {
		return ';', nil
	}
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, eris.Errorf("leads: delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// ReadCSV reads a delimited file whose first row is the header.
func ReadCSV(ctx context.Context, r io.Reader, delim rune) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var (
		header []string
		rows   []Row
	)
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "leads: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "leads: read csv row")
		}

		if header == nil {
			header = normalizeHeader(record)
			continue
		}
		rows = append(rows, toRow(header, record))
	}

	if header == nil {
		return nil, eris.New("leads: csv has no header row")
	}
	return rows, nil
}

// ReadXLSX reads the named sheet (or the first sheet when name is empty).
func ReadXLSX(path, sheetName string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "leads: open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("leads: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("leads: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	var (
		header []string
		rows   []Row
	)
	for _, xr := range sheet.Rows {
		cells := make([]string, len(xr.Cells))
		for j, cell := range xr.Cells {
			cells[j] = cell.String()
		}
		if header == nil {
			header = normalizeHeader(cells)
			continue
		}
		rows = append(rows, toRow(header, cells))
	}

	if header == nil {
		return nil, eris.Errorf("leads: sheet %q is empty", sheet.Name)
	}
	return rows, nil
}

func normalizeHeader(cells []string) []string {
	header := make([]string, len(cells))
	for i, c := range cells {
		c = strings.TrimPrefix(c, "\ufeff")
		header[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return header
}

func toRow(header, cells []string) Row {
	row := make(Row, len(header))
	for i, name := range header {
		if name == "" || i >= len(cells) {
			continue
		}
		row[name] = strings.TrimSpace(cells[i])
	}
	return row
}

// WriteCSV writes a header and rows in column order. Missing values are
// written as empty fields.
func WriteCSV(w io.Writer, delim rune, columns []string, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "leads: write header")
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "leads: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "leads: flush csv")
	}
	return nil
}
