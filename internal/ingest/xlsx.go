package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// XLSXOptions configures the XLSX price-list reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	HeaderRow  int    // zero-based row holding column names; rows above are titles
	Defaults   Defaults
}

// ReadPriceListXLSX reads a spreadsheet price list. Rows below the header
// row become entries; blank rows are skipped.
func ReadPriceListXLSX(path string, opts XLSXOptions) ([]model.PriceListEntry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if opts.HeaderRow >= len(sheet.Rows) {
		return nil, eris.Errorf("xlsx: header row %d out of range (sheet has %d rows)", opts.HeaderRow, len(sheet.Rows))
	}

	cols, err := NewColumns(rowToStrings(sheet.Rows[opts.HeaderRow]))
	if err != nil {
		return nil, err
	}

	var entries []model.PriceListEntry
	line := 0
	for _, row := range sheet.Rows[opts.HeaderRow+1:] {
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		line++
		entries = append(entries, cols.Entry(line, cells, opts.Defaults))
	}
	return entries, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
