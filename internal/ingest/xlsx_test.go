package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadPriceListXLSX_TitleRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"US 2024": {
			{"Ski-Doo 2024 Retail Price List"},
			{"Model Code", "Model", "Package", "Engine", "MSRP"},
			{"RENEGADE_X_850", "Renegade", "X", "850 E-TEC", "$18,499"},
			{"", "", "", "", ""},
			{"SUMMIT_X_850", "Summit", "X", "850 E-TEC", "$19,299"},
		},
	})

	entries, err := ReadPriceListXLSX(path, XLSXOptions{
		HeaderRow: 1,
		Defaults:  Defaults{Brand: "Ski-Doo", ModelYear: 2024},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "RENEGADE_X_850", entries[0].ModelCode)
	assert.Equal(t, "X", entries[0].Package)
	assert.InDelta(t, 18499, entries[0].Price, 0.001)
	assert.Equal(t, 2, entries[1].LineIndex)
	assert.Equal(t, "Ski-Doo", entries[1].Brand)
}

func TestReadPriceListXLSX_NumericPriceCell(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Prices")
	require.NoError(t, err)
	header := sheet.AddRow()
	header.AddCell().SetString("Model Code")
	header.AddCell().SetString("MSRP")
	row := sheet.AddRow()
	row.AddCell().SetString("RENEGADE_X_850")
	row.AddCell().SetFloat(18499.5)
	path := filepath.Join(t.TempDir(), "numeric.xlsx")
	require.NoError(t, f.Save(path))

	entries, err := ReadPriceListXLSX(path, XLSXOptions{Defaults: Defaults{Brand: "Ski-Doo", ModelYear: 2024}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 18499.5, entries[0].Price, 0.001)
}

func TestReadPriceListXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Canada": {
			{"code", "price"},
			{"CA_1", "100"},
		},
		"USA": {
			{"code", "price"},
			{"US_1", "90"},
			{"US_2", "95"},
		},
	})

	entries, err := ReadPriceListXLSX(path, XLSXOptions{SheetName: "USA"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "US_1", entries[0].ModelCode)
}

func TestReadPriceListXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"code", "price"}}})

	_, err := ReadPriceListXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadPriceListXLSX_HeaderOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"code", "price"}}})

	_, err := ReadPriceListXLSX(path, XLSXOptions{HeaderRow: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadPriceListXLSX_BadFile(t *testing.T) {
	_, err := ReadPriceListXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open file")
}
