package fetcher

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
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Notes":   {{"read me"}},
		"IMD2019": {{"LSOA code (2011)", "Decile"}, {"E01000001", "9"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "IMD2019"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"LSOA code (2011)", "Decile"}, {"E01000001", "9"}}, rows)
}

func TestReadXLSX_SkipRowsAndBlank(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"title"}, {"a", "b"}, {"", " "}, {"c", "d"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1, SkipBlank: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_FileNotFound(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestSheetNames(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Only": {{"a"}}})

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Only"}, names)
}
