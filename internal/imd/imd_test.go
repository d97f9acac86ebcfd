package imd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

const decileHeader = "Index of Multiple Deprivation (IMD) Decile"

func writeWorkbook(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	_, err := f.AddSheet("Notes")
	require.NoError(t, err)
	s, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, r := range rows {
		row := s.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "imd.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func sampleRows() [][]string {
	return [][]string{
		{"LSOA code (2011)", "LSOA name (2011)", decileHeader},
		{"E01000001", "City of London 001A", "9"},
		{"E01000005", "City of London 001E", "3"},
		{"", "", ""},
		{"E01032739", "Tower Hamlets 033E"},
	}
}

var defaultRename = Options{Rename: []Rename{{From: "LSOA code (2011)", To: "LSOA11CD"}}}

func TestLoad_RenamesAndPads(t *testing.T) {
	path := writeWorkbook(t, "IMD2019", sampleRows())

	tbl, err := Load(path, "IMD2019", defaultRename)
	require.NoError(t, err)
	assert.Equal(t, []string{"LSOA11CD", "LSOA name (2011)", decileHeader}, tbl.Header)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"E01032739", "Tower Hamlets 033E", ""}, tbl.Rows[2])
	assert.Equal(t, 0, tbl.Column("LSOA11CD"))
	assert.Equal(t, -1, tbl.Column("LSOA code (2011)"))
}

func TestLoad_MissingSheet(t *testing.T) {
	path := writeWorkbook(t, "IMD2019", sampleRows())

	_, err := Load(path, "IMD2015", defaultRename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "IMD2015" not in`)
	assert.Contains(t, err.Error(), "sheets: Notes, IMD2019")
}

func TestLoad_MissingRenameColumn(t *testing.T) {
	path := writeWorkbook(t, "IMD2019", [][]string{{"LSOA code (2021)", "Decile"}, {"E01000001", "1"}})

	_, err := Load(path, "IMD2019", defaultRename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"LSOA code (2011)" not found`)
}

func TestLoad_EmptySheet(t *testing.T) {
	path := writeWorkbook(t, "IMD2019", nil)

	_, err := Load(path, "IMD2019", defaultRename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestLoad_RowWiderThanHeader(t *testing.T) {
	path := writeWorkbook(t, "IMD2019", [][]string{{"LSOA code (2011)", "Decile"}, {"E01000001", "1", "stray"}})

	_, err := Load(path, "IMD2019", defaultRename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 has 3 cells")
}

func TestWriteCSV_NoIndexColumn(t *testing.T) {
	tbl := &Table{
		Header: []string{"LSOA11CD", decileHeader},
		Rows:   [][]string{{"E01000001", "9"}, {"E01000005", "3"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "LSOA11CD,Index of Multiple Deprivation (IMD) Decile\nE01000001,9\nE01000005,3\n", buf.String())
}

func TestLoadWrite_ByteIdentical(t *testing.T) {
	path := writeWorkbook(t, "IMD2019", sampleRows())
	dir := t.TempDir()

	var outputs [][]byte
	for _, name := range []string{"a.csv", "b.csv"} {
		tbl, err := Load(path, "IMD2019", defaultRename)
		require.NoError(t, err)
		out := filepath.Join(dir, "nested", name)
		require.NoError(t, WriteCSVFile(out, tbl))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.Equal(t, outputs[0], outputs[1])
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imd.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadDeciles(t *testing.T) {
	path := writeCSV(t, "LSOA11CD,Name,Decile\nE01000001,A,9\nE01000005,B,3.0\n")

	deciles, err := ReadDeciles(context.Background(), path, "LSOA11CD", "Decile")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"E01000001": 9, "E01000005": 3}, deciles)
}

func TestReadDeciles_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing key column", "Code,Decile\nE01000001,1\n", `key column "LSOA11CD"`},
		{"missing decile column", "LSOA11CD,Rank\nE01000001,1\n", `decile column "Decile"`},
		{"duplicate code", "LSOA11CD,Decile\nE01000001,1\nE01000001,2\n", "duplicate area code E01000001"},
		{"out of range", "LSOA11CD,Decile\nE01000001,11\n", "outside 1..10"},
		{"zero", "LSOA11CD,Decile\nE01000001,0\n", "outside 1..10"},
		{"fractional", "LSOA11CD,Decile\nE01000001,2.5\n", "outside 1..10"},
		{"not a number", "LSOA11CD,Decile\nE01000001,high\n", "not a number"},
		{"empty code", "LSOA11CD,Decile\n,4\n", "empty LSOA11CD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tt.content)
			_, err := ReadDeciles(context.Background(), path, "LSOA11CD", "Decile")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
