package sources

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &rows[i]))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestEnsureCreatesStarterWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.xlsx")

	created, err := Ensure(path)
	require.NoError(t, err)
	assert.True(t, created)

	list, err := Load(path)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "OpenAI", list[0].Name)
	assert.Equal(t, "https://x.com/OpenAI", list[0].URL)
	assert.Equal(t, "기업", list[0].Category)
	assert.Equal(t, "AI모델", list[0].Group)

	// second call leaves the existing file alone
	created, err = Ensure(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoadNormalizesAliasHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"category", "group", "name", "url"},
		{"기업", "AI모델", "Test", "x.com/Test"},
	})

	list, err := Load(path)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Test", list[0].Name)
	assert.Equal(t, "https://x.com/Test", list[0].URL)
	assert.Equal(t, "기업", list[0].Category)
}

func TestLoadSkipsRowsWithoutURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"구분", "그룹", "이름", "URL"},
		{"기업", "AI모델", "no url", ""},
		{"", "", "", ""},
		{"기관", "연구", "KAIST AI", "  https://x.com/kaist_ai  "},
	})

	list, err := Load(path)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "KAIST AI", list[0].Name)
	assert.Equal(t, "https://x.com/kaist_ai", list[0].URL)
}

func TestLoadFailsWhenColumnMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"구분", "그룹", "이름"},
		{"기업", "AI모델", "Test"},
	})

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL")
}

func TestLoadFailsWhenNoUsableRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"구분", "그룹", "이름", "URL"},
	})

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable sources")
}

func TestLoadMissingFileSuggestsInit(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources init")
}
