package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

func TestFileName(t *testing.T) {
	run := domain.Run{Segment: "S3_SIZE", Date: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "S3_SIZE_space_usage_2024-02-01.xlsx", FileName(run))
}

func TestWriteWorkbook(t *testing.T) {
	root := domain.NewStorageNode("", 0)
	a := domain.NewStorageNode("a", 3*domain.BytesPerGB)
	a.SetChild("a/2024-01-01/", domain.NewStorageNode("a/2024-01-01", 200))
	root.SetChild("a/", a)
	root.SetChild("b/", domain.NewStorageNode("b", 50))

	path := filepath.Join(t.TempDir(), "nested", "usage.xlsx")
	require.NoError(t, WriteWorkbook(path, root))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Prefix", "Depth", "Size (bytes)", "Size (GB)", "Size"}, rows[0])
	assert.Equal(t, []string{"a/", "0", "3221225472", "3", "3.0 GiB"}, rows[1])
	assert.Equal(t, []string{"a/2024-01-01/", "1", "200", "0", "200 B"}, rows[2])
	assert.Equal(t, "b/", rows[3][0])
}
