package reportstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/render"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

const section = "<details><summary>lake - 3.00 GB</summary><details><summary>a - 1.00 GB</summary></details></details>"

func testRun() domain.Run {
	return domain.Run{Bucket: "lake", ReportBucket: "reports", ReportKey: "space/out.html"}
}

func TestSplice(t *testing.T) {
	out, err := Splice("<html><body><p>old</p></body></html>", "<p>new</p>")
	require.NoError(t, err)
	assert.Equal(t, "<html><body><p>old</p><p>new</p></body></html>", out)

	// the last marker wins
	out, err = Splice("<body></body><!-- </body> -->", "X")
	require.NoError(t, err)
	assert.Equal(t, "<body></body><!-- X</body> -->", out)

	_, err = Splice("<html><p>no body</p></html>", "X")
	assert.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestAppendRoundTrip(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	store.EnsureBucket("reports")
	run := testRun()
	s := New(store, Options{})

	result, err := s.Append(context.Background(), run, section)
	require.NoError(t, err)
	assert.True(t, result.Bootstrapped)

	fetched, err := s.Fetch(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, result.Document, fetched)
	assert.Contains(t, fetched, section+BodyCloseMarker)
	assert.Equal(t, "text/html", store.ContentType("reports", "space/out.html"))

	idx := strings.Index(fetched, section)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, section, fetched[idx:idx+len(section)])
}

func TestAppendAccumulates(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	run := testRun()
	page, err := render.Page("", "<details><summary>first</summary></details>")
	require.NoError(t, err)
	require.NoError(t, store.PutObject(context.Background(), "reports", run.ReportKey, []byte(page), "text/html"))

	s := New(store, Options{})
	result, err := s.Append(context.Background(), run, section)
	require.NoError(t, err)
	assert.False(t, result.Bootstrapped)

	first := strings.Index(result.Document, "first")
	second := strings.Index(result.Document, section)
	assert.True(t, first >= 0 && first < second)
	assert.Equal(t, 1, strings.Count(result.Document, BodyCloseMarker))
}

func TestAppendMissingMarkerLeavesObjectUntouched(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	run := testRun()
	original := []byte("<html><p>truncated")
	require.NoError(t, store.PutObject(context.Background(), "reports", run.ReportKey, original, "text/plain"))

	for _, mode := range []Mode{ModeSplice, ModeStructured} {
		_, err := New(store, Options{Mode: mode}).Append(context.Background(), run, section)
		assert.ErrorIs(t, err, ErrMarkerNotFound, mode)

		data, err := store.GetObject(context.Background(), "reports", run.ReportKey)
		require.NoError(t, err)
		assert.Equal(t, original, data)
		assert.Equal(t, "text/plain", store.ContentType("reports", run.ReportKey))
	}
}

func TestAppendStructured(t *testing.T) {
	page, err := render.Page("", "<details><summary>first</summary></details>")
	require.NoError(t, err)

	out, err := AppendStructured(page, section)
	require.NoError(t, err)

	assert.Contains(t, out, section+"</body>")
	assert.Equal(t, 3, strings.Count(out, "<details>"))
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, section))
}

func TestAppendKeepsLocalCopy(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	dir := t.TempDir()
	s := New(store, Options{WorkDir: dir, Filename: "s3_output.html"})

	result, err := s.Append(context.Background(), testRun(), section)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s3_output.html"), result.LocalPath)

	data, err := os.ReadFile(result.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, result.Document, string(data))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSplice, m)

	m, err = ParseMode("Structured")
	require.NoError(t, err)
	assert.Equal(t, ModeStructured, m)

	_, err = ParseMode("dom")
	assert.Error(t, err)
}
