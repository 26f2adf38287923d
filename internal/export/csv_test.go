package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

func TestWriter_WriteAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Date(2024, 5, 1, 9, 8, 7, 0, time.UTC) }

	path, err := w.Write("top_clips", []twitch.Clip{
		{Title: "Clutch, with comma", BroadcasterName: "Alice", URL: "https://clips/1", ViewCount: 1200, CreatorName: "bob", Duration: 29.5, CreatedAt: "2024-05-01T08:00:00Z", GameName: "Valorant", Source: "Valorant"},
		{Title: "second", ViewCount: 3},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "top_clips_20240501_090807_"))
	assert.True(t, w.Contains(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, f.Close())
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"1", "Clutch, with comma", "Alice", "https://clips/1", "1200", "bob", "29.5", "2024-05-01T08:00:00Z", "Valorant", "Valorant", ""}, rows[1])
	assert.Equal(t, "2", rows[2][0])

	require.NoError(t, w.Remove(path))
	assert.False(t, w.Contains(path))
	assert.NoError(t, w.Remove(path), "removing twice is fine")
}

func TestWriter_NamesAreUnique(t *testing.T) {
	w := NewWriter(t.TempDir())
	a, err := w.Write("x", nil)
	require.NoError(t, err)
	b, err := w.Write("x", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestWriter_RemoveRefusesOutsideDir(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "keep.csv")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	w := NewWriter(t.TempDir())
	assert.Error(t, w.Remove(outside))
	_, err := os.Stat(outside)
	assert.NoError(t, err)
	assert.False(t, w.Contains(outside))
}
