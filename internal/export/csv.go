// Package export writes job results to CSV files in a single output directory.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/clip-scraper/internal/twitch"
	"github.com/MimeLyc/clip-scraper/pkg/file"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

var header = []string{
	"rank", "title", "channel", "url", "views", "creator",
	"duration", "created_at", "game", "source", "thumbnail_url",
}

type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write stores clips as <prefix>_<timestamp>_<id>.csv and returns the path.
func (w *Writer) Write(prefix string, clips []twitch.Clip) (string, error) {
	if err := file.EnsureDir(w.dir); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.csv", prefix, w.now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	cw := csv.NewWriter(f)
	_ = cw.Write(header)
	for i, c := range clips {
		_ = cw.Write([]string{
			strconv.Itoa(i + 1),
			c.Title,
			c.BroadcasterName,
			c.URL,
			strconv.Itoa(c.ViewCount),
			c.CreatorName,
			strconv.FormatFloat(c.Duration, 'f', 1, 64),
			c.CreatedAt,
			c.GameName,
			c.Source,
			c.ThumbnailURL,
		})
	}
	cw.Flush()

	if err := errors.Join(cw.Error(), f.Close()); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write export file: %w", err)
	}
	log.Info("Exported %d clips to %s", len(clips), path)
	return path, nil
}

// Remove deletes an artifact written by this Writer. Missing files are not an error.
func (w *Writer) Remove(path string) error {
	if !file.Within(w.dir, path) {
		return fmt.Errorf("refusing to remove %s outside %s", path, w.dir)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Contains reports whether path is an existing artifact of this Writer.
func (w *Writer) Contains(path string) bool {
	if !file.Within(w.dir, path) {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
