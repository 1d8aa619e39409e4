package executor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// MediaJanitor removes per-video work directories left behind by the
// Downloader. Directories are shared by every job for the same video, so
// age is taken from the directory modification time, which Fetch refreshes
// whenever it reuses one.
type MediaJanitor struct {
	workDir string
	now     func() time.Time
}

func NewMediaJanitor(workDir string) *MediaJanitor {
	return &MediaJanitor{workDir: workDir, now: time.Now}
}

// Cleanup deletes media directories untouched for longer than olderThan.
// Directories without downloader output are never removed.
func (m *MediaJanitor) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "MediaJanitor.Cleanup.ReadDir")
	}
	cutoff := m.now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.workDir, e.Name())
		if !isMediaDir(dir) {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err = os.RemoveAll(dir); err != nil {
			return removed, errors.Wrapf(err, "MediaJanitor.Cleanup.RemoveAll %s", dir)
		}
		removed++
	}
	return removed, nil
}

func isMediaDir(dir string) bool {
	for _, name := range []string{audioFileName, titleFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
