package artifacts

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 64 << 20

// Manager extracts zipped Allure result archives into a cache directory,
// one subdirectory per key (usually an execution ID).
type Manager struct {
	cacheDir string
	cacheTTL time.Duration
}

func NewManager(cacheDir string, cacheTTL time.Duration) *Manager {
	return &Manager{
		cacheDir: cacheDir,
		cacheTTL: cacheTTL,
	}
}

// Cached returns the extraction directory for key, or "" when it is
// missing or older than the TTL. Expired entries are removed.
func (m *Manager) Cached(key string) (string, error) {
	path := filepath.Join(m.cacheDir, key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	if m.cacheTTL > 0 && time.Since(info.ModTime()) > m.cacheTTL {
		if err := os.RemoveAll(path); err != nil {
			return "", fmt.Errorf("failed to remove expired cache %s: %w", path, err)
		}
		return "", nil
	}

	return path, nil
}

// Extract unpacks a zip archive under the cache directory for key and
// returns that directory. Entries are written to a scratch directory that
// replaces the cached one only when every entry extracted, so a failed
// extraction never leaves a partial cache entry behind.
func (m *Manager) Extract(key string, data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read zip: %w", err)
	}

	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	scratch, err := os.MkdirTemp(m.cacheDir, key+".partial-")
	if err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	if err := extractAll(r, scratch); err != nil {
		_ = os.RemoveAll(scratch)
		return "", err
	}

	targetDir := filepath.Join(m.cacheDir, key)
	if err := os.RemoveAll(targetDir); err != nil {
		_ = os.RemoveAll(scratch)
		return "", fmt.Errorf("failed to replace cache %s: %w", targetDir, err)
	}
	if err := os.Rename(scratch, targetDir); err != nil {
		_ = os.RemoveAll(scratch)
		return "", fmt.Errorf("failed to move extracted archive into cache: %w", err)
	}
	return targetDir, nil
}

func extractAll(r *zip.Reader, dir string) error {
	for _, f := range r.File {
		fpath := filepath.Join(dir, f.Name)

		// Zip Slip protection
		if !strings.HasPrefix(fpath, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := extractFile(f, fpath); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, fpath string) error {
	if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > maxEntrySize {
		return fmt.Errorf("archive entry %s exceeds %d bytes", f.Name, maxEntrySize)
	}
	return nil
}
