package artifacts

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestManager_ExtractAndCache(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)

	dir, err := m.Cached("exec-1")
	require.NoError(t, err)
	assert.Empty(t, dir)

	dir, err = m.Extract("exec-1", zipOf(t, map[string]string{
		"allure-results/a-result.json": `{"uuid": "a"}`,
	}))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "allure-results", "a-result.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"uuid": "a"}`, string(data))

	cached, err := m.Cached("exec-1")
	require.NoError(t, err)
	assert.Equal(t, dir, cached)
}

func TestManager_CachedExpires(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, time.Minute)
	_, err := m.Extract("old", zipOf(t, map[string]string{"x-result.json": "{}"}))
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "old"), past, past))

	dir, err := m.Cached("old")
	require.NoError(t, err)
	assert.Empty(t, dir)
	_, err = os.Stat(filepath.Join(root, "old"))
	assert.True(t, os.IsNotExist(err))
}

func TestManager_RejectsZipSlip(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	_, err := m.Extract("evil", zipOf(t, map[string]string{"../../escape.json": "{}"}))
	assert.Error(t, err)
}

func TestManager_RejectsNonZip(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	_, err := m.Extract("bad", []byte("not a zip"))
	assert.Error(t, err)
}

// orderedZip keeps entries in the given order, unlike zipOf.
func orderedZip(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestManager_FailedExtractLeavesNoCacheEntry(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, time.Hour)

	_, err := m.Extract("exec-1", orderedZip(t,
		[2]string{"a-result.json", `{"uuid": "a"}`},
		[2]string{"../escape-result.json", `{"uuid": "b"}`},
	))
	require.Error(t, err)

	dir, err := m.Cached("exec-1")
	require.NoError(t, err)
	assert.Empty(t, dir, "a partial extraction is not a cache hit")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directories are removed")
}

func TestManager_ExtractReplacesEntry(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)

	dir, err := m.Extract("exec-1", zipOf(t, map[string]string{"old-result.json": "{}"}))
	require.NoError(t, err)
	again, err := m.Extract("exec-1", zipOf(t, map[string]string{"new-result.json": "{}"}))
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	_, err = os.Stat(filepath.Join(dir, "old-result.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "new-result.json"))
	assert.NoError(t, err)
}
