package helper

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "dump.sql")
	gz := filepath.Join(dir, "dump.sql.gz")
	out := filepath.Join(dir, "restored.sql")

	// Repetitive content so compression actually shrinks it.
	content := bytes.Repeat([]byte("INSERT INTO gold_products VALUES (1, 'ring');\n"), 2000)
	require.NoError(t, os.WriteFile(src, content, 0644))

	require.NoError(t, GzipCompress(src, gz))

	compressed, err := os.Stat(gz)
	require.NoError(t, err)
	assert.Less(t, compressed.Size(), int64(len(content)))

	// Input preserved.
	original, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, content, original)

	require.NoError(t, GzipDecompress(gz, out))
	restored, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, restored)
}

func TestGzipCompressMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.gz")

	err := GzipCompress(filepath.Join(dir, "missing.sql"), dst)
	require.Error(t, err)

	// No partial output left behind.
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGzipDecompressCorruptInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "garbage.gz")
	require.NoError(t, os.WriteFile(src, []byte("not a gzip stream"), 0644))

	err := GzipDecompress(src, filepath.Join(dir, "out.sql"))
	assert.Error(t, err)
}
