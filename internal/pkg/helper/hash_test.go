package helper

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	content := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(path, content, 0644))

	hash, size, err := CalculateSHA256(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
	assert.Len(t, hash, 64)
}

func TestHashDeterministicAcrossCallSites(t *testing.T) {
	content := []byte("identical bytes, two code paths")
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	fromFile, sizeFile, err := CalculateSHA256(path)
	require.NoError(t, err)

	fromReader, sizeReader, err := SumReader(bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, fromFile, fromReader)
	assert.Equal(t, sizeFile, sizeReader)
}

func TestCalculateSHA256MissingFile(t *testing.T) {
	_, _, err := CalculateSHA256(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
