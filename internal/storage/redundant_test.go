package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend with injectable failures.
type memBackend struct {
	name        string
	mu          sync.Mutex
	objects     map[string][]byte
	uploadErr   error
	downloadErr error
	deleteErr   error
}

func newMemBackend(name string) *memBackend {
	return &memBackend{name: name, objects: map[string][]byte{}}
}

func (m *memBackend) Name() string { return m.name }

func (m *memBackend) Upload(_ context.Context, key string, content io.Reader, _ int64) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBackend) Download(_ context.Context, key string) (io.ReadCloser, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func tempArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.sql.gz.enc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestUploadFileBothBackends(t *testing.T) {
	primary := newMemBackend("primary")
	secondary := newMemBackend("secondary")
	r := NewRedundant(primary, secondary, false)

	path := tempArtifact(t, "dump bytes")
	out := r.UploadFile(context.Background(), "system/2026/08/28/x", path)

	assert.True(t, out.Primary)
	assert.True(t, out.Secondary)
	assert.True(t, out.Succeeded())
	assert.Equal(t, []string{"primary", "secondary"}, out.UploadedTo)
	assert.Empty(t, out.Errors)
	assert.Equal(t, []byte("dump bytes"), primary.objects["system/2026/08/28/x"])
	assert.Equal(t, []byte("dump bytes"), secondary.objects["system/2026/08/28/x"])
}

func TestUploadFilePartialFailure(t *testing.T) {
	primary := newMemBackend("primary")
	primary.uploadErr = errors.New("connection refused")
	secondary := newMemBackend("secondary")
	r := NewRedundant(primary, secondary, false)

	out := r.UploadFile(context.Background(), "k", tempArtifact(t, "payload"))

	assert.False(t, out.Primary)
	assert.True(t, out.Secondary)
	assert.True(t, out.Succeeded(), "one surviving copy is still a success")
	assert.Equal(t, []string{"secondary"}, out.UploadedTo)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "primary")
	assert.Contains(t, out.Errors[0], "connection refused")
}

func TestUploadFileBothFail(t *testing.T) {
	primary := newMemBackend("primary")
	primary.uploadErr = errors.New("down")
	secondary := newMemBackend("secondary")
	secondary.uploadErr = errors.New("also down")
	r := NewRedundant(primary, secondary, false)

	out := r.UploadFile(context.Background(), "k", tempArtifact(t, "payload"))

	assert.False(t, out.Succeeded())
	assert.Len(t, out.Errors, 2)
	assert.Empty(t, out.UploadedTo)
}

func TestUploadFileMissingArtifact(t *testing.T) {
	r := NewRedundant(newMemBackend("primary"), newMemBackend("secondary"), false)

	out := r.UploadFile(context.Background(), "k", filepath.Join(t.TempDir(), "missing"))

	assert.False(t, out.Succeeded())
	assert.Len(t, out.Errors, 2)
}

func TestDownloadPrimaryAuthoritative(t *testing.T) {
	primary := newMemBackend("primary")
	secondary := newMemBackend("secondary")
	primary.objects["k"] = []byte("from primary")
	secondary.objects["k"] = []byte("from secondary")
	r := NewRedundant(primary, secondary, true)

	rc, served, err := r.Download(context.Background(), "k")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "from primary", string(data))
	assert.Equal(t, "primary", served)
}

func TestDownloadNoFailoverSurfacesPrimaryError(t *testing.T) {
	primary := newMemBackend("primary")
	primary.downloadErr = errors.New("primary outage")
	secondary := newMemBackend("secondary")
	secondary.objects["k"] = []byte("copy")
	r := NewRedundant(primary, secondary, false)

	_, _, err := r.Download(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary outage")
}

func TestDownloadFailoverServesSecondary(t *testing.T) {
	primary := newMemBackend("primary")
	primary.downloadErr = errors.New("primary outage")
	secondary := newMemBackend("secondary")
	secondary.objects["k"] = []byte("copy")
	r := NewRedundant(primary, secondary, true)

	rc, served, err := r.Download(context.Background(), "k")
	require.NoError(t, err)
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	assert.Equal(t, "copy", string(data))
	assert.Equal(t, "secondary", served)
}

func TestDownloadFailoverBothFail(t *testing.T) {
	primary := newMemBackend("primary")
	primary.downloadErr = errors.New("primary outage")
	secondary := newMemBackend("secondary")
	secondary.downloadErr = errors.New("secondary outage")
	r := NewRedundant(primary, secondary, true)

	_, _, err := r.Download(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary outage")
	assert.Contains(t, err.Error(), "secondary outage")
}

func TestDeleteOnlyFlaggedBackends(t *testing.T) {
	primary := newMemBackend("primary")
	secondary := newMemBackend("secondary")
	primary.objects["k"] = []byte("a")
	secondary.objects["k"] = []byte("a")
	r := NewRedundant(primary, secondary, false)

	out := r.Delete(context.Background(), "k", true, false)

	assert.True(t, out.Succeeded())
	assert.Equal(t, []string{"primary"}, out.Deleted)
	assert.NotContains(t, primary.objects, "k")
	assert.Contains(t, secondary.objects, "k")
}

func TestDeletePartialFailureNotSucceeded(t *testing.T) {
	primary := newMemBackend("primary")
	primary.objects["k"] = []byte("a")
	secondary := newMemBackend("secondary")
	secondary.objects["k"] = []byte("a")
	secondary.deleteErr = errors.New("access denied")
	r := NewRedundant(primary, secondary, false)

	out := r.Delete(context.Background(), "k", true, true)

	assert.False(t, out.Succeeded())
	assert.Equal(t, []string{"primary"}, out.Deleted)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "secondary")
}
