package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zarrinsoft/backup/internal/config"
	"github.com/zarrinsoft/backup/internal/ledger"
	"github.com/zarrinsoft/backup/internal/storage"
)

// memBackend is an in-memory object store with injectable failures.
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

func (m *memBackend) tamper(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memBackend) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// stubDumper writes fixed bytes instead of shelling out to pg_dump.
type stubDumper struct {
	content []byte
	err     error
}

func (d *stubDumper) Dump(_ context.Context, _ string, outputPath string) error {
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(outputPath, d.content, 0644)
}

func (d *stubDumper) Version(_ context.Context) string {
	return "pg_dump (PostgreSQL) 16.4"
}

type testEnv struct {
	cfg       *config.Config
	manager   *Manager
	ledger    *ledger.Ledger
	primary   *memBackend
	secondary *memBackend
	dumper    *stubDumper
}

func boolPtr(b bool) *bool { return &b }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, ledger.Migrate(gdb))

	cfg := &config.Config{
		Encryption: config.EncryptionConfig{MasterSecret: "test-master-secret"},
		Backup: config.BackupConfig{
			TempDir:    t.TempDir(),
			BasePrefix: "backups",
		},
		Retention: config.RetentionConfig{
			DefaultDays:  30,
			WeeklyDays:   90,
			SnapshotDays: 7,
		},
	}

	primary := newMemBackend("primary")
	secondary := newMemBackend("secondary")
	store := storage.NewRedundant(primary, secondary, false)
	led := ledger.New(gdb)
	dumper := &stubDumper{content: []byte("-- PostgreSQL database dump\nCREATE TABLE gold_products (id bigint);\n")}

	mgr, err := NewManager(cfg, store, led, dumper)
	require.NoError(t, err)

	return &testEnv{
		cfg:       cfg,
		manager:   mgr,
		ledger:    led,
		primary:   primary,
		secondary: secondary,
		dumper:    dumper,
	}
}
