// Package backup composes the pipeline: dump, compress, encrypt, hash,
// redundant upload, ledger finalize. Verification and retention reaping
// read and write the same ledger.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/zarrinsoft/backup/internal/config"
	model "github.com/zarrinsoft/backup/internal/db"
	"github.com/zarrinsoft/backup/internal/dump"
	"github.com/zarrinsoft/backup/internal/ledger"
	"github.com/zarrinsoft/backup/internal/pkg/helper"
	"github.com/zarrinsoft/backup/internal/storage"
)

// Manager owns the derived encryption key and the storage client for the
// process lifetime. Construct once at worker startup and pass it into every
// task invocation.
type Manager struct {
	cfg    *config.Config
	store  *storage.Redundant
	ledger *ledger.Ledger
	dumper dump.Dumper
	cipher *helper.FileCipher
}

func NewManager(cfg *config.Config, store *storage.Redundant, led *ledger.Ledger, dumper dump.Dumper) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		store:  store,
		ledger: led,
		dumper: dumper,
	}
	if cfg.EncryptionEnabled() {
		cipher, err := helper.NewFileCipher(cfg.Encryption.MasterSecret)
		if err != nil {
			return nil, fmt.Errorf("derive encryption key: %w", err)
		}
		m.cipher = cipher
	}
	return m, nil
}

// CreateFullSystemBackup dumps everything except the system-internal
// schemas into one artifact.
func (m *Manager) CreateFullSystemBackup(ctx context.Context, frequency, actor string) (*CreateResult, error) {
	return m.runPipeline(ctx, pipelineParams{
		backupType:    model.TypeFullSystem,
		frequency:     frequency,
		actor:         actor,
		retentionDays: m.cfg.Retention.DefaultDays,
	})
}

// CreateTenantBackup dumps a single tenant schema.
func (m *Manager) CreateTenantBackup(ctx context.Context, schema, domain, frequency, actor string) (*CreateResult, error) {
	if schema == "" {
		return failure("", "tenant schema is required"), fmt.Errorf("tenant schema is required")
	}
	return m.runPipeline(ctx, pipelineParams{
		backupType:    model.TypeTenantOnly,
		frequency:     frequency,
		schema:        schema,
		domain:        domain,
		actor:         actor,
		retentionDays: m.cfg.Retention.DefaultDays,
	})
}

// CreateSnapshotBackup is the tenant pipeline with a short fixed retention
// plus metadata marking it as a pre-operation safety snapshot.
func (m *Manager) CreateSnapshotBackup(ctx context.Context, schema, domain, actor string) (*CreateResult, error) {
	if schema == "" {
		return failure("", "tenant schema is required"), fmt.Errorf("tenant schema is required")
	}
	return m.runPipeline(ctx, pipelineParams{
		backupType:    model.TypeSnapshot,
		frequency:     model.FreqSnapshot,
		schema:        schema,
		domain:        domain,
		actor:         actor,
		retentionDays: m.cfg.Retention.SnapshotDays,
		extraMeta: map[string]any{
			"purpose": "pre_operation_snapshot",
		},
	})
}

// ExtendRetention pushes a completed backup's expiry out, used by the
// weekly task to keep its artifacts longer than the default.
func (m *Manager) ExtendRetention(backupID string, days int) error {
	return m.ledger.SetRetention(backupID, time.Now().AddDate(0, 0, days), "")
}

type pipelineParams struct {
	backupType    string
	frequency     string
	schema        string
	domain        string
	actor         string
	retentionDays int
	extraMeta     map[string]any
}

// runPipeline executes the backup state machine. Every exit path leaves the
// ledger row in a terminal per-attempt state; a row is never stuck in
// in_progress after this returns.
func (m *Manager) runPipeline(ctx context.Context, p pipelineParams) (*CreateResult, error) {
	now := time.Now()
	backupID := NewBackupID(p.backupType, p.schema, now)
	ext := artifactExt("sql", m.cfg.CompressionEnabled(), m.cipher != nil)
	key := StorageKey(m.cfg.Backup.BasePrefix, CategoryFor(p.backupType), backupID, ext, now)

	rec := &model.BackupRecord{
		BackupID:     backupID,
		BackupType:   p.backupType,
		Frequency:    p.frequency,
		TenantSchema: p.schema,
		TenantDomain: p.domain,
		FilePath:     key,
		IsEncrypted:  m.cipher != nil,
		CreatedBy:    p.actor,
	}
	if m.cipher != nil {
		rec.EncryptionKeyHash = m.cipher.KeyFingerprint()
	}
	if err := m.ledger.CreateRecord(rec); err != nil {
		return failure(backupID, err.Error()), err
	}
	if err := m.ledger.MarkInProgress(backupID); err != nil {
		return failure(backupID, err.Error()), err
	}

	log.Info().
		Str("backup_id", backupID).
		Str("type", p.backupType).
		Str("schema", p.schema).
		Msg("starting backup pipeline")

	workDir, err := os.MkdirTemp(m.cfg.Backup.TempDir, "backup_"+backupID+"_")
	if err != nil {
		return m.fail(backupID, fmt.Errorf("create workspace: %w", err))
	}
	// The workspace holds every intermediate artifact; removing it keeps
	// local disk clean on success and failure alike.
	defer os.RemoveAll(workDir)

	// 1. Dump
	artifact := filepath.Join(workDir, backupID+".sql")
	if err := m.dumper.Dump(ctx, p.schema, artifact); err != nil {
		return m.fail(backupID, err)
	}
	sourceSize := fileSize(artifact)

	// 2. Compress
	if m.cfg.CompressionEnabled() {
		compressed := artifact + ".gz"
		if err := helper.GzipCompress(artifact, compressed); err != nil {
			return m.fail(backupID, fmt.Errorf("compression failed: %w", err))
		}
		os.Remove(artifact)
		artifact = compressed
	}

	// 3. Encrypt
	if m.cipher != nil {
		encrypted := artifact + ".enc"
		if err := m.cipher.EncryptFile(artifact, encrypted); err != nil {
			return m.fail(backupID, fmt.Errorf("encryption failed: %w", err))
		}
		os.Remove(artifact)
		artifact = encrypted
	}

	// 4. Hash the final artifact
	hash, size, err := helper.CalculateSHA256(artifact)
	if err != nil {
		return m.fail(backupID, fmt.Errorf("hash calc failed: %w", err))
	}

	// 5. Redundant upload; partial success proceeds with degraded flags
	outcome := m.store.UploadFile(ctx, key, artifact)
	if !outcome.Succeeded() {
		return m.fail(backupID, fmt.Errorf("upload failed on all backends: %v", outcome.Errors))
	}

	// 6. Finalize ledger
	meta := map[string]any{
		"tool_version": m.dumper.Version(ctx),
		"source_size":  sourceSize,
		"compressed":   m.cfg.CompressionEnabled(),
		"encrypted":    m.cipher != nil,
		"uploaded_to":  outcome.UploadedTo,
	}
	if len(outcome.Errors) > 0 {
		meta["upload_errors"] = outcome.Errors
	}
	for k, v := range p.extraMeta {
		meta[k] = v
	}
	metaJSON, err := sonic.Marshal(meta)
	if err != nil {
		return m.fail(backupID, fmt.Errorf("encode metadata: %w", err))
	}

	expiresAt := now.AddDate(0, 0, p.retentionDays)
	upd := ledger.CompletedUpdate{
		FileSize:          size,
		FileHash:          hash,
		StoredInPrimary:   outcome.Primary,
		StoredInSecondary: outcome.Secondary,
		ExpiresAt:         &expiresAt,
		Metadata:          string(metaJSON),
	}
	if err := m.ledger.MarkCompleted(backupID, upd); err != nil {
		return failure(backupID, err.Error()), err
	}

	log.Info().
		Str("backup_id", backupID).
		Int64("size", size).
		Str("sha256", hash).
		Strs("uploaded_to", outcome.UploadedTo).
		Msg("backup completed")

	return &CreateResult{
		Success:     true,
		BackupID:    backupID,
		FileSize:    size,
		FileHash:    hash,
		StoragePath: key,
		UploadedTo:  outcome.UploadedTo,
	}, nil
}

// fail writes the terminal failed state and mirrors the reason into the
// returned result.
func (m *Manager) fail(backupID string, cause error) (*CreateResult, error) {
	if err := m.ledger.MarkFailed(backupID, cause.Error()); err != nil {
		log.Error().Str("backup_id", backupID).Err(err).Msg("failed to record backup failure")
	}
	log.Error().Str("backup_id", backupID).Err(cause).Msg("backup failed")
	return failure(backupID, cause.Error()), cause
}

func failure(backupID, msg string) *CreateResult {
	return &CreateResult{BackupID: backupID, Error: msg}
}

func fileSize(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return stat.Size()
}
