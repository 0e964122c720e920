package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	model "github.com/zarrinsoft/backup/internal/db"
	"github.com/zarrinsoft/backup/internal/ledger"
	"github.com/zarrinsoft/backup/internal/pkg/helper"
)

// CreateConfigBackup archives the configured directories into an encrypted
// tar.gz bundle and records it like any other backup attempt.
func (m *Manager) CreateConfigBackup(ctx context.Context, actor string) (*CreateResult, error) {
	if len(m.cfg.Backup.ConfigDirs) == 0 {
		err := fmt.Errorf("no config_dirs configured")
		return failure("", err.Error()), err
	}

	now := time.Now()
	backupID := NewBackupID(model.TypeConfiguration, ScopeSystem, now)
	ext := artifactExt("tar.gz", false, m.cipher != nil)
	key := StorageKey(m.cfg.Backup.BasePrefix, CategoryFor(model.TypeConfiguration), backupID, ext, now)

	rec := &model.BackupRecord{
		BackupID:    backupID,
		BackupType:  model.TypeConfiguration,
		Frequency:   model.FreqManual,
		FilePath:    key,
		IsEncrypted: m.cipher != nil,
		CreatedBy:   actor,
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

	workDir, err := os.MkdirTemp(m.cfg.Backup.TempDir, "backup_"+backupID+"_")
	if err != nil {
		return m.fail(backupID, fmt.Errorf("create workspace: %w", err))
	}
	defer os.RemoveAll(workDir)

	artifact := filepath.Join(workDir, backupID+".tar.gz")
	if err := tarGzDirs(m.cfg.Backup.ConfigDirs, artifact); err != nil {
		return m.fail(backupID, fmt.Errorf("archive config dirs: %w", err))
	}
	sourceSize := fileSize(artifact)

	if m.cipher != nil {
		encrypted := artifact + ".enc"
		if err := m.cipher.EncryptFile(artifact, encrypted); err != nil {
			return m.fail(backupID, fmt.Errorf("encryption failed: %w", err))
		}
		os.Remove(artifact)
		artifact = encrypted
	}

	hash, size, err := helper.CalculateSHA256(artifact)
	if err != nil {
		return m.fail(backupID, fmt.Errorf("hash calc failed: %w", err))
	}

	outcome := m.store.UploadFile(ctx, key, artifact)
	if !outcome.Succeeded() {
		return m.fail(backupID, fmt.Errorf("upload failed on all backends: %v", outcome.Errors))
	}

	meta := map[string]any{
		"config_dirs": m.cfg.Backup.ConfigDirs,
		"source_size": sourceSize,
		"encrypted":   m.cipher != nil,
		"uploaded_to": outcome.UploadedTo,
	}
	metaJSON, err := sonic.Marshal(meta)
	if err != nil {
		return m.fail(backupID, fmt.Errorf("encode metadata: %w", err))
	}

	expiresAt := now.AddDate(0, 0, m.cfg.Retention.DefaultDays)
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

	log.Info().Str("backup_id", backupID).Int64("size", size).Msg("config bundle backup completed")
	return &CreateResult{
		Success:     true,
		BackupID:    backupID,
		FileSize:    size,
		FileHash:    hash,
		StoragePath: key,
		UploadedTo:  outcome.UploadedTo,
	}, nil
}

// tarGzDirs writes the given directories into a single tar.gz file. Entries
// are stored under the directory's base name so bundles stay relocatable.
func tarGzDirs(dirs []string, dstPath string) error {
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	fail := func(err error) error {
		dst.Close()
		os.Remove(dstPath)
		return err
	}

	gz, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		return fail(fmt.Errorf("init gzip writer: %w", err))
	}
	tw := tar.NewWriter(gz)

	for _, dir := range dirs {
		base := filepath.Base(filepath.Clean(dir))
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(filepath.Join(base, rel))
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		})
		if walkErr != nil {
			return fail(fmt.Errorf("archive %s: %w", dir, walkErr))
		}
	}

	if err := tw.Close(); err != nil {
		return fail(fmt.Errorf("close tar stream: %w", err))
	}
	if err := gz.Close(); err != nil {
		return fail(fmt.Errorf("close gzip stream: %w", err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}
