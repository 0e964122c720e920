package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zarrinsoft/backup/internal/pkg/helper"
)

// Recover downloads a stored artifact and reverses the pipeline stages,
// leaving a plaintext dump file at outputPath. It does not restore into a
// live database; feeding the dump to pg_restore is an operator decision.
func (m *Manager) Recover(ctx context.Context, backupID, outputPath string) error {
	rec, err := m.ledger.GetRecord(backupID)
	if err != nil {
		return err
	}

	body, servedBy, err := m.store.Download(ctx, rec.FilePath)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer body.Close()

	workDir, err := os.MkdirTemp(m.cfg.Backup.TempDir, "recover_"+backupID+"_")
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	artifact := filepath.Join(workDir, filepath.Base(rec.FilePath))
	if err := writeStream(artifact, body); err != nil {
		return err
	}

	// Guard against silent corruption before touching the content.
	hash, _, err := helper.CalculateSHA256(artifact)
	if err != nil {
		return fmt.Errorf("hash downloaded artifact: %w", err)
	}
	if rec.FileHash != "" && hash != rec.FileHash {
		return fmt.Errorf("downloaded artifact hash mismatch: expected %s, got %s", rec.FileHash, hash)
	}

	if rec.IsEncrypted {
		if m.cipher == nil {
			return fmt.Errorf("backup %s is encrypted but no master secret is configured", backupID)
		}
		decrypted := strings.TrimSuffix(artifact, ".enc")
		if err := m.cipher.DecryptFile(artifact, decrypted); err != nil {
			return fmt.Errorf("decrypt artifact: %w", err)
		}
		os.Remove(artifact)
		artifact = decrypted
	}

	if strings.HasSuffix(artifact, ".gz") {
		plain := strings.TrimSuffix(artifact, ".gz")
		if err := helper.GzipDecompress(artifact, plain); err != nil {
			return fmt.Errorf("decompress artifact: %w", err)
		}
		os.Remove(artifact)
		artifact = plain
	}

	if err := copyFile(artifact, outputPath); err != nil {
		return fmt.Errorf("write recovered dump: %w", err)
	}

	log.Info().
		Str("backup_id", backupID).
		Str("served_by", servedBy).
		Str("output", outputPath).
		Msg("backup recovered")
	return nil
}

func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write download: %w", err)
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
