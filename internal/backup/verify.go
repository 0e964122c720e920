package backup

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	model "github.com/zarrinsoft/backup/internal/db"
	"github.com/zarrinsoft/backup/internal/pkg/helper"
)

func (m *Manager) hashDownload(body io.Reader) (string, int64, error) {
	hash, size, err := helper.SumReader(body)
	if err != nil {
		return "", 0, fmt.Errorf("hash downloaded artifact: %w", err)
	}
	return hash, size, nil
}

// VerifyBackupIntegrity re-downloads a stored artifact, recomputes its
// SHA-256 and compares against the ledger's recorded hash. Each attempt
// appends a BackupIntegrityCheck row; the parent record's FileHash is never
// rewritten. A download failure marks the check as error ("could not
// check"); only a genuine mismatch marks it failed and flips the parent
// record to corrupted.
func (m *Manager) VerifyBackupIntegrity(ctx context.Context, backupID string) (*VerifyResult, error) {
	rec, err := m.ledger.GetRecord(backupID)
	if err != nil {
		return &VerifyResult{BackupID: backupID, Error: err.Error()}, err
	}

	chk, err := m.ledger.CreateCheck(backupID, rec.FileHash)
	if err != nil {
		return &VerifyResult{BackupID: backupID, Error: err.Error()}, err
	}
	if err := m.ledger.StartCheck(chk.ID); err != nil {
		return &VerifyResult{BackupID: backupID, Error: err.Error()}, err
	}

	body, servedBy, err := m.store.Download(ctx, rec.FilePath)
	if err != nil {
		dlErr := fmt.Errorf("download failed: %w", err)
		if ferr := m.ledger.FinishCheck(chk.ID, model.CheckError, "", 0, dlErr.Error()); ferr != nil {
			log.Error().Str("backup_id", backupID).Err(ferr).Msg("failed to record check error")
		}
		return &VerifyResult{BackupID: backupID, ExpectedHash: rec.FileHash, Error: dlErr.Error()}, dlErr
	}
	defer body.Close()

	// Same hashing routine as backup finalization.
	actualHash, size, err := m.hashDownload(body)
	if err != nil {
		if ferr := m.ledger.FinishCheck(chk.ID, model.CheckError, "", 0, err.Error()); ferr != nil {
			log.Error().Str("backup_id", backupID).Err(ferr).Msg("failed to record check error")
		}
		return &VerifyResult{BackupID: backupID, ExpectedHash: rec.FileHash, Error: err.Error()}, err
	}

	if actualHash == rec.FileHash {
		if err := m.ledger.FinishCheck(chk.ID, model.CheckPassed, actualHash, size, ""); err != nil {
			return &VerifyResult{BackupID: backupID, Error: err.Error()}, err
		}
		log.Info().Str("backup_id", backupID).Str("served_by", servedBy).Msg("integrity check passed")
		return &VerifyResult{
			Success:         true,
			BackupID:        backupID,
			IntegrityPassed: true,
			ExpectedHash:    rec.FileHash,
			ActualHash:      actualHash,
			SizeVerified:    size,
			ServedBy:        servedBy,
		}, nil
	}

	// Mismatch: the check itself ran successfully, the data is bad.
	msg := fmt.Sprintf("hash mismatch: expected %s, got %s", rec.FileHash, actualHash)
	if err := m.ledger.FinishCheck(chk.ID, model.CheckFailed, actualHash, size, msg); err != nil {
		return &VerifyResult{BackupID: backupID, Error: err.Error()}, err
	}
	if err := m.ledger.MarkCorrupted(backupID); err != nil {
		return &VerifyResult{BackupID: backupID, Error: err.Error()}, err
	}
	log.Warn().
		Str("backup_id", backupID).
		Str("expected", rec.FileHash).
		Str("actual", actualHash).
		Msg("integrity check detected corruption")

	return &VerifyResult{
		Success:         true,
		BackupID:        backupID,
		IntegrityPassed: false,
		ExpectedHash:    rec.FileHash,
		ActualHash:      actualHash,
		SizeVerified:    size,
		ServedBy:        servedBy,
	}, nil
}
