package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupExpiredBackups reaps every ledger row whose expiry has passed and
// whose status is terminal. The artifact is deleted from all backends that
// hold it before the row goes; on partial deletion the row stays for the
// next pass. Re-running with nothing new expired processes zero candidates.
func (m *Manager) CleanupExpiredBackups(ctx context.Context) (*CleanupResult, error) {
	candidates, err := m.ledger.ExpiredRecords(time.Now())
	if err != nil {
		return &CleanupResult{Errors: []string{err.Error()}}, err
	}

	res := &CleanupResult{Candidates: len(candidates)}
	for _, rec := range candidates {
		// Failed attempts may hold no artifact at all; only delete from
		// backends that ever received it.
		if rec.StoredInPrimary || rec.StoredInSecondary {
			outcome := m.store.Delete(ctx, rec.FilePath, rec.StoredInPrimary, rec.StoredInSecondary)
			if !outcome.Succeeded() {
				msg := fmt.Sprintf("%s: partial deletion, backends failed: %v", rec.BackupID, outcome.Errors)
				res.Failed++
				res.Errors = append(res.Errors, msg)
				log.Warn().Str("backup_id", rec.BackupID).Strs("errors", outcome.Errors).Msg("artifact deletion incomplete, keeping ledger row")
				continue
			}
		}

		if err := m.ledger.MarkExpired(rec.BackupID); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.BackupID, err))
			continue
		}
		if err := m.ledger.DeleteRecord(rec.BackupID); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.BackupID, err))
			continue
		}
		res.Deleted++
		log.Info().Str("backup_id", rec.BackupID).Str("key", rec.FilePath).Msg("expired backup reaped")
	}

	return res, nil
}
