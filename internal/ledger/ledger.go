// Package ledger persists backup attempts, integrity checks and schedules.
// Every mutation is a single-row update scoped by backup id, so concurrent
// pipelines touching different records never contend.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/zarrinsoft/backup/internal/db"
)

// ErrRecordNotFound is returned when a backup id has no ledger row.
var ErrRecordNotFound = errors.New("backup record not found")

type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.BackupRecord{},
		&model.BackupIntegrityCheck{},
		&model.BackupSchedule{},
	)
}

// CreateRecord inserts a new pending row for a backup attempt.
func (l *Ledger) CreateRecord(rec *model.BackupRecord) error {
	rec.Status = model.StatusPending
	if err := l.db.Create(rec).Error; err != nil {
		return fmt.Errorf("create backup record: %w", err)
	}
	return nil
}

// GetRecord looks up a record by backup id.
func (l *Ledger) GetRecord(backupID string) (*model.BackupRecord, error) {
	var rec model.BackupRecord
	err := l.db.Where("backup_id = ?", backupID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("get backup record: %w", err)
	}
	return &rec, nil
}

// MarkInProgress transitions pending -> in_progress and stamps started_at.
func (l *Ledger) MarkInProgress(backupID string) error {
	now := time.Now()
	return l.update(backupID, map[string]any{
		"status":     model.StatusInProgress,
		"started_at": &now,
	})
}

// MarkFailed ends the attempt with a human-readable reason.
func (l *Ledger) MarkFailed(backupID, reason string) error {
	now := time.Now()
	return l.update(backupID, map[string]any{
		"status":        model.StatusFailed,
		"error_message": reason,
		"completed_at":  &now,
	})
}

// CompletedUpdate carries everything persisted when an attempt finishes.
type CompletedUpdate struct {
	FileSize          int64
	FileHash          string
	StoredInPrimary   bool
	StoredInSecondary bool
	ExpiresAt         *time.Time
	Metadata          string
}

// MarkCompleted finalizes a successful attempt. FileHash is written here,
// exactly once per record.
func (l *Ledger) MarkCompleted(backupID string, upd CompletedUpdate) error {
	now := time.Now()
	return l.update(backupID, map[string]any{
		"status":              model.StatusCompleted,
		"file_size":           upd.FileSize,
		"file_hash":           upd.FileHash,
		"stored_in_primary":   upd.StoredInPrimary,
		"stored_in_secondary": upd.StoredInSecondary,
		"expires_at":          upd.ExpiresAt,
		"metadata":            upd.Metadata,
		"completed_at":        &now,
	})
}

// MarkCorrupted flips a completed record to corrupted after a failed
// integrity check. The guard on the current status makes concurrent checks
// converge: the transition applies at most once and never resurrects a row.
func (l *Ledger) MarkCorrupted(backupID string) error {
	res := l.db.Model(&model.BackupRecord{}).
		Where("backup_id = ? AND status IN ?", backupID, []string{model.StatusCompleted, model.StatusCorrupted}).
		Update("status", model.StatusCorrupted)
	if res.Error != nil {
		return fmt.Errorf("mark corrupted: %w", res.Error)
	}
	return nil
}

// SetRetention overlays expiry and metadata on an existing record. Used by
// the snapshot variant and the weekly extended-retention follow-up.
func (l *Ledger) SetRetention(backupID string, expiresAt time.Time, metadata string) error {
	fields := map[string]any{"expires_at": &expiresAt}
	if metadata != "" {
		fields["metadata"] = metadata
	}
	return l.update(backupID, fields)
}

// ExpiredRecords returns reap candidates: past expiry and in a terminal state.
func (l *Ledger) ExpiredRecords(now time.Time) ([]model.BackupRecord, error) {
	var recs []model.BackupRecord
	err := l.db.
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Where("status IN ?", []string{model.StatusCompleted, model.StatusFailed, model.StatusCorrupted}).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query expired records: %w", err)
	}
	return recs, nil
}

// MarkExpired transitions a record to expired just before its row is removed.
func (l *Ledger) MarkExpired(backupID string) error {
	return l.update(backupID, map[string]any{"status": model.StatusExpired})
}

// DeleteRecord removes the ledger row. Only called after the artifact is
// confirmed gone from every backend.
func (l *Ledger) DeleteRecord(backupID string) error {
	res := l.db.Where("backup_id = ?", backupID).Delete(&model.BackupRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete backup record: %w", res.Error)
	}
	return nil
}

func (l *Ledger) update(backupID string, fields map[string]any) error {
	res := l.db.Model(&model.BackupRecord{}).Where("backup_id = ?", backupID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update backup record %s: %w", backupID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, backupID)
	}
	return nil
}

// CreateCheck appends a pending integrity check row for a backup record.
func (l *Ledger) CreateCheck(backupID, expectedHash string) (*model.BackupIntegrityCheck, error) {
	chk := &model.BackupIntegrityCheck{
		BackupID:     backupID,
		Status:       model.CheckPending,
		ExpectedHash: expectedHash,
	}
	if err := l.db.Create(chk).Error; err != nil {
		return nil, fmt.Errorf("create integrity check: %w", err)
	}
	return chk, nil
}

// StartCheck transitions a check to in_progress.
func (l *Ledger) StartCheck(id uint) error {
	now := time.Now()
	return l.updateCheck(id, map[string]any{
		"status":     model.CheckInProgress,
		"started_at": &now,
	})
}

// FinishCheck records the outcome of a verification attempt.
func (l *Ledger) FinishCheck(id uint, status, actualHash string, sizeVerified int64, errMsg string) error {
	now := time.Now()
	return l.updateCheck(id, map[string]any{
		"status":             status,
		"actual_hash":        actualHash,
		"file_size_verified": sizeVerified,
		"error_message":      errMsg,
		"completed_at":       &now,
	})
}

// ChecksFor returns the full verification history of a backup, newest first.
func (l *Ledger) ChecksFor(backupID string) ([]model.BackupIntegrityCheck, error) {
	var checks []model.BackupIntegrityCheck
	err := l.db.Where("backup_id = ?", backupID).Order("id DESC").Find(&checks).Error
	if err != nil {
		return nil, fmt.Errorf("query integrity checks: %w", err)
	}
	return checks, nil
}

func (l *Ledger) updateCheck(id uint, fields map[string]any) error {
	res := l.db.Model(&model.BackupIntegrityCheck{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update integrity check %d: %w", id, res.Error)
	}
	return nil
}

// DueSchedules returns active schedules whose next_run_at has passed.
func (l *Ledger) DueSchedules(now time.Time) ([]model.BackupSchedule, error) {
	var schedules []model.BackupSchedule
	err := l.db.
		Where("is_active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	return schedules, nil
}

// SaveSchedule inserts or updates a schedule, stamping next_run_at when unset.
func (l *Ledger) SaveSchedule(s *model.BackupSchedule) error {
	if s.NextRunAt == nil {
		next := s.NextRun(time.Now())
		if !next.IsZero() {
			s.NextRunAt = &next
		}
	}
	if err := l.db.Save(s).Error; err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// AdvanceNextRun recomputes and persists next_run_at at dispatch time, so a
// due instant is never evaluated twice even while the task is still running.
func (l *Ledger) AdvanceNextRun(s *model.BackupSchedule, now time.Time) error {
	next := s.NextRun(now)
	if next.IsZero() {
		s.NextRunAt = nil
	} else {
		s.NextRunAt = &next
	}
	if err := l.db.Model(s).Update("next_run_at", s.NextRunAt).Error; err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	return nil
}

// RecordRun updates run counters after the dispatched task finishes.
func (l *Ledger) RecordRun(s *model.BackupSchedule, succeeded bool, backupID string, now time.Time) error {
	s.TotalRuns++
	if succeeded {
		s.SuccessfulRuns++
	} else {
		s.FailedRuns++
	}
	s.LastRunAt = &now
	if backupID != "" {
		s.LastBackupID = backupID
	}
	fields := map[string]any{
		"total_runs":      s.TotalRuns,
		"successful_runs": s.SuccessfulRuns,
		"failed_runs":     s.FailedRuns,
		"last_run_at":     s.LastRunAt,
		"last_backup_id":  s.LastBackupID,
	}
	if err := l.db.Model(s).Updates(fields).Error; err != nil {
		return fmt.Errorf("record schedule run: %w", err)
	}
	return nil
}
