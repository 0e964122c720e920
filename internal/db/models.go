package db

import (
	"time"

	"github.com/bytedance/sonic"
)

// Backup types.
const (
	TypeFullSystem    = "full_system"
	TypeTenantOnly    = "tenant_only"
	TypeConfiguration = "configuration"
	TypeSnapshot      = "snapshot"
)

// Backup frequencies.
const (
	FreqDaily    = "daily"
	FreqWeekly   = "weekly"
	FreqMonthly  = "monthly"
	FreqManual   = "manual"
	FreqSnapshot = "snapshot"
)

// Backup record lifecycle states.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCorrupted  = "corrupted"
	StatusExpired    = "expired"
)

// Integrity check states. CheckError means the check could not run
// (download failure), as opposed to CheckFailed which means the artifact
// was downloaded and its hash did not match.
const (
	CheckPending    = "pending"
	CheckInProgress = "in_progress"
	CheckPassed     = "passed"
	CheckFailed     = "failed"
	CheckError      = "error"
)

// BackupRecord is one row per backup attempt. BackupID is minted once per
// attempt and never reused; concurrent attempts always create new rows.
type BackupRecord struct {
	ID         uint   `gorm:"primaryKey"`
	BackupID   string `gorm:"size:255;uniqueIndex;not null"`
	BackupType string `gorm:"size:32;index"`
	Frequency  string `gorm:"size:16"`

	// Tenant scope, empty for full-system and configuration backups.
	TenantSchema string `gorm:"size:128;index"`
	TenantDomain string `gorm:"size:255"`

	FilePath string `gorm:"size:512"`
	FileSize int64
	FileHash string `gorm:"size:64"`

	IsEncrypted       bool
	EncryptionKeyHash string `gorm:"size:64"`

	StoredInPrimary   bool
	StoredInSecondary bool

	Status string `gorm:"size:16;index"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time `gorm:"index"`

	Metadata     string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text"`
	CreatedBy    string `gorm:"size:255"`
}

func (BackupRecord) TableName() string {
	return "backup_records"
}

// IsRedundant reports whether the artifact lives in both backends.
func (r *BackupRecord) IsRedundant() bool {
	return r.StoredInPrimary && r.StoredInSecondary
}

// IsTerminal reports whether the record reached a per-attempt end state.
func (r *BackupRecord) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCorrupted, StatusExpired:
		return true
	}
	return false
}

// SetMetadata serializes the metadata bag into the record.
func (r *BackupRecord) SetMetadata(meta map[string]any) error {
	data, err := sonic.Marshal(meta)
	if err != nil {
		return err
	}
	r.Metadata = string(data)
	return nil
}

// GetMetadata deserializes the metadata bag. An empty column yields an empty map.
func (r *BackupRecord) GetMetadata() (map[string]any, error) {
	meta := make(map[string]any)
	if r.Metadata == "" {
		return meta, nil
	}
	if err := sonic.Unmarshal([]byte(r.Metadata), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// BackupIntegrityCheck is append-only: one row per verification attempt.
// A check never rewrites the parent record's FileHash; a failed check may
// flip the parent's status to corrupted.
type BackupIntegrityCheck struct {
	ID       uint   `gorm:"primaryKey"`
	BackupID string `gorm:"size:255;index;not null"`

	Status       string `gorm:"size:16"`
	ExpectedHash string `gorm:"size:64"`
	ActualHash   string `gorm:"size:64"`

	FileSizeVerified int64

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	StartedAt   *time.Time
	CompletedAt *time.Time

	ErrorMessage string `gorm:"type:text"`
}

func (BackupIntegrityCheck) TableName() string {
	return "backup_integrity_checks"
}

// BackupSchedule is a recurring backup policy. Mutated only by the
// scheduler after each dispatch.
type BackupSchedule struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:255"`
	ScheduleType string `gorm:"size:32"` // full_system or tenant_only
	Frequency    string `gorm:"size:16"` // daily, weekly, monthly

	Hour       int
	Minute     int
	DayOfWeek  int // 0=Sunday, used when Frequency is weekly
	DayOfMonth int // 1..28, used when Frequency is monthly

	TenantSchema string `gorm:"size:128"`
	TenantDomain string `gorm:"size:255"`

	RetentionDays int
	IsActive      bool `gorm:"index"`

	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastRunAt      *time.Time
	NextRunAt      *time.Time `gorm:"index"`
	LastBackupID   string     `gorm:"size:255"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (BackupSchedule) TableName() string {
	return "backup_schedules"
}
