package backup

import (
	"fmt"
	"time"

	model "github.com/zarrinsoft/backup/internal/db"
)

// ScopeSystem is the scope token used for non-tenant backups.
const ScopeSystem = "system"

const timestampLayout = "20060102_150405"

// NewBackupID mints the attempt identifier: {type}_{scope}_{YYYYMMDD_HHMMSS}.
// Every attempt gets a fresh id; ids are never reused or shared.
func NewBackupID(backupType, scope string, t time.Time) string {
	if scope == "" {
		scope = ScopeSystem
	}
	return fmt.Sprintf("%s_%s_%s", backupType, scope, t.Format(timestampLayout))
}

// CategoryFor maps a backup type onto its storage key category.
func CategoryFor(backupType string) string {
	switch backupType {
	case model.TypeTenantOnly:
		return "tenants"
	case model.TypeConfiguration:
		return "config"
	case model.TypeSnapshot:
		return "snapshots"
	default:
		return "system"
	}
}

// StorageKey builds the deterministic, backend-agnostic artifact key:
// {base}/{category}/{YYYY}/{MM}/{DD}/{backup_id}.{ext}
func StorageKey(base, category, backupID, ext string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s", base, category, t.Format("2006/01/02"), backupID, ext)
}

// artifactExt derives the artifact extension from the enabled stages.
func artifactExt(base string, compressed, encrypted bool) string {
	ext := base
	if compressed {
		ext += ".gz"
	}
	if encrypted {
		ext += ".enc"
	}
	return ext
}
