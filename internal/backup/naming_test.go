package backup

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	model "github.com/zarrinsoft/backup/internal/db"
)

func TestNewBackupID(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)

	assert.Equal(t, "full_system_system_20260828_143005", NewBackupID(model.TypeFullSystem, "", at))
	assert.Equal(t, "tenant_only_shop_alpha_20260828_143005", NewBackupID(model.TypeTenantOnly, "shop_alpha", at))
	assert.Equal(t, "snapshot_shop_alpha_20260828_143005", NewBackupID(model.TypeSnapshot, "shop_alpha", at))

	pattern := regexp.MustCompile(`^full_system_system_\d{8}_\d{6}$`)
	assert.Regexp(t, pattern, NewBackupID(model.TypeFullSystem, "", time.Now()))
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, "system", CategoryFor(model.TypeFullSystem))
	assert.Equal(t, "tenants", CategoryFor(model.TypeTenantOnly))
	assert.Equal(t, "config", CategoryFor(model.TypeConfiguration))
	assert.Equal(t, "snapshots", CategoryFor(model.TypeSnapshot))
	assert.Equal(t, "system", CategoryFor("something_else"))
}

func TestStorageKey(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)
	id := NewBackupID(model.TypeFullSystem, "", at)

	key := StorageKey("backups", CategoryFor(model.TypeFullSystem), id, "sql.gz.enc", at)
	assert.Equal(t, "backups/system/2026/08/28/full_system_system_20260828_143005.sql.gz.enc", key)
}

func TestArtifactExt(t *testing.T) {
	assert.Equal(t, "sql", artifactExt("sql", false, false))
	assert.Equal(t, "sql.gz", artifactExt("sql", true, false))
	assert.Equal(t, "sql.enc", artifactExt("sql", false, true))
	assert.Equal(t, "sql.gz.enc", artifactExt("sql", true, true))
	assert.Equal(t, "tar.gz.enc", artifactExt("tar.gz", false, true))
}
