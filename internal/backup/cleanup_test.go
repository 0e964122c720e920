package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zarrinsoft/backup/internal/db"
	"github.com/zarrinsoft/backup/internal/ledger"
)

func expireNow(t *testing.T, env *testEnv, backupID string) {
	t.Helper()
	require.NoError(t, env.ledger.SetRetention(backupID, time.Now().Add(-time.Hour), ""))
}

func TestCleanupReapsExpiredBackups(t *testing.T) {
	env := newTestEnv(t)

	expired, err := env.manager.CreateFullSystemBackup(context.Background(), model.FreqDaily, "tester")
	require.NoError(t, err)
	fresh, err := env.manager.CreateTenantBackup(context.Background(), "shop_alpha", "", model.FreqDaily, "tester")
	require.NoError(t, err)

	expireNow(t, env, expired.BackupID)

	res, err := env.manager.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 0, res.Failed)

	// Artifact gone from both backends, ledger row removed.
	_, ok := env.primary.get(expired.StoragePath)
	assert.False(t, ok)
	_, ok = env.secondary.get(expired.StoragePath)
	assert.False(t, ok)
	_, err = env.ledger.GetRecord(expired.BackupID)
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)

	// The unexpired backup is untouched.
	_, ok = env.primary.get(fresh.StoragePath)
	assert.True(t, ok)
	rec, err := env.ledger.GetRecord(fresh.BackupID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
}

func TestCleanupIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.manager.CreateFullSystemBackup(context.Background(), model.FreqDaily, "tester")
	require.NoError(t, err)
	expireNow(t, env, created.BackupID)

	first, err := env.manager.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Deleted)

	second, err := env.manager.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Candidates)
	assert.Equal(t, 0, second.Deleted)
}

func TestCleanupKeepsRowOnPartialDeletion(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.manager.CreateFullSystemBackup(context.Background(), model.FreqDaily, "tester")
	require.NoError(t, err)
	expireNow(t, env, created.BackupID)

	env.secondary.deleteErr = errors.New("access denied")

	res, err := env.manager.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "partial deletion")

	// Row survives for the next pass.
	rec, err := env.ledger.GetRecord(created.BackupID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)

	// Once the backend recovers, the next pass finishes the job.
	env.secondary.deleteErr = nil
	res, err = env.manager.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	_, err = env.ledger.GetRecord(created.BackupID)
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
}

func TestCleanupFailedAttemptWithoutArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.dumper.err = errors.New("Connection failed")

	failed, _ := env.manager.CreateFullSystemBackup(context.Background(), model.FreqDaily, "tester")
	expireNow(t, env, failed.BackupID)

	res, err := env.manager.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Deleted)

	_, err = env.ledger.GetRecord(failed.BackupID)
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
}
