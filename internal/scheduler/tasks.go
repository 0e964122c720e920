package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zarrinsoft/backup/internal/backup"
	"github.com/zarrinsoft/backup/internal/config"
	model "github.com/zarrinsoft/backup/internal/db"
	"github.com/zarrinsoft/backup/internal/pkg/helper"
)

const schedulerActor = "scheduler"

// Notifier delivers operator alerts. Satisfied by helper.TelegramSender.
type Notifier interface {
	Send(message string) error
}

// Tasks wraps the orchestrator's operations with retry policies and
// follow-up dispatch: verification after every successful backup, extended
// retention plus a cleanup sweep after the weekly one.
type Tasks struct {
	mgr      *backup.Manager
	runner   *Runner
	notifier Notifier
	cfg      *config.Config

	// Per-task-type retry budgets.
	dailyPolicy    Policy
	weeklyPolicy   Policy
	tenantPolicy   Policy
	snapshotPolicy Policy

	verifyDelay  time.Duration
	cleanupDelay time.Duration
}

func NewTasks(mgr *backup.Manager, runner *Runner, notifier Notifier, cfg *config.Config) *Tasks {
	return &Tasks{
		mgr:            mgr,
		runner:         runner,
		notifier:       notifier,
		cfg:            cfg,
		dailyPolicy:    Policy{MaxAttempts: 3, BaseDelay: 30 * time.Second},
		weeklyPolicy:   Policy{MaxAttempts: 3, BaseDelay: 30 * time.Second},
		tenantPolicy:   Policy{MaxAttempts: 2, BaseDelay: 30 * time.Second},
		snapshotPolicy: Policy{MaxAttempts: 1, BaseDelay: 30 * time.Second},
		verifyDelay:    5 * time.Minute,
		cleanupDelay:   30 * time.Minute,
	}
}

// RunDailyBackup runs the daily full-system backup under its retry budget.
func (t *Tasks) RunDailyBackup(ctx context.Context) (*backup.CreateResult, error) {
	res, err := t.runWithRetry(ctx, t.dailyPolicy, "daily full-system backup", func(ctx context.Context) (*backup.CreateResult, error) {
		return t.mgr.CreateFullSystemBackup(ctx, model.FreqDaily, schedulerActor)
	})
	if err != nil {
		return res, err
	}
	t.scheduleVerify(res.BackupID)
	return res, nil
}

// RunWeeklyBackup runs the weekly full-system backup. On success its
// retention is extended beyond the default and a cleanup sweep follows.
func (t *Tasks) RunWeeklyBackup(ctx context.Context) (*backup.CreateResult, error) {
	res, err := t.runWithRetry(ctx, t.weeklyPolicy, "weekly full-system backup", func(ctx context.Context) (*backup.CreateResult, error) {
		return t.mgr.CreateFullSystemBackup(ctx, model.FreqWeekly, schedulerActor)
	})
	if err != nil {
		return res, err
	}

	if err := t.mgr.ExtendRetention(res.BackupID, t.cfg.Retention.WeeklyDays); err != nil {
		log.Error().Str("backup_id", res.BackupID).Err(err).Msg("failed to extend weekly retention")
	}
	t.scheduleVerify(res.BackupID)
	t.runner.EnqueueAfter(t.cleanupDelay, Task{
		Name: "cleanup expired backups",
		Run: func(ctx context.Context) error {
			_, err := t.mgr.CleanupExpiredBackups(ctx)
			return err
		},
	})
	return res, nil
}

// RunTenantBackup backs up one tenant schema.
func (t *Tasks) RunTenantBackup(ctx context.Context, schema, domain string) (*backup.CreateResult, error) {
	name := fmt.Sprintf("tenant backup %s", schema)
	res, err := t.runWithRetry(ctx, t.tenantPolicy, name, func(ctx context.Context) (*backup.CreateResult, error) {
		return t.mgr.CreateTenantBackup(ctx, schema, domain, model.FreqDaily, schedulerActor)
	})
	if err != nil {
		return res, err
	}
	t.scheduleVerify(res.BackupID)
	return res, nil
}

// RunSnapshotBackup takes a pre-operation safety snapshot of a tenant.
// Single attempt: the caller is about to run a destructive operation and
// must not proceed on the strength of a stale snapshot.
func (t *Tasks) RunSnapshotBackup(ctx context.Context, schema, domain string) (*backup.CreateResult, error) {
	name := fmt.Sprintf("snapshot backup %s", schema)
	res, err := t.runWithRetry(ctx, t.snapshotPolicy, name, func(ctx context.Context) (*backup.CreateResult, error) {
		return t.mgr.CreateSnapshotBackup(ctx, schema, domain, schedulerActor)
	})
	if err != nil {
		return res, err
	}
	t.scheduleVerify(res.BackupID)
	return res, nil
}

func (t *Tasks) runWithRetry(ctx context.Context, policy Policy, name string, fn func(ctx context.Context) (*backup.CreateResult, error)) (*backup.CreateResult, error) {
	var res *backup.CreateResult
	err := policy.Run(ctx, func(ctx context.Context) error {
		r, err := fn(ctx)
		res = r
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			t.alert(fmt.Sprintf("❌ %s: %v", name, err))
		}
		return res, err
	}
	return res, nil
}

func (t *Tasks) scheduleVerify(backupID string) {
	t.runner.EnqueueAfter(t.verifyDelay, Task{
		Name: "verify " + backupID,
		Run: func(ctx context.Context) error {
			res, err := t.mgr.VerifyBackupIntegrity(ctx, backupID)
			if err != nil {
				return err
			}
			if !res.IntegrityPassed {
				t.alert(fmt.Sprintf("❌ integrity check failed for %s: expected %s, got %s",
					backupID, res.ExpectedHash, res.ActualHash))
			}
			return nil
		},
	})
}

func (t *Tasks) alert(message string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Send(message); err != nil {
		log.Error().Err(err).Msg("failed to send alert")
	}
}

var _ Notifier = (*helper.TelegramSender)(nil)
