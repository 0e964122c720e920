// Package scheduler runs backups on fixed schedules through an
// asynchronous worker pool, with bounded retries and follow-up
// verification and cleanup tasks.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zarrinsoft/backup/internal/backup"
	model "github.com/zarrinsoft/backup/internal/db"
	"github.com/zarrinsoft/backup/internal/ledger"
)

// Scanner periodically queries active schedules whose next_run_at has
// passed and dispatches the matching backup task. The schedule's
// next_run_at is advanced before the task runs, so a due instant is never
// evaluated twice.
type Scanner struct {
	ledger   *ledger.Ledger
	tasks    *Tasks
	runner   *Runner
	interval time.Duration
}

func NewScanner(led *ledger.Ledger, tasks *Tasks, runner *Runner, interval time.Duration) *Scanner {
	return &Scanner{ledger: led, tasks: tasks, runner: runner, interval: interval}
}

// Run blocks, scanning for due schedules until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	s.ScanOnce(ctx, time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.ScanOnce(ctx, now)
		}
	}
}

// ScanOnce dispatches every schedule due at the given instant.
func (s *Scanner) ScanOnce(ctx context.Context, now time.Time) {
	due, err := s.ledger.DueSchedules(now)
	if err != nil {
		log.Error().Err(err).Msg("failed to query due schedules")
		return
	}

	for i := range due {
		sched := due[i]
		if err := s.ledger.AdvanceNextRun(&sched, now); err != nil {
			log.Error().Uint("schedule", sched.ID).Err(err).Msg("failed to advance schedule")
			continue
		}
		s.dispatch(sched)
	}
}

func (s *Scanner) dispatch(sched model.BackupSchedule) {
	name := fmt.Sprintf("scheduled %s backup (schedule %d)", sched.ScheduleType, sched.ID)
	log.Info().
		Uint("schedule", sched.ID).
		Str("type", sched.ScheduleType).
		Str("frequency", sched.Frequency).
		Msg("dispatching due schedule")

	s.runner.Enqueue(Task{
		Name: name,
		Run: func(ctx context.Context) error {
			res, err := s.runScheduled(ctx, &sched)

			backupID := ""
			if res != nil {
				backupID = res.BackupID
			}
			if rerr := s.ledger.RecordRun(&sched, err == nil, backupID, time.Now()); rerr != nil {
				log.Error().Uint("schedule", sched.ID).Err(rerr).Msg("failed to record schedule run")
			}
			return err
		},
	})
}

func (s *Scanner) runScheduled(ctx context.Context, sched *model.BackupSchedule) (res *backup.CreateResult, err error) {
	switch sched.ScheduleType {
	case model.TypeTenantOnly:
		res, err = s.tasks.RunTenantBackup(ctx, sched.TenantSchema, sched.TenantDomain)
	default:
		if sched.Frequency == model.FreqWeekly {
			res, err = s.tasks.RunWeeklyBackup(ctx)
		} else {
			res, err = s.tasks.RunDailyBackup(ctx)
		}
	}
	if err != nil {
		return res, err
	}

	// Schedule-specific retention wins over the pipeline default.
	if sched.RetentionDays > 0 {
		if rerr := s.tasks.mgr.ExtendRetention(res.BackupID, sched.RetentionDays); rerr != nil {
			log.Error().Str("backup_id", res.BackupID).Err(rerr).Msg("failed to apply schedule retention")
		}
	}
	return res, nil
}
