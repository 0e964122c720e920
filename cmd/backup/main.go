package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zarrinsoft/backup/internal/backup"
	"github.com/zarrinsoft/backup/internal/config"
	"github.com/zarrinsoft/backup/internal/dump"
	"github.com/zarrinsoft/backup/internal/ledger"
	"github.com/zarrinsoft/backup/internal/pkg/helper"
	"github.com/zarrinsoft/backup/internal/scheduler"
	"github.com/zarrinsoft/backup/internal/setup"
	"github.com/zarrinsoft/backup/internal/storage"
	"github.com/zarrinsoft/backup/internal/utils"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "backup",
		Usage: "PostgreSQL backup engine: dump, gzip, AES-GCM encryption, SHA256, redundant dual-cloud upload, verification, retention and scheduling",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			setup.Command,
			{
				Name:  "run",
				Usage: "Run a full-system backup now",
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					res, err := env.manager.CreateFullSystemBackup(c.Context, "manual", actor())
					printCreateResult(res)
					return err
				},
			},
			{
				Name:  "tenant",
				Usage: "Back up a single tenant schema",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "schema", Usage: "Tenant schema name", Required: true},
					&cli.StringFlag{Name: "domain", Usage: "Tenant domain (recorded on the ledger row)"},
				},
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					res, err := env.manager.CreateTenantBackup(c.Context, c.String("schema"), c.String("domain"), "manual", actor())
					printCreateResult(res)
					return err
				},
			},
			{
				Name:  "snapshot",
				Usage: "Take a short-retention pre-operation snapshot of a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "schema", Usage: "Tenant schema name", Required: true},
					&cli.StringFlag{Name: "domain", Usage: "Tenant domain"},
				},
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					res, err := env.manager.CreateSnapshotBackup(c.Context, c.String("schema"), c.String("domain"), actor())
					printCreateResult(res)
					return err
				},
			},
			{
				Name:    "config",
				Aliases: []string{"bundle"},
				Usage:   "Back up the configured config directories as an encrypted tar.gz",
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					res, err := env.manager.CreateConfigBackup(c.Context, actor())
					printCreateResult(res)
					return err
				},
			},
			{
				Name:  "verify",
				Usage: "Re-download a backup and verify its SHA256 against the ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Backup ID", Required: true},
				},
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					res, err := env.manager.VerifyBackupIntegrity(c.Context, c.String("id"))
					if err != nil {
						return err
					}
					if res.IntegrityPassed {
						fmt.Printf("integrity passed: %s (%d bytes, served by %s)\n", res.BackupID, res.SizeVerified, res.ServedBy)
						return nil
					}
					return fmt.Errorf("integrity FAILED for %s: expected %s, got %s", res.BackupID, res.ExpectedHash, res.ActualHash)
				},
			},
			{
				Name:  "cleanup",
				Usage: "Delete expired backups from all backends and the ledger",
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					res, err := env.manager.CleanupExpiredBackups(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("cleanup: %d candidates, %d deleted, %d failed\n", res.Candidates, res.Deleted, res.Failed)
					for _, msg := range res.Errors {
						fmt.Printf("  error: %s\n", msg)
					}
					return nil
				},
			},
			{
				Name:  "recover",
				Usage: "Download, decrypt and decompress a backup to a local file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Backup ID", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output path for the recovered dump", Required: true},
				},
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					return env.manager.Recover(c.Context, c.String("id"), c.String("output"))
				},
			},
			{
				Name:  "schedule",
				Usage: "Run the scheduler daemon: dispatch due schedules, retries, verification and cleanup follow-ups",
				Action: func(c *cli.Context) error {
					env, err := prepare(c)
					if err != nil {
						return err
					}
					defer env.close()

					ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					runner := scheduler.NewRunner(env.cfg.Scheduler.Workers)
					tasks := scheduler.NewTasks(env.manager, runner, env.notifier, env.cfg)
					scanner := scheduler.NewScanner(env.ledger, tasks, runner, env.cfg.PollInterval())

					runner.Start(ctx)
					log.Info().Int("workers", env.cfg.Scheduler.Workers).Dur("poll_interval", env.cfg.PollInterval()).Msg("scheduler started")
					scanner.Run(ctx)
					runner.Stop()
					log.Info().Msg("scheduler stopped")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// env bundles everything a command needs, built once per invocation.
type env struct {
	cfg      *config.Config
	manager  *backup.Manager
	ledger   *ledger.Ledger
	notifier *helper.TelegramSender
	unlock   func()
}

func (e *env) close() {
	if e.unlock != nil {
		e.unlock()
	}
}

func prepare(c *cli.Context) (*env, error) {
	// 1. Check required tools
	if err := helper.CheckTools("pg_dump"); err != nil {
		return nil, err
	}

	// 2. Load config
	configPath := c.String("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. File locking
	unlock, err := utils.AcquireLock(cfg.LockFile)
	if err != nil {
		return nil, fmt.Errorf("could not acquire lock: %w", err)
	}

	log.Info().Str("config", configPath).Msg("starting backup engine")

	// 4. Ledger database
	gdb, err := gorm.Open(postgres.Open(cfg.LedgerDSN()), &gorm.Config{})
	if err != nil {
		unlock()
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	if err := ledger.Migrate(gdb); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	led := ledger.New(gdb)

	// 5. Storage backends
	primary, err := storage.NewMinioBackend("primary", cfg.Storage.Primary)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("failed to initialize primary storage: %w", err)
	}
	secondary := storage.NewS3Backend("secondary", cfg.Storage.Secondary)
	store := storage.NewRedundant(primary, secondary, cfg.Storage.DownloadFailover)

	// 6. Manager
	extractor := dump.NewExtractor(cfg.Postgres, cfg.DumpTimeout())
	manager, err := backup.NewManager(cfg, store, led, extractor)
	if err != nil {
		unlock()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		manager:  manager,
		ledger:   led,
		notifier: helper.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID),
		unlock:   unlock,
	}, nil
}

func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func printCreateResult(res *backup.CreateResult) {
	if res == nil {
		return
	}
	if res.Success {
		fmt.Printf("backup completed: %s\n  size: %d bytes\n  sha256: %s\n  path: %s\n  backends: %v\n",
			res.BackupID, res.FileSize, res.FileHash, res.StoragePath, res.UploadedTo)
		return
	}
	fmt.Printf("backup failed: %s\n  error: %s\n", res.BackupID, res.Error)
}
